package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamStore appends events to a Redis stream.
type RedisStreamStore struct {
	R      *redis.Client
	Stream string
	// MaxLen caps the stream approximately; zero keeps everything.
	MaxLen int64
}

// Append implements Store.
func (s RedisStreamStore) Append(ctx context.Context, ev Event) error {
	if s.R == nil {
		return fmt.Errorf("events: redis client not configured")
	}
	args := &redis.XAddArgs{
		Stream: s.stream(),
		Values: map[string]any{
			"id":           ev.ID,
			"topic":        ev.Topic,
			"aggregate_id": ev.AggregateID,
			"payload":      string(ev.Payload),
			"occurred_at":  ev.OccurredAt.Format(time.RFC3339Nano),
		},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	return s.R.XAdd(ctx, args).Err()
}

// Recent returns up to count events, oldest first.
func (s RedisStreamStore) Recent(ctx context.Context, count int64) ([]Event, error) {
	msgs, err := s.R.XRevRangeN(ctx, s.stream(), "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		values := msgs[i].Values
		ev := Event{
			ID:          str(values["id"]),
			Topic:       str(values["topic"]),
			AggregateID: str(values["aggregate_id"]),
			Payload:     json.RawMessage(str(values["payload"])),
		}
		if ts, err := time.Parse(time.RFC3339Nano, str(values["occurred_at"])); err == nil {
			ev.OccurredAt = ts
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s RedisStreamStore) stream() string {
	if s.Stream == "" {
		return "events:pricing"
	}
	return s.Stream
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
