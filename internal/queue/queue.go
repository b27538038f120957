// Package queue is a small Redis sorted-set task queue. Tasks are scored by
// the time they become due; in-flight tasks live in a processing set until
// acknowledged so that a crashed worker's tasks are redelivered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KindOrderRecalculate recalculates all pricing sheets of one order.
const KindOrderRecalculate = "order-recalculate"

var (
	// ErrNotConfigured is returned when the Redis client is missing.
	ErrNotConfigured = errors.New("queue: redis client not configured")
	// ErrInvalidKind is returned for empty kinds or kinds with unsupported characters.
	ErrInvalidKind = errors.New("queue: invalid task kind")
)

// Task is one unit of asynchronous work.
type Task struct {
	Kind string
	// Key deduplicates enqueues while the task is pending.
	Key         string
	Payload     []byte
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// Keys derives the Redis keys used for one kind.
type Keys struct {
	Prefix string
}

func (k Keys) base() string {
	if k.Prefix == "" {
		return "queue"
	}
	return k.Prefix + ":queue"
}

func (k Keys) Ready(kind string) string      { return fmt.Sprintf("%s:%s", k.base(), kind) }
func (k Keys) Processing(kind string) string { return fmt.Sprintf("%s:%s:processing", k.base(), kind) }
func (k Keys) DLQ(kind string) string        { return fmt.Sprintf("%s:%s:dlq", k.base(), kind) }
func (k Keys) Dedup(kind, key string) string { return fmt.Sprintf("%s:dedup:%s:%s", k.base(), kind, key) }

// Enqueuer publishes tasks.
type Enqueuer struct {
	R        *redis.Client
	Prefix   string
	DedupTTL time.Duration
	Now      func() time.Time
}

// Enqueue adds the task. A task whose Key is already pending is dropped
// silently.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return ErrNotConfigured
	}
	if !validKind(t.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	keys := Keys{Prefix: e.Prefix}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	msg := message{
		Kind:        t.Kind,
		Key:         t.Key,
		Payload:     t.Payload,
		MaxAttempts: t.MaxAttempts,
		AvailableAt: now().Add(t.Delay).UnixNano(),
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = 10
	}

	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, keys.Dedup(t.Kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, keys.Ready(t.Kind), redis.Z{Score: float64(msg.AvailableAt), Member: string(raw)}).Err()
}

// DeadLetters returns up to limit tasks that exhausted their attempts, newest first.
func (e Enqueuer) DeadLetters(ctx context.Context, kind string, limit int64) ([]Task, error) {
	if e.R == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 50
	}
	raws, err := e.R.LRange(ctx, Keys{Prefix: e.Prefix}.DLQ(kind), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(raws))
	for _, raw := range raws {
		msg, err := decode(raw)
		if err != nil {
			continue
		}
		tasks = append(tasks, msg.task())
	}
	return tasks, nil
}

// Depth reports the number of ready and in-flight tasks of a kind.
func (e Enqueuer) Depth(ctx context.Context, kind string) (ready, processing int64, err error) {
	if e.R == nil {
		return 0, 0, ErrNotConfigured
	}
	keys := Keys{Prefix: e.Prefix}
	if ready, err = e.R.ZCard(ctx, keys.Ready(kind)).Result(); err != nil {
		return 0, 0, err
	}
	if processing, err = e.R.ZCard(ctx, keys.Processing(kind)).Result(); err != nil {
		return 0, 0, err
	}
	return ready, processing, nil
}

func validKind(kind string) bool {
	if kind == "" {
		return false
	}
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == ':':
		default:
			return false
		}
	}
	return true
}

type message struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
	LastError   string `json:"last_error,omitempty"`
}

func (m message) task() Task {
	return Task{Kind: m.Kind, Key: m.Key, Payload: m.Payload, Attempt: m.Attempt, MaxAttempts: m.MaxAttempts}
}

func decode(raw string) (message, error) {
	var msg message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return message{}, err
	}
	return msg, nil
}
