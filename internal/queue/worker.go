package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// Handler processes one task. Returning an error schedules a retry.
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task Task) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, task Task) error { return f(ctx, task) }

// Worker consumes the tasks of one kind.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	RetryBase         time.Duration
	RetryJitter       float64
	Handler           Handler
	Logger            zerolog.Logger
}

// Run processes tasks until ctx is cancelled and waits for in-flight tasks.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return ErrNotConfigured
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	if !validKind(w.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, w.Kind)
	}
	concurrency := max(w.Concurrency, 1)
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	poll := w.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	keys := Keys{Prefix: w.Prefix}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	requeue := time.NewTicker(time.Second)
	defer requeue.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-requeue.C:
			if err := w.requeueExpired(ctx, keys); err != nil && ctx.Err() == nil {
				return err
			}
		default:
		}

		res, err := w.R.ZPopMin(ctx, keys.Ready(w.Kind), 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(res) == 0 {
			sleep(ctx, poll)
			continue
		}
		raw, ok := res[0].Member.(string)
		if !ok {
			continue
		}
		msg, err := decode(raw)
		if err != nil {
			w.Logger.Warn().Err(err).Str("kind", w.Kind).Msg("queue_message_undecodable")
			continue
		}
		now := time.Now().UnixNano()
		if msg.AvailableAt > now {
			_ = w.R.ZAdd(ctx, keys.Ready(w.Kind), redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
			sleep(ctx, min(time.Duration(msg.AvailableAt-now), time.Second))
			continue
		}

		msg.Attempt++
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		inflight := string(encoded)
		deadline := time.Now().Add(visibility).UnixNano()
		if err := w.R.ZAdd(ctx, keys.Processing(w.Kind), redis.Z{Score: float64(deadline), Member: inflight}).Err(); err != nil {
			return err
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		wg.Add(1)
		go func(inflight string, msg message) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, keys, inflight, msg)
		}(inflight, msg)
	}
}

func (w Worker) process(ctx context.Context, keys Keys, inflight string, msg message) {
	start := time.Now()
	err := w.Handler.Handle(ctx, msg.task())
	_ = w.R.ZRem(context.WithoutCancel(ctx), keys.Processing(w.Kind), inflight).Err()
	if err == nil {
		if msg.Key != "" {
			_ = w.R.Del(context.WithoutCancel(ctx), keys.Dedup(w.Kind, msg.Key)).Err()
		}
		countProcessed(w.Kind, "ok")
		w.Logger.Debug().Str("kind", w.Kind).Str("key", msg.Key).Dur("took", time.Since(start)).Msg("queue_task_done")
		return
	}
	w.fail(context.WithoutCancel(ctx), keys, msg, err)
}

func (w Worker) fail(ctx context.Context, keys Keys, msg message, cause error) {
	msg.LastError = cause.Error()
	if msg.Attempt >= msg.MaxAttempts {
		if raw, err := json.Marshal(msg); err == nil {
			_ = w.R.LPush(ctx, keys.DLQ(w.Kind), raw).Err()
		}
		if msg.Key != "" {
			_ = w.R.Del(ctx, keys.Dedup(w.Kind, msg.Key)).Err()
		}
		countProcessed(w.Kind, "dead")
		w.Logger.Error().Err(cause).Str("kind", w.Kind).Str("key", msg.Key).Int("attempt", msg.Attempt).Msg("queue_task_dead_lettered")
		return
	}
	msg.AvailableAt = time.Now().Add(resilience.Backoff(w.retryBase(), msg.Attempt, w.RetryJitter)).UnixNano()
	if raw, err := json.Marshal(msg); err == nil {
		_ = w.R.ZAdd(ctx, keys.Ready(w.Kind), redis.Z{Score: float64(msg.AvailableAt), Member: string(raw)}).Err()
	}
	countProcessed(w.Kind, "retry")
	w.Logger.Warn().Err(cause).Str("kind", w.Kind).Str("key", msg.Key).Int("attempt", msg.Attempt).Msg("queue_task_retry")
}

func (w Worker) requeueExpired(ctx context.Context, keys Keys) error {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	due, err := w.R.ZRangeByScore(ctx, keys.Processing(w.Kind), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range due {
		removed, err := w.R.ZRem(ctx, keys.Processing(w.Kind), raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		msg, err := decode(raw)
		if err != nil {
			continue
		}
		msg.AvailableAt = time.Now().UnixNano()
		if encoded, err := json.Marshal(msg); err == nil {
			_ = w.R.ZAdd(ctx, keys.Ready(w.Kind), redis.Z{Score: float64(msg.AvailableAt), Member: string(encoded)}).Err()
		}
		w.Logger.Warn().Str("kind", w.Kind).Str("key", msg.Key).Msg("queue_task_redelivered")
	}
	return nil
}

func (w Worker) retryBase() time.Duration {
	if w.RetryBase <= 0 {
		return 200 * time.Millisecond
	}
	return w.RetryBase
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
