package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, Prefix: "test", TTL: time.Second, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestWithLockSerializes(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		mu    sync.Mutex
		order []string
	)
	firstHolding := make(chan struct{})
	releaseFirst := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "recalc:o-1", func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstHolding)
			<-releaseFirst
			return nil
		})
	}()
	<-firstHolding

	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "recalc:o-1", func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"first"}, order)
	mu.Unlock()

	close(releaseFirst)
	wg.Wait()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := locker.WithLock(ctx, "recalc:o-2", func(context.Context) error {
		require.True(t, mr.Exists("test:lock:recalc:o-2"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("test:lock:recalc:o-2"))
}

func TestWithLockTimesOut(t *testing.T) {
	locker, mr := newLocker(t)
	require.NoError(t, mr.Set("test:lock:recalc:o-3", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "recalc:o-3", func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// a foreign token is never released
	got, err := mr.Get("test:lock:recalc:o-3")
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}
