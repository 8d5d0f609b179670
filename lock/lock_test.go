package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loyalty/lock"
)

func lockers(t *testing.T) map[string]lock.Locker {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]lock.Locker{
		"keyed": lock.NewKeyed(),
		"redis": lock.NewRedis(client, lock.WithRetryInterval(time.Millisecond)),
	}
}

func TestLockExcludesSameKey(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var (
				inside  atomic.Int32
				maxSeen atomic.Int32
				wg      sync.WaitGroup
			)

			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.Lock(context.Background(), "balance/alice/biz")
					if !assert.NoError(t, err) {
						return
					}
					n := inside.Add(1)
					if n > maxSeen.Load() {
						maxSeen.Store(n)
					}
					time.Sleep(2 * time.Millisecond)
					inside.Add(-1)
					unlock()
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), maxSeen.Load())
		})
	}
}

func TestLockDifferentKeysDoNotContend(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			unlockA, err := l.Lock(context.Background(), "a")
			require.NoError(t, err)
			defer unlockA()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			unlockB, err := l.Lock(ctx, "b")
			require.NoError(t, err)
			unlockB()
		})
	}
}

func TestLockTimesOut(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(context.Background(), "held")
			require.NoError(t, err)
			defer unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			_, err = l.Lock(ctx, "held")
			require.ErrorIs(t, err, lock.ErrTimeout)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestLockReleaseAllowsNextHolder(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(context.Background(), "k")
			require.NoError(t, err)
			unlock()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			unlock, err = l.Lock(ctx, "k")
			require.NoError(t, err)
			unlock()
		})
	}
}

func TestKeyedDropsIdleEntries(t *testing.T) {
	l := lock.NewKeyed()

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, l.Len())
}

func TestRedisUnlockKeepsForeignLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := lock.NewRedis(client, lock.WithPrefix("test:"))
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Simulate the lease expiring and another process taking the key.
	require.NoError(t, mr.Set("test:k", "someone-else"))
	unlock()

	got, err := mr.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
