package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{Attempts: 3, RetryDelay: 5 * time.Millisecond, Timeout: time.Second, TTL: time.Minute}
}

func lockers(t *testing.T) map[string]Locker {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Locker{
		"local": NewLocalLocker(fastOptions()),
		"redis": NewRedisLocker(client, fastOptions()),
	}
}

func TestLocker_Exclusive(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			lease, err := l.Acquire(ctx, "conversation:1:abc-update")
			require.NoError(t, err)

			_, err = l.Acquire(ctx, "conversation:1:abc-update")
			assert.ErrorIs(t, err, ErrNotAcquired)

			other, err := l.Acquire(ctx, "conversation:1:xyz-update")
			require.NoError(t, err)
			require.NoError(t, other.Release(ctx))

			require.NoError(t, lease.Release(ctx))
			require.NoError(t, lease.Release(ctx))

			again, err := l.Acquire(ctx, "conversation:1:abc-update")
			require.NoError(t, err)
			require.NoError(t, again.Release(ctx))
		})
	}
}

func TestLocker_WaitsForRelease(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			lease, err := l.Acquire(ctx, "k")
			require.NoError(t, err)

			time.AfterFunc(2*time.Millisecond, func() {
				lease.Release(ctx)
			})

			second, err := l.Acquire(ctx, "k")
			require.NoError(t, err)
			require.NoError(t, second.Release(ctx))
		})
	}
}

func TestRedisLease_ReleaseKeepsForeignToken(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	ctx := context.Background()

	l := NewRedisLocker(client, fastOptions())
	lease, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	require.NoError(t, client.Set(ctx, "k", "someone-else", 0).Err())
	require.NoError(t, lease.Release(ctx))

	val, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestWith_SerializesCriticalSections(t *testing.T) {
	l := NewLocalLocker(Options{Attempts: 1000, RetryDelay: time.Millisecond, Timeout: 5 * time.Second})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := With(ctx, l, "k", func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}
