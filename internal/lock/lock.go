// ABOUTME: Advisory per-key locks guarding conversation writes
// ABOUTME: Redis locks use SET NX PX with an owner token; local locks are in-process

package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when every attempt to take a lock failed.
var ErrNotAcquired = errors.New("lock not acquired")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Options control how hard Acquire tries.
type Options struct {
	Attempts   int
	RetryDelay time.Duration
	// Timeout bounds the whole acquisition, across attempts.
	Timeout time.Duration
	// TTL bounds how long a Redis lease survives a crashed holder.
	TTL time.Duration
}

// DefaultOptions returns 5 attempts one second apart within five seconds.
func DefaultOptions() Options {
	return Options{
		Attempts:   5,
		RetryDelay: time.Second,
		Timeout:    5 * time.Second,
		TTL:        10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.TTL <= 0 {
		o.TTL = d.TTL
	}
	return o
}

// retry calls try until it reports success, attempts run out, or the timeout passes.
func retry(ctx context.Context, opts Options, key string, try func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		ok, err := try(ctx)
		if err != nil {
			return fmt.Errorf("acquiring %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if attempt >= opts.Attempts {
			return fmt.Errorf("%w: %s after %d attempts", ErrNotAcquired, key, attempt)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-time.After(opts.RetryDelay):
		}
	}
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes locks in Redis so they hold across gateway replicas.
type RedisLocker struct {
	client *redis.Client
	opts   Options
}

// NewRedisLocker creates a RedisLocker on client.
func NewRedisLocker(client *redis.Client, opts Options) *RedisLocker {
	return &RedisLocker{client: client, opts: opts.withDefaults()}
}

// Acquire takes the lock on key.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	err := retry(ctx, l.opts, key, func(ctx context.Context) (bool, error) {
		return l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
	})
	if err != nil {
		return nil, err
	}
	return &redisLease{client: l.client, key: key, token: token}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	once   sync.Once
}

func (r *redisLease) Release(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		err = releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Err()
		if errors.Is(err, redis.Nil) {
			err = nil
		}
	})
	return err
}

// LocalLocker takes locks within a single process.
type LocalLocker struct {
	opts Options

	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{
		opts: opts.withDefaults(),
		held: make(map[string]struct{}),
	}
}

// Acquire takes the lock on key.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	err := retry(ctx, l.opts, key, func(context.Context) (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, busy := l.held[key]; busy {
			return false, nil
		}
		l.held[key] = struct{}{}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &localLease{locker: l, key: key}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	once   sync.Once
}

func (r *localLease) Release(context.Context) error {
	r.once.Do(func() {
		r.locker.mu.Lock()
		delete(r.locker.held, r.key)
		r.locker.mu.Unlock()
	})
	return nil
}

// With runs fn while holding the lock on key.
func With(ctx context.Context, l Locker, key string, fn func() error) error {
	lease, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx))
	return fn()
}
