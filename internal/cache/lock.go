package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// ErrLockHeld is returned when another run already holds the key.
var ErrLockHeld = errors.New("lock already held")

// ReleaseFunc gives a lock back.
type ReleaseFunc func(ctx context.Context) error

// RunLocker serializes runs that must not overlap, such as two generate
// passes for the same store.
type RunLocker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

type redisLocker struct {
	locker *redislock.Client
	ttl    time.Duration
}

func newRedisLocker(client *redis.Client, ttl time.Duration) *redisLocker {
	return &redisLocker{locker: redislock.New(client), ttl: ttl}
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	lock, err := l.locker.Obtain(ctx, "lock:"+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
	}
	if err != nil {
		return nil, fmt.Errorf("error obtaining lock %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("error releasing lock %s: %w", key, err)
		}
		return nil
	}, nil
}

// LocalLocker is an in-process RunLocker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
