// Package cluster provides the lease lock that keeps at most one relay
// instance dispatching at a time.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisLock is a lease-based mutual exclusion primitive on redsync. A lock
// expires on its own after the lease, so a crashed holder cannot wedge the
// cluster; consumers tolerate the resulting duplicate publishes by
// deduplicating on event_id.
type RedisLock struct {
	rs *redsync.Redsync

	mu   sync.Mutex
	held map[string]*redsync.Mutex
}

func NewRedisLock(client *redis.Client) *RedisLock {
	pool := goredis.NewPool(client)
	return &RedisLock{
		rs:   redsync.New(pool),
		held: map[string]*redsync.Mutex{},
	}
}

// TryAcquire makes a single attempt to take name for lease. A lock held
// elsewhere reports (false, nil); only infrastructure failures return an
// error.
func (l *RedisLock) TryAcquire(ctx context.Context, name string, lease time.Duration) (bool, error) {
	if name == "" {
		return false, errors.New("lock name is required")
	}
	if lease <= 0 {
		return false, errors.New("lock lease must be positive")
	}

	m := l.rs.NewMutex(name,
		redsync.WithExpiry(lease),
		redsync.WithTries(1),
	)
	if err := m.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	l.mu.Lock()
	l.held[name] = m
	l.mu.Unlock()
	return true, nil
}

// Release frees name. Safe to call when the lock was never acquired or its
// lease already expired; both are no-ops.
func (l *RedisLock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	m := l.held[name]
	delete(l.held, name)
	l.mu.Unlock()

	if m == nil {
		return nil
	}

	ok, err := m.UnlockContext(ctx)
	if err != nil {
		if errors.Is(err, redsync.ErrLockAlreadyExpired) {
			return nil
		}
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	_ = ok
	return nil
}
