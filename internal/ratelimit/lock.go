package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var ErrLockNotObtained = errors.New("lock_not_obtained")

// Locker hands out short-lived distributed locks backed by redis.
type Locker struct {
	client *redislock.Client
	retry  redislock.RetryStrategy
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: redislock.New(client),
		retry:  redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), 8),
	}
}

// Obtain acquires key for ttl and returns a release func. A nil Locker
// reports ErrLockNotObtained so callers can fall back to running unlocked.
func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context), error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotObtained
	}
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func(releaseCtx context.Context) {
		_ = lock.Release(releaseCtx)
	}, nil
}
