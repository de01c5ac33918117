package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"civicdesk/pkg/platform/sentinel"
)

const (
	keyPrefix         = "civicdesk:lock:"
	defaultTTL        = 10 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
)

// Redis is a Locker backed by redislock. A section expires after ttl if its
// holder dies without releasing it.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis wraps a go-redis client. A zero ttl means the default.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  defaultRetryDelay,
	}
}

// Lock polls for key until ctx is done, then gives up with
// sentinel.ErrLockNotObtained.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	l, err := r.client.Obtain(ctx, keyPrefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %s", sentinel.ErrLockNotObtained, key)
		}
		return nil, fmt.Errorf("%w: obtain lock %s: %w", sentinel.ErrUnavailable, key, err)
	}
	return r.release(l), nil
}

// TryLock makes a single attempt.
func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	l, err := r.client.Obtain(ctx, keyPrefix+key, r.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: obtain lock %s: %w", sentinel.ErrUnavailable, key, err)
	}
	return r.release(l), true, nil
}

func (r *Redis) release(l *redislock.Lock) Unlock {
	return func() {
		// Release uses a fresh context so a cancelled request still frees its key.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.Release(ctx)
	}
}
