package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"civicdesk/internal/ratelimit/models"
	"civicdesk/pkg/platform/sentinel"
)

// slidingWindowScript admits a request atomically. Scores are unix millis.
// Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
if count >= limit then
  return {0, count, oldest}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, oldest}
`)

// RedisStore shares sliding windows across replicas.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	clock  func() time.Time
}

// NewRedisStore stores windows under "ratelimit:<key>".
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "ratelimit:", clock: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.clock()
	nowMs := now.UnixMilli()
	raw, err := slidingWindowScript.Run(ctx, s.rdb, []string{s.prefix + key},
		nowMs, window.Milliseconds(), limit, fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("rate limit %s: unexpected script reply %v", key, raw)
	}
	resetAt := time.UnixMilli(raw[2]).Add(window)
	if raw[0] == 0 {
		return models.Denied(limit, now, resetAt), nil
	}
	return models.Allowed(limit, int(raw[1]), resetAt), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}
