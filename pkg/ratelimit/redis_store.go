package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ratelimit:"

// hitScript performs the fixed-window read-increment-write in one step.
// KEYS[1] bucket key; ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] ttl (ms).
// Returns {count, window start (ms)}.
var hitScript = redis.NewScript(`
local data = redis.call('HMGET', KEYS[1], 'start', 'count')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local start = tonumber(data[1])
local count = tonumber(data[2])

if not start or not count or now - start >= window then
  start = now
  count = 1
else
  count = count + 1
end

redis.call('HSET', KEYS[1], 'start', start, 'count', count)
redis.call('PEXPIRE', KEYS[1], ttl)
return {count, start}
`)

// RedisStore keeps buckets in Redis so several processes share one budget.
// Buckets expire on their own window plus the grace period after the last hit.
type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	gracePeriod time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the namespace for bucket keys.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisGracePeriod sets the expiry slack added to each bucket's window.
func WithRedisGracePeriod(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if d >= 0 {
			s.gracePeriod = d
		}
	}
}

// NewRedisStore creates a store on top of client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreRequired
	}

	s := &RedisStore{
		client:      client,
		prefix:      defaultRedisPrefix,
		gracePeriod: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	ttl := window + s.gracePeriod
	vals, err := hitScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis hit: %w", err)
	}
	if len(vals) != 2 {
		return 0, time.Time{}, errors.New("ratelimit: redis hit: unexpected reply")
	}

	return vals[0], time.UnixMilli(vals[1]), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis reset: %w", err)
	}
	return nil
}
