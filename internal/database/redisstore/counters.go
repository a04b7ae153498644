// Package redisstore provides a Redis-backed sliding window counter for
// deployments that run more than one engine process against the same
// rate limits.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"resonance/internal/moderation"
)

const keyPrefix = "resonance:rate:"

// hitScript prunes hits at or before the cutoff, then records a new hit
// only if the remaining count is below the limit. Scores are unix
// microseconds formatted by the caller; Lua numbers would lose precision.
//
//	ARGV: now, cutoff, limit, member, ttl(ms)
var hitScript = goredis.NewScript(`
local key = KEYS[1]
redis.call("ZREMRANGEBYSCORE", key, "-inf", ARGV[2])
local count = redis.call("ZCARD", key)
if count >= tonumber(ARGV[3]) then
  return 0
end
redis.call("ZADD", key, ARGV[1], ARGV[4])
redis.call("PEXPIRE", key, ARGV[5])
return 1
`)

// CounterStore implements moderation.WindowStore on a sorted set per key
type CounterStore struct {
	client goredis.UniversalClient
}

var _ moderation.WindowStore = (*CounterStore)(nil)

func NewCounterStore(client goredis.UniversalClient) *CounterStore {
	return &CounterStore{client: client}
}

// Connect parses a redis:// URL and verifies the connection
func Connect(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *CounterStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error) {
	if s.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if key == "" || window <= 0 {
		return false, fmt.Errorf("invalid rate window payload")
	}

	res, err := hitScript.Run(ctx, s.client, []string{keyPrefix + key},
		strconv.FormatInt(now.UnixMicro(), 10),
		strconv.FormatInt(now.Add(-window).UnixMicro(), 10),
		strconv.Itoa(limit),
		uuid.NewString(),
		strconv.FormatInt(window.Milliseconds()+1, 10),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("record rate hit: %w", err)
	}
	return res == 1, nil
}
