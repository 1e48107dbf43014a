package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces limiter keys in Redis.
const DefaultPrefix = "ratelimit:"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// slidingWindow trims events older than the window, records the new event
// only when it fits, and returns {allowed, count, reset_ms}. Reset is when
// the oldest kept event leaves the window.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count < limit then
  redis.call("ZADD", key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", key, window)
local reset = now + window
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// Limiter is a sliding window limiter backed by a Redis sorted set per key.
// Rejected attempts are not recorded, so a client that keeps retrying is
// admitted again as soon as its oldest accepted upload leaves the window.
type Limiter struct {
	Client *redis.Client
	Prefix string
	// Clock overrides time.Now.
	Clock func() time.Time
}

// Allow records an event for key when fewer than limit events happened in the
// last window. A limiter without a client, limit or window allows everything.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now()
	if l.Clock != nil {
		now = l.Clock()
	}
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}
	prefix := l.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	res, err := slidingWindow.Run(ctx, l.Client, []string{prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{ResetAt: now.Add(window)}, err
	}
	if len(res) != 3 {
		return Decision{ResetAt: now.Add(window)}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: max(0, limit-int(res[1])),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
