package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var ErrNotConfigured = errors.New("rate_limiter_not_configured")

// refillScript keeps the bucket as whole milli-tokens plus the last refill
// time in a hash, using the redis clock so every replica agrees on "now".
// It returns allowed, remaining tokens and the wait in ms until one token.
const refillScript = `
local per_ms = tonumber(ARGV[1]) / 1000
local cap = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "at")
local milli = tonumber(state[1]) or cap
local at = tonumber(state[2]) or now
if now > at then
  milli = math.min(cap, milli + math.floor((now - at) * per_ms * 1000))
end

local ok = 0
if milli >= 1000 then
  ok = 1
  milli = milli - 1000
end
redis.call("HSET", KEYS[1], "milli", milli, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)

local wait = 0
if ok == 0 then
  wait = math.ceil((1000 - milli) / (per_ms * 1000))
end
return {ok, math.floor(milli / 1000), wait}
`

// Limit is a refill rate in tokens per second and a bucket capacity.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) validate() error {
	if l.Rate <= 0 || l.Burst <= 0 {
		return fmt.Errorf("rate limit %v/s burst %d: both must be positive", l.Rate, l.Burst)
	}
	return nil
}

// idleTTL is how long an untouched bucket lives: twice a full refill, at
// least one second.
func (l Limit) idleTTL() time.Duration {
	refill := time.Duration(math.Ceil(float64(l.Burst)/l.Rate)) * time.Second
	return max(2*refill, time.Second)
}

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// TokenBucket is a redis-backed token bucket shared by all replicas.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(refillScript)}
}

// Take removes one token from the bucket at key.
func (b *TokenBucket) Take(ctx context.Context, key string, limit Limit) (Result, error) {
	if b == nil || b.client == nil {
		return Result{}, ErrNotConfigured
	}
	if key == "" {
		return Result{}, errors.New("rate limit key is empty")
	}
	if err := limit.validate(); err != nil {
		return Result{}, err
	}

	reply, err := b.script.Run(ctx, b.client, []string{key},
		limit.Rate, limit.Burst, limit.idleTTL().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("token bucket %s: %w", key, err)
	}
	return decodeReply(reply)
}

func decodeReply(reply []int64) (Result, error) {
	if len(reply) != 3 {
		return Result{}, fmt.Errorf("token bucket: unexpected reply %v", reply)
	}
	return Result{
		Allowed:    reply[0] == 1,
		Remaining:  int(reply[1]),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}
