// Package ratelimit throttles job admissions per facility with a distributed
// token bucket on Redis, so a burst of orders against one facility cannot
// starve the rest of the API.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AdmissionLimiter is a per-facility token bucket. State lives in Redis so
// every API replica draws from the same buckets.
type AdmissionLimiter struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// NewAdmissionLimiter constructs a limiter with the provided capacity/refill.
// Idle buckets expire after ttl.
func NewAdmissionLimiter(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *AdmissionLimiter {
	return &AdmissionLimiter{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

func admissionKey(facility string) string {
	return fmt.Sprintf("magnate:admit:%s", facility)
}

// Allow consumes one admission token for the facility if available. Returns
// the allowed flag and the remaining token count.
func (l *AdmissionLimiter) Allow(ctx context.Context, facility string) (bool, float64, error) {
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, l.client, []string{admissionKey(facility)},
		l.capacity, l.refill, now, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script reply %T", res)
	}
	allowed := arr[0].(int64) == 1
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	}
	return allowed, tokens, nil
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
