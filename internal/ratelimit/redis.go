package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window keys outlive their second so late INCRs still see the counter.
const redisWindowTTLSeconds = 2

var redisIncrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter implements a fixed-window rate limiter shared across replicas.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow checks whether the request should be allowed in the current second.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	reset := time.Unix(sec+1, 0).UTC()
	res, errEval := redisIncrScript.Run(ctx, l.client, []string{l.buildKey(key, sec)}, redisWindowTTLSeconds).Result()
	if errEval != nil {
		return Result{}, errEval
	}
	count, errCount := scriptCount(res)
	if errCount != nil {
		return Result{}, errCount
	}
	if count > int64(limit) {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - int(count), Reset: reset}, nil
}

func scriptCount(res any) (int64, error) {
	switch v := res.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	default:
		return 0, errors.New("rate limit redis: unexpected response type")
	}
}

func (l *RedisLimiter) buildKey(key string, sec int64) string {
	secStr := strconv.FormatInt(sec, 10)
	if l.prefix == "" {
		return key + ":" + secStr
	}
	return l.prefix + ":" + key + ":" + secStr
}
