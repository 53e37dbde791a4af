package settings

// DB config keys and defaults for settings.
const (
	// RateLimitKey controls the per-user request rate limit per second.
	RateLimitKey = "RATE_LIMIT"
	// RateLimitPerHelperKey controls the per-user, per-helper rate limit per second.
	RateLimitPerHelperKey = "RATE_LIMIT_PER_HELPER"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultRateLimit is the fallback rate limit (0 means unlimited).
	DefaultRateLimit = 0
	// DefaultRateLimitPerHelper is the fallback per-helper limit (0 means unlimited).
	DefaultRateLimitPerHelper = 0
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "hg:rl"
)

// Keys lists every setting an administrator may change at runtime.
var Keys = []string{
	RateLimitKey,
	RateLimitPerHelperKey,
	RateLimitRedisEnabledKey,
	RateLimitRedisAddrKey,
	RateLimitRedisPasswordKey,
	RateLimitRedisDBKey,
	RateLimitRedisPrefixKey,
}

// IsKnownKey reports whether key is a recognised setting.
func IsKnownKey(key string) bool {
	for _, known := range Keys {
		if known == key {
			return true
		}
	}
	return false
}
