package ratelimit

import (
	"strings"

	internalsettings "github.com/soldierhq/helpergate/internal/settings"
)

// SettingsConfig captures the effective rate limit settings.
type SettingsConfig struct {
	Limit          int
	PerHelperLimit int
	RedisEnabled   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
}

// LoadSettingsConfig layers the DB settings snapshot over defaults.
func LoadSettingsConfig(defaults SettingsConfig) SettingsConfig {
	cfg := defaults

	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitKey); ok {
		if limit, okParse := internalsettings.ParseNonNegativeInt(raw); okParse {
			cfg.Limit = limit
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitPerHelperKey); ok {
		if limit, okParse := internalsettings.ParseNonNegativeInt(raw); okParse {
			cfg.PerHelperLimit = limit
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisEnabledKey); ok {
		if enabled, okParse := internalsettings.ParseBool(raw); okParse {
			cfg.RedisEnabled = enabled
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisAddrKey); ok {
		if addr, okParse := internalsettings.ParseString(raw); okParse {
			cfg.RedisAddr = addr
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisPasswordKey); ok {
		if password, okParse := internalsettings.ParseString(raw); okParse {
			cfg.RedisPassword = password
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisDBKey); ok {
		if db, okParse := internalsettings.ParseNonNegativeInt(raw); okParse {
			cfg.RedisDB = db
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisPrefixKey); ok {
		if prefix, okParse := internalsettings.ParseString(raw); okParse {
			cfg.RedisPrefix = prefix
		}
	}
	return normalize(cfg)
}

func normalize(cfg SettingsConfig) SettingsConfig {
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPassword = strings.TrimSpace(cfg.RedisPassword)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}
	if cfg.PerHelperLimit < 0 {
		cfg.PerHelperLimit = 0
	}
	return cfg
}
