package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath         = "CONFIG_PATH"
	EnvDBConnection       = "DB_CONNECTION"
	EnvJWTSecret          = "JWT_SECRET"
	EnvJWTExpiry          = "JWT_EXPIRY"
	EnvAdminTokenHash     = "ADMIN_TOKEN_HASH"
	EnvRateLimit          = "RATE_LIMIT"
	EnvRateLimitRedisAddr = "RATE_LIMIT_REDIS_ADDR"
)

// DefaultPort is used when neither the flag nor the config file sets a port.
const DefaultPort = 8320

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// AdminConfig holds admin API credentials.
type AdminConfig struct {
	TokenHash string `yaml:"token-hash"`
}

// RateLimitConfig holds rate limit defaults. Values stored in the settings
// table take precedence at runtime.
type RateLimitConfig struct {
	Limit          int    `yaml:"limit"`
	PerHelperLimit int    `yaml:"per-helper-limit"`
	RedisEnabled   bool   `yaml:"redis-enabled"`
	RedisAddr      string `yaml:"redis-addr"`
	RedisPassword  string `yaml:"redis-password"`
	RedisDB        int    `yaml:"redis-db"`
	RedisPrefix    string `yaml:"redis-prefix"`
}

// TLSConfig holds HTTPS listener settings.
type TLSConfig struct {
	Enable bool   `yaml:"enable"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
}

// ServerConfig is the full server configuration file.
type ServerConfig struct {
	Host          string          `yaml:"host"`
	Port          int             `yaml:"port"`
	Debug         bool            `yaml:"debug"`
	LoggingToFile bool            `yaml:"logging-to-file"`
	LogDir        string          `yaml:"log-dir"`
	Admin         AdminConfig     `yaml:"admin"`
	RateLimit     RateLimitConfig `yaml:"rate-limit"`
	TLS           TLSConfig       `yaml:"tls"`

	DatabaseDSN string    `yaml:"-"`
	JWT         JWTConfig `yaml:"-"`
}

// Load reads the server configuration and applies environment overrides.
func Load(configPath string) (ServerConfig, error) {
	var cfg ServerConfig
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return ServerConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return ServerConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	dsn, errDSN := LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return ServerConfig{}, errDSN
	}
	cfg.DatabaseDSN = dsn

	jwtCfg, errJWT := LoadJWTConfig(configPath)
	if errJWT != nil {
		return ServerConfig{}, errJWT
	}
	cfg.JWT = jwtCfg

	if hash := strings.TrimSpace(os.Getenv(EnvAdminTokenHash)); hash != "" {
		cfg.Admin.TokenHash = hash
	}
	if raw := strings.TrimSpace(os.Getenv(EnvRateLimit)); raw != "" {
		if limit, errParse := strconv.Atoi(raw); errParse == nil && limit >= 0 {
			cfg.RateLimit.Limit = limit
		}
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRateLimitRedisAddr)); addr != "" {
		cfg.RateLimit.RedisAddr = addr
		cfg.RateLimit.RedisEnabled = true
	}

	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = "./logs"
	}
	if cfg.TLS.Enable && (strings.TrimSpace(cfg.TLS.Cert) == "" || strings.TrimSpace(cfg.TLS.Key) == "") {
		return ServerConfig{}, fmt.Errorf("tls enabled but cert or key missing")
	}
	return cfg, nil
}
