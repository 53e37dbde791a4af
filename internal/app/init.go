package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/config"
	"github.com/soldierhq/helpergate/internal/db"
	"gopkg.in/yaml.v3"
)

// DatabaseOptions describes the database a fresh config file points at.
type DatabaseOptions struct {
	Type     string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Path     string
	SSLMode  string
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "helpergate.db"

// BuildDSN builds a database DSN from the options.
func BuildDSN(opts DatabaseOptions) (string, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Type)) {
	case "", "sqlite":
		return buildSQLiteDSN(opts.Path), nil
	case "postgres":
		if strings.TrimSpace(opts.Host) == "" || strings.TrimSpace(opts.Name) == "" {
			return "", fmt.Errorf("postgres host and database name are required")
		}
		port := opts.Port
		if port <= 0 {
			port = 5432
		}
		sslMode := opts.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(opts.User, opts.Password),
			Host:     fmt.Sprintf("%s:%d", opts.Host, port),
			Path:     "/" + opts.Name,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
	}, "&")
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host          string                 `yaml:"host"`
	Port          int                    `yaml:"port"`
	DatabaseDSN   string                 `yaml:"database-dsn"`
	Debug         bool                   `yaml:"debug"`
	LoggingToFile bool                   `yaml:"logging-to-file"`
	JWT           jwtCfg                 `yaml:"jwt"`
	Admin         adminCfg               `yaml:"admin"`
	RateLimit     config.RateLimitConfig `yaml:"rate-limit"`
	TLS           tlsCfg                 `yaml:"tls"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// adminCfg holds the admin token hash for the generated config file.
type adminCfg struct {
	TokenHash string `yaml:"token-hash"`
}

// tlsCfg holds TLS settings for the generated config file.
type tlsCfg struct {
	Enable bool   `yaml:"enable"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
}

// generateJWTSecret creates a random JWT secret string.
func generateJWTSecret() (string, error) {
	buf := make([]byte, 32)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("generate jwt secret: %w", errRead)
	}
	return hex.EncodeToString(buf), nil
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, port int) error {
	secret, errSecret := generateJWTSecret()
	if errSecret != nil {
		return errSecret
	}
	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		JWT: jwtCfg{
			Secret: secret,
			Expiry: "720h",
		},
		RateLimit: config.RateLimitConfig{
			RedisPrefix: "hg:rl",
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// EnsureDefaultConfig writes a SQLite-backed config next to configPath when
// none exists. It reports whether a file was created.
func EnsureDefaultConfig(configPath string, port int) (bool, error) {
	if ConfigExists(configPath) {
		return false, nil
	}
	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return false, fmt.Errorf("create config dir: %w", errMkdir)
	}
	dbPath := filepath.Join(dir, defaultSQLitePath)
	dsn, errDSN := BuildDSN(DatabaseOptions{Type: "sqlite", Path: dbPath})
	if errDSN != nil {
		return false, errDSN
	}
	if errTest := TestDatabaseConnection(dsn); errTest != nil {
		return false, errTest
	}
	if errWrite := WriteConfigFile(configPath, dsn, port); errWrite != nil {
		return false, errWrite
	}
	return true, nil
}

// dsnInfo is a password-free description of a DSN, safe to log.
type dsnInfo struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

func (d dsnInfo) String() string {
	if d.Type == "sqlite" {
		return "sqlite path=" + d.Path
	}
	return fmt.Sprintf("postgres host=%s port=%d user=%s db=%s sslmode=%s", d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// describeDSN parses a DSN into a dsnInfo.
func describeDSN(dsn string) (dsnInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsnInfo{}, fmt.Errorf("empty dsn")
	}

	if db.IsSQLiteDSN(trimmed) {
		pathPart := trimmed
		if strings.HasPrefix(strings.ToLower(pathPart), "file:") {
			pathPart = pathPart[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return dsnInfo{Type: "sqlite", Path: strings.TrimSpace(pathPart)}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return dsnInfo{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return dsnInfo{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}

		username := ""
		passwordSet := false
		if u.User != nil {
			username = strings.TrimSpace(u.User.Username())
			_, passwordSet = u.User.Password()
		}

		sslMode := strings.TrimSpace(u.Query().Get("sslmode"))
		if sslMode == "" {
			sslMode = "disable"
		}

		return dsnInfo{
			Type:        "postgres",
			Host:        strings.TrimSpace(u.Hostname()),
			Port:        port,
			User:        username,
			Name:        strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode:     sslMode,
			PasswordSet: passwordSet,
		}, nil
	default:
		return dsnInfo{}, fmt.Errorf("unsupported dsn scheme")
	}
}
