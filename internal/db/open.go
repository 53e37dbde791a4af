package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to PostgreSQL or SQLite depending on the DSN shape.
// SQLite DSNs start with "file:" or end in ".db"; anything else is PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	if IsSQLiteDSN(dsn) {
		conn, errOpen := gorm.Open(sqlite.Open(dsn), cfg)
		if errOpen != nil {
			return nil, fmt.Errorf("db: open sqlite: %w", errOpen)
		}
		sqlDB, errDB := conn.DB()
		if errDB != nil {
			return nil, fmt.Errorf("db: sqlite handle: %w", errDB)
		}
		// One writer at a time; WAL readers share the same handle.
		sqlDB.SetMaxOpenConns(1)
		return conn, nil
	}

	if _, errParse := pgx.ParseConfig(dsn); errParse != nil {
		return nil, fmt.Errorf("db: parse postgres dsn: %w", errParse)
	}
	conn, errOpen := gorm.Open(postgres.Open(dsn), cfg)
	if errOpen != nil {
		return nil, fmt.Errorf("db: open postgres: %w", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("db: postgres handle: %w", errDB)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return conn, nil
}

// IsSQLiteDSN reports whether dsn addresses a SQLite database.
func IsSQLiteDSN(dsn string) bool {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "file:") {
		return true
	}
	base := dsn
	if idx := strings.Index(base, "?"); idx >= 0 {
		base = base[:idx]
	}
	return strings.HasSuffix(base, ".db") || strings.HasSuffix(base, ".sqlite")
}
