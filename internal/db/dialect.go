package db

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// IsPostgres reports whether the connection uses PostgreSQL.
func IsPostgres(conn *gorm.DB) bool {
	return DialectName(conn) == DialectPostgres
}

// JSONArrayContainsExpr returns a SQL expression to test JSON array containment.
func JSONArrayContainsExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE value = ?)", column)
	}
	return fmt.Sprintf("%s @> ?", column)
}

// JSONArrayContainsString returns the bind value for a string containment check.
func JSONArrayContainsString(conn *gorm.DB, value string) any {
	if IsSQLite(conn) {
		return value
	}
	raw, errMarshal := json.Marshal([]string{value})
	if errMarshal != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}

// LockUserXact serializes writers for userID until the surrounding
// transaction ends. SQLite already serializes writers, so it is a no-op there.
func LockUserXact(tx *gorm.DB, userID string) error {
	if !IsPostgres(tx) {
		return nil
	}
	if errLock := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", userID).Error; errLock != nil {
		return fmt.Errorf("db: advisory lock: %w", errLock)
	}
	return nil
}
