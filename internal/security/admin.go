package security

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashAdminToken returns a bcrypt hash suitable for the admin.token-hash key.
func HashAdminToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("security: empty admin token")
	}
	hashed, errHash := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if errHash != nil {
		return "", fmt.Errorf("security: hash admin token: %w", errHash)
	}
	return string(hashed), nil
}

// VerifyAdminToken compares token against the configured bcrypt hash.
// An empty hash disables the admin surface.
func VerifyAdminToken(hash, token string) error {
	hash = strings.TrimSpace(hash)
	if hash == "" || strings.TrimSpace(token) == "" {
		return ErrUnauthorized
	}
	if errCompare := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); errCompare != nil {
		return ErrUnauthorized
	}
	return nil
}
