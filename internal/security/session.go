package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized reports a missing, malformed or expired credential.
var ErrUnauthorized = errors.New("security: unauthorized")

// SessionClaims identifies the signed-in user of a request.
type SessionClaims struct {
	UserID    string
	ExpiresAt time.Time
}

type sessionTokenClaims struct {
	jwt.RegisteredClaims
}

// SessionManager signs and verifies HS256 session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager constructs a SessionManager. A non-positive ttl falls
// back to 30 days.
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a session token for userID.
func (m *SessionManager) Issue(userID string) (string, time.Time, error) {
	if m == nil || len(m.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("security: jwt secret is empty")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("security: empty session subject")
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := sessionTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if errSign != nil {
		return "", time.Time{}, fmt.Errorf("security: sign session token: %w", errSign)
	}
	return signed, expiresAt, nil
}

// Parse verifies raw and returns its claims, or ErrUnauthorized.
func (m *SessionManager) Parse(raw string) (SessionClaims, error) {
	if m == nil || len(m.secret) == 0 || strings.TrimSpace(raw) == "" {
		return SessionClaims{}, ErrUnauthorized
	}
	claims := &sessionTokenClaims{}
	token, errParse := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithTimeFunc(m.now))
	if errParse != nil || token == nil || !token.Valid {
		return SessionClaims{}, ErrUnauthorized
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ExpiresAt == nil {
		return SessionClaims{}, ErrUnauthorized
	}
	return SessionClaims{UserID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header {
		return "", ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}
