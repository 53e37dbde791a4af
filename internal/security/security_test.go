package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSessionRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewSessionManager("secret", time.Hour)
	m.now = func() time.Time { return now }

	token, expiresAt, err := m.Issue("user_abc")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user_abc" {
		t.Fatalf("expected subject user_abc, got %q", claims.UserID)
	}

	m.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := m.Parse(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestSessionRejectsForeignSecretAndGarbage(t *testing.T) {
	issuer := NewSessionManager("one", time.Hour)
	verifier := NewSessionManager("two", time.Hour)
	token, _, err := issuer.Issue("user_abc")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Parse(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected foreign token rejected, got %v", err)
	}
	if _, err := verifier.Parse("not-a-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected garbage rejected, got %v", err)
	}
	if _, _, err := NewSessionManager("", time.Hour).Issue("user_abc"); err == nil {
		t.Fatalf("expected empty secret error")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"":               false,
		"Basic abc":      false,
		"Bearer ":        false,
		"Bearer   ":      false,
		"Bearer abc.def": true,
	}
	for header, ok := range cases {
		token, err := BearerToken(header)
		if ok && (err != nil || token == "") {
			t.Fatalf("header %q: expected token, got %q err=%v", header, token, err)
		}
		if !ok && !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("header %q: expected ErrUnauthorized, got %v", header, err)
		}
	}
}

func TestAdminToken(t *testing.T) {
	hash, err := HashAdminToken("s3cret-admin")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", hash)
	}
	if errVerify := VerifyAdminToken(hash, "s3cret-admin"); errVerify != nil {
		t.Fatalf("verify: %v", errVerify)
	}
	if errVerify := VerifyAdminToken(hash, "wrong"); !errors.Is(errVerify, ErrUnauthorized) {
		t.Fatalf("expected wrong token rejected, got %v", errVerify)
	}
	if errVerify := VerifyAdminToken("", "s3cret-admin"); !errors.Is(errVerify, ErrUnauthorized) {
		t.Fatalf("expected empty hash to disable admin, got %v", errVerify)
	}
}
