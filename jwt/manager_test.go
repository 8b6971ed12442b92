package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newHSManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("dev-secret-dev-secret"),
		Issuer:        "sentimenta-dev",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssuePairRoundTrip(t *testing.T) {
	m := newHSManager(t)
	access, refresh, err := m.IssuePair("u1", "ana@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "ana@example.com" || claims.Type != TypeAccess {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := m.ParseRefresh(refresh); err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
}

func TestRefreshTokenRejectedAsAccess(t *testing.T) {
	m := newHSManager(t)
	access, refresh, err := m.IssuePair("u1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestExpiredAccessRejected(t *testing.T) {
	m := newHSManager(t)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	access, _, err := m.IssuePair("u1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m.now = time.Now
	if _, err := m.ParseAccess(access); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}

	claims, err := Inspect(access)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !claims.Expired(time.Now()) {
		t.Fatal("expected inspect to report expiry")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ed, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	access, _, err := ed.IssuePair("u1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ed.ParseAccess(access); err != nil {
		t.Fatalf("ed25519 round trip: %v", err)
	}

	if _, err := newHSManager(t).ParseAccess(access); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{AccessTTL: time.Hour, RefreshTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef")},
		{AccessTTL: time.Minute, SigningMethod: "rs256"},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef"), Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	if _, err := Inspect("not-a-token"); err == nil {
		t.Fatal("expected error")
	}
}
