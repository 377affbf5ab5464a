package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return priv
}

func newTestSigner(t *testing.T, mutate func(*Config)) *Signer {
	t.Helper()
	cfg := Config{
		SigningMethod: MethodEd25519,
		Access:        KeyPair{PrivateKey: newEdKey(t)},
		Refresh:       KeyPair{PrivateKey: newEdKey(t)},
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "gocreds-test",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSigner(cfg)
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}
	return s
}

var testIdentity = Identity{SubjectID: "u1", Email: "a@x.com", Role: "user"}

func TestIssueAndVerifyPair(t *testing.T) {
	s := newTestSigner(t, nil)

	pair, err := s.IssueTokenPair(testIdentity, false)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	claims, err := s.VerifyToken(pair.AccessToken, ClassAccess)
	if err != nil {
		t.Fatalf("VerifyToken(access) error: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@x.com" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}

	if _, err := s.VerifyToken(pair.RefreshToken, ClassRefresh); err != nil {
		t.Fatalf("VerifyToken(refresh) error: %v", err)
	}
}

func TestClassesAreNotInterchangeable(t *testing.T) {
	s := newTestSigner(t, nil)

	pair, err := s.IssueTokenPair(testIdentity, false)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	temp, err := s.IssueTemporaryToken("u1")
	if err != nil {
		t.Fatalf("IssueTemporaryToken error: %v", err)
	}

	cases := []struct {
		name  string
		token string
		class Class
	}{
		{"access as refresh", pair.AccessToken, ClassRefresh},
		{"refresh as access", pair.RefreshToken, ClassAccess},
		{"temporary as access", temp, ClassAccess},
		{"access as temporary", pair.AccessToken, ClassTemporary},
	}
	for _, tc := range cases {
		if _, err := s.VerifyToken(tc.token, tc.class); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", tc.name, err)
		}
	}
}

func TestRefreshKeyCannotForgeAccess(t *testing.T) {
	s := newTestSigner(t, nil)

	claims := Claims{
		Class: ClassAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "gocreds-test",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(s.refresh.sign)
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}
	if _, err := s.VerifyToken(forged, ClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access verification with refresh-signed token to fail, got %v", err)
	}
}

func TestRememberMeLifetime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, nil)
	s.now = func() time.Time { return now }

	remembered, err := s.IssueTokenPair(testIdentity, true)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	if want := now.Add(365 * 24 * time.Hour); !remembered.RefreshExpiry.Equal(want) {
		t.Fatalf("remember-me refresh expiry = %v, want %v", remembered.RefreshExpiry, want)
	}

	plain, err := s.IssueTokenPair(testIdentity, false)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	if want := now.Add(7 * 24 * time.Hour); !plain.RefreshExpiry.Equal(want) {
		t.Fatalf("default refresh expiry = %v, want %v", plain.RefreshExpiry, want)
	}
	if !plain.AccessExpiry.Equal(remembered.AccessExpiry) {
		t.Fatal("remember-me must not change access lifetime")
	}
}

func TestExpiredAndForgedAreIndistinguishable(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, nil)
	s.now = func() time.Time { return now.Add(-time.Hour) }

	pair, err := s.IssueTokenPair(testIdentity, false)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	s.now = func() time.Time { return now }

	_, expiredErr := s.VerifyToken(pair.AccessToken, ClassAccess)
	_, forgedErr := s.VerifyToken(pair.AccessToken[:len(pair.AccessToken)-4]+"AAAA", ClassAccess)
	if expiredErr != ErrTokenInvalid || forgedErr != ErrTokenInvalid {
		t.Fatalf("expected identical ErrTokenInvalid, got expired=%v forged=%v", expiredErr, forgedErr)
	}
}

func TestTemporaryToken(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, nil)
	s.now = func() time.Time { return now }

	temp, err := s.IssueTemporaryToken("u42")
	if err != nil {
		t.Fatalf("IssueTemporaryToken error: %v", err)
	}
	sub, err := s.VerifyTemporaryToken(temp)
	if err != nil {
		t.Fatalf("VerifyTemporaryToken error: %v", err)
	}
	if sub != "u42" {
		t.Fatalf("unexpected subject %q", sub)
	}

	claims, err := s.VerifyToken(temp, ClassTemporary)
	if err != nil {
		t.Fatalf("VerifyToken error: %v", err)
	}
	if claims.Email != "" || claims.Role != "" {
		t.Fatalf("temporary token must carry only the subject: %+v", claims)
	}

	s.now = func() time.Time { return now.Add(6 * time.Minute) }
	if _, err := s.VerifyTemporaryToken(temp); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired temporary token to fail, got %v", err)
	}
}

func TestNewSignerRejectsSharedKeys(t *testing.T) {
	key := newEdKey(t)
	_, err := NewSigner(Config{
		SigningMethod: MethodEd25519,
		Access:        KeyPair{PrivateKey: key},
		Refresh:       KeyPair{PrivateKey: key},
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err == nil {
		t.Fatal("expected shared access/refresh key to be rejected")
	}
}

func TestHS256Signer(t *testing.T) {
	s, err := NewSigner(Config{
		SigningMethod: MethodHS256,
		Access:        KeyPair{PrivateKey: []byte("access-secret-access-secret-0123")},
		Refresh:       KeyPair{PrivateKey: []byte("refresh-secret-refresh-secret-01")},
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}

	pair, err := s.IssueTokenPair(testIdentity, false)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	if _, err := s.VerifyToken(pair.RefreshToken, ClassRefresh); err != nil {
		t.Fatalf("VerifyToken error: %v", err)
	}

	if _, err := NewSigner(Config{
		SigningMethod: MethodHS256,
		Access:        KeyPair{PrivateKey: []byte("short")},
		Refresh:       KeyPair{PrivateKey: []byte("refresh-secret-refresh-secret-01")},
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}); err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}
}

func TestWrongAlgorithmRejected(t *testing.T) {
	s := newTestSigner(t, nil)

	claims := Claims{
		Class: ClassAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := s.VerifyToken(tok, ClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestKeyIDEnforced(t *testing.T) {
	s := newTestSigner(t, func(c *Config) {
		c.Access.KeyID = "k1"
	})
	pair, err := s.IssueTokenPair(testIdentity, false)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	if _, err := s.VerifyToken(pair.AccessToken, ClassAccess); err != nil {
		t.Fatalf("VerifyToken error: %v", err)
	}

	other := newTestSigner(t, func(c *Config) {
		c.Access.PrivateKey = s.config.Access.PrivateKey
		c.Access.KeyID = "k2"
	})
	if _, err := other.VerifyToken(pair.AccessToken, ClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected unknown kid to be rejected, got %v", err)
	}
}
