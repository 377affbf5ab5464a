package jwt

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm used for every token class.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 shared secrets.
	MethodHS256 SigningMethod = "hs256"
)

// Class distinguishes the token kinds issued by a Signer.
type Class string

const (
	ClassAccess    Class = "access"
	ClassRefresh   Class = "refresh"
	ClassTemporary Class = "temporary"
)

const (
	// RememberMeTTL is the refresh lifetime applied when the caller opts into remember-me.
	RememberMeTTL = 365 * 24 * time.Hour
	// TemporaryTTL is the lifetime of temporary login tokens.
	TemporaryTTL = 5 * time.Minute
)

// ErrTokenInvalid covers bad signatures, wrong classes, malformed input, and expiry alike.
var ErrTokenInvalid = errors.New("token invalid")

// KeyPair holds the key material for one token class. For HS256 only PrivateKey is used
// and holds the shared secret. For Ed25519 PublicKey may be omitted and is then derived
// from PrivateKey.
type KeyPair struct {
	PrivateKey []byte
	PublicKey  []byte
	KeyID      string
}

// Config configures a Signer.
type Config struct {
	SigningMethod SigningMethod
	Access        KeyPair
	Refresh       KeyPair
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration
	TemporaryTTL  time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// Identity is the subject data embedded in issued tokens.
type Identity struct {
	SubjectID string
	Email     string
	Role      string
}

// Claims is the payload of every token issued by a Signer.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Class Class  `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is the result of IssueTokenPair.
type Pair struct {
	AccessToken   string
	RefreshToken  string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}

type classKeys struct {
	sign   any
	verify any
	kid    string
}

// Signer issues and verifies access, refresh, and temporary tokens.
// It is immutable after NewSigner and safe for concurrent use.
type Signer struct {
	config  Config
	method  jwt.SigningMethod
	access  classKeys
	refresh classKeys
	now     func() time.Time
}

// NewSigner validates cfg and prepares key material for both token classes.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RememberMeTTL == 0 {
		cfg.RememberMeTTL = RememberMeTTL
	}
	if cfg.TemporaryTTL == 0 {
		cfg.TemporaryTTL = TemporaryTTL
	}
	if cfg.RememberMeTTL < 0 || cfg.TemporaryTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	s := &Signer{config: cfg, now: time.Now}

	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		s.method = jwt.SigningMethodHS256
	case MethodEd25519:
		s.method = jwt.SigningMethodEdDSA
	default:
		return nil, errors.New("unsupported signing method")
	}

	if s.access, err = buildKeys(cfg.SigningMethod, cfg.Access); err != nil {
		return nil, fmt.Errorf("access key: %w", err)
	}
	if s.refresh, err = buildKeys(cfg.SigningMethod, cfg.Refresh); err != nil {
		return nil, fmt.Errorf("refresh key: %w", err)
	}
	if subtle.ConstantTimeCompare(cfg.Access.PrivateKey, cfg.Refresh.PrivateKey) == 1 {
		return nil, errors.New("access and refresh keys must differ")
	}

	return s, nil
}

// IssueTokenPair signs an access token and a refresh token for id. When rememberMe is
// set the refresh lifetime is RememberMeTTL instead of the configured default.
func (s *Signer) IssueTokenPair(id Identity, rememberMe bool) (Pair, error) {
	if strings.TrimSpace(id.SubjectID) == "" {
		return Pair{}, errors.New("subject id required")
	}
	now := s.now()

	refreshTTL := s.config.RefreshTTL
	if rememberMe {
		refreshTTL = s.config.RememberMeTTL
	}

	accessExp := now.Add(s.config.AccessTTL)
	access, err := s.sign(ClassAccess, s.access, id, now, accessExp)
	if err != nil {
		return Pair{}, err
	}

	refreshExp := now.Add(refreshTTL)
	refresh, err := s.sign(ClassRefresh, s.refresh, id, now, refreshExp)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessExpiry:  accessExp,
		RefreshExpiry: refreshExp,
	}, nil
}

// IssueTemporaryToken signs a short-lived token carrying only subjectID, using the
// access key.
func (s *Signer) IssueTemporaryToken(subjectID string) (string, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", errors.New("subject id required")
	}
	now := s.now()
	return s.sign(ClassTemporary, s.access, Identity{SubjectID: subjectID}, now, now.Add(s.config.TemporaryTTL))
}

// VerifyToken checks signature, class, issuer, audience, and expiry. Every failure is
// reported as ErrTokenInvalid.
func (s *Signer) VerifyToken(token string, class Class) (*Claims, error) {
	keys := s.access
	if class == ClassRefresh {
		keys = s.refresh
	}

	claims, err := s.parse(token, keys)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.Class != class || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyTemporaryToken returns the subject of a valid temporary token.
func (s *Signer) VerifyTemporaryToken(token string) (string, error) {
	claims, err := s.VerifyToken(token, ClassTemporary)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Signer) sign(class Class, keys classKeys, id Identity, now, exp time.Time) (string, error) {
	claims := Claims{
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    s.config.Issuer,
		},
	}
	if class != ClassTemporary {
		claims.Email = id.Email
		claims.Role = id.Role
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	token := jwt.NewWithClaims(s.method, claims)
	if keys.kid != "" {
		token.Header["kid"] = keys.kid
	}
	return token.SignedString(keys.sign)
}

func (s *Signer) parse(tokenStr string, keys classKeys) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		options = append(options, jwt.WithAudience(s.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if keys.kid != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != keys.kid {
				return nil, errors.New("unknown kid")
			}
		}
		return keys.verify, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(s.now().Add(s.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}
	return claims, nil
}

func buildKeys(method SigningMethod, kp KeyPair) (classKeys, error) {
	keys := classKeys{kid: strings.TrimSpace(kp.KeyID)}

	switch method {
	case MethodHS256:
		if len(kp.PrivateKey) < 32 {
			return keys, errors.New("hs256 secret must be at least 32 bytes")
		}
		keys.sign = kp.PrivateKey
		keys.verify = kp.PrivateKey
	default:
		priv, err := parseEdPrivateKey(kp.PrivateKey)
		if err != nil {
			return keys, err
		}
		keys.sign = priv
		keys.verify = priv.Public().(ed25519.PublicKey)
		if len(kp.PublicKey) > 0 {
			pub, err := parseEdPublicKey(kp.PublicKey)
			if err != nil {
				return keys, err
			}
			if !pub.Equal(keys.verify) {
				return keys, errors.New("ed25519 public key does not match private key")
			}
		}
	}
	return keys, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
