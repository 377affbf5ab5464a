package goCreds

import (
	"errors"
	"time"

	"github.com/MrEthical07/goCreds/jwt"
	"github.com/MrEthical07/goCreds/password"
	"github.com/MrEthical07/goCreds/secret"
)

// Config is the complete engine configuration. It is copied by
// [Builder.WithConfig] and treated as immutable after [Builder.Build].
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Crypto       CryptoConfig
	LoginLimit   LoginLimitConfig
	Storage      StorageConfig
	Account      AccountConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Result       ResultConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds signing keys and token lifetimes. Access and refresh tokens
// are signed with separate key material.
type JWTConfig struct {
	SigningMethod string // "ed25519" (default) or "hs256"

	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	AccessKeyID       string
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte
	RefreshKeyID      string

	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration
	TemporaryTTL  time.Duration

	Issuer   string
	Audience string
	Leeway   time.Duration
}

// SignerConfig maps c onto the jwt package's configuration.
func (c JWTConfig) SignerConfig() jwt.Config {
	return jwt.Config{
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		Access: jwt.KeyPair{
			PrivateKey: c.AccessPrivateKey,
			PublicKey:  c.AccessPublicKey,
			KeyID:      c.AccessKeyID,
		},
		Refresh: jwt.KeyPair{
			PrivateKey: c.RefreshPrivateKey,
			PublicKey:  c.RefreshPublicKey,
			KeyID:      c.RefreshKeyID,
		},
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
		RememberMeTTL: c.RememberMeTTL,
		TemporaryTTL:  c.TemporaryTTL,
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
	}
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and password length bounds.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinPasswordBytes int
	MaxPasswordBytes int

	// GeneratedLength is the length of passwords produced by ResetPassword.
	GeneratedLength int
	UpgradeOnLogin  bool
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig tunes the verification token state machine.
type VerificationConfig struct {
	EmailConfirmTTL  time.Duration
	PasswordResetTTL time.Duration
	FreeAttempts     int
	Cooldown         time.Duration
	MaxRetries       int
	// ConfirmOnRegister requests an email confirmation token right after Register.
	ConfirmOnRegister bool
}

// CryptoConfig holds the server secret used for token generation and encryption.
type CryptoConfig struct {
	Key []byte
}

// LoginLimitConfig configures the Redis-backed failed-login limiter.
type LoginLimitConfig struct {
	Enabled          bool
	EnableIPThrottle bool
	MaxAttempts      int
	Window           time.Duration
	RedisPrefix      string
}

// StorageConfig holds key prefixes used by the Redis-backed stores.
type StorageConfig struct {
	LedgerRedisPrefix       string
	VerificationRedisPrefix string
}

// AccountConfig controls account defaults applied at registration.
type AccountConfig struct {
	DefaultRole Role
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ResultConfig controls which identity fields AuthResult.Subject echoes back to
// the caller. Issued tokens always carry subject, email and role.
type ResultConfig struct {
	IncludeEmail bool
	IncludeRole  bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with every tunable set. Keys must still
// be supplied by the caller.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			RememberMeTTL: 365 * 24 * time.Hour,
			TemporaryTTL:  5 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MinPasswordBytes: 6,
			MaxPasswordBytes: 1024,
			GeneratedLength:  20,
			UpgradeOnLogin:   true,
		},
		Verification: VerificationConfig{
			EmailConfirmTTL:   240 * time.Hour,
			PasswordResetTTL:  24 * time.Hour,
			FreeAttempts:      2,
			Cooldown:          5 * time.Minute,
			MaxRetries:        3,
			ConfirmOnRegister: true,
		},
		LoginLimit: LoginLimitConfig{
			Enabled:          false,
			EnableIPThrottle: false,
			MaxAttempts:      5,
			Window:           15 * time.Minute,
			RedisPrefix:      "gl",
		},
		Storage: StorageConfig{
			LedgerRedisPrefix:       "crt",
			VerificationRedisPrefix: "cvr",
		},
		Account: AccountConfig{
			DefaultRole: RoleUser,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Result: ResultConfig{
			IncludeEmail: true,
			IncludeRole:  true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessPrivateKey = cloneBytes(cfg.JWT.AccessPrivateKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPrivateKey = cloneBytes(cfg.JWT.RefreshPrivateKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	out.Crypto.Key = cloneBytes(cfg.Crypto.Key)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found, or nil.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RememberMeTTL < 0 || c.JWT.TemporaryTTL < 0 || c.JWT.Leeway < 0 {
		return errors.New("JWT lifetimes must be >= 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.AccessPrivateKey) == 0 || len(c.JWT.AccessPublicKey) == 0 {
			return errors.New("ed25519 requires access PrivateKey and PublicKey")
		}
		if len(c.JWT.RefreshPrivateKey) == 0 || len(c.JWT.RefreshPublicKey) == 0 {
			return errors.New("ed25519 requires refresh PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.AccessPrivateKey) == 0 || len(c.JWT.RefreshPrivateKey) == 0 {
			return errors.New("hs256 requires access and refresh PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinPasswordBytes < 1 {
		return errors.New("Password MinPasswordBytes must be >= 1")
	}
	if c.Password.MaxPasswordBytes < c.Password.MinPasswordBytes {
		return errors.New("Password MaxPasswordBytes must be >= MinPasswordBytes")
	}
	if c.Password.GeneratedLength < password.MinGeneratedLength {
		return errors.New("Password GeneratedLength must be >= 16")
	}
	if c.Password.GeneratedLength > c.Password.MaxPasswordBytes {
		return errors.New("Password GeneratedLength must be <= MaxPasswordBytes")
	}

	// Verification
	if c.Verification.EmailConfirmTTL <= 0 || c.Verification.PasswordResetTTL <= 0 {
		return errors.New("Verification TTLs must be > 0")
	}
	if c.Verification.FreeAttempts < 1 {
		return errors.New("Verification FreeAttempts must be >= 1")
	}
	if c.Verification.Cooldown < 0 {
		return errors.New("Verification Cooldown must be >= 0")
	}
	if c.Verification.MaxRetries < 1 {
		return errors.New("Verification MaxRetries must be >= 1")
	}

	// Crypto
	if len(c.Crypto.Key) != secret.KeySize {
		return errors.New("Crypto Key must be 32 bytes")
	}

	// Login limiter
	if c.LoginLimit.Enabled {
		if c.LoginLimit.MaxAttempts <= 0 {
			return errors.New("LoginLimit MaxAttempts must be > 0")
		}
		if c.LoginLimit.Window <= 0 {
			return errors.New("LoginLimit Window must be > 0")
		}
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole is invalid")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
