package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// DefaultMaxPasswordBytes bounds the input handed to Argon2 when Config leaves it unset.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrTooShort is returned by Hash when the password is shorter than MinPasswordBytes.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned by Hash and Verify for inputs above MaxPasswordBytes.
	ErrTooLong = errors.New("password too long")
)

// Config holds Argon2id cost parameters and password length bounds in bytes.
// A zero MinPasswordBytes only rejects empty passwords.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
}

// Argon2 hashes and verifies passwords as PHC-encoded Argon2id strings.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg against the minimum cost parameters.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

func (cfg Config) validate() error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case cfg.MinPasswordBytes < 0:
		return errors.New("password min length must be >= 0")
	case cfg.MaxPasswordBytes < cfg.MinPasswordBytes:
		return errors.New("password max length must be >= min length")
	}
	return nil
}

// Hash derives a fresh-salt Argon2id hash of password. Bytes are hashed as
// given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" || len(password) < a.config.MinPasswordBytes {
		return "", ErrTooShort
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrTooLong
	}

	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := io.ReadFull(rand.Reader, p.salt); err != nil {
		return "", err
	}
	p.key = argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, a.config.KeyLength)
	return p.String(), nil
}

// Verify reports whether password matches encodedHash in constant time. An
// error means encodedHash could not be decoded.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrTooLong
	}
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker parameters
// than the current configuration, or with a different key length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism
	return weaker || int(a.config.KeyLength) != len(p.key), nil
}
