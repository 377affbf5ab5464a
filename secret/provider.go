package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required length of the server-held encryption key.
	KeySize = 32

	nonceSize     = 12
	tokenEntropy  = 32
	tokenKeyLabel = "goCreds/verification-token/v1"
)

var (
	// ErrCrypto is returned for malformed ciphertext, a wrong key, or tampered input.
	ErrCrypto = errors.New("crypto failure")
	// ErrInvalidKey is returned by New when the key is not KeySize bytes.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")
)

// Provider implements encryption, hashing, and opaque token generation over a fixed key.
// A Provider is immutable and safe for concurrent use.
type Provider struct {
	aead     cipher.AEAD
	tokenKey [32]byte
	random   io.Reader
}

// New builds a Provider from a 32-byte key.
func New(key []byte) (*Provider, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	p := &Provider{
		aead:   aead,
		random: rand.Reader,
	}
	kdf := hkdf.New(sha256.New, key, nil, []byte(tokenKeyLabel))
	if _, err := io.ReadFull(kdf, p.tokenKey[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	return p, nil
}

// Encrypt seals plaintext under a fresh nonce and returns base64url(nonce || sealed).
func (p *Provider) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+p.aead.Overhead())
	if _, err := io.ReadFull(p.random, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	out := p.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Any malformed, truncated, or tampered input yields ErrCrypto.
func (p *Provider) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrCrypto
	}
	if len(raw) < nonceSize+p.aead.Overhead() {
		return nil, ErrCrypto
	}

	plaintext, err := p.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrCrypto
	}
	return plaintext, nil
}

// Hash returns the hex SHA-256 digest of input.
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Hash is the method form of the package-level Hash.
func (p *Provider) Hash(input string) string {
	return Hash(input)
}

// GenerateToken returns a 64-character hex token derived from seed and fresh randomness.
// Identical seeds never produce the same value and the seed cannot be recovered.
func (p *Provider) GenerateToken(seed string) (string, error) {
	var entropy [tokenEntropy]byte
	if _, err := io.ReadFull(p.random, entropy[:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	hasher, err := blake3.NewKeyed(p.tokenKey[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	_, _ = hasher.Write([]byte(seed))
	_, _ = hasher.Write(entropy[:])

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
