package password

import (
	"errors"
	"strings"
	"testing"
)

// fastConfig keeps argon2 cheap enough for table tests while staying above
// the enforced minimums.
func fastConfig() Config {
	return Config{
		Memory:           minMemoryKB,
		Time:             1,
		Parallelism:      1,
		SaltLength:       16,
		KeyLength:        32,
		MinPasswordBytes: 6,
		MaxPasswordBytes: 64,
	}
}

func mustHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func mustHash(t *testing.T, h *Argon2, pw string) string {
	t.Helper()
	hash, err := h.Hash(pw)
	if err != nil {
		t.Fatalf("Hash(%q): %v", pw, err)
	}
	return hash
}

func TestHashEncodesParameters(t *testing.T) {
	cfg := fastConfig()
	cfg.Memory, cfg.Time, cfg.Parallelism = 65536, 3, 2
	hash := mustHash(t, mustHasher(t, cfg), "P@ssw0rd-Ascii")

	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}
	if again := mustHash(t, mustHasher(t, cfg), "P@ssw0rd-Ascii"); again == hash {
		t.Fatal("two hashes of one password share a salt")
	}
}

func TestVerify(t *testing.T) {
	h := mustHasher(t, fastConfig())
	hash := mustHash(t, h, "correct-password")

	cases := []struct {
		name    string
		pw      string
		hash    string
		want    bool
		wantErr error
	}{
		{name: "match", pw: "correct-password", hash: hash, want: true},
		{name: "mismatch", pw: "wrong-password", hash: hash},
		{name: "too long", pw: strings.Repeat("c", 65), hash: hash, wantErr: ErrTooLong},
		{name: "garbage", pw: "correct-password", hash: "not-a-phc-hash", wantErr: ErrMalformedHash},
		{name: "old version", pw: "correct-password", hash: strings.Replace(hash, "$v=19$", "$v=18$", 1), wantErr: ErrMalformedHash},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := h.Verify(tc.pw, tc.hash)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("Verify = %v, want %v", ok, tc.want)
			}
		})
	}
}

func TestHashLengthBounds(t *testing.T) {
	h := mustHasher(t, fastConfig())

	cases := []struct {
		pw      string
		wantErr error
	}{
		{pw: "", wantErr: ErrTooShort},
		{pw: "short", wantErr: ErrTooShort},
		{pw: "Secr3t!"},
		{pw: strings.Repeat("b", 64)},
		{pw: strings.Repeat("a", 65), wantErr: ErrTooLong},
	}
	for _, tc := range cases {
		_, err := h.Hash(tc.pw)
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("Hash(len=%d) error = %v, want %v", len(tc.pw), err, tc.wantErr)
		}
	}

	exact := strings.Repeat("b", 64)
	if ok, err := h.Verify(exact, mustHash(t, h, exact)); err != nil || !ok {
		t.Fatalf("max-length password does not verify: ok=%v err=%v", ok, err)
	}
}

func TestDefaultMaxPasswordBytesApplied(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxPasswordBytes = 0
	h := mustHasher(t, cfg)

	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong above %d bytes, got %v", DefaultMaxPasswordBytes, err)
	}
	if _, err := h.Hash(strings.Repeat("e", DefaultMaxPasswordBytes)); err != nil {
		t.Fatalf("password of exactly %d bytes rejected: %v", DefaultMaxPasswordBytes, err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	current := fastConfig()
	current.Memory, current.Time = 16*1024, 2
	h := mustHasher(t, current)

	weaker := current
	weaker.Memory = minMemoryKB
	shorterKey := current
	shorterKey.KeyLength = 16

	cases := []struct {
		name string
		cfg  Config
		want bool
	}{
		{name: "same parameters", cfg: current, want: false},
		{name: "less memory", cfg: weaker, want: true},
		{name: "different key length", cfg: shorterKey, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hash := mustHash(t, mustHasher(t, tc.cfg), "upgrade-check")
			got, err := h.NeedsUpgrade(hash)
			if err != nil {
				t.Fatalf("NeedsUpgrade: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := h.NeedsUpgrade("$argon2id$"); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	mutations := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = minMemoryKB - 1 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
		"min":         func(c *Config) { c.MinPasswordBytes = -1 },
		"max<min":     func(c *Config) { c.MinPasswordBytes, c.MaxPasswordBytes = 10, 5 },
	}
	for name, mutate := range mutations {
		cfg := fastConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}

func TestDecodeRejectsNonCanonicalParameters(t *testing.T) {
	h := mustHasher(t, fastConfig())
	hash := mustHash(t, h, "canonical-pw")

	for _, bad := range []string{
		strings.Replace(hash, ",p=", ",p=0", 1),
		strings.Replace(hash, "$argon2id$", "$argon2i$", 1),
		hash + "$extra",
		strings.Replace(hash, "t=", "t=x", 1),
		strings.Replace(hash, "m=8192", "m=1024", 1),
	} {
		if _, err := h.Verify("canonical-pw", bad); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", bad, err)
		}
	}
}
