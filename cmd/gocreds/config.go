package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goCreds "github.com/MrEthical07/goCreds"
	"github.com/MrEthical07/goCreds/jwt"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// processConfig is the binary's view of configuration. It is loaded from an
// optional YAML file, then GOCREDS_* environment variables, then flags.
// Key material is base64 (standard encoding).
type processConfig struct {
	Dialect string `yaml:"dialect" env:"GOCREDS_DB_DIALECT"`
	DSN     string `yaml:"dsn" env:"GOCREDS_DB_DSN"`

	LogLevel     string `yaml:"log_level" env:"GOCREDS_LOG_LEVEL"`
	LogFormat    string `yaml:"log_format" env:"GOCREDS_LOG_FORMAT"`
	OTelEndpoint string `yaml:"otel_endpoint" env:"GOCREDS_OTEL_ENDPOINT"`

	SigningMethod     string `yaml:"signing_method" env:"GOCREDS_SIGNING_METHOD"`
	AccessPrivateKey  string `yaml:"access_private_key" env:"GOCREDS_ACCESS_PRIVATE_KEY"`
	RefreshPrivateKey string `yaml:"refresh_private_key" env:"GOCREDS_REFRESH_PRIVATE_KEY"`
	CryptoKey         string `yaml:"crypto_key" env:"GOCREDS_CRYPTO_KEY"`

	AccessTTL     string `yaml:"access_ttl" env:"GOCREDS_ACCESS_TTL"`
	RefreshTTL    string `yaml:"refresh_ttl" env:"GOCREDS_REFRESH_TTL"`
	RememberMeTTL string `yaml:"remember_me_ttl" env:"GOCREDS_REMEMBER_ME_TTL"`
	TemporaryTTL  string `yaml:"temporary_ttl" env:"GOCREDS_TEMPORARY_TTL"`
	Issuer        string `yaml:"issuer" env:"GOCREDS_ISSUER"`
	Audience      string `yaml:"audience" env:"GOCREDS_AUDIENCE"`
}

func defaultProcessConfig() processConfig {
	return processConfig{
		Dialect:       "sqlite",
		DSN:           "file:gocreds.db",
		LogLevel:      "info",
		LogFormat:     "text",
		SigningMethod: "ed25519",
		AccessTTL:     "15 minutes",
		RefreshTTL:    "7 days",
		RememberMeTTL: "1 year",
		TemporaryTTL:  "5 minutes",
	}
}

// commonFlags are accepted by every subcommand and override file and env values.
type commonFlags struct {
	configPath   string
	dialect      string
	dsn          string
	logLevel     string
	logFormat    string
	otelEndpoint string
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	fs.StringVar(&f.dialect, "dialect", "", "database dialect: postgres or sqlite")
	fs.StringVar(&f.dsn, "dsn", "", "database connection string")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "text or json")
	fs.StringVar(&f.otelEndpoint, "otel-endpoint", "", "OTLP/HTTP trace endpoint URL; empty disables tracing")
}

func (f *commonFlags) apply(fs *pflag.FlagSet, cfg *processConfig) {
	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	set("dialect", &cfg.Dialect, f.dialect)
	set("dsn", &cfg.DSN, f.dsn)
	set("log-level", &cfg.LogLevel, f.logLevel)
	set("log-format", &cfg.LogFormat, f.logFormat)
	set("otel-endpoint", &cfg.OTelEndpoint, f.otelEndpoint)
}

// loadProcessConfig reads path (when non-empty) over the defaults, then applies
// environ. A nil environ means the process environment.
func loadProcessConfig(path string, environ map[string]string) (processConfig, error) {
	cfg := defaultProcessConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return processConfig{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return processConfig{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return processConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// engineConfig converts the process view into a validated goCreds.Config.
func (c processConfig) engineConfig() (goCreds.Config, error) {
	cfg := goCreds.DefaultConfig()
	cfg.JWT.SigningMethod = strings.ToLower(strings.TrimSpace(c.SigningMethod))
	cfg.JWT.Issuer = c.Issuer
	cfg.JWT.Audience = c.Audience

	lifetimes := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"access_ttl", c.AccessTTL, &cfg.JWT.AccessTTL},
		{"refresh_ttl", c.RefreshTTL, &cfg.JWT.RefreshTTL},
		{"remember_me_ttl", c.RememberMeTTL, &cfg.JWT.RememberMeTTL},
		{"temporary_ttl", c.TemporaryTTL, &cfg.JWT.TemporaryTTL},
	}
	for _, lt := range lifetimes {
		if lt.raw == "" {
			continue
		}
		d, err := jwt.ParseLifetime(lt.raw)
		if err != nil {
			return goCreds.Config{}, fmt.Errorf("%s: %w", lt.name, err)
		}
		*lt.dst = d
	}

	var err error
	if cfg.Crypto.Key, err = decodeKey("crypto_key", c.CryptoKey); err != nil {
		return goCreds.Config{}, err
	}

	access, err := decodeKey("access_private_key", c.AccessPrivateKey)
	if err != nil {
		return goCreds.Config{}, err
	}
	refresh, err := decodeKey("refresh_private_key", c.RefreshPrivateKey)
	if err != nil {
		return goCreds.Config{}, err
	}

	switch cfg.JWT.SigningMethod {
	case string(jwt.MethodEd25519):
		accessPriv, err := ed25519Key("access_private_key", access)
		if err != nil {
			return goCreds.Config{}, err
		}
		refreshPriv, err := ed25519Key("refresh_private_key", refresh)
		if err != nil {
			return goCreds.Config{}, err
		}
		cfg.JWT.AccessPrivateKey = accessPriv
		cfg.JWT.AccessPublicKey = accessPriv.Public().(ed25519.PublicKey)
		cfg.JWT.RefreshPrivateKey = refreshPriv
		cfg.JWT.RefreshPublicKey = refreshPriv.Public().(ed25519.PublicKey)
	default:
		cfg.JWT.AccessPrivateKey = access
		cfg.JWT.RefreshPrivateKey = refresh
	}

	if err := cfg.Validate(); err != nil {
		return goCreds.Config{}, err
	}
	return cfg, nil
}

func decodeKey(name, raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

// ed25519Key accepts either a 32-byte seed or a 64-byte private key.
func ed25519Key(name string, b []byte) (ed25519.PrivateKey, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	default:
		return nil, errors.New(name + " must be a 32-byte seed or 64-byte ed25519 key")
	}
}
