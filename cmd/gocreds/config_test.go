package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gocreds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadProcessConfigLayers(t *testing.T) {
	path := writeFile(t, "dialect: postgres\ndsn: postgres://file\naccess_ttl: 1 hour\n")

	cfg, err := loadProcessConfig(path, map[string]string{
		"GOCREDS_DB_DSN":    "postgres://env",
		"GOCREDS_LOG_LEVEL": "debug",
	})
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Dialect)
	require.Equal(t, "postgres://env", cfg.DSN)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "1 hour", cfg.AccessTTL)
	require.Equal(t, "7 days", cfg.RefreshTTL)
}

func TestLoadProcessConfigMissingFile(t *testing.T) {
	_, err := loadProcessConfig(filepath.Join(t.TempDir(), "nope.yaml"), map[string]string{})
	require.Error(t, err)
}

func TestFlagsOverrideEnv(t *testing.T) {
	env := &cliEnv{stderr: os.Stderr, environ: map[string]string{"GOCREDS_DB_DSN": "from-env"}}
	_, cfg, err := parseFlags(env, "test", []string{"--dsn", "from-flag"}, nil)
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.DSN)

	_, cfg, err = parseFlags(env, "test", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.DSN)
}

func TestCommonFlagsOnlyApplyWhenSet(t *testing.T) {
	var f commonFlags
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	f.register(fs)
	require.NoError(t, fs.Parse([]string{"--log-format", "json"}))

	cfg := defaultProcessConfig()
	f.apply(fs, &cfg)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "sqlite", cfg.Dialect)
}

func TestEngineConfigFromKeys(t *testing.T) {
	seed, err := newEd25519Seed()
	require.NoError(t, err)
	seed2, err := newEd25519Seed()
	require.NoError(t, err)
	key, err := randomKey(32)
	require.NoError(t, err)

	pc := defaultProcessConfig()
	pc.AccessPrivateKey = seed
	pc.RefreshPrivateKey = seed2
	pc.CryptoKey = key
	pc.AccessTTL = "30m"

	cfg, err := pc.engineConfig()
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, cfg.JWT.AccessTTL)
	require.Equal(t, 365*24*time.Hour, cfg.JWT.RememberMeTTL)
	require.Len(t, cfg.JWT.AccessPublicKey, 32)

	pc.AccessTTL = "soon"
	_, err = pc.engineConfig()
	require.Error(t, err)

	pc.AccessTTL = "30m"
	pc.CryptoKey = ""
	_, err = pc.engineConfig()
	require.ErrorContains(t, err, "crypto_key")

	pc.CryptoKey = key
	pc.AccessPrivateKey = key[:8]
	_, err = pc.engineConfig()
	require.Error(t, err)
}
