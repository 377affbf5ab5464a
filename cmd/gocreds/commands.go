package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goCreds/internal/dbx"
	"github.com/MrEthical07/goCreds/jwt"
	"github.com/MrEthical07/goCreds/ledger"
	"github.com/MrEthical07/goCreds/storage"
	"github.com/MrEthical07/goCreds/verification"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

const tracerName = "github.com/MrEthical07/goCreds/cmd/gocreds"

// session is the state shared by commands that touch storage.
type session struct {
	cfg      processConfig
	log      *slog.Logger
	shutdown func(context.Context) error
}

func (s *session) close(ctx context.Context) {
	if err := s.shutdown(ctx); err != nil {
		s.log.Warn("tracer shutdown failed", "error", err)
	}
}

func parseFlags(env *cliEnv, name string, args []string, extra func(fs *pflag.FlagSet)) (*pflag.FlagSet, processConfig, error) {
	var common commonFlags
	fs := pflag.NewFlagSet("gocreds "+name, pflag.ContinueOnError)
	fs.SetOutput(env.stderr)
	common.register(fs)
	if extra != nil {
		extra(fs)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, processConfig{}, errUsage
		}
		return nil, processConfig{}, err
	}

	cfg, err := loadProcessConfig(common.configPath, env.environ)
	if err != nil {
		return nil, processConfig{}, err
	}
	common.apply(fs, &cfg)
	return fs, cfg, nil
}

func openSession(ctx context.Context, env *cliEnv, cfg processConfig) (*session, error) {
	log, err := newLogger(env.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	shutdown, err := setupTracing(ctx, cfg.OTelEndpoint)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, shutdown: shutdown}, nil
}

func openDB(ctx context.Context, cfg processConfig) (*sql.DB, dbx.Dialect, error) {
	dialect := dbx.Dialect(strings.ToLower(cfg.Dialect))
	db, err := storage.Open(ctx, dialect, cfg.DSN)
	if err != nil {
		return nil, "", err
	}
	return db, dialect, nil
}

func runKeygen(_ context.Context, env *cliEnv, args []string) error {
	var method string
	_, _, err := parseFlags(env, "keygen", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&method, "method", string(jwt.MethodEd25519), "signing method: ed25519 or hs256")
	})
	if err != nil {
		return err
	}

	out := defaultProcessConfig()
	out.SigningMethod = strings.ToLower(method)

	switch jwt.SigningMethod(out.SigningMethod) {
	case jwt.MethodEd25519:
		if out.AccessPrivateKey, err = newEd25519Seed(); err != nil {
			return err
		}
		if out.RefreshPrivateKey, err = newEd25519Seed(); err != nil {
			return err
		}
	case jwt.MethodHS256:
		if out.AccessPrivateKey, err = randomKey(32); err != nil {
			return err
		}
		if out.RefreshPrivateKey, err = randomKey(32); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported signing method %q", method)
	}
	if out.CryptoKey, err = randomKey(32); err != nil {
		return err
	}

	enc := yaml.NewEncoder(env.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func newEd25519Seed() (string, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(priv.Seed()), nil
}

func randomKey(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func runMigrate(ctx context.Context, env *cliEnv, args []string) error {
	_, cfg, err := parseFlags(env, "migrate", args, nil)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, env, cfg)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(ctx))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "gocreds.migrate")
	defer span.End()

	db, dialect, err := openDB(ctx, cfg)
	if err != nil {
		span.SetStatus(codes.Error, "open")
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db, dialect); err != nil {
		span.SetStatus(codes.Error, "migrate")
		return err
	}
	s.log.Info("schema migrated", "dialect", string(dialect))
	return nil
}

func runPurge(ctx context.Context, env *cliEnv, args []string) error {
	var interval time.Duration
	_, cfg, err := parseFlags(env, "purge", args, func(fs *pflag.FlagSet) {
		fs.DurationVar(&interval, "interval", 0, "repeat every interval until interrupted; 0 runs once")
	})
	if err != nil {
		return err
	}
	if interval < 0 {
		return errors.New("interval must be >= 0")
	}

	s, err := openSession(ctx, env, cfg)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(ctx))

	db, dialect, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	p := purger{
		ledger:        ledger.NewSQLStore(db, dialect),
		verifications: verification.NewSQLStore(db, dialect),
		log:           s.log,
		now:           time.Now,
	}

	if interval == 0 {
		_, err := p.once(ctx)
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.once(ctx); err != nil {
			s.log.Error("purge failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type purger struct {
	ledger        *ledger.SQLStore
	verifications *verification.SQLStore
	log           *slog.Logger
	now           func() time.Time
}

func (p purger) once(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gocreds.purge")
	defer span.End()

	tokens, err := p.ledger.PurgeExpired(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "ledger")
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	records, err := p.verifications.PurgeExpired(ctx, p.now())
	if err != nil {
		span.SetStatus(codes.Error, "verification")
		return tokens, fmt.Errorf("purge verification records: %w", err)
	}

	span.SetAttributes(
		attribute.Int("gocreds.purged.refresh_tokens", tokens),
		attribute.Int("gocreds.purged.verification_records", records),
	)
	p.log.Info("expired records purged", "refresh_tokens", tokens, "verification_records", records)
	return tokens + records, nil
}

func runInspect(_ context.Context, env *cliEnv, args []string) error {
	var class string
	fs, cfg, err := parseFlags(env, "inspect", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&class, "class", string(jwt.ClassAccess), "token class: access, refresh or temporary")
	})
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(env.stderr, "usage: gocreds inspect [flags] <token>")
		return errUsage
	}

	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return err
	}
	signer, err := jwt.NewSigner(engineCfg.JWT.SignerConfig())
	if err != nil {
		return err
	}

	claims, err := signer.VerifyToken(fs.Arg(0), jwt.Class(strings.ToLower(class)))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(env.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(claims)
}
