package goCreds

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goCreds/internal/audit"
	"github.com/MrEthical07/goCreds/internal/dbx"
	"github.com/MrEthical07/goCreds/internal/logging"
	"github.com/MrEthical07/goCreds/internal/rate"
	"github.com/MrEthical07/goCreds/jwt"
	"github.com/MrEthical07/goCreds/ledger"
	"github.com/MrEthical07/goCreds/password"
	"github.com/MrEthical07/goCreds/secret"
	"github.com/MrEthical07/goCreds/verification"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	db      *sql.DB
	dialect dbx.Dialect

	ledger            ledger.Store
	verificationStore verification.Store

	userProvider   UserProvider
	notifier       Notifier
	auditSink      AuditSink
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores refresh tokens and verification records in Redis. It is also
// required when the login limiter is enabled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSQL stores refresh tokens and verification records in db. dialect is
// "postgres" or "sqlite"; the schema must already be migrated.
// When both WithSQL and WithRedis are set, the SQL stores win and Redis is only
// used by the login limiter.
func (b *Builder) WithSQL(db *sql.DB, dialect string) *Builder {
	b.db = db
	b.dialect = dbx.Dialect(dialect)
	return b
}

// WithLedgerStore overrides the refresh-token store.
func (b *Builder) WithLedgerStore(store ledger.Store) *Builder {
	b.ledger = store
	return b
}

// WithVerificationStore overrides the verification record store.
func (b *Builder) WithVerificationStore(store verification.Store) *Builder {
	b.verificationStore = store
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithNotifier sets the out-of-band delivery channel. Defaults to [NopNotifier].
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a discarding logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithTracerProvider enables spans around engine operations.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock overrides the engine's time source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider is required")
	}
	if b.db != nil && !b.dialect.Valid() {
		return nil, fmt.Errorf("unsupported SQL dialect %q", b.dialect)
	}
	if b.config.LoginLimit.Enabled && b.redis == nil {
		return nil, errors.New("login limiter requires a Redis client")
	}

	cfg := cloneConfig(b.config)
	now := b.now
	if now == nil {
		now = time.Now
	}

	ledgerStore := b.ledger
	if ledgerStore == nil {
		switch {
		case b.db != nil:
			ledgerStore = ledger.NewSQLStore(b.db, b.dialect)
		case b.redis != nil:
			ledgerStore = ledger.NewRedisStore(b.redis, cfg.Storage.LedgerRedisPrefix)
		default:
			return nil, errors.New("a storage backend is required: WithRedis or WithSQL")
		}
	}

	verificationStore := b.verificationStore
	if verificationStore == nil {
		switch {
		case b.db != nil:
			verificationStore = verification.NewSQLStore(b.db, b.dialect)
		case b.redis != nil:
			verificationStore = verification.NewRedisStore(b.redis, cfg.Storage.VerificationRedisPrefix).WithClock(now)
		default:
			return nil, errors.New("a storage backend is required: WithRedis or WithSQL")
		}
	}

	secrets, err := secret.New(cfg.Crypto.Key)
	if err != nil {
		return nil, err
	}

	signer, err := jwt.NewSigner(cfg.JWT.SignerConfig())
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinPasswordBytes,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	// Unknown-user logins verify against this hash so they cost the same as real ones.
	dummyPassword, err := password.Generate(password.MinGeneratedLength)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}

	tp := b.tracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	e := &Engine{
		config:    cfg,
		signer:    signer,
		hasher:    hasher,
		secrets:   secrets,
		ledger:    ledgerStore,
		users:     b.userProvider,
		notifier:  notifier,
		metrics:   NewMetrics(cfg.Metrics),
		log:       logging.NewSlogLogger(b.logger).With("component", "gocreds"),
		tracer:    tp.Tracer(tracerName),
		dummyHash: dummyHash,
		now:       now,
	}

	policy := verification.Policy{
		TTL: map[verification.Purpose]time.Duration{
			verification.EmailConfirm:  cfg.Verification.EmailConfirmTTL,
			verification.PasswordReset: cfg.Verification.PasswordResetTTL,
		},
		FreeAttempts: cfg.Verification.FreeAttempts,
		Cooldown:     cfg.Verification.Cooldown,
	}
	machine, err := verification.NewMachine(verificationStore, secrets, policy,
		verification.WithClock(now),
		verification.WithMaxRetries(cfg.Verification.MaxRetries),
		verification.WithTokenReady(e.onTokenReady),
	)
	if err != nil {
		return nil, err
	}
	e.machine = machine

	if cfg.LoginLimit.Enabled {
		e.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.LoginLimit.EnableIPThrottle,
			MaxAttempts:      cfg.LoginLimit.MaxAttempts,
			Window:           cfg.LoginLimit.Window,
			Prefix:           cfg.LoginLimit.RedisPrefix,
		})
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogSink(e.log)
	}
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	b.built = true
	return e, nil
}
