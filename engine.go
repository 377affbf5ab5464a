package goCreds

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goCreds/internal/audit"
	"github.com/MrEthical07/goCreds/internal/logging"
	"github.com/MrEthical07/goCreds/internal/rate"
	"github.com/MrEthical07/goCreds/jwt"
	"github.com/MrEthical07/goCreds/ledger"
	"github.com/MrEthical07/goCreds/password"
	"github.com/MrEthical07/goCreds/secret"
	"github.com/MrEthical07/goCreds/verification"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine runs the credential flows. It owns no user storage. Every method is
// safe for concurrent use.
type Engine struct {
	config    Config
	signer    *jwt.Signer
	hasher    *password.Argon2
	secrets   *secret.Provider
	ledger    ledger.Store
	machine   *verification.Machine
	limiter   *rate.Limiter
	users     UserProvider
	notifier  Notifier
	audit     *audit.Dispatcher
	metrics   *Metrics
	log       logging.Logger
	tracer    trace.Tracer
	dummyHash string
	now       func() time.Time
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Stats().Dropped
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Secrets exposes the engine's crypto provider for application-level encryption
// of data at rest.
func (e *Engine) Secrets() *secret.Provider {
	if e == nil {
		return nil
	}
	return e.secrets
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) ready() bool {
	return e != nil && e.signer != nil && e.ledger != nil && e.machine != nil && e.users != nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account for email and logs it in. When
// VerificationConfig.ConfirmOnRegister is set, an email confirmation token is
// requested as well; failures there are logged and audited but do not fail
// the registration.
func (e *Engine) Register(ctx context.Context, email, plaintext string) (res AuthResult, err error) {
	if !e.ready() {
		return AuthResult{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	email = normalizeEmail(email)
	if email == "" {
		return AuthResult{}, ErrInvalidInput
	}

	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			err = ErrPasswordPolicy
		}
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return AuthResult{}, err
	}

	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		Role:         e.config.Account.DefaultRole,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrAlreadyExists, nil)
			return AuthResult{}, ErrAlreadyExists
		}
		err = persistenceError(err)
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return AuthResult{}, err
	}
	span.SetAttributes(attribute.String("gocreds.subject_id", user.SubjectID))

	pair, err := e.issuePair(ctx, user, false)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, user.SubjectID, err, nil)
		return AuthResult{}, err
	}

	if e.config.Verification.ConfirmOnRegister {
		if _, verr := e.machine.Request(ctx, user.SubjectID, verification.EmailConfirm); verr != nil {
			verr = e.verificationError(verr)
			e.log.Warn(ctx, "email confirmation request after registration failed",
				"subject_id", user.SubjectID, "error", verr)
			e.emitAudit(ctx, auditEventEmailConfirmRequest, false, user.SubjectID, verr, nil)
		} else {
			e.metricInc(MetricEmailConfirmRequest)
			e.emitAudit(ctx, auditEventEmailConfirmRequest, true, user.SubjectID, nil, nil)
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.SubjectID, nil, nil)
	return AuthResult{Subject: e.publicUser(user), Tokens: pair}, nil
}

// Login authenticates email and password and issues a token pair. Unknown
// accounts and wrong passwords both return [ErrAuthenticationFailed] after the
// same amount of hashing work. With rememberMe the refresh token lives for
// JWTConfig.RememberMeTTL.
func (e *Engine) Login(ctx context.Context, email, plaintext string, rememberMe bool) (res AuthResult, err error) {
	if !e.ready() {
		return AuthResult{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "Login", attribute.Bool("gocreds.remember_me", rememberMe))
	defer func() { endSpan(span, err) }()
	defer e.observeSince(MetricLoginLatency, time.Now())

	email = normalizeEmail(email)
	ip := ClientIP(ctx)

	if e.limiter != nil {
		if lerr := e.limiter.Check(ctx, email, ip); lerr != nil {
			return AuthResult{}, e.loginLimitError(ctx, lerr)
		}
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, persistenceError(err)
		}
		_, _ = e.hasher.Verify(plaintext, e.dummyHash)
		return AuthResult{}, e.loginFailed(ctx, email, ip, "", "user_not_found")
	}

	ok, verr := e.hasher.Verify(plaintext, user.PasswordHash)
	if verr != nil || !ok {
		return AuthResult{}, e.loginFailed(ctx, email, ip, user.SubjectID, "password_mismatch")
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradePasswordHash(ctx, user, plaintext)
	}
	plaintext = ""

	if e.limiter != nil {
		if rerr := e.limiter.Reset(ctx, email, ip); rerr != nil {
			e.log.Warn(ctx, "login limiter reset failed", "error", rerr)
		}
	}

	pair, err := e.issuePair(ctx, user, rememberMe)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.SubjectID, err, nil)
		return AuthResult{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.SubjectID, nil, func() map[string]string {
		if !rememberMe {
			return nil
		}
		return map[string]string{"remember_me": "true"}
	})
	return AuthResult{Subject: e.publicUser(user), Tokens: pair}, nil
}

func (e *Engine) loginFailed(ctx context.Context, email, ip, subjectID, reason string) error {
	if e.limiter != nil {
		// The attempt that exhausts the budget still reports a plain failure;
		// the next Check refuses.
		if ferr := e.limiter.Fail(ctx, email, ip); ferr != nil && !errors.Is(ferr, rate.ErrRateLimited) {
			e.log.Warn(ctx, "login limiter update failed", "error", ferr)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, subjectID, ErrAuthenticationFailed, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrAuthenticationFailed
}

func (e *Engine) loginLimitError(ctx context.Context, err error) error {
	var lerr *rate.LimitError
	if !errors.As(err, &lerr) {
		return persistenceError(err)
	}
	rl := &RateLimitError{Scope: ScopeLogin, UnlockAt: lerr.UnlockAt}
	e.metricInc(MetricLoginRateLimited)
	e.emitRateLimit(ctx, rl, "")
	return rl
}

func (e *Engine) upgradePasswordHash(ctx context.Context, user User, plaintext string) {
	needsUpgrade, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}
	upgraded, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.log.Warn(ctx, "password hash upgrade generation failed", "subject_id", user.SubjectID)
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.SubjectID, upgraded); err != nil {
		e.log.Warn(ctx, "password hash upgrade update failed", "subject_id", user.SubjectID, "error", err)
		return
	}
	e.metricInc(MetricPasswordRehash)
}

// Logout revokes refreshToken. A token that verifies but is no longer in the
// ledger returns [ErrRefreshInvalid].
func (e *Engine) Logout(ctx context.Context, refreshToken string) (err error) {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "Logout")
	defer func() { endSpan(span, err) }()

	claims, err := e.signer.VerifyToken(refreshToken, jwt.ClassRefresh)
	if err != nil {
		e.metricInc(MetricLogoutFailure)
		return ErrRefreshInvalid
	}

	if err := e.ledger.Delete(ctx, ledger.Fingerprint(refreshToken)); err != nil {
		e.metricInc(MetricLogoutFailure)
		if errors.Is(err, ledger.ErrNotFound) {
			e.emitAudit(ctx, auditEventLogout, false, claims.Subject, ErrRefreshInvalid, nil)
			return ErrRefreshInvalid
		}
		return persistenceError(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, nil, nil)
	return nil
}

// RefreshAccessToken redeems refreshToken and returns a new pair. The old
// refresh token is removed from the ledger before the new one is issued, so
// each refresh token succeeds at most once. A remember-me token rotates into
// another remember-me token.
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken string) (pair TokenPair, err error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "RefreshAccessToken")
	defer func() { endSpan(span, err) }()
	defer e.observeSince(MetricRefreshLatency, time.Now())

	claims, err := e.signer.VerifyToken(refreshToken, jwt.ClassRefresh)
	if err != nil {
		return TokenPair{}, e.refreshFailed(ctx, "", "signature")
	}

	rec, err := e.ledger.Consume(ctx, ledger.Fingerprint(refreshToken))
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return TokenPair{}, e.refreshFailed(ctx, claims.Subject, "not_found")
	case errors.Is(err, ledger.ErrExpired):
		return TokenPair{}, e.refreshFailed(ctx, claims.Subject, "expired")
	case err != nil:
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, persistenceError(err)
	}
	if rec.SubjectID != claims.Subject {
		return TokenPair{}, e.refreshFailed(ctx, claims.Subject, "subject_mismatch")
	}

	user, err := e.users.FindBySubjectID(ctx, rec.SubjectID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, e.refreshFailed(ctx, rec.SubjectID, "user_not_found")
		}
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, persistenceError(err)
	}

	pair, err = e.issuePair(ctx, user, e.wasRememberMe(claims))
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.SubjectID, nil, nil)
	return pair, nil
}

func (e *Engine) refreshFailed(ctx context.Context, subjectID, reason string) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, subjectID, ErrRefreshInvalid, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrRefreshInvalid
}

func (e *Engine) wasRememberMe(claims *jwt.Claims) bool {
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Sub(claims.IssuedAt.Time) > e.config.JWT.RefreshTTL
}

// LoginWithTemporaryToken exchanges a temporary token (issued by
// CompletePasswordReset) for a regular token pair.
func (e *Engine) LoginWithTemporaryToken(ctx context.Context, token string) (res AuthResult, err error) {
	if !e.ready() {
		return AuthResult{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "LoginWithTemporaryToken")
	defer func() { endSpan(span, err) }()

	subjectID, err := e.signer.VerifyTemporaryToken(token)
	if err != nil {
		e.metricInc(MetricTemporaryLoginFailure)
		e.emitAudit(ctx, auditEventTemporaryLogin, false, "", ErrTokenInvalid, nil)
		return AuthResult{}, ErrTokenInvalid
	}

	// Spend the token before issuing anything; a replay finds no record.
	rec, err := e.ledger.Consume(ctx, ledger.Fingerprint(token))
	switch {
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrExpired):
		e.metricInc(MetricTemporaryLoginFailure)
		e.emitAudit(ctx, auditEventTemporaryLogin, false, subjectID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "spent"}
		})
		return AuthResult{}, ErrTokenInvalid
	case err != nil:
		e.metricInc(MetricTemporaryLoginFailure)
		return AuthResult{}, persistenceError(err)
	}
	if rec.SubjectID != subjectID {
		e.metricInc(MetricTemporaryLoginFailure)
		e.emitAudit(ctx, auditEventTemporaryLogin, false, subjectID, ErrTokenInvalid, nil)
		return AuthResult{}, ErrTokenInvalid
	}

	user, err := e.users.FindBySubjectID(ctx, subjectID)
	if err != nil {
		e.metricInc(MetricTemporaryLoginFailure)
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventTemporaryLogin, false, subjectID, ErrTokenInvalid, nil)
			return AuthResult{}, ErrTokenInvalid
		}
		return AuthResult{}, persistenceError(err)
	}

	pair, err := e.issuePair(ctx, user, false)
	if err != nil {
		e.metricInc(MetricTemporaryLoginFailure)
		return AuthResult{}, err
	}

	e.metricInc(MetricTemporaryLoginSuccess)
	e.emitAudit(ctx, auditEventTemporaryLogin, true, user.SubjectID, nil, nil)
	return AuthResult{Subject: e.publicUser(user), Tokens: pair}, nil
}

// VerifyAccess checks an access token offline and returns its claims.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*Claims, error) {
	if e == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}
	defer e.observeSince(MetricVerifyAccessLatency, time.Now())

	claims, err := e.signer.VerifyToken(token, jwt.ClassAccess)
	if err != nil {
		e.metricInc(MetricAccessVerifyFailure)
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ResetPassword replaces the subject's password with a generated one and returns
// the plaintext. The plaintext is not logged or stored anywhere.
func (e *Engine) ResetPassword(ctx context.Context, subjectID string) (pw string, err error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "ResetPassword", attribute.String("gocreds.subject_id", subjectID))
	defer func() { endSpan(span, err) }()

	return e.resetPassword(ctx, subjectID)
}

func (e *Engine) resetPassword(ctx context.Context, subjectID string) (string, error) {
	plaintext, err := password.Generate(e.config.Password.GeneratedLength)
	if err != nil {
		return "", err
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return "", err
	}

	if err := e.users.UpdatePasswordHash(ctx, subjectID, hash); err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			err = persistenceError(err)
		}
		e.emitAudit(ctx, auditEventPasswordRegenerated, false, subjectID, err, nil)
		return "", err
	}

	e.emitAudit(ctx, auditEventPasswordRegenerated, true, subjectID, nil, nil)
	return plaintext, nil
}

// PurgeExpired removes expired refresh tokens and verification records from
// SQL stores. Redis stores expire keys on their own and are skipped.
func (e *Engine) PurgeExpired(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	total := 0
	if p, ok := e.ledger.(interface {
		PurgeExpired(context.Context) (int, error)
	}); ok {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			return total, persistenceError(err)
		}
		total += n
	}

	n, err := e.machine.PurgeExpired(ctx)
	if err != nil {
		return total, persistenceError(err)
	}
	total += n

	if total > 0 {
		e.log.Info(ctx, "purged expired credentials", "count", total)
	}
	return total, nil
}

func identity(user User) jwt.Identity {
	return jwt.Identity{
		SubjectID: user.SubjectID,
		Email:     user.Email,
		Role:      string(user.Role),
	}
}

// issueTemporaryToken signs a temporary login token and records its
// fingerprint in the ledger so LoginWithTemporaryToken accepts it once.
func (e *Engine) issueTemporaryToken(ctx context.Context, subjectID string) (string, error) {
	token, err := e.signer.IssueTemporaryToken(subjectID)
	if err != nil {
		return "", err
	}

	ttl := e.config.JWT.TemporaryTTL
	if ttl == 0 {
		ttl = jwt.TemporaryTTL
	}
	err = e.ledger.Store(ctx, ledger.Record{
		ID:        uuid.NewString(),
		TokenHash: ledger.Fingerprint(token),
		SubjectID: subjectID,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		return "", persistenceError(err)
	}
	return token, nil
}

// issuePair signs a pair and records the refresh half. If the ledger write
// fails the pair is discarded.
func (e *Engine) issuePair(ctx context.Context, user User, rememberMe bool) (TokenPair, error) {
	pair, err := e.signer.IssueTokenPair(identity(user), rememberMe)
	if err != nil {
		return TokenPair{}, err
	}

	err = e.ledger.Store(ctx, ledger.Record{
		ID:        uuid.NewString(),
		TokenHash: ledger.Fingerprint(pair.RefreshToken),
		SubjectID: user.SubjectID,
		ExpiresAt: pair.RefreshExpiry,
	})
	if err != nil {
		return TokenPair{}, persistenceError(err)
	}
	return pair, nil
}

// publicUser strips the password hash and the fields ResultConfig leaves out.
func (e *Engine) publicUser(u User) User {
	u.PasswordHash = ""
	if !e.config.Result.IncludeEmail {
		u.Email = ""
	}
	if !e.config.Result.IncludeRole {
		u.Role = ""
	}
	return u
}
