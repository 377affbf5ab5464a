package goCreds

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goCreds/verification"
	"go.opentelemetry.io/otel/attribute"
)

// RequestEmailConfirmation issues or renews the email confirmation token for the
// account registered under email and hands it to the Notifier. Unknown and
// already confirmed accounts succeed silently.
func (e *Engine) RequestEmailConfirmation(ctx context.Context, email string) (err error) {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "RequestEmailConfirmation")
	defer func() { endSpan(span, err) }()

	user, found, err := e.lookupForRequest(ctx, email)
	if err != nil || !found {
		return err
	}
	if user.Confirmed {
		return nil
	}

	err = e.requestVerification(ctx, user.SubjectID, verification.EmailConfirm)
	if err != nil {
		e.emitAudit(ctx, auditEventEmailConfirmRequest, false, user.SubjectID, err, nil)
		return err
	}
	e.metricInc(MetricEmailConfirmRequest)
	e.emitAudit(ctx, auditEventEmailConfirmRequest, true, user.SubjectID, nil, nil)
	return nil
}

// ConfirmEmail redeems an email confirmation token and marks the account
// confirmed. The token is spent only if MarkConfirmed succeeds.
func (e *Engine) ConfirmEmail(ctx context.Context, token string) (subjectID string, err error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "ConfirmEmail")
	defer func() { endSpan(span, err) }()

	subjectID, err = e.machine.Consume(ctx, token, verification.EmailConfirm, func(ctx context.Context, rec verification.Record) error {
		return e.users.MarkConfirmed(ctx, rec.SubjectID)
	})
	if err != nil {
		err = e.verificationError(err)
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirm, false, "", err, nil)
		return "", err
	}

	e.metricInc(MetricEmailConfirmSuccess)
	e.emitAudit(ctx, auditEventEmailConfirm, true, subjectID, nil, nil)
	return subjectID, nil
}

// RequestPasswordReset issues or renews the password reset token for the account
// registered under email. Unknown accounts succeed silently.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (err error) {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "RequestPasswordReset")
	defer func() { endSpan(span, err) }()

	user, found, err := e.lookupForRequest(ctx, email)
	if err != nil || !found {
		return err
	}

	err = e.requestVerification(ctx, user.SubjectID, verification.PasswordReset)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.SubjectID, err, nil)
		return err
	}
	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.SubjectID, nil, nil)
	return nil
}

// CompletePasswordReset redeems a password reset token. Inside the redemption it
// revokes every refresh token of the subject and then regenerates the password;
// the token is spent only if both succeed. The new password is delivered through
// the Notifier and returned once, together with a temporary login token.
//
// When delivery fails the result is still returned, alongside an error matching
// [ErrDeliveryFailed].
func (e *Engine) CompletePasswordReset(ctx context.Context, token string) (res PasswordResetResult, err error) {
	if !e.ready() {
		return PasswordResetResult{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "CompletePasswordReset")
	defer func() { endSpan(span, err) }()

	var newPassword string
	subjectID, err := e.machine.Consume(ctx, token, verification.PasswordReset, func(ctx context.Context, rec verification.Record) error {
		if _, err := e.ledger.DeleteBySubject(ctx, rec.SubjectID); err != nil {
			return err
		}
		pw, err := e.resetPassword(ctx, rec.SubjectID)
		if err != nil {
			return err
		}
		newPassword = pw
		return nil
	})
	if err != nil {
		err = e.verificationError(err)
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", err, nil)
		return PasswordResetResult{}, err
	}
	span.SetAttributes(attribute.String("gocreds.subject_id", subjectID))

	res = PasswordResetResult{
		SubjectID:   subjectID,
		NewPassword: newPassword,
	}
	// The password has already changed, so a temporary token that cannot be
	// recorded is withheld rather than failing the whole reset.
	if temp, terr := e.issueTemporaryToken(ctx, subjectID); terr != nil {
		e.log.Warn(ctx, "temporary token not issued", "subject_id", subjectID, "error", terr)
	} else {
		res.TemporaryToken = temp
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, subjectID, nil, nil)

	if derr := e.deliverPassword(ctx, subjectID, newPassword); derr != nil {
		e.metricInc(MetricDeliveryFailure)
		e.log.Warn(ctx, "password delivery failed", "subject_id", subjectID, "error", derr)
		return res, fmt.Errorf("%w: %v", ErrDeliveryFailed, derr)
	}
	return res, nil
}

// PendingVerification returns the stored record for (subjectID, purpose). The
// plaintext token is never part of it.
func (e *Engine) PendingVerification(ctx context.Context, subjectID string, purpose verification.Purpose) (verification.Record, error) {
	if !e.ready() {
		return verification.Record{}, ErrEngineNotReady
	}
	rec, err := e.machine.Pending(ctx, subjectID, purpose)
	if err != nil {
		return verification.Record{}, e.verificationError(err)
	}
	return rec, nil
}

func (e *Engine) lookupForRequest(ctx context.Context, email string) (User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, false, ErrInvalidInput
	}
	user, err := e.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, persistenceError(err)
	}
	return user, true, nil
}

func (e *Engine) requestVerification(ctx context.Context, subjectID string, purpose verification.Purpose) error {
	_, err := e.machine.Request(ctx, subjectID, purpose)
	if err == nil {
		return nil
	}
	err = e.verificationError(err)

	var rl *RateLimitError
	switch {
	case errors.As(err, &rl):
		e.metricInc(MetricVerificationRateLimited)
		e.emitRateLimit(ctx, rl, subjectID)
	case errors.Is(err, ErrDeliveryFailed):
		e.metricInc(MetricDeliveryFailure)
		e.log.Warn(ctx, "verification delivery failed",
			"subject_id", subjectID, "purpose", string(purpose), "error", err)
	}
	return err
}

// onTokenReady is the Machine's delivery hook.
func (e *Engine) onTokenReady(ctx context.Context, rec verification.Record) error {
	user, err := e.users.FindBySubjectID(ctx, rec.SubjectID)
	if err != nil {
		return err
	}
	return e.notifier.DeliverVerification(ctx, Delivery{
		Purpose:   rec.Purpose,
		SubjectID: rec.SubjectID,
		Email:     user.Email,
		Token:     rec.Token,
		ExpiresAt: rec.ExpiresAt,
	})
}

func (e *Engine) deliverPassword(ctx context.Context, subjectID, plaintext string) error {
	user, err := e.users.FindBySubjectID(ctx, subjectID)
	if err != nil {
		return err
	}
	return e.notifier.DeliverPassword(ctx, PasswordDelivery{
		SubjectID: subjectID,
		Email:     user.Email,
		Password:  plaintext,
	})
}

// verificationError maps machine errors onto the engine's sentinels.
func (e *Engine) verificationError(err error) error {
	var verr *verification.Error
	if errors.As(err, &verr) {
		switch verr.Kind {
		case verification.KindNotFound:
			return ErrVerificationNotFound
		case verification.KindExpired:
			return ErrTokenExpired
		case verification.KindRateLimited:
			return &RateLimitError{Scope: ScopeVerification, UnlockAt: verr.UnlockAt}
		}
	}
	switch {
	case errors.Is(err, verification.ErrDelivery):
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	case errors.Is(err, ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, ErrEngineNotReady):
		return err
	}
	return persistenceError(err)
}
