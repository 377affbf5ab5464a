package goCreds

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goCreds/internal/audit"
)

const (
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLogout               = "logout"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventTemporaryLogin       = "temporary_login"
	auditEventEmailConfirmRequest  = "email_confirm_request"
	auditEventEmailConfirm         = "email_confirm"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventPasswordRegenerated  = "password_regenerated"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label recorded in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrAuthenticationFailed AuditErrorCode = "authentication_failed"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrInvalidToken         AuditErrorCode = "invalid_token"
	auditErrTokenExpired         AuditErrorCode = "token_expired"
	auditErrNotFound             AuditErrorCode = "not_found"
	auditErrUserNotFound         AuditErrorCode = "user_not_found"
	auditErrDuplicate            AuditErrorCode = "duplicate"
	auditErrPasswordPolicy       AuditErrorCode = "password_policy"
	auditErrDelivery             AuditErrorCode = "delivery_failed"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		IP:        ClientIP(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, rl *RateLimitError, subjectID string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, subjectID, rl, func() map[string]string {
		return map[string]string{
			"scope":     string(rl.Scope),
			"unlock_at": rl.UnlockAt.UTC().Format(time.RFC3339),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthenticationFailed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrVerificationNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAlreadyExists):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDelivery
	case errors.Is(err, ErrPersistence):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
