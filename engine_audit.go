package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventAuthURLIssued    = "auth_url_issued"
	auditEventAuthSuccess      = "auth_success"
	auditEventAuthFailure      = "auth_failure"
	auditEventAuthRateLimited  = "auth_rate_limited"
	auditEventRefreshSuccess   = "refresh_success"
	auditEventRefreshInvalid   = "refresh_invalid"
	auditEventRefreshRateLimit = "refresh_rate_limited"
	auditEventDeviceMismatch   = "device_mismatch"
	auditEventTokenRevokedUse  = "revoked_token_presented"
	auditEventLogout           = "logout"
	auditEventRateLimitTrigger = "rate_limit_triggered"
	auditEventContextRecorded  = "request_fingerprint_recorded"
	auditEventUnverifiedEmail  = "unverified_email_rejected"
	auditEventAccountDisabled  = "account_disabled_rejected"
)

type auditErrorCode string

const (
	auditErrValidation      auditErrorCode = "invalid_input"
	auditErrRateLimited     auditErrorCode = "rate_limited"
	auditErrTokenExpired    auditErrorCode = "token_expired"
	auditErrTokenInvalid    auditErrorCode = "token_invalid"
	auditErrWrongKind       auditErrorCode = "wrong_token_kind"
	auditErrTokenRevoked    auditErrorCode = "token_revoked"
	auditErrDeviceMismatch  auditErrorCode = "device_mismatch"
	auditErrUnverifiedEmail auditErrorCode = "unverified_email"
	auditErrExchange        auditErrorCode = "exchange_failed"
	auditErrAccountDisabled auditErrorCode = "account_disabled"
	auditErrUserNotFound    auditErrorCode = "user_not_found"
	auditErrUnavailable     auditErrorCode = "backend_unavailable"
	auditErrInternal        auditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	fingerprint string,
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

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		UserID:      userID,
		IP:          clientIPFromContext(ctx),
		Fingerprint: fingerprint,
		Success:     success,
		Metadata:    metadata,
	}
	if code := errorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTrigger, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}

func errorCode(err error) auditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenAlreadyExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrWrongTokenKind):
		return auditErrWrongKind
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrDeviceMismatch):
		return auditErrDeviceMismatch
	case errors.Is(err, ErrUnverifiedEmail):
		return auditErrUnverifiedEmail
	case errors.Is(err, ErrTokenExchange):
		return auditErrExchange
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
