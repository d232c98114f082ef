package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/scalebench/authcore/internal"
	"github.com/scalebench/authcore/pkce"
)

// AuthURL starts a sign-in attempt: it returns the provider authorization
// URL and the opaque state that identifies the attempt. Each call produces a
// fresh state and PKCE verifier; the verifier never leaves the server.
func (e *Engine) AuthURL(ctx context.Context) (*AuthURLResult, error) {
	if e == nil || e.exchanger == nil {
		return nil, ErrEngineNotReady
	}

	result, err := e.exchanger.AuthURL(ctx)
	if err != nil {
		e.emitAudit(ctx, auditEventAuthFailure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"stage": "auth_url",
			}
		})
		return nil, err
	}

	e.metricInc(MetricAuthURLIssued)
	e.emitAudit(ctx, auditEventAuthURLIssued, true, "", "", nil, nil)

	return &AuthURLResult{
		URL:   result.URL,
		State: result.State,
	}, nil
}

// Authenticate completes a sign-in attempt from the provider callback. It
// consumes the attempt's stored verifier, exchanges the code, maps the
// verified identity to a local account, and issues the token pair bound to
// the presenting device.
func (e *Engine) Authenticate(ctx context.Context, code, state, deviceID string) (*AuthResult, error) {
	if e == nil || e.exchanger == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	if code == "" || state == "" || deviceID == "" {
		e.metricInc(MetricAuthFailure)
		e.emitAudit(ctx, auditEventAuthFailure, false, "", "", ErrValidation, func() map[string]string {
			return map[string]string{
				"reason": "missing_input",
			}
		})
		return nil, ErrValidation
	}

	ip := clientIPFromContext(ctx)
	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckExchange(ctx, ip); err != nil {
			mapped := mapRateError(err)
			if errors.Is(mapped, ErrRateLimited) {
				e.metricInc(MetricAuthRateLimited)
				e.emitAudit(ctx, auditEventAuthRateLimited, false, "", "", ErrRateLimited, nil)
				e.emitRateLimit(ctx, "exchange")
			}
			return nil, mapped
		}
	}

	identity, err := e.exchanger.Exchange(ctx, code, state)
	if err != nil {
		return nil, e.failAuth(ctx, mapExchangeError(err), "provider_exchange")
	}

	user, err := e.userProvider.GetOrCreateByIdentity(ctx, Identity{
		Subject:       identity.Subject,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
	})
	if err != nil {
		return nil, e.failAuth(ctx, err, "user_mapping")
	}
	if user.Status == AccountDisabled {
		e.metricInc(MetricAuthFailure)
		e.emitAudit(ctx, auditEventAccountDisabled, false, user.UserID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}
	if !user.Role.Valid() {
		return nil, e.failAuth(ctx, ErrValidation, "invalid_role")
	}

	fingerprint := internal.Fingerprint(deviceID, e.fingerprintSalt)
	e.noteRequestFingerprint(ctx, user.UserID, deviceID, fingerprint)

	result, err := e.issueTokenPair(user, deviceID, fingerprint, 0)
	if err != nil {
		return nil, e.failAuth(ctx, err, "token_issue")
	}

	e.metricInc(MetricAuthSuccess)
	e.emitAudit(ctx, auditEventAuthSuccess, true, user.UserID, fingerprint, nil, nil)

	return result, nil
}

func (e *Engine) failAuth(ctx context.Context, err error, stage string) error {
	if errors.Is(err, ErrUnverifiedEmail) {
		e.metricInc(MetricUnverifiedEmailRejected)
		e.emitAudit(ctx, auditEventUnverifiedEmail, false, "", "", err, nil)
		return err
	}
	e.metricInc(MetricAuthFailure)
	e.emitAudit(ctx, auditEventAuthFailure, false, "", "", err, func() map[string]string {
		return map[string]string{
			"stage": stage,
		}
	})
	return err
}

func (e *Engine) issueTokenPair(user UserRecord, deviceID, fingerprint string, rotation int) (*AuthResult, error) {
	access, accessExp, err := e.jwtManager.IssueAccess(user.UserID, string(user.Role), user.CompanyID)
	if err != nil {
		return nil, err
	}

	refresh, err := e.jwtManager.IssueRefresh(user.UserID, deviceID, fingerprint, rotation)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		UserID:           user.UserID,
		Role:             user.Role,
		CompanyID:        user.CompanyID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: time.Now().Add(e.config.JWT.RefreshTTL),
	}, nil
}

// noteRequestFingerprint records the detect-only request-context
// fingerprint (UA, language, device, IP) alongside the canonical one.
// Divergence across a user's events signals token theft; nothing is
// rejected here.
func (e *Engine) noteRequestFingerprint(ctx context.Context, userID, deviceID, canonical string) {
	if e.audit == nil {
		return
	}

	ua := userAgentFromContext(ctx)
	lang := acceptLanguageFromContext(ctx)
	ip := clientIPFromContext(ctx)
	if ua == "" && lang == "" && ip == "" {
		return
	}

	contextual := internal.ContextFingerprint(ua, lang, deviceID, ip)
	e.emitAudit(ctx, auditEventContextRecorded, true, userID, canonical, nil, func() map[string]string {
		return map[string]string{
			"context_fingerprint": contextual,
		}
	})
}

func mapExchangeError(err error) error {
	switch {
	case errors.Is(err, pkce.ErrAttemptNotFound):
		return ErrValidation
	case errors.Is(err, pkce.ErrEmailUnverified):
		return ErrUnverifiedEmail
	case errors.Is(err, pkce.ErrExchange), errors.Is(err, pkce.ErrProfileFetch):
		return ErrTokenExchange
	default:
		return err
	}
}
