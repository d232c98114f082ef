package authcore

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/scalebench/authcore/internal"
	"github.com/scalebench/authcore/jwt"
)

// Refresh rotates a token pair. The presented refresh token is verified
// against the revocation ledger, its signature, and its device binding, then
// revoked for its remaining lifetime before the replacement pair is issued.
// A stolen token replayed after rotation hits the ledger and is rejected.
func (e *Engine) Refresh(ctx context.Context, refreshToken, deviceID string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" || deviceID == "" {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrValidation, func() map[string]string {
			return map[string]string{
				"reason": "missing_input",
			}
		})
		return nil, ErrValidation
	}

	ip := clientIPFromContext(ctx)
	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, ip); err != nil {
			mapped := mapRateError(err)
			if errors.Is(mapped, ErrRateLimited) {
				e.metricInc(MetricRefreshRateLimited)
				e.emitAudit(ctx, auditEventRefreshRateLimit, false, "", "", ErrRateLimited, nil)
				e.emitRateLimit(ctx, "refresh")
			}
			return nil, mapped
		}
	}

	fingerprint := internal.Fingerprint(deviceID, e.fingerprintSalt)
	payload, _, err := e.jwtManager.VerifyRefresh(ctx, refreshToken, deviceID, fingerprint)
	if err != nil {
		return nil, e.failRefresh(ctx, mapTokenError(err), fingerprint)
	}

	user, err := e.userProvider.GetUserByID(ctx, payload.UserID)
	if err != nil {
		return nil, e.failRefresh(ctx, ErrUserNotFound, fingerprint)
	}
	if user.Status == AccountDisabled {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventAccountDisabled, false, user.UserID, fingerprint, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	// The old token goes on the ledger before its replacement exists.
	// Revocation failure aborts the rotation so the token count never grows.
	if err := e.jwtManager.Revoke(ctx, refreshToken); err != nil && !errors.Is(err, jwt.ErrAlreadyExpired) {
		return nil, e.failRefresh(ctx, mapTokenError(err), fingerprint)
	}

	result, err := e.issueTokenPair(user, deviceID, fingerprint, payload.Rotation+1)
	if err != nil {
		return nil, e.failRefresh(ctx, err, fingerprint)
	}

	if e.rateLimiter != nil {
		// Best effort; a stale counter only tightens the budget.
		if err := e.rateLimiter.ResetRefresh(ctx, ip); err != nil {
			log.Print("authcore: refresh limiter reset failed")
		}
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.UserID, fingerprint, nil, func() map[string]string {
		return map[string]string{
			"rotation": strconv.Itoa(payload.Rotation + 1),
		}
	})

	return result, nil
}

func (e *Engine) failRefresh(ctx context.Context, err error, fingerprint string) error {
	switch {
	case errors.Is(err, ErrDeviceMismatch):
		e.metricInc(MetricDeviceMismatch)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventDeviceMismatch, false, "", fingerprint, err, nil)
	case errors.Is(err, ErrTokenRevoked):
		e.metricInc(MetricRevokedTokenRejected)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventTokenRevokedUse, false, "", fingerprint, err, nil)
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", fingerprint, err, nil)
	}
	return err
}
