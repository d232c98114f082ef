package authcore

import (
	"context"
	"errors"
)

// Logout revokes a refresh token for its remaining lifetime. Tokens already
// past expiry return ErrTokenAlreadyExpired; the access token, if any, lives
// out its hour and is not recalled.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return ErrValidation
	}

	if err := e.jwtManager.Revoke(ctx, refreshToken); err != nil {
		mapped := mapTokenError(err)
		if !errors.Is(mapped, ErrTokenAlreadyExpired) {
			e.emitAudit(ctx, auditEventLogout, false, "", "", mapped, nil)
		}
		return mapped
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", "", nil, nil)

	return nil
}
