package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/scalebench/authcore/denylist"
	"github.com/scalebench/authcore/internal/rate"
	"github.com/scalebench/authcore/jwt"
	"github.com/scalebench/authcore/pkce"
)

// Engine orchestrates the PKCE exchange, the token pair, the revocation
// ledger, and the per-IP budgets. Construct it with [Builder]; an Engine is
// immutable and safe for concurrent use after Build.
type Engine struct {
	config          Config
	exchanger       *pkce.Exchanger
	jwtManager      *jwt.Manager
	deny            *denylist.Store
	rateLimiter     *rate.Limiter
	userProvider    UserProvider
	audit           *auditDispatcher
	metrics         *Metrics
	fingerprintSalt []byte
}

// Close flushes and stops the audit dispatcher. The injected Redis client is
// owned by the caller and is not closed here.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the registry for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// CheckAuthBudget records one attempt against the general per-IP auth
// budget. The HTTP gate calls it on every auth-prefixed route.
func (e *Engine) CheckAuthBudget(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.rateLimiter == nil {
		return nil
	}
	if err := e.rateLimiter.CheckAuth(ctx, clientIPFromContext(ctx)); err != nil {
		mapped := mapRateError(err)
		if errors.Is(mapped, ErrRateLimited) {
			e.emitRateLimit(ctx, "auth")
		}
		return mapped
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ValidateAccess verifies an access token and returns the Principal it
// asserts. No Redis round trip is involved; access tokens live out their
// hour regardless of logout.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*Principal, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}
	if token == "" {
		return nil, ErrValidation
	}

	claims, err := e.jwtManager.VerifyAccess(token)
	if err != nil {
		return nil, mapTokenError(err)
	}

	return &Principal{
		UserID:    claims.UserID,
		Role:      Role(claims.Role),
		CompanyID: claims.CompanyID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrWrongKind):
		return ErrWrongTokenKind
	case errors.Is(err, jwt.ErrRevoked):
		return ErrTokenRevoked
	case errors.Is(err, jwt.ErrDeviceMismatch):
		return ErrDeviceMismatch
	case errors.Is(err, jwt.ErrAlreadyExpired):
		return ErrTokenAlreadyExpired
	case errors.Is(err, denylist.ErrUnavailable):
		return ErrBackendUnavailable
	case errors.Is(err, jwt.ErrInvalid):
		return ErrTokenInvalid
	default:
		return ErrTokenInvalid
	}
}

func mapRateError(err error) error {
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, rate.ErrRedisUnavailable):
		return ErrBackendUnavailable
	default:
		return err
	}
}
