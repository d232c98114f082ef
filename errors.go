package authcore

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrValidation is returned when required request input is missing or
	// malformed, including unknown or expired authorization attempts.
	ErrValidation = errors.New("invalid request input")
	// ErrRateLimited is returned when a per-IP budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenExpired is returned for structurally valid tokens past expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed tokens, bad signatures, and
	// claim violations.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrWrongTokenKind is returned when a verified token carries the wrong
	// kind discriminator for the operation.
	ErrWrongTokenKind = errors.New("wrong token kind")
	// ErrTokenRevoked is returned when a refresh token is in the revocation
	// ledger.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenAlreadyExpired is returned by Logout for refresh tokens whose
	// expiry has already passed.
	ErrTokenAlreadyExpired = errors.New("token already expired")
	// ErrDeviceMismatch is returned when a refresh token's device binding
	// does not match the presenting request.
	ErrDeviceMismatch = errors.New("device binding mismatch")
	// ErrUnverifiedEmail is returned when the identity provider reports the
	// account email as unverified.
	ErrUnverifiedEmail = errors.New("provider email not verified")
	// ErrTokenExchange is returned when the provider code exchange or
	// profile fetch fails.
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrAccountDisabled is returned when the mapped local account is
	// disabled.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUserNotFound is returned when a token's subject no longer maps to a
	// local account.
	ErrUserNotFound = errors.New("user not found")
	// ErrBackendUnavailable is returned when Redis-backed state cannot be
	// reached; revocation and rate checks fail closed.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
