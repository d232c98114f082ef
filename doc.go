// Package authcore is the authentication and session core of the scalebench
// platform: Google sign-in via PKCE, a dual-token engine with device-bound
// encrypted refresh tokens, a Redis revocation ledger, and per-IP request
// budgets.
//
// Construct an Engine with the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithUserProvider(users).
//		Build()
//
// The Engine exposes five operations: AuthURL, Authenticate, Refresh,
// Logout, and ValidateAccess. The HTTP surface in gate/ maps them onto the
// /auth routes; middleware/ provides the bearer guard and role checks for
// protected resources.
//
// Access tokens are stateless HS256 JWTs valid for one hour. Refresh tokens
// are signed envelopes whose device-binding payload travels AES-256-GCM
// encrypted; they rotate on every use and the superseded token is revoked
// for its remaining lifetime.
package authcore
