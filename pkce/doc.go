// Package pkce drives the OAuth2 authorization-code exchange with Proof Key
// for Code Exchange against an external identity provider.
//
// # Attempt isolation
//
// The verifier/challenge pair is generated fresh for every authorization-URL
// request and stored server-side keyed by the state value, never as engine
// fields. The engine is safe to share across concurrent requests; two
// interleaved authorization attempts cannot corrupt each other's exchange.
//
// # Provider I/O
//
// Outbound calls carry an explicit timeout and never follow redirects: a
// provider response instructing a redirect is itself meaningful and surfaces
// as an error rather than being silently chased.
package pkce
