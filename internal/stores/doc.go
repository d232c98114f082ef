// Package stores provides Redis-backed, short-lived record stores for the
// OAuth2/PKCE exchange: in-flight authorization attempts and cached identity
// profiles.
//
// # Design
//
// Attempt records are single-use: the verifier is consumed atomically
// (GETDEL) on the callback so a replayed state cannot reuse it. Profile
// cache entries are keyed by a digest of the provider access token, never
// the token itself, and expire on a short TTL.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Store raw provider access tokens as keys.
//   - Make authentication decisions — those belong to the PKCE engine.
package stores
