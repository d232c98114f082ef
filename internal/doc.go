// Package internal contains helper utilities that are intentionally private
// to authcore, including secure state generation and device fingerprint
// derivation.
//
// # Sub-packages
//
//   - rate — Redis-backed fixed-window rate limit primitives
//   - stores — short-TTL Redis stores for PKCE attempts and provider profiles
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
