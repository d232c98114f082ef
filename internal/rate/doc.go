// Package rate provides internal primitives used to build Redis-backed rate
// limit keys, errors, and limiter behavior for security-sensitive
// authentication endpoints.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key
// prefixes:
//   - aa:  — general auth endpoints per-IP
//   - ar:  — refresh endpoint per-IP
//   - arl: — refresh lockout marker per-IP
//   - ax:  — provider code-exchange attempts per-IP
//
// The refresh budget is deliberately tighter than the general one, and
// exceeding it arms a lockout marker that outlives the counting window.
//
// # What this package must NOT do
//
//   - Map limit violations to transport responses (that is the gate's job).
//   - Be imported outside the authcore module.
package rate
