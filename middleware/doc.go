// Package middleware exposes HTTP middleware built on authcore.Engine
// validation.
//
//   - [Guard] reads the Authorization bearer token, validates it, and
//     injects a fresh Principal into the request context.
//   - [RequireRole] enforces the hierarchical role check on top of Guard.
//   - [SecurityHeaders] applies the standard response header set.
//
// The package translates HTTP semantics into Engine calls; it never parses
// tokens itself and makes no authorization decision beyond what
// Engine.ValidateAccess and Role.Satisfies report.
package middleware
