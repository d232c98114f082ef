// Package gate is the HTTP surface of the auth service. It maps the Engine
// operations onto the /auth routes, enforces the cookie contract and the
// X-Device-ID header, applies the per-IP burst guard and the security
// response headers, and translates engine errors into transport status
// codes.
package gate
