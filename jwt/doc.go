// Package jwt manages issuance and verification of the dual-token credential
// pair: short-lived signed access tokens and long-lived signed refresh tokens
// whose device-binding payload is independently AEAD-encrypted before being
// embedded in the signed envelope.
//
// # Verification order
//
// Refresh verification consults the revocation ledger first, then validates
// the signature and registered claims, and only then trusts the token-kind
// discriminator and decrypts the payload. The kind check never precedes
// cryptographic verification; a forged kind must fail on signature, not on
// dispatch.
package jwt
