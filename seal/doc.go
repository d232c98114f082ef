// Package seal provides the symmetric authenticated-encryption primitive used
// to protect refresh-token payloads, plus secure random generation.
//
// # Cipher parameters
//
// AES-256-GCM with a 32-byte key, a 16-byte random IV generated per call, and
// a 16-byte authentication tag. IVs are never reused under the same key; every
// Encrypt call draws fresh randomness.
//
// # What this package must NOT do
//
//   - Derive keys. Callers own key material and its validation at startup.
//   - Distinguish tampering from wrong-key failures in its error surface.
//     Both return [ErrDecrypt], and callers must not branch on the cause.
package seal
