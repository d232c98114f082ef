package internal

import (
	"crypto/rand"
	"encoding/base64"
)

const stateSize = 32

// NewState returns a fresh 256-bit CSRF state value, base64url without
// padding. Every authorization-URL request gets its own state; reuse across
// attempts is never valid.
func NewState() (string, error) {
	var raw [stateSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
