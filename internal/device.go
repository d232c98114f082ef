package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the canonical device fingerprint: a salted SHA-256
// digest of the device id alone. This is the value embedded in refresh-token
// payloads and re-derived on every presentation. Header-derived context is
// deliberately excluded so that benign header drift across requests cannot
// invalidate a legitimate session.
func Fingerprint(deviceID string, salt []byte) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(deviceID))
	return hex.EncodeToString(h.Sum(nil))
}

// ContextFingerprint derives a richer fingerprint over the full request
// context. It is used for detect-only anomaly auditing, never for
// enforcement: user agents and client IPs change under normal browser and
// network behavior.
func ContextFingerprint(userAgent, acceptLanguage, deviceID, ip string) string {
	joined := strings.Join([]string{userAgent, acceptLanguage, deviceID, ip}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
