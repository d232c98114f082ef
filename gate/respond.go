package gate

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/scalebench/authcore"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps engine sentinels onto transport status codes. Bodies stay
// generic so a caller cannot probe which check rejected the request.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrRateLimited):
		writeJSONError(w, http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, authcore.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, authcore.ErrTokenExpired):
		writeJSONError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, authcore.ErrTokenInvalid),
		errors.Is(err, authcore.ErrWrongTokenKind),
		errors.Is(err, authcore.ErrTokenRevoked),
		errors.Is(err, authcore.ErrTokenAlreadyExpired),
		errors.Is(err, authcore.ErrDeviceMismatch),
		errors.Is(err, authcore.ErrUserNotFound):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, authcore.ErrUnverifiedEmail),
		errors.Is(err, authcore.ErrAccountDisabled):
		writeJSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, authcore.ErrTokenExchange):
		writeJSONError(w, http.StatusBadGateway, "provider unavailable")
	case errors.Is(err, authcore.ErrBackendUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// clientIP prefers the first X-Forwarded-For hop and falls back to the
// socket peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
