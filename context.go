package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type acceptLanguageContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP rate limiting, audit logging, and anomaly fingerprinting.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Used by the
// detect-only request fingerprint recorded in audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithAcceptLanguage attaches the HTTP Accept-Language string to ctx for the
// detect-only request fingerprint.
func WithAcceptLanguage(ctx context.Context, acceptLanguage string) context.Context {
	return context.WithValue(ctx, acceptLanguageContextKey{}, acceptLanguage)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func acceptLanguageFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	lang, _ := ctx.Value(acceptLanguageContextKey{}).(string)
	return lang
}
