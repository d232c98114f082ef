package authcore

import (
	"errors"
	"time"

	"github.com/scalebench/authcore/seal"
)

// Config defines the engine configuration. Instances are validated at Build
// time and treated as immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Provider ProviderConfig
	Rate     RateConfig
	Denylist DenylistConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// FingerprintSalt is mixed into the canonical device fingerprint so
	// fingerprints are not portable across deployments.
	FingerprintSalt []byte
}

// JWTConfig holds token engine parameters. Access and refresh envelopes are
// signed with distinct secrets; refresh payloads are encrypted under a
// separate 32-byte key.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	EncryptionKey []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// ProviderConfig holds the OAuth2 identity provider settings for the PKCE
// exchange. Endpoint fields default to Google when empty.
type ProviderConfig struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	Scopes           []string
	AuthEndpoint     string
	TokenEndpoint    string
	UserInfoEndpoint string
	AttemptTTL       time.Duration
	ProfileCacheTTL  time.Duration
	RequestTimeout   time.Duration
}

// RateConfig holds the per-IP budgets enforced in Redis.
type RateConfig struct {
	MaxAuthAttempts     int
	AuthWindow          time.Duration
	MaxRefreshAttempts  int
	RefreshWindow       time.Duration
	RefreshLockout      time.Duration
	MaxExchangeAttempts int
	ExchangeWindow      time.Duration
}

// DenylistConfig holds revocation ledger settings.
type DenylistConfig struct {
	Prefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const minSecretLen = 32

// DefaultConfig returns the production defaults: 1 hour access tokens,
// 30 day refresh tokens, 100 auth attempts per hour, 5 refresh attempts per
// 15 minutes with a 1 hour lockout, and 100 exchanges per rolling minute.
// Secrets, keys, and provider credentials must still be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
			Issuer:     "scalebench",
			Audience:   "scalebench-api",
		},
		Provider: ProviderConfig{
			AttemptTTL:      10 * time.Minute,
			ProfileCacheTTL: 5 * time.Minute,
			RequestTimeout:  10 * time.Second,
		},
		Rate: RateConfig{
			MaxAuthAttempts:     100,
			AuthWindow:          time.Hour,
			MaxRefreshAttempts:  5,
			RefreshWindow:       15 * time.Minute,
			RefreshLockout:      time.Hour,
			MaxExchangeAttempts: 100,
			ExchangeWindow:      time.Minute,
		},
		Denylist: DenylistConfig{
			Prefix: "dl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.EncryptionKey = cloneBytes(cfg.JWT.EncryptionKey)
	out.FingerprintSalt = cloneBytes(cfg.FingerprintSalt)
	out.Provider.Scopes = append([]string(nil), cfg.Provider.Scopes...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for soundness. Build refuses to
// construct an Engine from an invalid Config.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if len(c.JWT.AccessSecret) < minSecretLen {
		return errors.New("JWT AccessSecret must be >= 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < minSecretLen {
		return errors.New("JWT RefreshSecret must be >= 32 bytes")
	}
	if len(c.JWT.EncryptionKey) != seal.KeySize {
		return errors.New("JWT EncryptionKey must be exactly 32 bytes")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("JWT Issuer and Audience are required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	if c.Provider.ClientID == "" || c.Provider.ClientSecret == "" {
		return errors.New("Provider ClientID and ClientSecret are required")
	}
	if c.Provider.RedirectURL == "" {
		return errors.New("Provider RedirectURL is required")
	}

	if c.Rate.MaxAuthAttempts <= 0 || c.Rate.AuthWindow <= 0 {
		return errors.New("Rate auth budget must be > 0")
	}
	if c.Rate.MaxRefreshAttempts <= 0 || c.Rate.RefreshWindow <= 0 {
		return errors.New("Rate refresh budget must be > 0")
	}
	if c.Rate.RefreshLockout <= 0 {
		return errors.New("Rate RefreshLockout must be > 0")
	}
	if c.Rate.MaxExchangeAttempts <= 0 || c.Rate.ExchangeWindow <= 0 {
		return errors.New("Rate exchange budget must be > 0")
	}

	if len(c.FingerprintSalt) < 16 {
		return errors.New("FingerprintSalt must be >= 16 bytes")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
