// Package envconfig loads and validates service configuration from the
// environment and an optional .env file using Viper.
package envconfig

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/scalebench/authcore"
)

// Config holds the deployable settings of the auth service loaded from the
// environment. Token secrets stay as strings here; EngineConfig converts
// them into the byte form the engine expects.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment ("development", "production").
	// Production enables the Secure attribute on the refresh cookie.
	Env string `mapstructure:"APP_ENV"`

	// RedisAddr is the Redis host:port backing budgets, denylist and caches.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is optional.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB selects the logical database.
	RedisDB int `mapstructure:"REDIS_DB"`

	// GoogleClientID and GoogleClientSecret identify the OAuth client.
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	// GoogleRedirectURL is the registered callback. Must be HTTPS outside
	// development.
	GoogleRedirectURL string `mapstructure:"GOOGLE_REDIRECT_URL"`

	// AccessSecret and RefreshSecret sign the two token kinds. Each must be
	// at least 32 bytes.
	AccessSecret  string `mapstructure:"JWT_ACCESS_SECRET"`
	RefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// EncryptionKey encrypts refresh payloads. Exactly 32 bytes.
	EncryptionKey string `mapstructure:"REFRESH_ENCRYPTION_KEY"`
	// FingerprintSalt salts device fingerprint digests. At least 16 bytes.
	FingerprintSalt string `mapstructure:"FINGERPRINT_SALT"`

	// JWTIssuer and JWTAudience are the iss and aud claims.
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	// AuditEnabled turns the async audit dispatcher on.
	AuditEnabled bool `mapstructure:"AUDIT_ENABLED"`
	// MetricsEnabled turns the counter set on.
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	// BurstPerSecond and BurstSize tune the in-process per-IP guard.
	BurstPerSecond float64 `mapstructure:"BURST_PER_SECOND"`
	BurstSize      int     `mapstructure:"BURST_SIZE"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URL", "")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("REFRESH_ENCRYPTION_KEY", "")
	v.SetDefault("FINGERPRINT_SALT", "")
	v.SetDefault("JWT_ISSUER", "scalebench")
	v.SetDefault("JWT_AUDIENCE", "scalebench-api")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "720h")
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("BURST_PER_SECOND", 20.0)
	v.SetDefault("BURST_SIZE", 40)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("config: REDIS_ADDR must be set")
	}
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil, errors.New("config: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}
	if cfg.GoogleRedirectURL == "" {
		return nil, errors.New("config: GOOGLE_REDIRECT_URL must be set")
	}
	if cfg.Production() && !strings.HasPrefix(cfg.GoogleRedirectURL, "https://") {
		return nil, errors.New("config: GOOGLE_REDIRECT_URL must use https in production")
	}
	if len(cfg.AccessSecret) < 32 {
		return nil, errors.New("config: JWT_ACCESS_SECRET must be at least 32 bytes")
	}
	if len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("config: JWT_REFRESH_SECRET must be at least 32 bytes")
	}
	if len(cfg.EncryptionKey) != 32 {
		return nil, errors.New("config: REFRESH_ENCRYPTION_KEY must be exactly 32 bytes")
	}
	if len(cfg.FingerprintSalt) < 16 {
		return nil, errors.New("config: FINGERPRINT_SALT must be at least 16 bytes")
	}

	return &cfg, nil
}

// Production reports whether APP_ENV selects the production profile.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// EngineConfig projects the environment settings onto the engine's
// configuration, starting from its defaults.
func (c *Config) EngineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessTTL = c.AccessTTL()
	cfg.JWT.RefreshTTL = c.RefreshTTL()
	cfg.JWT.AccessSecret = []byte(c.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshSecret)
	cfg.JWT.EncryptionKey = []byte(c.EncryptionKey)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.FingerprintSalt = []byte(c.FingerprintSalt)
	cfg.Provider.ClientID = c.GoogleClientID
	cfg.Provider.ClientSecret = c.GoogleClientSecret
	cfg.Provider.RedirectURL = c.GoogleRedirectURL
	cfg.Audit.Enabled = c.AuditEnabled
	return cfg
}
