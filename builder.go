package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/scalebench/authcore/denylist"
	"github.com/scalebench/authcore/internal/rate"
	"github.com/scalebench/authcore/jwt"
	"github.com/scalebench/authcore/pkce"
)

// Builder assembles an Engine. The Redis client is injected and stays owned
// by the caller; Build validates the configuration and wires the denylist,
// token engine, PKCE exchanger, and rate limiter onto it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New returns a Builder pre-loaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis injects the Redis client shared by the denylist, limiters, and
// PKCE attempt store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider injects the caller's user database adapter.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink injects the destination for audit events. Audit must also be
// enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process metrics registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and constructs the Engine. A Builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deny := denylist.NewStore(b.redis, cfg.Denylist.Prefix)

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		EncryptionKey: cloneBytes(cfg.JWT.EncryptionKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	}, deny)
	if err != nil {
		return nil, err
	}

	exchanger, err := pkce.New(pkce.Config{
		ClientID:         cfg.Provider.ClientID,
		ClientSecret:     cfg.Provider.ClientSecret,
		RedirectURL:      cfg.Provider.RedirectURL,
		Scopes:           cfg.Provider.Scopes,
		AuthEndpoint:     cfg.Provider.AuthEndpoint,
		TokenEndpoint:    cfg.Provider.TokenEndpoint,
		UserInfoEndpoint: cfg.Provider.UserInfoEndpoint,
		AttemptTTL:       cfg.Provider.AttemptTTL,
		ProfileTTL:       cfg.Provider.ProfileCacheTTL,
		RequestTimeout:   cfg.Provider.RequestTimeout,
	}, b.redis)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:          cfg,
		exchanger:       exchanger,
		jwtManager:      jm,
		deny:            deny,
		userProvider:    b.userProvider,
		fingerprintSalt: cloneBytes(cfg.FingerprintSalt),
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		MaxAuthAttempts:     cfg.Rate.MaxAuthAttempts,
		AuthWindow:          cfg.Rate.AuthWindow,
		MaxRefreshAttempts:  cfg.Rate.MaxRefreshAttempts,
		RefreshWindow:       cfg.Rate.RefreshWindow,
		RefreshLockout:      cfg.Rate.RefreshLockout,
		MaxExchangeAttempts: cfg.Rate.MaxExchangeAttempts,
		ExchangeWindow:      cfg.Rate.ExchangeWindow,
	})
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
