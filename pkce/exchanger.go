package pkce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/scalebench/authcore/internal"
	"github.com/scalebench/authcore/internal/stores"
)

const minVerifierLen = 43

var (
	// ErrExchange wraps provider failures during the code-for-token exchange.
	ErrExchange = errors.New("token exchange failed")
	// ErrProfileFetch wraps provider failures during the profile lookup.
	ErrProfileFetch = errors.New("profile fetch failed")
	// ErrEmailUnverified rejects identities whose email the provider has not
	// verified. This is a hard authentication rejection, not a warning.
	ErrEmailUnverified = errors.New("provider email not verified")
	// ErrAttemptNotFound is returned for callbacks whose state matches no
	// live authorization attempt.
	ErrAttemptNotFound = errors.New("authorization attempt not found")
)

// Identity is the external identity-provider profile for one authentication
// attempt. It is ephemeral: cached briefly, never persisted.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// AuthURLResult carries a composed authorization URL and the state that
// identifies the attempt.
type AuthURLResult struct {
	URL   string
	State string
}

// Config holds identity-provider and exchange parameters. Endpoints default
// to Google's OAuth2 surface when left empty.
type Config struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	AuthEndpoint     string
	TokenEndpoint    string
	UserInfoEndpoint string
	Scopes           []string
	AttemptTTL       time.Duration
	ProfileTTL       time.Duration
	RequestTimeout   time.Duration
}

// Exchanger performs the PKCE authorization-code exchange. Safe for
// concurrent use; per-attempt state lives in the attempt store.
type Exchanger struct {
	oauth    *oauth2.Config
	attempts *stores.AttemptStore
	profiles *stores.ProfileCache
	client   *http.Client
	userInfo string
}

// New validates the provider configuration and returns an Exchanger backed
// by the given Redis client for attempt and profile storage.
func New(cfg Config, redisClient redis.UniversalClient) (*Exchanger, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("provider client id, secret, and redirect url are required")
	}
	if cfg.AuthEndpoint == "" {
		cfg.AuthEndpoint = "https://accounts.google.com/o/oauth2/v2/auth"
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = "https://oauth2.googleapis.com/token"
	}
	if cfg.UserInfoEndpoint == "" {
		cfg.UserInfoEndpoint = "https://openidconnect.googleapis.com/v1/userinfo"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = 10 * time.Minute
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = 5 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	return &Exchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthEndpoint,
				TokenURL: cfg.TokenEndpoint,
			},
		},
		attempts: stores.NewAttemptStore(redisClient, "pa", cfg.AttemptTTL),
		profiles: stores.NewProfileCache(redisClient, "pc", cfg.ProfileTTL),
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userInfo: cfg.UserInfoEndpoint,
	}, nil
}

// AuthURL composes the provider authorization URL for a fresh attempt:
// 256-bit state, fresh PKCE verifier, S256 challenge, offline access, and
// forced consent. The verifier is stored keyed by state before the URL is
// returned.
func (e *Exchanger) AuthURL(ctx context.Context) (AuthURLResult, error) {
	state, err := internal.NewState()
	if err != nil {
		return AuthURLResult{}, err
	}

	verifier := oauth2.GenerateVerifier()
	for len(verifier) < minVerifierLen {
		verifier = oauth2.GenerateVerifier()
	}

	if err := e.attempts.Put(ctx, state, verifier); err != nil {
		return AuthURLResult{}, err
	}

	url := e.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	return AuthURLResult{URL: url, State: state}, nil
}

// Exchange consumes the attempt identified by state, trades the
// authorization code plus verifier for provider tokens, and resolves the
// external identity. Unverified emails are rejected outright.
func (e *Exchanger) Exchange(ctx context.Context, code, state string) (*Identity, error) {
	verifier, err := e.attempts.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, stores.ErrAttemptNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(
		context.WithValue(ctx, oauth2.HTTPClient, e.client),
		e.client.Timeout,
	)
	defer cancel()

	token, err := e.oauth.Exchange(callCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	identity, err := e.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	if !identity.EmailVerified {
		return nil, ErrEmailUnverified
	}

	return identity, nil
}

func (e *Exchanger) fetchProfile(ctx context.Context, providerToken string) (*Identity, error) {
	if cached, err := e.profiles.Get(ctx, providerToken); err == nil && cached != nil {
		return &Identity{
			Subject:       cached.Subject,
			Email:         cached.Email,
			EmailVerified: cached.EmailVerified,
		}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, e.userInfo, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Redirects are terminal: CheckRedirect stops the chain, so a 3xx lands
	// here and fails the status check like any other non-200.
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", ErrProfileFetch, resp.StatusCode)
	}

	var body struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	if body.Subject == "" {
		return nil, fmt.Errorf("%w: profile missing subject", ErrProfileFetch)
	}

	// Cache write failures are not fatal; the next attempt re-fetches.
	_ = e.profiles.Put(ctx, providerToken, stores.CachedProfile{
		Subject:       body.Subject,
		Email:         body.Email,
		EmailVerified: body.EmailVerified,
	})

	return &Identity{
		Subject:       body.Subject,
		Email:         body.Email,
		EmailVerified: body.EmailVerified,
	}, nil
}
