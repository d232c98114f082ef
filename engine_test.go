package authcore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeProvider struct {
	server        *httptest.Server
	tokenStatus   int
	emailVerified bool
	subject       string
	email         string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{
		tokenStatus:   http.StatusOK,
		emailVerified: true,
		subject:       "google-sub-1",
		email:         "founder@example.com",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code_verifier") == "" {
			http.Error(w, "missing code_verifier", http.StatusBadRequest)
			return
		}
		if p.tokenStatus != http.StatusOK {
			http.Error(w, "provider error", p.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-" + p.subject,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            p.subject,
			"email":          p.email,
			"email_verified": p.emailVerified,
		})
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

type fakeUsers struct {
	mu       sync.Mutex
	byID     map[string]UserRecord
	bySub    map[string]string
	nextRole Role
	fail     bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:     map[string]UserRecord{},
		bySub:    map[string]string{},
		nextRole: RoleUser,
	}
}

func (f *fakeUsers) GetOrCreateByIdentity(_ context.Context, identity Identity) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return UserRecord{}, errors.New("provider store down")
	}
	if id, ok := f.bySub[identity.Subject]; ok {
		return f.byID[id], nil
	}
	user := UserRecord{
		UserID:    "u-" + identity.Subject,
		Email:     identity.Email,
		Role:      f.nextRole,
		CompanyID: "c-1",
		Status:    AccountActive,
	}
	f.bySub[identity.Subject] = user.UserID
	f.byID[user.UserID] = user
	return user, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return UserRecord{}, errors.New("not found")
	}
	return user, nil
}

func (f *fakeUsers) setStatus(userID string, status AccountStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.byID[userID]
	user.Status = status
	f.byID[userID] = user
}

func testConfig(p *fakeProvider) Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdef-0")
	cfg.JWT.RefreshSecret = []byte("refreshsecret-0123456789abcdef-0")
	cfg.JWT.EncryptionKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.FingerprintSalt = []byte("salt-0123456789ab")
	cfg.Provider.ClientID = "client-id"
	cfg.Provider.ClientSecret = "client-secret"
	cfg.Provider.RedirectURL = "https://app.example.com/auth/google/callback"
	cfg.Provider.AuthEndpoint = p.server.URL + "/auth"
	cfg.Provider.TokenEndpoint = p.server.URL + "/token"
	cfg.Provider.UserInfoEndpoint = p.server.URL + "/userinfo"
	return cfg
}

type engineHarness struct {
	engine *Engine
	users  *fakeUsers
	mr     *miniredis.Miniredis
}

func newTestEngine(t *testing.T, p *fakeProvider, mutate func(*Config)) *engineHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(p)
	if mutate != nil {
		mutate(&cfg)
	}

	users := newFakeUsers()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineHarness{engine: engine, users: users, mr: mr}
}

func (h *engineHarness) authenticate(t *testing.T, ctx context.Context, deviceID string) *AuthResult {
	t.Helper()
	urlResult, err := h.engine.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	result, err := h.engine.Authenticate(ctx, "auth-code", urlResult.State, deviceID)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return result
}

func TestBuilderValidation(t *testing.T) {
	p := newFakeProvider(t)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig(p)

	if _, err := New().WithConfig(cfg).WithUserProvider(newFakeUsers()).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without user provider")
	}

	short := cfg
	short.JWT.AccessSecret = []byte("too short")
	if _, err := New().WithConfig(short).WithRedis(rdb).WithUserProvider(newFakeUsers()).Build(); err == nil {
		t.Fatal("expected error for short access secret")
	}

	noSalt := cfg
	noSalt.FingerprintSalt = nil
	if _, err := New().WithConfig(noSalt).WithRedis(rdb).WithUserProvider(newFakeUsers()).Build(); err == nil {
		t.Fatal("expected error for missing fingerprint salt")
	}

	b := New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(newFakeUsers())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error reusing builder")
	}
}

func TestAuthenticateHappyPath(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := WithClientIP(context.Background(), "203.0.113.10")

	result := h.authenticate(t, ctx, "device-1")

	if result.UserID != "u-google-sub-1" {
		t.Fatalf("unexpected user id %q", result.UserID)
	}
	if result.Role != RoleUser {
		t.Fatalf("first sign-in must map to the lowest role, got %q", result.Role)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if !result.AccessExpiresAt.After(time.Now()) {
		t.Fatal("access expiry must be in the future")
	}

	principal, err := h.engine.ValidateAccess(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if principal.UserID != result.UserID || principal.Role != RoleUser || principal.CompanyID != "c-1" {
		t.Fatalf("unexpected principal: %+v", principal)
	}

	if got := h.engine.Metrics().Value(MetricAuthSuccess); got != 1 {
		t.Fatalf("auth success metric = %d", got)
	}
}

func TestAuthenticateMissingInput(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	for _, tc := range []struct{ code, state, device string }{
		{"", "state", "device"},
		{"code", "", "device"},
		{"code", "state", ""},
	} {
		if _, err := h.engine.Authenticate(ctx, tc.code, tc.state, tc.device); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	}
}

func TestAuthenticateUnknownState(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)

	if _, err := h.engine.Authenticate(context.Background(), "code", "never-issued", "device-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown state, got %v", err)
	}
}

func TestAuthenticateStateSingleUse(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	urlResult, err := h.engine.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "auth-code", urlResult.State, "device-1"); err != nil {
		t.Fatalf("first authenticate: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "auth-code", urlResult.State, "device-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("replayed state: expected ErrValidation, got %v", err)
	}
}

func TestAuthenticateUnverifiedEmail(t *testing.T) {
	p := newFakeProvider(t)
	p.emailVerified = false
	h := newTestEngine(t, p, nil)
	ctx := context.Background()

	urlResult, err := h.engine.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "auth-code", urlResult.State, "device-1"); !errors.Is(err, ErrUnverifiedEmail) {
		t.Fatalf("expected ErrUnverifiedEmail, got %v", err)
	}
	if got := h.engine.Metrics().Value(MetricUnverifiedEmailRejected); got != 1 {
		t.Fatalf("unverified email metric = %d", got)
	}
}

func TestAuthenticateProviderFailure(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenStatus = http.StatusBadGateway
	h := newTestEngine(t, p, nil)
	ctx := context.Background()

	urlResult, err := h.engine.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "auth-code", urlResult.State, "device-1"); !errors.Is(err, ErrTokenExchange) {
		t.Fatalf("expected ErrTokenExchange, got %v", err)
	}
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	first := h.authenticate(t, ctx, "device-1")
	h.users.setStatus(first.UserID, AccountDisabled)

	urlResult, err := h.engine.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "auth-code", urlResult.State, "device-1"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestAuthenticateExchangeRateLimited(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), func(cfg *Config) {
		cfg.Rate.MaxExchangeAttempts = 2
		cfg.Rate.ExchangeWindow = time.Minute
	})
	ctx := WithClientIP(context.Background(), "203.0.113.99")

	h.authenticate(t, ctx, "device-1")
	h.authenticate(t, ctx, "device-1")

	urlResult, err := h.engine.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "auth-code", urlResult.State, "device-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// A different IP keeps its own budget.
	otherCtx := WithClientIP(context.Background(), "203.0.113.100")
	h.authenticate(t, otherCtx, "device-2")
}

func TestRefreshRotation(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := WithClientIP(context.Background(), "203.0.113.10")

	first := h.authenticate(t, ctx, "device-1")

	rotated, err := h.engine.Refresh(ctx, first.RefreshToken, "device-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == first.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}
	if rotated.AccessToken == first.AccessToken {
		t.Fatal("refresh must issue a fresh access token")
	}

	// The superseded token is on the ledger.
	if _, err := h.engine.Refresh(ctx, first.RefreshToken, "device-1"); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replayed refresh token: expected ErrTokenRevoked, got %v", err)
	}

	// The replacement still works.
	if _, err := h.engine.Refresh(ctx, rotated.RefreshToken, "device-1"); err != nil {
		t.Fatalf("second rotation: %v", err)
	}
}

func TestRefreshDeviceMismatch(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	result := h.authenticate(t, ctx, "device-1")

	if _, err := h.engine.Refresh(ctx, result.RefreshToken, "device-2"); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("expected ErrDeviceMismatch, got %v", err)
	}
	if got := h.engine.Metrics().Value(MetricDeviceMismatch); got != 1 {
		t.Fatalf("device mismatch metric = %d", got)
	}

	// The token itself stays valid on the right device.
	if _, err := h.engine.Refresh(ctx, result.RefreshToken, "device-1"); err != nil {
		t.Fatalf("refresh on bound device: %v", err)
	}
}

func TestRefreshMissingInput(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	if _, err := h.engine.Refresh(ctx, "", "device-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, "some-token", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)

	if _, err := h.engine.Refresh(context.Background(), "not.a.jwt", "device-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshAccessTokenRejected(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	result := h.authenticate(t, ctx, "device-1")

	if _, err := h.engine.Refresh(ctx, result.AccessToken, "device-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token in refresh slot: expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshRateLimitLockout(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), func(cfg *Config) {
		cfg.Rate.MaxRefreshAttempts = 1
		cfg.Rate.RefreshWindow = time.Minute
		cfg.Rate.RefreshLockout = time.Hour
	})
	ctx := WithClientIP(context.Background(), "198.51.100.7")

	// Failed attempts burn budget; success would have reset it.
	if _, err := h.engine.Refresh(ctx, "not.a.jwt", "device-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, "not.a.jwt", "device-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// The lockout key outlives the counting window.
	h.mr.FastForward(2 * time.Minute)
	if _, err := h.engine.Refresh(ctx, "not.a.jwt", "device-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected lockout to persist, got %v", err)
	}
	h.mr.FastForward(time.Hour)
	if _, err := h.engine.Refresh(ctx, "not.a.jwt", "device-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected lockout to expire, got %v", err)
	}
}

func TestRefreshDisabledAccount(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	result := h.authenticate(t, ctx, "device-1")
	h.users.setStatus(result.UserID, AccountDisabled)

	if _, err := h.engine.Refresh(ctx, result.RefreshToken, "device-1"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLogoutRevokes(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	result := h.authenticate(t, ctx, "device-1")

	if err := h.engine.Logout(ctx, result.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, result.RefreshToken, "device-1"); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
	}

	// Access tokens are not recalled by logout.
	if _, err := h.engine.ValidateAccess(ctx, result.AccessToken); err != nil {
		t.Fatalf("access token must outlive logout: %v", err)
	}
}

func TestLogoutAlreadyExpired(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), func(cfg *Config) {
		cfg.JWT.RefreshTTL = time.Nanosecond
	})
	ctx := context.Background()

	result := h.authenticate(t, ctx, "device-1")
	time.Sleep(5 * time.Millisecond)

	if err := h.engine.Logout(ctx, result.RefreshToken); !errors.Is(err, ErrTokenAlreadyExpired) {
		t.Fatalf("expected ErrTokenAlreadyExpired, got %v", err)
	}
}

func TestValidateAccessTampered(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), nil)
	ctx := context.Background()

	result := h.authenticate(t, ctx, "device-1")

	parts := strings.Split(result.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := h.engine.ValidateAccess(ctx, tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	// Access and refresh envelopes are signed with distinct secrets, so a
	// refresh token in the access slot fails the signature check before its
	// kind claim is ever read.
	if _, err := h.engine.ValidateAccess(ctx, result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token in access slot: expected ErrTokenInvalid, got %v", err)
	}

	if _, err := h.engine.ValidateAccess(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty token, got %v", err)
	}
}

func TestAuthBudget(t *testing.T) {
	h := newTestEngine(t, newFakeProvider(t), func(cfg *Config) {
		cfg.Rate.MaxAuthAttempts = 3
		cfg.Rate.AuthWindow = time.Hour
	})
	ctx := WithClientIP(context.Background(), "192.0.2.5")

	for i := 0; i < 3; i++ {
		if err := h.engine.CheckAuthBudget(ctx); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := h.engine.CheckAuthBudget(ctx); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	h.mr.FastForward(2 * time.Hour)
	if err := h.engine.CheckAuthBudget(ctx); err != nil {
		t.Fatalf("window expiry: %v", err)
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	p := newFakeProvider(t)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig(p)
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false

	sink := NewChannelSink(64)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(newFakeUsers()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.10")
	ctx = WithUserAgent(ctx, "test-agent/1.0")

	urlResult, err := engine.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	if _, err := engine.Authenticate(ctx, "auth-code", urlResult.State, "device-1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	engine.Close()

	var types []string
	for len(sink.Events()) > 0 {
		ev := <-sink.Events()
		types = append(types, ev.EventType)
		if ev.IP != "203.0.113.10" {
			t.Fatalf("event %s missing client ip", ev.EventType)
		}
	}

	want := map[string]bool{}
	for _, typ := range types {
		want[typ] = true
	}
	if !want["auth_url_issued"] || !want["auth_success"] {
		t.Fatalf("missing expected audit events, got %v", types)
	}
}

func TestAuditDroppedCounter(t *testing.T) {
	release := make(chan struct{})
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, blockingSink{release: release})

	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}

	close(release)
	d.Close()
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, AuditEvent) {
	<-s.release
}

func TestRoleHierarchy(t *testing.T) {
	cases := []struct {
		role      Role
		required  Role
		satisfied bool
	}{
		{RoleUser, RoleUser, true},
		{RoleUser, RoleAnalyst, false},
		{RoleUser, RoleAdmin, false},
		{RoleAnalyst, RoleUser, true},
		{RoleAnalyst, RoleAnalyst, true},
		{RoleAnalyst, RoleAdmin, false},
		{RoleAdmin, RoleUser, true},
		{RoleAdmin, RoleAnalyst, true},
		{RoleAdmin, RoleAdmin, true},
		{Role("INTERN"), RoleUser, false},
		{RoleAdmin, Role("INTERN"), false},
	}

	for _, tc := range cases {
		if got := tc.role.Satisfies(tc.required); got != tc.satisfied {
			t.Errorf("%s satisfies %s = %v, want %v", tc.role, tc.required, got, tc.satisfied)
		}
	}
}
