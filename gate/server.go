package gate

import (
	"context"
	"net/http"
	"time"

	"github.com/scalebench/authcore"
	"github.com/scalebench/authcore/benchmark"
	"github.com/scalebench/authcore/middleware"
)

const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/auth"
	deviceHeader      = "X-Device-ID"
)

// Config carries the dependencies and knobs of a Server.
type Config struct {
	Engine     *authcore.Engine
	Benchmarks *benchmark.Service

	// Production toggles the Secure attribute on the refresh cookie.
	Production bool

	// BurstPerSecond and BurstSize tune the in-process per-IP guard that
	// sits in front of the Redis budgets. Zero values disable it.
	BurstPerSecond float64
	BurstSize      int
}

// Server serves the auth routes over HTTP.
type Server struct {
	engine     *authcore.Engine
	benchmarks *benchmark.Service
	production bool
	burst      *burstGuard
	handler    http.Handler
}

// New wires the route table. The caller owns the Engine lifecycle.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, authcore.ErrEngineNotReady
	}
	s := &Server{
		engine:     cfg.Engine,
		benchmarks: cfg.Benchmarks,
		production: cfg.Production,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /auth/google", s.handleAuthURL)
	mux.HandleFunc("GET /auth/google/callback", s.handleCallback)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)

	guard := middleware.Guard(cfg.Engine)
	mux.Handle("POST /auth/logout", guard(http.HandlerFunc(s.handleLogout)))
	mux.Handle("GET /auth/profile", guard(http.HandlerFunc(s.handleProfile)))
	if cfg.Benchmarks != nil {
		mux.Handle("GET /benchmarks",
			guard(middleware.RequireRole(authcore.RoleAnalyst)(http.HandlerFunc(s.handleBenchmarks))))
	}

	var h http.Handler = mux
	if cfg.BurstPerSecond > 0 && cfg.BurstSize > 0 {
		s.burst = newBurstGuard(cfg.BurstPerSecond, cfg.BurstSize)
		h = s.burst.middleware(h)
	}
	s.handler = middleware.SecurityHeaders(h)
	return s, nil
}

// Handler returns the composed route tree.
func (s *Server) Handler() http.Handler { return s.handler }

// Close stops the burst guard's sweeper.
func (s *Server) Close() {
	if s.burst != nil {
		s.burst.close()
	}
}

// requestContext copies the client network identity into the context so the
// engine's budgets and audit trail see the same values the gate saw.
func requestContext(r *http.Request) context.Context {
	ctx := authcore.WithClientIP(r.Context(), clientIP(r))
	ctx = authcore.WithUserAgent(ctx, r.Header.Get("User-Agent"))
	return authcore.WithAcceptLanguage(ctx, r.Header.Get("Accept-Language"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	if err := s.engine.CheckAuthBudget(ctx); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engine.AuthURL(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": res.URL})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	if err := s.engine.CheckAuthBudget(ctx); err != nil {
		writeError(w, err)
		return
	}
	deviceID := r.Header.Get(deviceHeader)
	if deviceID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing "+deviceHeader)
		return
	}
	q := r.URL.Query()
	res, err := s.engine.Authenticate(ctx, q.Get("code"), q.Get("state"), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": res.AccessToken,
		"expiresAt":   res.AccessExpiresAt.Unix(),
		"user": map[string]string{
			"id":        res.UserID,
			"role":      string(res.Role),
			"companyId": res.CompanyID,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	deviceID := r.Header.Get(deviceHeader)
	if deviceID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing "+deviceHeader)
		return
	}
	res, err := s.engine.Refresh(ctx, cookie.Value, deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": res.AccessToken,
		"expiresAt":   res.AccessExpiresAt.Unix(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		s.clearRefreshCookie(w)
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
		return
	}
	if err := s.engine.Logout(ctx, cookie.Value); err != nil {
		writeError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        p.UserID,
		"role":      string(p.Role),
		"companyId": p.CompanyID,
		"expiresAt": p.ExpiresAt.Unix(),
	})
}

func (s *Server) handleBenchmarks(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	report, cached, err := s.benchmarks.Report(r.Context(), p.CompanyID)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "benchmarks unavailable")
		return
	}
	if m := s.engine.Metrics(); m != nil {
		if cached {
			m.Inc(authcore.MetricBenchmarkCacheHit)
		} else {
			m.Inc(authcore.MetricBenchmarkCacheMiss)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	})
}
