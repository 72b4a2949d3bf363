package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"studytracker/internal/auth"
	"studytracker/internal/config"
)

// Limiter throttles failed logins and reset-code guesses per client IP.
type Limiter interface {
	IsIPBanned(ctx context.Context, ip string) bool
	RegisterLoginFailure(ctx context.Context, ip string) error
	ResetLogin(ctx context.Context, ip string)
	RegisterResetAttempt(ctx context.Context, ip string) (bool, time.Duration, error)
}

// AuditSink records security events and lists a user's recent ones.
type AuditSink interface {
	Log(ctx context.Context, e auth.AuditEvent) error
	Recent(ctx context.Context, userID string, limit int) ([]auth.AuditEvent, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	Config    config.Config
	Logger    *zap.Logger
	Tokens    *auth.TokenService
	Sessions  *auth.SessionService
	Resets    *auth.PasswordResetService
	Accounts  *auth.AccountService
	Resolver  *auth.OAuthResolver
	Providers map[auth.Provider]auth.IdentityProvider
	Limiter   Limiter
	Audit     AuditSink

	health         map[string]HealthCheck
	trustedProxies proxySet
}

type Option func(*Server)

func WithRateLimiter(l Limiter) Option {
	return func(s *Server) { s.Limiter = l }
}

func WithAuditLog(a AuditSink) Option {
	return func(s *Server) { s.Audit = a }
}

// WithIdentityProviders replaces the providers built from config.
func WithIdentityProviders(providers ...auth.IdentityProvider) Option {
	return func(s *Server) {
		s.Providers = make(map[auth.Provider]auth.IdentityProvider, len(providers))
		for _, p := range providers {
			s.Providers[p.Name()] = p
		}
	}
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.health[name] = check }
}

func NewServer(cfg config.Config, users auth.UserStore, otps auth.OTPStore, mailer auth.Mailer, hasher auth.PasswordHasher, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens := auth.NewTokenService(cfg.Tokens)

	s := &Server{
		Config:         cfg,
		Logger:         logger,
		Tokens:         tokens,
		Sessions:       auth.NewSessionService(users, hasher, tokens, logger.Named("session")),
		Resets:         auth.NewPasswordResetService(users, otps, hasher, mailer, cfg.OTP.TTL, logger.Named("reset")),
		Accounts:       auth.NewAccountService(users, hasher),
		Resolver:       auth.NewOAuthResolver(users, cfg.OAuth.RequireVerifiedEmail, logger.Named("oauth")),
		Providers:      map[auth.Provider]auth.IdentityProvider{},
		health:         map[string]HealthCheck{},
		trustedProxies: parseProxySet(cfg.TrustedProxies),
	}
	if cfg.OAuth.Google.Configured() {
		s.Providers[auth.ProviderGoogle] = auth.NewGoogleProvider(cfg.OAuth.Google)
	}
	if cfg.OAuth.GitHub.Configured() {
		s.Providers[auth.ProviderGitHub] = auth.NewGitHubProvider(cfg.OAuth.GitHub)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.Config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(secureHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/login", s.handleLogin)
		ar.Get("/refresh", s.handleRefresh)
		ar.Post("/logout", s.handleLogout)
		ar.Get("/google", s.handleOAuthCallback(auth.ProviderGoogle, false))
		ar.Get("/github", s.handleOAuthCallback(auth.ProviderGitHub, true))
	})

	r.Route("/user", func(ur chi.Router) {
		ur.Post("/sign-up", s.handleSignUp)
		ur.Post("/forgot-password", s.handleForgotPassword)
		ur.Put("/reset-password", s.handleResetPassword)

		ur.Group(func(pr chi.Router) {
			pr.Use(s.requireAccessToken)
			pr.Get("/", s.handleProfile)
			pr.Patch("/username", s.handleUpdateUsername)
			pr.Get("/activity", s.handleActivity)
			pr.Put("/set-new-password", s.handleSetNewPassword)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.health))
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			s.Logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}

// audit failures are logged and never reach the client.
func (s *Server) audit(r *http.Request, eventType, userID string, meta map[string]any) {
	if s.Audit == nil {
		return
	}
	e := auth.AuditEvent{
		EventType: eventType,
		UserID:    userID,
		IP:        s.trustedProxies.clientIP(r),
		UserAgent: r.UserAgent(),
		Meta:      meta,
	}
	if err := s.Audit.Log(r.Context(), e); err != nil {
		s.Logger.Warn("audit log failed", zap.String("event", eventType), zap.Error(err))
	}
}
