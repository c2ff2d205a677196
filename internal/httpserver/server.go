package httpserver

import (
	"context"
	"crypto/tls"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/al-bashkir/supabase-auth-web/internal/config"
	"github.com/al-bashkir/supabase-auth-web/internal/loginflow"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Server serves the login and landing pages behind the route guard.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler
	templates  *template.Template
	auth       AuthFactory
	flows      *loginflow.Manager
	nav        Navigator
	limiter    *IPRateLimiter
	version    string
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, auth AuthFactory, flows *loginflow.Manager, version string) (*Server, error) {
	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	if version == "" {
		version = "dev"
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		templates: templates,
		auth:      auth,
		flows:     flows,
		limiter:   newIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst),
		version:   version,
	}
	s.nav = redirectNavigator{s: s}

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	// Register routes
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /login", s.handleLogin)
	s.mux.HandleFunc("POST /login/oauth/{provider}", s.handleOAuthLogin)
	s.mux.HandleFunc("POST /login/otp", s.handleSendOTP)
	s.mux.HandleFunc("POST /login/verify", s.handleVerifyOTP)
	s.mux.HandleFunc("POST /signout", s.handleSignOut)
	s.mux.HandleFunc("GET "+config.CallbackPath, s.handleCallback)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	// Wrap with middleware
	handler := s.guard(s.mux)
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = s.rateLimitMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:         cfg.Listen.HTTP,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.TLS.Enabled {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	return s, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting HTTP server",
		"addr", s.cfg.Listen.HTTP,
		"tls", s.cfg.TLS.Enabled,
		"site_url", s.cfg.Site.URL,
	)

	if s.cfg.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	defer s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
