// Package daemon wires the auth client, login flows and HTTP server together
// and runs them until a shutdown signal arrives.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/al-bashkir/supabase-auth-web/internal/config"
	"github.com/al-bashkir/supabase-auth-web/internal/httpserver"
	"github.com/al-bashkir/supabase-auth-web/internal/loginflow"
	"github.com/al-bashkir/supabase-auth-web/internal/supabase"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

// Daemon represents the main process that coordinates all components.
type Daemon struct {
	cfg        *config.Config
	auth       *supabase.Client
	flows      *loginflow.Manager
	httpServer *httpserver.Server
}

// New creates a new daemon with all components initialized.
func New(cfg *config.Config, version string) (*Daemon, error) {
	auth, err := supabase.NewClient(&cfg.Supabase, supabase.Options{
		SecureCookies: cfg.SecureCookies(),
		RefreshMargin: time.Duration(cfg.Auth.RefreshMargin) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth client: %w", err)
	}

	slog.Info("auth client initialized",
		"supabase_url", cfg.Supabase.URL,
		"cookie", auth.CookieName(),
		"verify_jwt_locally", cfg.Supabase.VerifyJWTLocally,
	)

	// An unreachable backend is not fatal; it may come up after us.
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Supabase.Timeout)*time.Second)
	defer cancel()
	if err := auth.Health(ctx); err != nil {
		slog.Warn("auth backend health check failed", "error", err)
	}

	flows := loginflow.NewManager(cfg.Auth.FlowTTLDuration(), cfg.Auth.OTPCooldownDuration(), nil)

	slog.Info("login flow manager initialized",
		"otp_cooldown", cfg.Auth.OTPCooldownDuration(),
		"flow_ttl", cfg.Auth.FlowTTLDuration(),
	)

	httpServer, err := httpserver.NewServer(cfg, httpserver.SupabaseAuth(auth), flows, version)
	if err != nil {
		flows.Stop()
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	slog.Info("HTTP server initialized",
		"listen", cfg.Listen.HTTP,
		"tls", cfg.TLS.Enabled,
		"callback", cfg.RedirectURL(),
	)

	return &Daemon{
		cfg:        cfg,
		auth:       auth,
		flows:      flows,
		httpServer: httpServer,
	}, nil
}

// Run starts all components and blocks until SIGINT or SIGTERM.
func (d *Daemon) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.run(ctx)
}

// run serves until ctx is done or the HTTP server fails.
func (d *Daemon) run(ctx context.Context) error {
	slog.Info("starting supabase auth web server")

	httpErrCh := make(chan error, 1)
	go func() {
		if err := d.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
		close(httpErrCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			slog.Error("HTTP server failed to start", "error", err)
			d.flows.Stop()
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error stopping HTTP server", "error", err)
	}

	d.flows.Stop()

	slog.Info("shutdown complete")
	return nil
}
