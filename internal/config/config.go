package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// CallbackPath is the path of the auth callback endpoint, relative to the site URL.
const CallbackPath = "/api/auth/callback"

// Config represents the complete application configuration
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Site      SiteConfig      `yaml:"site"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	TLS       TLSConfig       `yaml:"tls"`
	Log       LogConfig       `yaml:"log"`
}

// ListenConfig defines where the server listens for requests
type ListenConfig struct {
	HTTP string `yaml:"http" env:"LISTEN_HTTP"` // HTTP server address (e.g., ":3000")
}

// SiteConfig describes the public face of the site
type SiteConfig struct {
	URL        string `yaml:"url" env:"SITE_URL"`                  // Public base URL (e.g., "https://app.example.com")
	TrustProxy bool   `yaml:"trust_proxy" env:"SITE_TRUST_PROXY"` // Honor X-Forwarded-Proto/Host when building redirects
}

// SupabaseConfig defines how to reach the hosted auth backend
type SupabaseConfig struct {
	URL              string `yaml:"url" env:"SUPABASE_URL"`                                 // Project URL (e.g., "https://abc.supabase.co")
	AnonKey          string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`                       // Public anon API key
	Timeout          int    `yaml:"timeout" env:"SUPABASE_TIMEOUT"`                         // Request timeout in seconds
	VerifyJWTLocally bool   `yaml:"verify_jwt_locally" env:"SUPABASE_VERIFY_JWT_LOCALLY"` // Verify access tokens against the project JWKS instead of calling /user
}

// AuthConfig defines login flow behavior
type AuthConfig struct {
	OTPCooldown   int `yaml:"otp_cooldown" env:"AUTH_OTP_COOLDOWN"` // Seconds before another code may be requested
	FlowTTL       int `yaml:"flow_ttl" env:"AUTH_FLOW_TTL"`         // Idle lifetime of a login flow in seconds
	RefreshMargin int `yaml:"refresh_margin"`                       // Refresh access tokens this many seconds before expiry
}

// RateLimitConfig defines per-IP request limits
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TLSConfig defines TLS settings for the HTTP server
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json, text
}

// Load reads and parses the configuration file.
// An empty path skips the file and uses defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			HTTP: ":3000",
		},
		Supabase: SupabaseConfig{
			Timeout: 10,
		},
		Auth: AuthConfig{
			OTPCooldown:   30,
			FlowTTL:       900, // 15 minutes
			RefreshMargin: 60,
		},
		RateLimit: RateLimitConfig{
			RPS:   10,
			Burst: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
// Fields without a matching variable keep their file or default value.
func (c *Config) applyEnvOverrides() error {
	return env.Parse(c)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Site.URL == "" {
		return fmt.Errorf("site.url is required")
	}
	if err := validateHTTPURL(c.Site.URL); err != nil {
		return fmt.Errorf("site.url must be a valid HTTP(S) URL")
	}

	if c.Supabase.URL == "" {
		return fmt.Errorf("supabase.url is required")
	}
	if err := validateHTTPURL(c.Supabase.URL); err != nil {
		return fmt.Errorf("supabase.url must be a valid HTTP(S) URL")
	}
	if c.Supabase.AnonKey == "" {
		return fmt.Errorf("supabase.anon_key is required")
	}
	if c.Supabase.Timeout <= 0 {
		return fmt.Errorf("supabase.timeout must be positive")
	}

	if c.Auth.OTPCooldown <= 0 {
		return fmt.Errorf("auth.otp_cooldown must be positive")
	}
	if c.Auth.FlowTTL < c.Auth.OTPCooldown {
		return fmt.Errorf("auth.flow_ttl must not be shorter than auth.otp_cooldown")
	}
	if c.Auth.RefreshMargin < 0 {
		return fmt.Errorf("auth.refresh_margin must not be negative")
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be positive")
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}

		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("tls.cert_file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("tls.key_file not found: %w", err)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	if c.Listen.HTTP == "" {
		return fmt.Errorf("listen.http is required")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return fmt.Errorf("unsupported scheme")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// RedirectURL returns the callback destination used for OAuth and OTP email links.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.Site.URL, "/") + CallbackPath
}

// SecureCookies reports whether cookies should carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return c.TLS.Enabled || strings.HasPrefix(c.Site.URL, "https://")
}

// OTPCooldownDuration returns the OTP resend cooldown.
func (c *AuthConfig) OTPCooldownDuration() time.Duration {
	return time.Duration(c.OTPCooldown) * time.Second
}

// FlowTTLDuration returns the idle lifetime of a login flow.
func (c *AuthConfig) FlowTTLDuration() time.Duration {
	return time.Duration(c.FlowTTL) * time.Second
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Redact returns a copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	if redacted.Supabase.AnonKey != "" {
		redacted.Supabase.AnonKey = "[REDACTED]"
	}
	return &redacted
}
