package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/al-bashkir/supabase-auth-web/internal/config"
	"github.com/al-bashkir/supabase-auth-web/internal/daemon"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 3
)

var rootCmd = &cobra.Command{
	Use:   "supabase-auth-web",
	Short: "Login site backed by Supabase Auth",
	Long: `A small web server with a login page (Google, GitHub and emailed
one-time codes), a landing page for signed-in users, and a route guard
that keeps signed-out visitors on the login page.

All credential handling is delegated to a hosted Supabase Auth project.
Configuration comes from an optional YAML file and SITE_URL,
SUPABASE_URL, SUPABASE_ANON_KEY and related environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	Long: `Start the web server.

The server:
  - Renders the login and landing pages
  - Refreshes the Supabase session cookie on every guarded request
  - Completes OAuth and email-link sign-ins at /api/auth/callback
  - Tracks one-time-code requests and their resend cooldown`,
	RunE: runServe,
}

// overrideExitCode is set by subcommands (check-config) so main() can
// call os.Exit() after cobra finishes.  This avoids calling os.Exit() inside
// RunE which would bypass deferred functions.  -1 means "use default".
var overrideExitCode = -1

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration",
	Long: `Load and validate the configuration without starting the server.

Checks for:
  - Valid YAML syntax
  - Required fields present (from the file or the environment)
  - Valid URLs
  - Logical consistency

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

func init() {
	// Global flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file (optional; environment variables take precedence)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// runServe starts the server
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override log settings from flags if provided
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	config.SetupLogging(&cfg.Log)

	slog.Info("starting supabase-auth-web",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
		"config", configFile,
	)

	d, err := daemon.New(cfg, version)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run()
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("supabase-auth-web version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", getGoVersion())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	source := configFile
	if source == "" {
		source = "(environment only)"
	}
	fmt.Printf("Checking configuration: %s\n\n", source)

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	redacted := cfg.Redact()

	fmt.Println("✅ Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  Site URL:        %s\n", redacted.Site.URL)
	fmt.Printf("  Callback URL:    %s\n", redacted.RedirectURL())
	fmt.Printf("  Trust Proxy:     %v\n", redacted.Site.TrustProxy)
	fmt.Printf("  Supabase URL:    %s\n", redacted.Supabase.URL)
	fmt.Printf("  Anon Key:        %s\n", redacted.Supabase.AnonKey)
	fmt.Printf("  Verify JWT:      %v\n", redacted.Supabase.VerifyJWTLocally)
	fmt.Printf("  HTTP Listen:     %s\n", redacted.Listen.HTTP)
	fmt.Printf("  OTP Cooldown:    %d seconds\n", redacted.Auth.OTPCooldown)
	fmt.Printf("  Flow TTL:        %d seconds\n", redacted.Auth.FlowTTL)
	fmt.Printf("  Rate Limit:      %.1f rps (burst %d)\n", redacted.RateLimit.RPS, redacted.RateLimit.Burst)
	fmt.Printf("  Log Level:       %s\n", redacted.Log.Level)
	fmt.Printf("  Log Format:      %s\n", redacted.Log.Format)
	fmt.Printf("  TLS Enabled:     %v\n", redacted.TLS.Enabled)

	if !redacted.SecureCookies() {
		fmt.Println("\n  ⚠️  Cookies are not marked Secure (site is not served over HTTPS)")
	}

	fmt.Println("\n✅ Ready to start server")

	return nil
}

// getGoVersion returns the Go version used to build the binary
func getGoVersion() string {
	return runtime.Version()
}
