// Package config loads the appauth command's configuration from the
// environment and an optional .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the appauth command.
type Config struct {
	// Provider and client registration
	Issuer      string   `env:"APPAUTH_ISSUER"`
	ClientID    string   `env:"APPAUTH_CLIENT_ID"`
	RedirectURL string   `env:"APPAUTH_REDIRECT_URL" envDefault:"http://127.0.0.1:8085/callback"`
	Scopes      []string `env:"APPAUTH_SCOPES" envSeparator:"," envDefault:"openid,profile,email,offline_access"`

	// Extra authorization/token request parameters.
	// Format: "key1:value1,key2:value2"
	AdditionalParameters map[string]string `env:"APPAUTH_ADDITIONAL_PARAMETERS"`

	// Refresh token used by the refresh command when none is passed as an argument.
	RefreshToken string `env:"APPAUTH_REFRESH_TOKEN"`

	// AllowInsecure disables certificate verification and allows plain http.
	// Only for local development providers.
	AllowInsecure bool `env:"APPAUTH_ALLOW_INSECURE" envDefault:"false"`

	// Coordinator behavior
	OverlapPolicy     string        `env:"APPAUTH_OVERLAP_POLICY" envDefault:"supersede"`
	DiscoveryCacheTTL time.Duration `env:"APPAUTH_DISCOVERY_CACHE_TTL" envDefault:"0s"`
	VerifyIDToken     bool          `env:"APPAUTH_VERIFY_ID_TOKEN" envDefault:"true"`
	AuditLogging      bool          `env:"APPAUTH_AUDIT_LOGGING" envDefault:"false"`
	RateLimit         float64       `env:"APPAUTH_RATE_LIMIT" envDefault:"0"`
	RateLimitBurst    int           `env:"APPAUTH_RATE_LIMIT_BURST" envDefault:"0"`

	// Timeout bounds a whole command, including the time spent in the browser.
	Timeout time.Duration `env:"APPAUTH_TIMEOUT" envDefault:"5m"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"APPAUTH_LOG_LEVEL" envDefault:"info"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. It may hold a refresh token.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Issuer = strings.TrimRight(strings.TrimSpace(cfg.Issuer), "/")
	cfg.Scopes = trimScopes(cfg.Scopes)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("APPAUTH_ISSUER is required")
	}

	if c.ClientID == "" {
		return fmt.Errorf("APPAUTH_CLIENT_ID is required")
	}

	if c.RedirectURL == "" {
		return fmt.Errorf("APPAUTH_REDIRECT_URL must not be empty")
	}

	switch c.OverlapPolicy {
	case "supersede", "reject":
	default:
		return fmt.Errorf("APPAUTH_OVERLAP_POLICY must be supersede or reject, got %q", c.OverlapPolicy)
	}

	if c.DiscoveryCacheTTL < 0 {
		return fmt.Errorf("APPAUTH_DISCOVERY_CACHE_TTL must not be negative")
	}

	if c.RateLimit < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("APPAUTH_RATE_LIMIT and APPAUTH_RATE_LIMIT_BURST must not be negative")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("APPAUTH_TIMEOUT must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// trimScopes drops blanks left by stray separators.
func trimScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
