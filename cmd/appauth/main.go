// Command appauth runs an OAuth 2.0 authorization-code flow against an
// OpenID provider from the terminal and prints the resulting tokens as JSON.
//
// Usage:
//
//	appauth authorize
//	appauth refresh [refresh-token]
//
// Configuration is read from APPAUTH_* environment variables and an optional
// .env file in the working directory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"

	appauth "github.com/giantswarm/mcp-appauth"
	"github.com/giantswarm/mcp-appauth/instrumentation"
	"github.com/giantswarm/mcp-appauth/interaction/loopback"
	"github.com/giantswarm/mcp-appauth/internal/config"
	"github.com/giantswarm/mcp-appauth/internal/logging"
)

var Version = "dev"

const usage = `usage: appauth <command> [arguments]

commands:
  authorize              run the authorization-code flow in the system browser
  refresh [token]        exchange a refresh token (default APPAUTH_REFRESH_TOKEN)
  version                print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if os.Args[1] == "version" {
		fmt.Println(Version)
		return
	}

	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	// Keep stdout for the JSON result.
	browser.Stdout = os.Stderr

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	surface := loopback.New(
		loopback.WithLogger(logger),
		loopback.WithBrowserOpen(func(url string) error {
			fmt.Fprintf(os.Stderr, "Opening browser for authorization. If it does not open, visit:\n\n  %s\n\n", url)
			return browser.OpenURL(url)
		}),
	)

	coordinator, err := appauth.New(surface, coordinatorConfig(cfg, logger))
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	defer func() {
		if err := coordinator.Close(context.Background()); err != nil {
			logger.Warn("Failed to close coordinator", "error", err)
		}
	}()

	var result *appauth.TokenResult
	switch command {
	case "authorize":
		result, err = coordinator.Authorize(ctx, appauth.AuthorizeParams{
			Issuer:                   cfg.Issuer,
			ClientID:                 cfg.ClientID,
			RedirectURL:              cfg.RedirectURL,
			Scopes:                   cfg.Scopes,
			AdditionalParameters:     cfg.AdditionalParameters,
			AllowInsecureConnections: cfg.AllowInsecure,
		})
	case "refresh":
		refreshToken := cfg.RefreshToken
		if len(args) > 0 {
			refreshToken = args[0]
		}
		if refreshToken == "" {
			return fmt.Errorf("refresh token required: pass it as an argument or set APPAUTH_REFRESH_TOKEN")
		}
		result, err = coordinator.Refresh(ctx, appauth.RefreshParams{
			Issuer:                   cfg.Issuer,
			ClientID:                 cfg.ClientID,
			RedirectURL:              cfg.RedirectURL,
			Scopes:                   cfg.Scopes,
			RefreshToken:             refreshToken,
			AdditionalParameters:     cfg.AdditionalParameters,
			AllowInsecureConnections: cfg.AllowInsecure,
		})
	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// coordinatorConfig maps the environment configuration onto the library's.
func coordinatorConfig(cfg *config.Config, logger *slog.Logger) *appauth.Config {
	overlap := appauth.OverlapSupersede
	if cfg.OverlapPolicy == "reject" {
		overlap = appauth.OverlapReject
	}

	return &appauth.Config{
		Logger:             logger,
		DiscoveryCacheTTL:  cfg.DiscoveryCacheTTL,
		OverlapPolicy:      overlap,
		VerifyIDToken:      cfg.VerifyIDToken,
		EnableAuditLogging: cfg.AuditLogging,
		RateLimit: appauth.RateLimitConfig{
			Rate:  cfg.RateLimit,
			Burst: cfg.RateLimitBurst,
		},
		Instrumentation: instrumentation.Config{
			ServiceName:    "appauth",
			ServiceVersion: Version,
		},
	}
}
