package appauth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-appauth/instrumentation"
)

// OverlapPolicy decides what happens when Authorize is called while another
// authorization is awaiting its outcome.
type OverlapPolicy int

const (
	// OverlapSupersede replaces the pending authorization. The earlier caller
	// fails with AuthenticationFailed wrapping ErrSuperseded, and outcomes
	// carrying its state are discarded.
	OverlapSupersede OverlapPolicy = iota

	// OverlapReject fails the new call with AuthenticationFailed wrapping
	// ErrAuthorizationInProgress and leaves the pending authorization alone.
	OverlapReject
)

// String returns the policy name
func (p OverlapPolicy) String() string {
	switch p {
	case OverlapSupersede:
		return "supersede"
	case OverlapReject:
		return "reject"
	default:
		return fmt.Sprintf("overlap(%d)", int(p))
	}
}

// Config holds the coordinator configuration. The zero value is usable.
type Config struct {
	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is the base client for discovery, token and JWKS requests.
	// The connection policy of each call derives its own client from it and
	// never modifies it. If not provided, a client with a 30 second timeout
	// is used.
	HTTPClient *http.Client

	// DiscoveryCacheTTL enables caching of discovery documents per issuer
	// and connection policy. Documents fetched under the insecure policy are
	// never served to strict calls.
	// Default: 0 (every operation refetches the document)
	DiscoveryCacheTTL time.Duration

	// OverlapPolicy applies to overlapping Authorize calls.
	// Default: OverlapSupersede
	OverlapPolicy OverlapPolicy

	// RateLimit throttles operations per issuer host
	RateLimit RateLimitConfig

	// VerifyIDToken verifies the signature and claims of returned ID tokens
	// against the issuer's jwks_uri. Authorization ID tokens must also carry
	// the request's nonce. A failed verification fails the exchange.
	VerifyIDToken bool

	// EnableAuditLogging enables security audit logging.
	// Client IDs are hashed; tokens and codes are never logged.
	EnableAuditLogging bool

	// Instrumentation configures OpenTelemetry metrics and tracing.
	// Disabled by default.
	Instrumentation instrumentation.Config

	// Clock returns the current time. It stamps token expiry.
	// Default: time.Now
	Clock func() time.Time
}

// RateLimitConfig holds outbound rate limiting configuration
type RateLimitConfig struct {
	// Rate is operations per second allowed per issuer host. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size per issuer host.
	// Default: the rate rounded up, at least 1
	Burst int

	// MaxEntries bounds the number of issuer hosts tracked.
	// Default: security.DefaultThrottleMaxEntries
	MaxEntries int
}

// applySecureDefaults fills unset values and logs warnings for
// questionable settings
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	if config.Clock == nil {
		config.Clock = time.Now
	}

	if config.DiscoveryCacheTTL < 0 {
		logger.Warn("Ignoring negative discovery cache TTL",
			"ttl", config.DiscoveryCacheTTL)
		config.DiscoveryCacheTTL = 0
	}

	switch config.OverlapPolicy {
	case OverlapSupersede, OverlapReject:
	default:
		logger.Warn("Unknown overlap policy, using supersede",
			"policy", config.OverlapPolicy.String())
		config.OverlapPolicy = OverlapSupersede
	}

	if config.RateLimit.Rate < 0 {
		logger.Warn("Ignoring negative rate limit, throttling disabled",
			"rate", config.RateLimit.Rate)
		config.RateLimit.Rate = 0
	}
	if config.RateLimit.Rate > 0 && config.RateLimit.Burst <= 0 {
		burst := int(config.RateLimit.Rate)
		if float64(burst) < config.RateLimit.Rate {
			burst++
		}
		config.RateLimit.Burst = max(burst, 1)
	}

	return config
}
