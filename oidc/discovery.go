package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-appauth/internal/util"
)

const (
	// WellKnownPath is the first path segment appended to an issuer URL.
	WellKnownPath = ".well-known"

	// ConfigurationResource is the discovery document resource name.
	ConfigurationResource = "openid-configuration"

	// maxDocumentSize bounds the discovery response body.
	maxDocumentSize = 1 << 20
)

// Configuration is an issuer's provider configuration, decoded from its
// OpenID Connect discovery document. It is treated as immutable once resolved.
type Configuration struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	EndSessionEndpoint                string   `json:"end_session_endpoint,omitempty"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	JWKSURI                           string   `json:"jwks_uri,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// Endpoint returns the authorization and token endpoints in the form used by
// golang.org/x/oauth2. Client credentials are sent in the request body since
// the coordinator acts for public clients.
func (c *Configuration) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   c.AuthorizationEndpoint,
		TokenURL:  c.TokenEndpoint,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// FetchError is returned when an issuer's configuration cannot be resolved:
// transport failures, non-2xx responses, and malformed documents.
type FetchError struct {
	// Issuer is the issuer URL the caller supplied.
	Issuer string

	// URL is the discovery document URL, empty if it could not be derived.
	URL string

	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch configuration for %q failed with status %d: %v", e.Issuer, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch configuration for %q: %v", e.Issuer, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// cachedConfiguration holds a configuration with its fetch timestamp.
type cachedConfiguration struct {
	config    *Configuration
	fetchedAt time.Time
}

// Resolver fetches provider configurations from issuer discovery documents.
//
// By default every call refetches the document. A positive cache TTL enables
// a per-issuer cache; cached entries are shared by all connection policies.
//
// The resolver is safe for concurrent use.
type Resolver struct {
	cache    sync.Map // normalized issuer -> *cachedConfiguration
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver creates a discovery resolver.
//
// Parameters:
//   - cacheTTL: lifetime of cached documents (0 disables caching)
//   - logger: logger for debug/info messages (nil uses default logger)
//
// Example:
//
//	resolver := oidc.NewResolver(0, slog.Default())
//	cfg, err := resolver.Resolve(ctx, "https://accounts.example.com", httpClient)
func NewResolver(cacheTTL time.Duration, logger *slog.Logger) *Resolver {
	if cacheTTL < 0 {
		cacheTTL = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// DiscoveryURL appends the fixed well-known path segments to an issuer URL,
// keeping any path the issuer already has.
//
//	DiscoveryURL("https://example.com/tenant") // https://example.com/tenant/.well-known/openid-configuration
func DiscoveryURL(issuer string) (string, error) {
	if err := ValidateIssuerURL(issuer); err != nil {
		return "", err
	}
	u, err := url.Parse(issuer)
	if err != nil {
		return "", fmt.Errorf("invalid issuer URL: %w", err)
	}
	return u.JoinPath(WellKnownPath, ConfigurationResource).String(), nil
}

// Resolve fetches and decodes the configuration for issuer using client.
// Every failure is returned as a *FetchError. No retry is attempted.
func (r *Resolver) Resolve(ctx context.Context, issuer string, client *http.Client) (*Configuration, error) {
	discoveryURL, err := DiscoveryURL(issuer)
	if err != nil {
		return nil, &FetchError{Issuer: issuer, Err: err}
	}

	cacheKey := util.NormalizeURL(issuer)
	if r.cacheTTL > 0 {
		if cached, ok := r.cache.Load(cacheKey); ok {
			entry := cached.(*cachedConfiguration)
			if r.now().Sub(entry.fetchedAt) < r.cacheTTL {
				r.logger.Debug("Discovery cache hit", "issuer", issuer)
				return entry.config, nil
			}
			r.logger.Debug("Discovery cache expired", "issuer", issuer)
		}
	}

	if client == nil {
		client = http.DefaultClient
	}

	r.logger.Debug("Fetching discovery document", "url", discoveryURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, &FetchError{Issuer: issuer, URL: discoveryURL, Err: fmt.Errorf("failed to create discovery request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{Issuer: issuer, URL: discoveryURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Issuer:     issuer,
			URL:        discoveryURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response %s", resp.Status),
		}
	}

	var cfg Configuration
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&cfg); err != nil {
		return nil, &FetchError{Issuer: issuer, URL: discoveryURL, Err: fmt.Errorf("failed to decode discovery document: %w", err)}
	}

	if err := validateConfiguration(&cfg); err != nil {
		return nil, &FetchError{Issuer: issuer, URL: discoveryURL, Err: fmt.Errorf("invalid discovery document: %w", err)}
	}

	if r.cacheTTL > 0 {
		r.cache.Store(cacheKey, &cachedConfiguration{
			config:    &cfg,
			fetchedAt: r.now(),
		})
	}

	r.logger.Info("Discovery successful",
		"issuer", issuer,
		"authorization_endpoint", cfg.AuthorizationEndpoint,
		"token_endpoint", cfg.TokenEndpoint)

	return &cfg, nil
}

// validateConfiguration checks the fields the coordinator depends on.
// Scheme restrictions are enforced by the connection policy at request time.
func validateConfiguration(cfg *Configuration) error {
	required := []struct {
		name string
		url  string
	}{
		{"authorization_endpoint", cfg.AuthorizationEndpoint},
		{"token_endpoint", cfg.TokenEndpoint},
	}

	for _, endpoint := range required {
		if endpoint.url == "" {
			return fmt.Errorf("%s is required but missing", endpoint.name)
		}
		if err := validateAbsoluteURL(endpoint.url); err != nil {
			return fmt.Errorf("%s: %w", endpoint.name, err)
		}
	}

	if cfg.JWKSURI != "" {
		if err := validateAbsoluteURL(cfg.JWKSURI); err != nil {
			return fmt.Errorf("jwks_uri: %w", err)
		}
	}

	return nil
}

// ClearCache drops every cached configuration.
func (r *Resolver) ClearCache() {
	count := 0
	r.cache.Range(func(key, value any) bool {
		r.cache.Delete(key)
		count++
		return true
	})
	r.logger.Debug("Discovery cache cleared", "entries_removed", count)
}
