// Package request builds the OAuth 2.0 authorization and token requests the
// coordinator sends to a provider.
package request

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-appauth/oidc"
)

// Protocol values used by the builders.
const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	CodeChallengeMethodS256    = "S256"
	ScopeOpenID                = "openid"
)

// AuthorizationRequest is a single authorization-code request. It is built
// once and consumed once by an interaction surface.
type AuthorizationRequest struct {
	// Configuration is the issuer's resolved configuration.
	Configuration *oidc.Configuration

	// ClientID is the OAuth client identifier.
	ClientID string

	// RedirectURI is where the provider sends the user agent back to.
	RedirectURI string

	// Scope is the space-delimited scope string, possibly empty.
	Scope string

	// ResponseType is always "code".
	ResponseType string

	// State correlates the redirect with this request (CSRF protection).
	State string

	// Nonce binds the ID token to this request. Set only when the openid
	// scope is requested.
	Nonce string

	// CodeVerifier is the PKCE secret kept by the client for the exchange.
	CodeVerifier string

	// CodeChallenge is the S256 challenge derived from CodeVerifier.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string

	// AdditionalParameters are provider-specific parameters passed verbatim.
	AdditionalParameters map[string]string
}

// JoinScopes joins scopes with single spaces, preserving order.
// An empty list yields an empty string.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// NewAuthorizationRequest builds an authorization-code request against cfg.
//
// Scopes are joined in caller order. Additional parameters are copied
// verbatim without validation; protocol parameters set by this package take
// precedence if a key collides. A fresh state, PKCE verifier and, for openid
// requests, nonce are generated for each request.
func NewAuthorizationRequest(cfg *oidc.Configuration, clientID, redirectURI string, scopes []string, additional map[string]string) (*AuthorizationRequest, error) {
	if err := validateClient(cfg, clientID); err != nil {
		return nil, err
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("redirect URI is required")
	}
	if err := validateRedirectURI(redirectURI); err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateVerifier()

	req := &AuthorizationRequest{
		Configuration:        cfg,
		ClientID:             clientID,
		RedirectURI:          redirectURI,
		Scope:                JoinScopes(scopes),
		ResponseType:         ResponseTypeCode,
		State:                oauth2.GenerateVerifier(),
		CodeVerifier:         verifier,
		CodeChallenge:        oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod:  CodeChallengeMethodS256,
		AdditionalParameters: copyParameters(additional),
	}

	if slices.Contains(scopes, ScopeOpenID) {
		req.Nonce = oauth2.GenerateVerifier()
	}

	return req, nil
}

// URL renders the request as an authorization endpoint URL.
// The scope parameter is always present, even when empty.
func (r *AuthorizationRequest) URL() string {
	conf := &oauth2.Config{
		ClientID:    r.ClientID,
		RedirectURL: r.RedirectURI,
		Endpoint:    r.Configuration.Endpoint(),
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(r.AdditionalParameters)+4)
	for _, key := range slices.Sorted(maps.Keys(r.AdditionalParameters)) {
		opts = append(opts, oauth2.SetAuthURLParam(key, r.AdditionalParameters[key]))
	}

	// AuthCodeURL applies options after its own values, so protocol
	// parameters are restated here to override colliding extras.
	opts = append(opts,
		oauth2.SetAuthURLParam("response_type", r.ResponseType),
		oauth2.SetAuthURLParam("client_id", r.ClientID),
		oauth2.SetAuthURLParam("redirect_uri", r.RedirectURI),
		oauth2.SetAuthURLParam("state", r.State),
		oauth2.SetAuthURLParam("scope", r.Scope),
		oauth2.S256ChallengeOption(r.CodeVerifier),
	)
	if r.Nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", r.Nonce))
	}

	return conf.AuthCodeURL(r.State, opts...)
}

func validateClient(cfg *oidc.Configuration, clientID string) error {
	if cfg == nil {
		return fmt.Errorf("issuer configuration is required")
	}
	if clientID == "" {
		return fmt.Errorf("client ID is required")
	}
	return nil
}

func validateRedirectURI(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}
	// Custom schemes (myapp:/callback) are allowed, relative references are not.
	if u.Scheme == "" {
		return fmt.Errorf("redirect URI must be absolute: %s", redirectURI)
	}

	return nil
}

// copyParameters returns a copy of params, or nil when params is empty.
func copyParameters(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	return maps.Clone(params)
}
