package appauth

import (
	"fmt"

	"github.com/giantswarm/mcp-appauth/oidc"
	"github.com/giantswarm/mcp-appauth/token"
)

// TokenResult is the normalized result of a successful authorize or refresh.
type TokenResult = token.Result

// AuthorizeParams are the arguments of an authorization-code flow
type AuthorizeParams struct {
	// Issuer is the provider's issuer URL; discovery is resolved from it.
	Issuer string

	// RedirectURL is registered with the provider for this client.
	RedirectURL string

	// ClientID is the OAuth client identifier.
	ClientID string

	// Scopes are joined with single spaces in the given order. Empty
	// elements, elements longer than 256 characters and lists of more than
	// 50 scopes are rejected with InvalidRequest.
	Scopes []string

	// AdditionalParameters are added verbatim to the authorization request.
	AdditionalParameters map[string]string

	// AllowInsecureConnections selects the insecure connection policy:
	// plain http and unverified certificates.
	// WARNING: Only for development against local or self-signed providers.
	AllowInsecureConnections bool
}

// validate checks the caller's arguments. The issuer is left to discovery,
// which reports a malformed one as a configuration fetch failure.
func (p *AuthorizeParams) validate() error {
	if p.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if p.RedirectURL == "" {
		return fmt.Errorf("redirect URL is required")
	}
	return oidc.ValidateScopes(p.Scopes)
}

// RefreshParams are the arguments of a refresh token exchange
type RefreshParams struct {
	// Issuer is the provider's issuer URL; discovery is resolved from it.
	Issuer string

	// RedirectURL is optional. When set it is sent with the refresh request,
	// as some providers require.
	RedirectURL string

	// ClientID is the OAuth client identifier.
	ClientID string

	// RefreshToken is sent as is.
	RefreshToken string

	// Scopes optionally narrow the refreshed grant. Empty sends no scope.
	// The limits of AuthorizeParams.Scopes apply.
	Scopes []string

	// AdditionalParameters are added verbatim to the token request.
	AdditionalParameters map[string]string

	// AllowInsecureConnections selects the insecure connection policy.
	AllowInsecureConnections bool
}

func (p *RefreshParams) validate() error {
	if p.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	return oidc.ValidateScopes(p.Scopes)
}
