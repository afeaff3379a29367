package request

import (
	"fmt"
	"net/url"

	"github.com/giantswarm/mcp-appauth/oidc"
)

// TokenRequest is a request to the token endpoint: either an authorization
// code exchange or a refresh token exchange. It is built once per exchange.
type TokenRequest struct {
	// Configuration is the issuer's resolved configuration.
	Configuration *oidc.Configuration

	// ClientID is the OAuth client identifier.
	ClientID string

	// RedirectURI must match the authorization request for code exchanges.
	RedirectURI string

	// GrantType is authorization_code or refresh_token.
	GrantType string

	// Scope is the space-delimited scope string. Omitted from the form when empty.
	Scope string

	// AuthorizationCode and CodeVerifier are set for code exchanges.
	AuthorizationCode string
	CodeVerifier      string

	// RefreshToken is set for refresh exchanges.
	RefreshToken string

	// Nonce is the value the ID token must carry. It is not sent.
	Nonce string

	// AdditionalParameters are sent verbatim.
	AdditionalParameters map[string]string
}

// NewRefreshRequest builds a refresh-token exchange. The refresh token is not
// validated; malformed or revoked tokens surface as token endpoint errors.
// redirectURI is optional and omitted from the form when empty.
func NewRefreshRequest(cfg *oidc.Configuration, clientID, redirectURI string, scopes []string, refreshToken string, additional map[string]string) (*TokenRequest, error) {
	if err := validateClient(cfg, clientID); err != nil {
		return nil, err
	}
	if redirectURI != "" {
		if err := validateRedirectURI(redirectURI); err != nil {
			return nil, err
		}
	}

	return &TokenRequest{
		Configuration:        cfg,
		ClientID:             clientID,
		RedirectURI:          redirectURI,
		GrantType:            GrantTypeRefreshToken,
		Scope:                JoinScopes(scopes),
		RefreshToken:         refreshToken,
		AdditionalParameters: copyParameters(additional),
	}, nil
}

// Form encodes the request body. Additional parameters are written first so
// that protocol parameters win on collision.
func (r *TokenRequest) Form() url.Values {
	form := url.Values{}
	for key, value := range r.AdditionalParameters {
		form.Set(key, value)
	}

	form.Set("grant_type", r.GrantType)
	form.Set("client_id", r.ClientID)
	if r.RedirectURI != "" {
		form.Set("redirect_uri", r.RedirectURI)
	}

	switch r.GrantType {
	case GrantTypeAuthorizationCode:
		form.Set("code", r.AuthorizationCode)
		if r.CodeVerifier != "" {
			form.Set("code_verifier", r.CodeVerifier)
		}
	case GrantTypeRefreshToken:
		form.Set("refresh_token", r.RefreshToken)
	}

	if r.Scope != "" {
		form.Set("scope", r.Scope)
	}

	return form
}

// Validate checks that the grant-specific fields are present.
func (r *TokenRequest) Validate() error {
	if r.Configuration == nil || r.Configuration.TokenEndpoint == "" {
		return fmt.Errorf("token endpoint is required")
	}

	switch r.GrantType {
	case GrantTypeAuthorizationCode:
		if r.AuthorizationCode == "" {
			return fmt.Errorf("authorization code is required for %s grant", r.GrantType)
		}
	case GrantTypeRefreshToken:
		if r.RefreshToken == "" {
			return fmt.Errorf("refresh token is required for %s grant", r.GrantType)
		}
	default:
		return fmt.Errorf("unsupported grant type %q", r.GrantType)
	}

	return nil
}
