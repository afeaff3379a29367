package request

import "fmt"

// AuthorizationResponse is what the interaction surface actually returned for
// an AuthorizationRequest.
type AuthorizationResponse struct {
	// Request is the request this response answers.
	Request *AuthorizationRequest

	// State as returned by the provider.
	State string

	// Code is the authorization code.
	Code string

	// AdditionalParameters holds the remaining redirect parameters
	// (session_state, iss, ...).
	AdditionalParameters map[string]string
}

// TokenExchangeRequest derives the code exchange from the response: the code
// the provider issued plus the verifier, client and redirect URI of the
// request it answers. Nothing is taken from caller-declared values.
func (r *AuthorizationResponse) TokenExchangeRequest() (*TokenRequest, error) {
	if r.Request == nil {
		return nil, fmt.Errorf("authorization response has no originating request")
	}
	if r.Code == "" {
		return nil, fmt.Errorf("authorization response has no authorization code")
	}

	return &TokenRequest{
		Configuration:     r.Request.Configuration,
		ClientID:          r.Request.ClientID,
		RedirectURI:       r.Request.RedirectURI,
		GrantType:         GrantTypeAuthorizationCode,
		AuthorizationCode: r.Code,
		CodeVerifier:      r.Request.CodeVerifier,
		Nonce:             r.Request.Nonce,
	}, nil
}
