package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gooidc "github.com/coreos/go-oidc/v3/oidc"

	"github.com/giantswarm/mcp-appauth/oidc"
)

// ErrNonceMismatch is returned when an ID token does not carry the nonce of
// the authorization request it answers.
var ErrNonceMismatch = errors.New("id token nonce does not match the authorization request")

// Verifier checks ID token signatures and claims against an issuer's
// discovered configuration.
type Verifier struct {
	logger *slog.Logger
}

// NewVerifier creates a Verifier. A nil logger uses slog.Default().
func NewVerifier(logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{logger: logger}
}

// Verify validates rawIDToken: signature against the configuration's
// jwks_uri, issuer, audience (clientID) and expiry. If nonce is non-empty the
// token's nonce claim must equal it. Keys are fetched with client.
func (v *Verifier) Verify(ctx context.Context, client *http.Client, cfg *oidc.Configuration, clientID, nonce, rawIDToken string) (*gooidc.IDToken, error) {
	if cfg == nil {
		return nil, fmt.Errorf("issuer configuration is required")
	}
	if cfg.JWKSURI == "" {
		return nil, fmt.Errorf("issuer %s does not publish a jwks_uri", cfg.Issuer)
	}
	if rawIDToken == "" {
		return nil, fmt.Errorf("token response has no id_token")
	}

	if client != nil {
		ctx = gooidc.ClientContext(ctx, client)
	}

	providerConfig := &gooidc.ProviderConfig{
		IssuerURL:   cfg.Issuer,
		AuthURL:     cfg.AuthorizationEndpoint,
		TokenURL:    cfg.TokenEndpoint,
		UserInfoURL: cfg.UserInfoEndpoint,
		JWKSURL:     cfg.JWKSURI,
		Algorithms:  cfg.IDTokenSigningAlgValuesSupported,
	}
	provider := providerConfig.NewProvider(ctx)

	idToken, err := provider.Verifier(&gooidc.Config{ClientID: clientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	if nonce != "" && idToken.Nonce != nonce {
		return nil, ErrNonceMismatch
	}

	v.logger.Debug("Verified id token",
		"issuer", idToken.Issuer,
		"expiry", idToken.Expiry)

	return idToken, nil
}
