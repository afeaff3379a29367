// Package appauth is an OAuth 2.0 and OpenID Connect authorization-code
// client for native and command-line applications.
//
// A Coordinator resolves an issuer's discovery document, builds an
// authorization request with state, PKCE (S256) and, for openid requests, a
// nonce, hands it to an interaction surface (usually the system browser with
// a loopback redirect listener), waits for the redirect, and exchanges the
// authorization code for tokens. Refresh exchanges skip the interaction.
//
// # Usage
//
//	surface := loopback.New()
//	coordinator, err := appauth.New(surface, &appauth.Config{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer coordinator.Close(context.Background())
//
//	result, err := coordinator.Authorize(ctx, appauth.AuthorizeParams{
//	    Issuer:      "https://accounts.example.com",
//	    ClientID:    "my-cli",
//	    RedirectURL: "http://127.0.0.1:8085/callback",
//	    Scopes:      []string{"openid", "profile", "offline_access"},
//	})
//
// # Errors
//
// Authorize and Refresh return a *FlowError whose Category tells which stage
// failed: ConfigurationFetchFailed, AuthenticationFailed, TokenExchangeFailed
// or, for rejected arguments, InvalidRequest. The underlying cause is kept;
// use errors.As with *oauth2.RetrieveError to read a token endpoint error
// code, or errors.Is with interaction.ErrUserCanceled to detect a canceled
// login.
//
// # Pending authorization
//
// A Coordinator holds a single pending authorization. Config.OverlapPolicy
// decides whether a second Authorize call supersedes the first or is
// rejected. Outcomes whose state does not match the pending request are
// discarded.
//
// # Security
//
// Connections are strict by default: https only, certificates verified.
// AllowInsecureConnections relaxes both for a single call and logs a
// warning. Tokens, authorization codes and PKCE verifiers are never logged.
package appauth
