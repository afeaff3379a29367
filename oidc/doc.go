// Package oidc resolves OpenID Connect provider configurations.
//
// A provider's configuration is read from its discovery document at
// <issuer>/.well-known/openid-configuration. The path segments are fixed.
//
// # Example Usage
//
//	resolver := oidc.NewResolver(0, logger)
//
//	cfg, err := resolver.Resolve(ctx, "https://accounts.example.com", httpClient)
//	if err != nil {
//	    var fetchErr *oidc.FetchError
//	    if errors.As(err, &fetchErr) {
//	        // fetchErr.StatusCode, fetchErr.URL
//	    }
//	    return err
//	}
//
//	endpoint := cfg.Endpoint() // oauth2.Endpoint{AuthURL, TokenURL}
//
// Documents are refetched on every call unless a cache TTL is configured.
package oidc
