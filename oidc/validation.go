package oidc

import (
	"fmt"
	"net/url"
)

// ValidateIssuerURL checks that an issuer is an absolute http(s) URL with a
// host and no query or fragment, as required by OpenID Connect Discovery.
//
// Whether plain http is acceptable is decided by the connection policy, not here.
//
// Example:
//
//	if err := ValidateIssuerURL("https://accounts.example.com"); err != nil {
//	    return fmt.Errorf("invalid issuer: %w", err)
//	}
func ValidateIssuerURL(issuer string) error {
	if issuer == "" {
		return fmt.Errorf("issuer URL is required")
	}

	u, err := url.Parse(issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("issuer URL must use http or https, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("issuer URL must have a hostname")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer URL must not contain a query or fragment")
	}

	return nil
}

// ValidateScopes validates OAuth scopes before they are joined into a
// request.
//
// Security Considerations:
//   - Array Size Limit: Prevents DoS from excessive scopes
//   - String Length Limit: Prevents memory exhaustion
//   - Empty Scope Detection: Prevents malformed requests
func ValidateScopes(scopes []string) error {
	if len(scopes) > 50 {
		return fmt.Errorf("too many scopes (max 50, got %d)", len(scopes))
	}

	for i, scope := range scopes {
		if scope == "" {
			return fmt.Errorf("scope at index %d is empty", i)
		}
		if len(scope) > 256 {
			return fmt.Errorf("scope at index %d exceeds maximum length of 256 characters", i)
		}
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("must be an absolute URL: %s", raw)
	}
	return nil
}
