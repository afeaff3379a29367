// Package connection selects how outbound HTTP connections to an identity
// provider are made for a single coordinator call.
package connection

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Policy is a two-variant choice between strict and insecure connection
// construction. The zero value is Strict.
type Policy int

const (
	// Strict validates TLS certificates and only permits https URLs.
	Strict Policy = iota

	// Insecure disables certificate verification and permits plain http.
	// WARNING: Only for development against self-signed endpoints.
	// Production callers must never select it.
	Insecure
)

// DefaultTimeout is applied to clients built from a nil base client.
const DefaultTimeout = 30 * time.Second

// Select returns the policy for a caller-supplied flag.
func Select(allowInsecure bool) Policy {
	if allowInsecure {
		return Insecure
	}
	return Strict
}

// String returns the policy name used in logs and span attributes.
func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	case Insecure:
		return "insecure"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// IsInsecure reports whether the policy disables connection security.
func (p Policy) IsInsecure() bool {
	return p == Insecure
}

// Client builds the HTTP client used for one call from base.
// base is never modified; a nil base gets a client with DefaultTimeout.
//
// Strict clients reject any request whose URL scheme is not https before it
// reaches the network. Insecure clients skip certificate verification when
// the base transport is an *http.Transport (or nil).
func (p Policy) Client(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}

	c := *base
	switch p {
	case Insecure:
		c.Transport = insecureTransport(base.Transport)
	default:
		c.Transport = &httpsOnlyTransport{next: transportOrDefault(base.Transport)}
	}
	return &c
}

func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

// insecureTransport clones the base transport with verification disabled.
// Non-standard round trippers are returned unchanged since their TLS
// settings cannot be reached.
func insecureTransport(rt http.RoundTripper) http.RoundTripper {
	var t *http.Transport
	switch base := transportOrDefault(rt).(type) {
	case *http.Transport:
		t = base.Clone()
	default:
		return base
	}

	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{}
	}
	t.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // explicit opt-in, see Insecure
	return t
}

// httpsOnlyTransport refuses non-https requests.
type httpsOnlyTransport struct {
	next http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *httpsOnlyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := CheckURLScheme(Strict, req.URL.Scheme); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// ErrInsecureScheme is returned by strict clients for non-https URLs.
var ErrInsecureScheme = errors.New("only https connections are permitted")

// CheckURLScheme reports whether a URL scheme is allowed under the policy.
func CheckURLScheme(p Policy, scheme string) error {
	switch scheme {
	case "https":
		return nil
	case "http":
		if p == Insecure {
			return nil
		}
		return fmt.Errorf("%w: got %q", ErrInsecureScheme, scheme)
	default:
		return fmt.Errorf("unsupported URL scheme %q", scheme)
	}
}
