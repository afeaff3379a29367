package loopback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/giantswarm/mcp-appauth/interaction"
	"github.com/giantswarm/mcp-appauth/oidc"
	"github.com/giantswarm/mcp-appauth/request"
)

func freeRedirectURI(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return "http://" + addr + "/callback"
}

func newRequest(t *testing.T, redirectURI string) *request.AuthorizationRequest {
	t.Helper()

	cfg := &oidc.Configuration{
		Issuer:                "https://issuer.example.com",
		AuthorizationEndpoint: "https://issuer.example.com/authorize",
		TokenEndpoint:         "https://issuer.example.com/token",
	}
	req, err := request.NewAuthorizationRequest(cfg, "cli", redirectURI, []string{"openid"}, nil)
	if err != nil {
		t.Fatalf("NewAuthorizationRequest() error = %v", err)
	}
	return req
}

// browserHitting returns an openURL func that simulates the provider
// redirecting back with params.
func browserHitting(t *testing.T, redirectURI string, params url.Values, status chan<- int) func(string) error {
	return func(authURL string) error {
		if _, err := url.Parse(authURL); err != nil {
			t.Errorf("browser got invalid URL %q", authURL)
		}
		go func() {
			resp, err := http.Get(redirectURI + "?" + params.Encode())
			if err != nil {
				t.Errorf("callback request failed: %v", err)
				status <- 0
				return
			}
			_ = resp.Body.Close()
			status <- resp.StatusCode
		}()
		return nil
	}
}

func TestSurface_DeliversCode(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	req := newRequest(t, redirectURI)

	status := make(chan int, 1)
	surface := New(WithBrowserOpen(browserHitting(t, redirectURI,
		url.Values{"code": {"abc"}, "state": {req.State}, "iss": {"https://issuer.example.com"}}, status)))

	outcomes := make(chan interaction.Outcome, 1)
	if err := surface.Launch(context.Background(), req, func(o interaction.Outcome) { outcomes <- o }); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	select {
	case o := <-outcomes:
		if o.Err != nil {
			t.Fatalf("outcome error = %v", o.Err)
		}
		if o.Code != "abc" || o.State != req.State {
			t.Errorf("outcome = %+v", o)
		}
		if o.AdditionalParameters["iss"] != "https://issuer.example.com" {
			t.Errorf("AdditionalParameters = %v", o.AdditionalParameters)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}

	if code := <-status; code != http.StatusOK {
		t.Errorf("callback status = %d, want 200", code)
	}
}

func TestSurface_AccessDenied(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	req := newRequest(t, redirectURI)

	status := make(chan int, 1)
	surface := New(WithBrowserOpen(browserHitting(t, redirectURI,
		url.Values{"error": {"access_denied"}, "state": {req.State}}, status)))

	outcomes := make(chan interaction.Outcome, 1)
	if err := surface.Launch(context.Background(), req, func(o interaction.Outcome) { outcomes <- o }); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	select {
	case o := <-outcomes:
		if !errors.Is(o.Err, interaction.ErrUserCanceled) {
			t.Errorf("outcome error = %v, want ErrUserCanceled", o.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}

	if code := <-status; code != http.StatusBadRequest {
		t.Errorf("callback status = %d, want 400", code)
	}
}

func TestSurface_IgnoresWrongState(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	req := newRequest(t, redirectURI)

	status := make(chan int, 1)
	surface := New(WithBrowserOpen(browserHitting(t, redirectURI,
		url.Values{"code": {"abc"}, "state": {"forged"}}, status)))

	outcomes := make(chan interaction.Outcome, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := surface.Launch(ctx, req, func(o interaction.Outcome) { outcomes <- o }); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	if code := <-status; code != http.StatusForbidden {
		t.Errorf("callback status = %d, want 403", code)
	}

	select {
	case o := <-outcomes:
		t.Fatalf("unexpected outcome for forged state: %+v", o)
	case <-time.After(100 * time.Millisecond):
	}

	// Canceling the launch context settles the interaction.
	cancel()
	select {
	case o := <-outcomes:
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("outcome error = %v, want context.Canceled", o.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation outcome")
	}
}

func TestSurface_BrowserFailure(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	req := newRequest(t, redirectURI)

	surface := New(WithBrowserOpen(func(string) error { return fmt.Errorf("no display") }))

	delivered := false
	err := surface.Launch(context.Background(), req, func(interaction.Outcome) { delivered = true })
	if err == nil {
		t.Fatal("expected error when the browser cannot be opened")
	}
	if delivered {
		t.Error("a failed launch must not deliver an outcome")
	}
}

func TestSurface_InvalidRedirectURI(t *testing.T) {
	tests := []struct {
		name        string
		redirectURI string
	}{
		{"https scheme", "https://127.0.0.1:8080/callback"},
		{"custom scheme", "com.example.app:/oauth2redirect"},
		{"non-loopback host", "http://example.com:8080/callback"},
		{"missing port", "http://127.0.0.1/callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface := New(WithBrowserOpen(func(string) error {
				t.Error("browser must not be opened")
				return nil
			}))
			err := surface.Launch(context.Background(), newRequest(t, tt.redirectURI), func(interaction.Outcome) {})
			if !errors.Is(err, ErrInvalidRedirectURI) {
				t.Errorf("Launch() error = %v, want ErrInvalidRedirectURI", err)
			}
		})
	}
}
