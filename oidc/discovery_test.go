package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func validConfiguration(base string) Configuration {
	return Configuration{
		Issuer:                 base,
		AuthorizationEndpoint:  base + "/auth",
		TokenEndpoint:          base + "/token",
		UserInfoEndpoint:       base + "/userinfo",
		JWKSURI:                base + "/keys",
		ScopesSupported:        []string{"openid", "profile", "email"},
		ResponseTypesSupported: []string{"code"},
		GrantTypesSupported:    []string{"authorization_code", "refresh_token"},
	}
}

// newDiscoveryServer serves doc at the well-known path and counts requests.
func newDiscoveryServer(t *testing.T, doc func(base string) any) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	var server *httptest.Server
	server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/.well-known/openid-configuration" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc(server.URL)); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func TestNewResolver(t *testing.T) {
	t.Run("with default values", func(t *testing.T) {
		r := NewResolver(0, nil)
		if r == nil {
			t.Fatal("NewResolver() returned nil")
		}
		if r.cacheTTL != 0 {
			t.Errorf("cacheTTL = %v, want 0", r.cacheTTL)
		}
		if r.logger == nil {
			t.Error("logger should be initialized with default")
		}
	})

	t.Run("negative TTL disables cache", func(t *testing.T) {
		r := NewResolver(-time.Minute, slog.Default())
		if r.cacheTTL != 0 {
			t.Errorf("cacheTTL = %v, want 0", r.cacheTTL)
		}
	})
}

func TestDiscoveryURL(t *testing.T) {
	tests := []struct {
		issuer  string
		want    string
		wantErr bool
	}{
		{"https://accounts.example.com", "https://accounts.example.com/.well-known/openid-configuration", false},
		{"https://accounts.example.com/", "https://accounts.example.com/.well-known/openid-configuration", false},
		{"https://example.com/realms/demo", "https://example.com/realms/demo/.well-known/openid-configuration", false},
		{"http://localhost:8080", "http://localhost:8080/.well-known/openid-configuration", false},
		{"", "", true},
		{"accounts.example.com", "", true},
		{"ftp://example.com", "", true},
		{"https://example.com?tenant=a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.issuer, func(t *testing.T) {
			got, err := DiscoveryURL(tt.issuer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DiscoveryURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DiscoveryURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("successful discovery", func(t *testing.T) {
		server, _ := newDiscoveryServer(t, func(base string) any { return validConfiguration(base) })

		cfg, err := NewResolver(0, nil).Resolve(context.Background(), server.URL, server.Client())
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if cfg.AuthorizationEndpoint != server.URL+"/auth" {
			t.Errorf("AuthorizationEndpoint = %q", cfg.AuthorizationEndpoint)
		}
		if cfg.TokenEndpoint != server.URL+"/token" {
			t.Errorf("TokenEndpoint = %q", cfg.TokenEndpoint)
		}
		if cfg.JWKSURI != server.URL+"/keys" {
			t.Errorf("JWKSURI = %q", cfg.JWKSURI)
		}

		endpoint := cfg.Endpoint()
		if endpoint.AuthURL != cfg.AuthorizationEndpoint || endpoint.TokenURL != cfg.TokenEndpoint {
			t.Errorf("Endpoint() = %+v", endpoint)
		}
	})

	t.Run("refetches on every call by default", func(t *testing.T) {
		server, calls := newDiscoveryServer(t, func(base string) any { return validConfiguration(base) })
		r := NewResolver(0, nil)

		for i := 0; i < 3; i++ {
			if _, err := r.Resolve(context.Background(), server.URL, server.Client()); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
		}

		if got := calls.Load(); got != 3 {
			t.Errorf("expected 3 HTTP calls, got %d", got)
		}
	})

	t.Run("cache hit", func(t *testing.T) {
		server, calls := newDiscoveryServer(t, func(base string) any { return validConfiguration(base) })
		r := NewResolver(time.Hour, nil)

		for i := 0; i < 2; i++ {
			if _, err := r.Resolve(context.Background(), server.URL, server.Client()); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
		}

		if got := calls.Load(); got != 1 {
			t.Errorf("expected 1 HTTP call (cache hit), got %d", got)
		}
	})

	t.Run("cache ignores trailing slash", func(t *testing.T) {
		server, calls := newDiscoveryServer(t, func(base string) any { return validConfiguration(base) })
		r := NewResolver(time.Hour, nil)

		for _, issuer := range []string{server.URL, server.URL + "/"} {
			if _, err := r.Resolve(context.Background(), issuer, server.Client()); err != nil {
				t.Fatalf("Resolve(%q) error = %v", issuer, err)
			}
		}

		if got := calls.Load(); got != 1 {
			t.Errorf("expected 1 HTTP call, got %d", got)
		}
	})

	t.Run("cache expiry", func(t *testing.T) {
		server, calls := newDiscoveryServer(t, func(base string) any { return validConfiguration(base) })
		r := NewResolver(time.Minute, nil)

		now := time.Now()
		r.now = func() time.Time { return now }

		if _, err := r.Resolve(context.Background(), server.URL, server.Client()); err != nil {
			t.Fatalf("first Resolve() error = %v", err)
		}

		now = now.Add(2 * time.Minute)

		if _, err := r.Resolve(context.Background(), server.URL, server.Client()); err != nil {
			t.Fatalf("second Resolve() error = %v", err)
		}

		if got := calls.Load(); got != 2 {
			t.Errorf("expected 2 HTTP calls (cache expired), got %d", got)
		}
	})

	t.Run("404 not found", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}))
		defer server.Close()

		_, err := NewResolver(0, nil).Resolve(context.Background(), server.URL, server.Client())
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected *FetchError, got %v", err)
		}
		if fetchErr.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want 404", fetchErr.StatusCode)
		}
		if !strings.Contains(err.Error(), "status 404") {
			t.Errorf("error should mention status code, got: %v", err)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := NewResolver(0, nil).Resolve(context.Background(), server.URL, server.Client())
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected *FetchError, got %v", err)
		}
		if !strings.Contains(err.Error(), "decode") {
			t.Errorf("error should mention decode failure, got: %v", err)
		}
	})

	t.Run("missing token endpoint", func(t *testing.T) {
		server, _ := newDiscoveryServer(t, func(base string) any {
			cfg := validConfiguration(base)
			cfg.TokenEndpoint = ""
			return cfg
		})

		_, err := NewResolver(0, nil).Resolve(context.Background(), server.URL, server.Client())
		if err == nil {
			t.Fatal("Resolve() should reject a document without token_endpoint")
		}
		if !strings.Contains(err.Error(), "token_endpoint is required") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unreachable issuer", func(t *testing.T) {
		server := httptest.NewTLSServer(http.NotFoundHandler())
		url := server.URL
		client := server.Client()
		server.Close()

		_, err := NewResolver(0, nil).Resolve(context.Background(), url, client)
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected *FetchError, got %v", err)
		}
		if fetchErr.StatusCode != 0 {
			t.Errorf("StatusCode = %d, want 0", fetchErr.StatusCode)
		}
		if fetchErr.Unwrap() == nil {
			t.Error("FetchError should carry the transport cause")
		}
	})

	t.Run("invalid issuer never reaches network", func(t *testing.T) {
		_, err := NewResolver(0, nil).Resolve(context.Background(), "not a url", nil)
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected *FetchError, got %v", err)
		}
		if fetchErr.URL != "" {
			t.Errorf("URL = %q, want empty", fetchErr.URL)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := NewResolver(0, nil).Resolve(ctx, server.URL, server.Client())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestResolver_ClearCache(t *testing.T) {
	server, calls := newDiscoveryServer(t, func(base string) any { return validConfiguration(base) })
	r := NewResolver(time.Hour, slog.Default())

	if _, err := r.Resolve(context.Background(), server.URL, server.Client()); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, ok := r.cache.Load(server.URL); !ok {
		t.Error("cache should be populated")
	}

	r.ClearCache()

	if _, ok := r.cache.Load(server.URL); ok {
		t.Error("cache should be empty after ClearCache()")
	}

	if _, err := r.Resolve(context.Background(), server.URL, server.Client()); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 HTTP calls after ClearCache, got %d", got)
	}
}
