package connection

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSelect(t *testing.T) {
	if got := Select(false); got != Strict {
		t.Errorf("Select(false) = %v, want %v", got, Strict)
	}
	if got := Select(true); got != Insecure {
		t.Errorf("Select(true) = %v, want %v", got, Insecure)
	}

	var zero Policy
	if zero != Strict {
		t.Errorf("zero Policy = %v, want strict", zero)
	}
}

func TestPolicy_String(t *testing.T) {
	tests := []struct {
		policy Policy
		want   string
	}{
		{Strict, "strict"},
		{Insecure, "insecure"},
		{Policy(7), "policy(7)"},
	}

	for _, tt := range tests {
		if got := tt.policy.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCheckURLScheme(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		scheme  string
		wantErr bool
	}{
		{"strict https", Strict, "https", false},
		{"strict http", Strict, "http", true},
		{"insecure https", Insecure, "https", false},
		{"insecure http", Insecure, "http", false},
		{"strict ftp", Strict, "ftp", true},
		{"insecure ftp", Insecure, "ftp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckURLScheme(tt.policy, tt.scheme)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckURLScheme() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStrictClient_RejectsPlainHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("strict client must not reach a plain http server")
	}))
	defer server.Close()

	client := Strict.Client(server.Client())
	resp, err := client.Get(server.URL)
	if err == nil {
		_ = resp.Body.Close()
		t.Fatal("expected error for http URL under strict policy")
	}
	if !errors.Is(err, ErrInsecureScheme) {
		t.Errorf("error = %v, want ErrInsecureScheme", err)
	}
}

func TestStrictClient_ValidatesCertificates(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// A client without the test CA must fail the handshake.
	resp, err := Strict.Client(nil).Get(server.URL)
	if err == nil {
		_ = resp.Body.Close()
		t.Fatal("expected certificate verification failure under strict policy")
	}

	// The test server's own client trusts its certificate.
	resp, err = Strict.Client(server.Client()).Get(server.URL)
	if err != nil {
		t.Fatalf("Get() with trusted client failed: %v", err)
	}
	_ = resp.Body.Close()
}

func TestInsecureClient(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	plainServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer plainServer.Close()

	client := Insecure.Client(nil)

	for _, url := range []string{tlsServer.URL, plainServer.URL} {
		resp, err := client.Get(url)
		if err != nil {
			t.Fatalf("Get(%s) failed under insecure policy: %v", url, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	}
}

func TestClient_DoesNotModifyBase(t *testing.T) {
	base := &http.Client{}
	_ = Insecure.Client(base)
	_ = Strict.Client(base)

	if base.Transport != nil {
		t.Errorf("base transport was modified: %T", base.Transport)
	}
}
