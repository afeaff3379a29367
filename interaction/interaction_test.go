package interaction

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/giantswarm/mcp-appauth/request"
)

func TestParseRedirect(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantCode  string
		wantState string
		wantExtra map[string]string
		wantErr   string
		canceled  bool
	}{
		{
			name:      "code and state",
			url:       "com.example.app:/oauth2redirect?code=abc&state=xyz",
			wantCode:  "abc",
			wantState: "xyz",
		},
		{
			name:      "extra parameters",
			url:       "http://127.0.0.1:8080/callback?code=abc&state=xyz&session_state=s1&iss=https%3A%2F%2Fissuer",
			wantCode:  "abc",
			wantState: "xyz",
			wantExtra: map[string]string{"session_state": "s1", "iss": "https://issuer"},
		},
		{
			name:      "fragment",
			url:       "https://app.example.com/cb#code=abc&state=xyz",
			wantCode:  "abc",
			wantState: "xyz",
		},
		{
			name:      "access denied",
			url:       "https://app.example.com/cb?error=access_denied&state=xyz",
			wantState: "xyz",
			wantErr:   "access_denied",
			canceled:  true,
		},
		{
			name:      "provider error",
			url:       "https://app.example.com/cb?error=invalid_scope&error_description=bad+scope&state=xyz",
			wantState: "xyz",
			wantErr:   "invalid_scope",
		},
		{
			name:      "missing code",
			url:       "https://app.example.com/cb?state=xyz",
			wantState: "xyz",
			wantErr:   "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := ParseRedirect(tt.url)
			if err != nil {
				t.Fatalf("ParseRedirect() error = %v", err)
			}

			if outcome.State != tt.wantState {
				t.Errorf("State = %q, want %q", outcome.State, tt.wantState)
			}

			if tt.wantErr != "" {
				if outcome.Err == nil {
					t.Fatalf("Err = nil, want error containing %q", tt.wantErr)
				}
				var authErr *AuthorizationError
				if tt.wantErr != "missing" && (!errors.As(outcome.Err, &authErr) || authErr.Code != tt.wantErr) {
					t.Errorf("Err = %v, want AuthorizationError %q", outcome.Err, tt.wantErr)
				}
				if got := errors.Is(outcome.Err, ErrUserCanceled); got != tt.canceled {
					t.Errorf("errors.Is(ErrUserCanceled) = %v, want %v", got, tt.canceled)
				}
				return
			}

			if outcome.Err != nil {
				t.Fatalf("Err = %v", outcome.Err)
			}
			if outcome.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", outcome.Code, tt.wantCode)
			}
			if len(outcome.AdditionalParameters) != len(tt.wantExtra) {
				t.Fatalf("AdditionalParameters = %v, want %v", outcome.AdditionalParameters, tt.wantExtra)
			}
			for k, v := range tt.wantExtra {
				if outcome.AdditionalParameters[k] != v {
					t.Errorf("AdditionalParameters[%q] = %q, want %q", k, outcome.AdditionalParameters[k], v)
				}
			}
		})
	}
}

func TestParseRedirect_Invalid(t *testing.T) {
	if _, err := ParseRedirect("://bad"); err == nil {
		t.Error("expected error for unparseable URL")
	}
}

func TestAuthorizationError_Error(t *testing.T) {
	withDescription := &AuthorizationError{Code: "invalid_request", Description: "missing client"}
	if got := withDescription.Error(); got != "authorization error invalid_request: missing client" {
		t.Errorf("Error() = %q", got)
	}

	bare := &AuthorizationError{Code: "server_error"}
	if got := bare.Error(); got != "authorization error server_error" {
		t.Errorf("Error() = %q", got)
	}
	if errors.Is(bare, ErrUserCanceled) {
		t.Error("server_error must not match ErrUserCanceled")
	}
}

func TestOutcome_Response(t *testing.T) {
	req := &request.AuthorizationRequest{State: "s"}
	outcome := OutcomeFromValues(url.Values{"code": {"c"}, "state": {"s"}, "iss": {"i"}})

	resp := outcome.Response(req)
	if resp.Request != req || resp.Code != "c" || resp.State != "s" {
		t.Errorf("Response() = %+v", resp)
	}
	if resp.AdditionalParameters["iss"] != "i" {
		t.Errorf("AdditionalParameters = %v", resp.AdditionalParameters)
	}
}

func TestCanceled(t *testing.T) {
	if !errors.Is(Canceled().Err, ErrUserCanceled) {
		t.Error("Canceled() must carry ErrUserCanceled")
	}
}

func TestSurfaceFunc(t *testing.T) {
	var called bool
	var surface Surface = SurfaceFunc(func(_ context.Context, _ *request.AuthorizationRequest, deliver DeliverFunc) error {
		called = true
		deliver(Canceled())
		return nil
	})

	var delivered Outcome
	if err := surface.Launch(context.Background(), &request.AuthorizationRequest{}, func(o Outcome) { delivered = o }); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !called || !errors.Is(delivered.Err, ErrUserCanceled) {
		t.Error("SurfaceFunc did not forward the call")
	}
}
