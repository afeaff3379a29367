package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-appauth/request"
)

// maxResponseSize bounds the token endpoint response body.
const maxResponseSize = 1 << 20

// Exchanger performs token endpoint requests. It keeps no per-request state
// and is safe for concurrent use.
type Exchanger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewExchanger creates an Exchanger. A nil logger uses slog.Default().
func NewExchanger(logger *slog.Logger) *Exchanger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchanger{
		logger: logger,
		now:    time.Now,
	}
}

// WithClock returns a copy of e that reads the current time from now.
func (e *Exchanger) WithClock(now func() time.Time) *Exchanger {
	c := *e
	c.now = now
	return &c
}

// Exchange posts req to the token endpoint using client.
//
// Error responses are returned as *oauth2.RetrieveError with the decoded
// error, error_description and error_uri. A 2xx response without an
// access_token yields a Response with a nil AccessToken.
func (e *Exchanger) Exchange(ctx context.Context, client *http.Client, req *request.TokenRequest) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("token request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token request: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	endpoint := req.Configuration.TokenEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(req.Form().Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	e.logger.Debug("Sending token request",
		"endpoint", endpoint,
		"grant_type", req.GrantType)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("token request to %s failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retrieveErr := decodeRetrieveError(resp, body)
		e.logger.Debug("Token endpoint returned an error",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"error_code", retrieveErr.ErrorCode)
		return nil, retrieveErr
	}

	raw, err := ParseResponse(body, e.now())
	if err != nil {
		return nil, err
	}
	if raw.AccessToken == nil {
		e.logger.Debug("Token response carries no access_token", "endpoint", endpoint)
	}

	return raw, nil
}

// decodeRetrieveError builds the error for a non-2xx token response. JSON
// bodies are decoded per RFC 6749 section 5.2; form-encoded bodies are
// accepted for older providers.
func decodeRetrieveError(resp *http.Response, body []byte) *oauth2.RetrieveError {
	retrieveErr := &oauth2.RetrieveError{
		Response: resp,
		Body:     body,
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch contentType {
	case "application/x-www-form-urlencoded", "text/plain":
		if values, err := url.ParseQuery(string(body)); err == nil {
			retrieveErr.ErrorCode = values.Get("error")
			retrieveErr.ErrorDescription = values.Get("error_description")
			retrieveErr.ErrorURI = values.Get("error_uri")
		}
	default:
		var payload struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			ErrorURI         string `json:"error_uri"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			retrieveErr.ErrorCode = payload.Error
			retrieveErr.ErrorDescription = payload.ErrorDescription
			retrieveErr.ErrorURI = payload.ErrorURI
		}
	}

	return retrieveErr
}
