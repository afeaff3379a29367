// Package interaction defines the boundary between the coordinator and
// whatever presents the authorization request to the user: a system browser,
// an embedded web view, or a test stub.
//
// A Surface is launched with the request and a DeliverFunc. It must call the
// DeliverFunc exactly once with the Outcome of the interaction: the
// redirect parameters on success, or an error when the user canceled, the
// provider returned an error, or the surface failed.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"

	"github.com/giantswarm/mcp-appauth/request"
)

// ErrUserCanceled is matched by errors.Is when the user dismissed the
// interaction or the provider reported access_denied.
var ErrUserCanceled = errors.New("authorization canceled by user")

// Redirect parameter names.
const (
	ParamCode             = "code"
	ParamState            = "state"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
	ParamErrorURI         = "error_uri"
)

// Outcome is the result of an interaction. Err is set on failure; otherwise
// Code and State carry the authorization response.
type Outcome struct {
	Code  string
	State string

	// AdditionalParameters holds the remaining redirect parameters.
	AdditionalParameters map[string]string

	Err error
}

// DeliverFunc receives the outcome of an interaction.
type DeliverFunc func(Outcome)

// Surface presents an authorization request to the user.
type Surface interface {
	// Launch starts the interaction and returns. An error means the
	// interaction could not be started and deliver will not be called.
	Launch(ctx context.Context, req *request.AuthorizationRequest, deliver DeliverFunc) error
}

// SurfaceFunc adapts a function to the Surface interface.
type SurfaceFunc func(ctx context.Context, req *request.AuthorizationRequest, deliver DeliverFunc) error

// Launch calls f.
func (f SurfaceFunc) Launch(ctx context.Context, req *request.AuthorizationRequest, deliver DeliverFunc) error {
	return f(ctx, req, deliver)
}

// AuthorizationError is an error returned by the provider on the redirect
// (RFC 6749 section 4.1.2.1).
type AuthorizationError struct {
	Code        string
	Description string
	URI         string
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization error %s: %s", e.Code, e.Description)
	}
	return "authorization error " + e.Code
}

// Unwrap returns ErrUserCanceled for access_denied.
func (e *AuthorizationError) Unwrap() error {
	if e.Code == "access_denied" {
		return ErrUserCanceled
	}
	return nil
}

// OutcomeFromValues builds an Outcome from redirect parameters. An error
// parameter yields an Outcome with an *AuthorizationError; the state is kept
// in both cases so the outcome can be correlated.
func OutcomeFromValues(values url.Values) Outcome {
	outcome := Outcome{
		State: values.Get(ParamState),
	}

	if code := values.Get(ParamError); code != "" {
		outcome.Err = &AuthorizationError{
			Code:        code,
			Description: values.Get(ParamErrorDescription),
			URI:         values.Get(ParamErrorURI),
		}
		return outcome
	}

	outcome.Code = values.Get(ParamCode)
	if outcome.Code == "" {
		outcome.Err = fmt.Errorf("redirect is missing the %s parameter", ParamCode)
		return outcome
	}

	extra := make(map[string]string)
	for key := range values {
		switch key {
		case ParamCode, ParamState:
		default:
			extra[key] = values.Get(key)
		}
	}
	if len(extra) > 0 {
		outcome.AdditionalParameters = extra
	}

	return outcome
}

// ParseRedirect parses a redirect URL into an Outcome. Parameters are read
// from the query, or from the fragment when the query is empty.
func ParseRedirect(redirectURL string) (Outcome, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("invalid redirect URL: %w", err)
	}

	values := u.Query()
	if len(values) == 0 && u.Fragment != "" {
		values, err = url.ParseQuery(u.Fragment)
		if err != nil {
			return Outcome{}, fmt.Errorf("invalid redirect fragment: %w", err)
		}
	}

	return OutcomeFromValues(values), nil
}

// Canceled returns an Outcome reporting that the user dismissed the
// interaction.
func Canceled() Outcome {
	return Outcome{Err: ErrUserCanceled}
}

// Response converts a successful outcome into the authorization response to
// req.
func (o Outcome) Response(req *request.AuthorizationRequest) *request.AuthorizationResponse {
	return &request.AuthorizationResponse{
		Request:              req,
		State:                o.State,
		Code:                 o.Code,
		AdditionalParameters: maps.Clone(o.AdditionalParameters),
	}
}
