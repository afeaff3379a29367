package appauth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-appauth/interaction"
)

// ErrorCategory tags the stage at which an operation failed.
type ErrorCategory string

// Error categories as stable string tags
const (
	// CategoryConfigurationFetchFailed: the discovery document could not be
	// resolved. The interaction surface was never invoked.
	CategoryConfigurationFetchFailed ErrorCategory = "ConfigurationFetchFailed"

	// CategoryAuthenticationFailed: the interaction surface reported an error,
	// including user cancellation, or the authorization was superseded,
	// rejected, canceled or could not be launched.
	CategoryAuthenticationFailed ErrorCategory = "AuthenticationFailed"

	// CategoryTokenExchangeFailed: the token endpoint rejected the code or
	// refresh token, could not be reached, or returned an unusable response.
	CategoryTokenExchangeFailed ErrorCategory = "TokenExchangeFailed"

	// CategoryInvalidRequest: the caller's arguments were rejected before any
	// network activity.
	CategoryInvalidRequest ErrorCategory = "InvalidRequest"
)

// Messages carried by FlowError for each failure site
const (
	MessageFetchConfiguration = "Failed to fetch configuration"
	MessageAuthenticate       = "Failed to authenticate"
	MessageExchangeToken      = "Failed exchange token"
	MessageRefreshToken       = "Failed refresh token"
	MessageInvalidRequest     = "Invalid request"
)

var (
	// ErrNoPendingAuthorization is returned by Deliver and HandleRedirect when
	// no authorization is awaiting an outcome.
	ErrNoPendingAuthorization = errors.New("no authorization is pending")

	// ErrStateMismatch is returned by Deliver and HandleRedirect when the
	// outcome's state does not match the pending authorization. The outcome is
	// discarded and the pending authorization keeps waiting.
	ErrStateMismatch = errors.New("outcome state does not match the pending authorization")

	// ErrAuthorizationInProgress is the cause of an authorize call rejected
	// under OverlapReject.
	ErrAuthorizationInProgress = errors.New("another authorization is already pending")

	// ErrSuperseded is the cause of an authorize call replaced by a newer one
	// under OverlapSupersede.
	ErrSuperseded = errors.New("authorization superseded by a newer request")

	// ErrCoordinatorClosed is returned by operations on a closed Coordinator.
	ErrCoordinatorClosed = errors.New("coordinator is closed")
)

// FlowError is the single error type returned by Authorize and Refresh.
// The cause is always kept, so errors.Is and errors.As reach it.
type FlowError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

// Error implements the error interface
func (e *FlowError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
}

// Unwrap returns the cause
func (e *FlowError) Unwrap() error {
	return e.Err
}

// classify builds a FlowError. It never drops cause.
func classify(category ErrorCategory, message string, cause error) *FlowError {
	return &FlowError{
		Category: category,
		Message:  message,
		Err:      cause,
	}
}

// CategoryOf returns the category of the FlowError in err's chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Category, true
	}
	return "", false
}

// IsConfigurationFetchFailed reports whether err is a discovery failure.
func IsConfigurationFetchFailed(err error) bool {
	category, ok := CategoryOf(err)
	return ok && category == CategoryConfigurationFetchFailed
}

// IsAuthenticationFailed reports whether err is an interaction failure.
func IsAuthenticationFailed(err error) bool {
	category, ok := CategoryOf(err)
	return ok && category == CategoryAuthenticationFailed
}

// IsTokenExchangeFailed reports whether err is a token endpoint failure.
func IsTokenExchangeFailed(err error) bool {
	category, ok := CategoryOf(err)
	return ok && category == CategoryTokenExchangeFailed
}

// IsInvalidRequest reports whether err is an argument validation failure.
func IsInvalidRequest(err error) bool {
	category, ok := CategoryOf(err)
	return ok && category == CategoryInvalidRequest
}

// OAuthErrorCode returns the OAuth error code carried by err, from either a
// token endpoint response or an authorization redirect, or "".
func OAuthErrorCode(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode
	}
	var authErr *interaction.AuthorizationError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
