package security

// Event type constants for security audit logging.
const (
	// Authorization flow events

	// EventAuthorizationFlowStarted is logged when an authorization request is launched
	EventAuthorizationFlowStarted = "authorization_flow_started"

	// EventOutcomeDiscarded is logged when an interaction outcome has no matching pending authorization
	EventOutcomeDiscarded = "outcome_discarded"

	// Token lifecycle events

	// EventTokenIssued is logged when an authorization code is exchanged for tokens
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when tokens are refreshed using a refresh token
	EventTokenRefreshed = "token_refreshed"

	// Security violation events

	// EventAuthFailure is logged when an authorize or refresh operation fails
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when the per-issuer throttle rejects an operation
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventNonceMismatch is logged when an ID token nonce does not match the request
	EventNonceMismatch = "nonce_mismatch"
)
