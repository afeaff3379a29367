package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// EventHook observes audit events after they are logged. It is used to feed
// audit counters into metrics.
type EventHook func(ctx context.Context, eventType string)

// Auditor handles security event logging. Client identifiers are hashed
// before they reach the log and credential values are never accepted.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	onEvent EventHook
	now     func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// OnEvent registers a hook invoked for every logged event. It must be set
// before the auditor is shared between goroutines.
func (a *Auditor) OnEvent(hook EventHook) {
	a.onEvent = hook
}

// Event represents a security audit event
type Event struct {
	Type        string
	OperationID string
	Issuer      string
	ClientID    string
	Details     map[string]any
	Timestamp   time.Time
}

// LogEvent logs a security event with the client identifier hashed
func (a *Auditor) LogEvent(ctx context.Context, event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()
	if event.OperationID == "" {
		event.OperationID = OperationIDFromContext(ctx)
	}

	a.logger.InfoContext(ctx, "security_audit",
		"event_type", event.Type,
		"operation_id", event.OperationID,
		"issuer", event.Issuer,
		"client_id_hash", hashForLogging(event.ClientID),
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.onEvent != nil {
		a.onEvent(ctx, event.Type)
	}
}

// LogAuthorizationStarted logs when an authorization request is handed to
// the interaction surface
func (a *Auditor) LogAuthorizationStarted(ctx context.Context, issuer, clientID, scope string) {
	a.LogEvent(ctx, Event{
		Type:     EventAuthorizationFlowStarted,
		Issuer:   issuer,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenIssued logs when an authorization code is exchanged for tokens
func (a *Auditor) LogTokenIssued(ctx context.Context, issuer, clientID, scope string, refreshIssued bool) {
	a.LogEvent(ctx, Event{
		Type:     EventTokenIssued,
		Issuer:   issuer,
		ClientID: clientID,
		Details: map[string]any{
			"scope":          scope,
			"refresh_issued": refreshIssued,
		},
	})
}

// LogTokenRefreshed logs when a refresh token grant succeeds. rotated reports
// whether the endpoint returned a new refresh token.
func (a *Auditor) LogTokenRefreshed(ctx context.Context, issuer, clientID string, rotated bool) {
	a.LogEvent(ctx, Event{
		Type:     EventTokenRefreshed,
		Issuer:   issuer,
		ClientID: clientID,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogAuthFailure logs a failed authorize or refresh operation
func (a *Auditor) LogAuthFailure(ctx context.Context, issuer, clientID, category, reason string) {
	a.LogEvent(ctx, Event{
		Type:     EventAuthFailure,
		Issuer:   issuer,
		ClientID: clientID,
		Details: map[string]any{
			"category": category,
			"reason":   reason,
		},
	})
}

// LogRateLimitExceeded logs an operation rejected by the throttle
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, issuer string) {
	a.LogEvent(ctx, Event{
		Type:   EventRateLimitExceeded,
		Issuer: issuer,
	})
}

// LogOutcomeDiscarded logs an interaction outcome that matched no pending
// authorization, such as a late or replayed redirect.
func (a *Auditor) LogOutcomeDiscarded(ctx context.Context, reason string) {
	a.LogEvent(ctx, Event{
		Type: EventOutcomeDiscarded,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogNonceMismatch logs an ID token whose nonce did not match the request
func (a *Auditor) LogNonceMismatch(ctx context.Context, issuer, clientID string) {
	a.LogEvent(ctx, Event{
		Type:     EventNonceMismatch,
		Issuer:   issuer,
		ClientID: clientID,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
