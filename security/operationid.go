package security

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

// operationIDContextKey is the context key for storing operation IDs
type operationIDContextKey struct{}

// operationIDPattern limits caller-supplied operation IDs to safe log values:
// alphanumeric, hyphens, underscores (1-128 chars).
var operationIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// NewOperationID returns a random operation ID (UUIDv4).
func NewOperationID() string {
	return uuid.NewString()
}

// WithOperationID attaches an operation ID to ctx. The coordinator uses it
// for the authorize or refresh call made with ctx instead of generating one.
func WithOperationID(ctx context.Context, operationID string) context.Context {
	return context.WithValue(ctx, operationIDContextKey{}, operationID)
}

// OperationIDFromContext returns the operation ID attached to ctx, or "".
func OperationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDContextKey{}).(string); ok {
		return id
	}
	return ""
}

// EnsureOperationID returns ctx's operation ID if it is valid, otherwise a
// new one, together with a context carrying it.
func EnsureOperationID(ctx context.Context) (context.Context, string) {
	if id := OperationIDFromContext(ctx); isValidOperationID(id) {
		return ctx, id
	}
	id := NewOperationID()
	return WithOperationID(ctx, id), id
}

// isValidOperationID rejects IDs that could inject content into log lines.
func isValidOperationID(id string) bool {
	return operationIDPattern.MatchString(id)
}
