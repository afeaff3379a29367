package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names
const (
	SpanAuthorize     = "appauth.authorize"
	SpanRefresh       = "appauth.refresh"
	SpanDiscovery     = "appauth.discovery"
	SpanTokenExchange = "appauth.token_exchange"
)

// Common span attribute keys
//
// SECURITY WARNING: Never record actual credential values (access tokens,
// refresh tokens, ID tokens, authorization codes, PKCE verifiers) in traces
// or metrics. Only record metadata such as grant types and error codes.
const (
	AttrOperationID = "appauth.operation_id"
	AttrIssuer      = "appauth.issuer"
	AttrPolicy      = "appauth.connection_policy"
	AttrCategory    = "appauth.error_category"

	// Client identifier (non-secret)
	AttrClientID   = "oauth.client_id"
	AttrScope      = "oauth.scope"
	AttrGrantType  = "oauth.grant_type"
	AttrPKCEMethod = "oauth.pkce.method"

	// OAuth error code returned by the provider
	AttrError = "oauth.error"

	// Token type (Bearer, etc.) - NOT the actual token
	AttrTokenType = "oauth.token_type" //nolint:gosec

	// Whether a refresh token was returned (boolean)
	AttrRefreshIssued = "oauth.refresh_token.issued" //nolint:gosec
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds the attributes shared by authorize and refresh spans (nil-safe)
func AddFlowAttributes(span trace.Span, operationID, issuer, clientID, scope, policy string) {
	SetSpanAttributes(span,
		attribute.String(AttrOperationID, operationID),
		attribute.String(AttrIssuer, issuer),
		attribute.String(AttrPolicy, policy),
	)
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddTokenAttributes adds token endpoint attributes to a span (nil-safe)
func AddTokenAttributes(span trace.Span, grantType, tokenType string, refreshIssued bool) {
	SetSpanAttributes(span,
		attribute.String(AttrGrantType, grantType),
		attribute.Bool(AttrRefreshIssued, refreshIssued),
	)
	if tokenType != "" {
		SetSpanAttributes(span, attribute.String(AttrTokenType, tokenType))
	}
}

// AddPKCEAttributes adds PKCE-related attributes to a span (nil-safe)
func AddPKCEAttributes(span trace.Span, method string) {
	if method != "" {
		SetSpanAttributes(span, attribute.String(AttrPKCEMethod, method))
	}
}

// AddErrorAttributes records the error category and, if known, the OAuth
// error code on a span (nil-safe)
func AddErrorAttributes(span trace.Span, category, oauthError string) {
	if category != "" {
		SetSpanAttributes(span, attribute.String(AttrCategory, category))
	}
	if oauthError != "" {
		SetSpanAttributes(span, attribute.String(AttrError, oauthError))
	}
}
