package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result attribute values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all metric instruments for the coordinator
type Metrics struct {
	// Flow Metrics
	AuthorizationStarted   metric.Int64Counter
	AuthorizationCompleted metric.Int64Counter
	RefreshCompleted       metric.Int64Counter
	OutcomesDiscarded      metric.Int64Counter
	PendingAuthorizations  metric.Int64ObservableGauge

	// Discovery Metrics
	DiscoveryFetches  metric.Int64Counter
	DiscoveryDuration metric.Float64Histogram

	// Token Endpoint Metrics
	TokenExchanges        metric.Int64Counter
	TokenExchangeDuration metric.Float64Histogram

	// Security Metrics
	RateLimitWaits   metric.Int64Counter
	AuditEventsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	coordinatorMeter := inst.Meter("coordinator")
	discoveryMeter := inst.Meter("discovery")
	tokenMeter := inst.Meter("token")
	securityMeter := inst.Meter("security")

	var err error

	// Flow Metrics
	m.AuthorizationStarted, err = coordinatorMeter.Int64Counter(
		"appauth.authorization.started",
		metric.WithDescription("Number of authorization flows started"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.started counter: %w", err)
	}

	m.AuthorizationCompleted, err = coordinatorMeter.Int64Counter(
		"appauth.authorization.completed",
		metric.WithDescription("Number of authorization flows settled, by result and error category"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.completed counter: %w", err)
	}

	m.RefreshCompleted, err = coordinatorMeter.Int64Counter(
		"appauth.refresh.completed",
		metric.WithDescription("Number of refresh operations settled, by result and error category"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh.completed counter: %w", err)
	}

	m.OutcomesDiscarded, err = coordinatorMeter.Int64Counter(
		"appauth.outcome.discarded",
		metric.WithDescription("Number of interaction outcomes that matched no pending authorization"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome.discarded counter: %w", err)
	}

	m.PendingAuthorizations, err = coordinatorMeter.Int64ObservableGauge(
		"appauth.authorization.pending",
		metric.WithDescription("Whether an authorization is awaiting interaction (0 or 1)"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.pending gauge: %w", err)
	}

	// Discovery Metrics
	m.DiscoveryFetches, err = discoveryMeter.Int64Counter(
		"appauth.discovery.fetches",
		metric.WithDescription("Number of discovery document resolutions"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery.fetches counter: %w", err)
	}

	m.DiscoveryDuration, err = discoveryMeter.Float64Histogram(
		"appauth.discovery.duration",
		metric.WithDescription("Discovery resolution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery.duration histogram: %w", err)
	}

	// Token Endpoint Metrics
	m.TokenExchanges, err = tokenMeter.Int64Counter(
		"appauth.token.exchanges",
		metric.WithDescription("Number of token endpoint requests, by grant type and result"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.exchanges counter: %w", err)
	}

	m.TokenExchangeDuration, err = tokenMeter.Float64Histogram(
		"appauth.token.exchange.duration",
		metric.WithDescription("Token endpoint request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.exchange.duration histogram: %w", err)
	}

	// Security Metrics
	m.RateLimitWaits, err = securityMeter.Int64Counter(
		"appauth.rate_limit.waits",
		metric.WithDescription("Number of operations delayed or rejected by the per-issuer throttle"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.waits counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"appauth.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	return m, nil
}

// resultAttrs builds the result and, on failure, category attributes.
func resultAttrs(category string, err error) []attribute.KeyValue {
	if err == nil {
		return []attribute.KeyValue{attribute.String("result", ResultSuccess)}
	}
	return []attribute.KeyValue{
		attribute.String("result", ResultFailure),
		attribute.String("category", category),
	}
}

// RecordAuthorizationStarted records an authorization flow start
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, issuerHost string) {
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("issuer_host", issuerHost),
	))
}

// RecordAuthorizationCompleted records a settled authorization. category is
// the error category name and is ignored when err is nil.
func (m *Metrics) RecordAuthorizationCompleted(ctx context.Context, category string, err error) {
	m.AuthorizationCompleted.Add(ctx, 1, metric.WithAttributes(resultAttrs(category, err)...))
}

// RecordRefreshCompleted records a settled refresh
func (m *Metrics) RecordRefreshCompleted(ctx context.Context, category string, err error) {
	m.RefreshCompleted.Add(ctx, 1, metric.WithAttributes(resultAttrs(category, err)...))
}

// RecordOutcomeDiscarded records an outcome that was not delivered to a caller
func (m *Metrics) RecordOutcomeDiscarded(ctx context.Context, reason string) {
	m.OutcomesDiscarded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordDiscovery records a discovery resolution
func (m *Metrics) RecordDiscovery(ctx context.Context, issuerHost string, durationMs float64, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}

	m.DiscoveryFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("issuer_host", issuerHost),
		attribute.String("result", result),
	))
	m.DiscoveryDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("issuer_host", issuerHost),
	))
}

// RecordTokenExchange records a token endpoint request. errorCode is the
// OAuth error code returned by the endpoint, if any.
func (m *Metrics) RecordTokenExchange(ctx context.Context, grantType, errorCode string, durationMs float64, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("grant_type", grantType),
	}
	if err == nil {
		attrs = append(attrs, attribute.String("result", ResultSuccess))
	} else {
		attrs = append(attrs, attribute.String("result", ResultFailure))
		if errorCode != "" {
			attrs = append(attrs, attribute.String("error_code", errorCode))
		}
	}

	m.TokenExchanges.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.TokenExchangeDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("grant_type", grantType),
	))
}

// RecordRateLimitWait records a throttled operation
func (m *Metrics) RecordRateLimitWait(ctx context.Context, issuerHost string, rejected bool) {
	m.RateLimitWaits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("issuer_host", issuerHost),
		attribute.Bool("rejected", rejected),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
