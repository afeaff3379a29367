// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the
// authorization coordinator.
//
// Metrics and spans are recorded through caller-supplied providers. When
// instrumentation is disabled or no providers are given, no-op providers are
// used and recording has no cost.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-cli",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//		MeterProvider:  meterProvider,  // e.g. an sdk/metric provider
//		TracerProvider: tracerProvider, // e.g. an sdk/trace provider
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	coordinator, err := appauth.New(surface, &appauth.Config{Instrumentation: inst})
//
// # Available Metrics
//
// Flows:
//   - appauth.authorization.started{issuer_host} - Authorization flows started
//   - appauth.authorization.completed{result, category} - Authorization flows settled
//   - appauth.refresh.completed{result, category} - Refresh operations settled
//   - appauth.outcome.discarded{reason} - Outcomes that matched no pending authorization
//   - appauth.authorization.pending - Pending slot occupancy (0 or 1)
//
// Discovery:
//   - appauth.discovery.fetches{issuer_host, result} - Discovery resolutions
//   - appauth.discovery.duration{issuer_host} - Resolution duration in milliseconds
//
// Token endpoint:
//   - appauth.token.exchanges{grant_type, result, error_code} - Token endpoint requests
//   - appauth.token.exchange.duration{grant_type} - Request duration in milliseconds
//
// Security:
//   - appauth.rate_limit.waits{issuer_host, rejected} - Throttled operations
//   - appauth.audit.events.total{event_type} - Audit events
//
// # Distributed Tracing
//
//	appauth.authorize
//	├── appauth.discovery
//	└── appauth.token_exchange
//
//	appauth.refresh
//	├── appauth.discovery
//	└── appauth.token_exchange
//
// # Security Considerations
//
// Tokens, authorization codes, PKCE verifiers and state values are never
// recorded. Spans carry the client ID, scope, grant type, error category and
// the provider's OAuth error code.
package instrumentation
