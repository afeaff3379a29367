package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty
	DefaultServiceName = "appauth"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// instrumentationPrefix prefixes meter and tracer names
	instrumentationPrefix = "github.com/giantswarm/mcp-appauth/"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service (e.g., "appauth", "my-cli")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether instrumentation is active.
	// When false, no-op providers are used regardless of the providers below.
	Enabled bool

	// MeterProvider receives the coordinator's metrics.
	// If nil while Enabled, a no-op provider is used.
	MeterProvider metric.MeterProvider

	// TracerProvider receives the coordinator's spans.
	// If nil while Enabled, a no-op provider is used.
	TracerProvider trace.TracerProvider

	// Resource allows custom resource attributes
	// If nil, default resource is created with service name and version
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	// Shutdown functions (must be registered during New() only, not thread-safe after initialization)
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	var res *resource.Resource
	var err error
	if config.Resource != nil {
		res = config.Resource
	} else {
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}
	inst.initializeProviders()

	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// NewDisabled returns instrumentation backed by no-op providers.
func NewDisabled() *Instrumentation {
	inst, err := New(Config{})
	if err != nil {
		// No-op providers and the default resource cannot fail.
		panic(fmt.Sprintf("instrumentation: %v", err))
	}
	return inst
}

// initializeProviders selects the configured providers, falling back to
// no-op providers when disabled or unset.
func (i *Instrumentation) initializeProviders() {
	i.meterProvider = noop.NewMeterProvider()
	i.tracerProvider = tracenoop.NewTracerProvider()

	if !i.config.Enabled {
		return
	}
	if i.config.MeterProvider != nil {
		i.meterProvider = i.config.MeterProvider
	}
	if i.config.TracerProvider != nil {
		i.tracerProvider = i.config.TracerProvider
	}
}

// Shutdown runs the registered shutdown functions once. The providers passed
// in Config are owned by the caller and are not shut down here.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil {
				// Capture first error, but continue shutting down other components
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope
// Scopes are layer names like "coordinator", "discovery", "token"
// The full name will be "github.com/giantswarm/mcp-appauth/{scope}"
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(instrumentationPrefix + scope)
}

// Tracer returns a named tracer for the given scope
// The full name will be "github.com/giantswarm/mcp-appauth/{scope}"
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(instrumentationPrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// Resource returns the resource describing this service
func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// GaugeCallback returns the current value of an observed quantity
type GaugeCallback func() int64

// RegisterPendingCallback reports pending authorization slot occupancy
// (0 or 1) through the appauth.authorization.pending gauge.
// The returned function unregisters the callback.
func (i *Instrumentation) RegisterPendingCallback(pending GaugeCallback) (func() error, error) {
	if pending == nil {
		return nil, fmt.Errorf("pending callback is required")
	}

	reg, err := i.Meter("coordinator").RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(i.metrics.PendingAuthorizations, pending())
			return nil
		},
		i.metrics.PendingAuthorizations,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register pending callback: %w", err)
	}

	return reg.Unregister, nil
}
