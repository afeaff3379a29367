package instrumentation

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "default config",
			config: Config{},
		},
		{
			name: "with service name and version",
			config: Config{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
		},
		{
			name: "enabled without providers",
			config: Config{
				Enabled: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			if inst.Meter("coordinator") == nil {
				t.Error("Meter('coordinator') returned nil")
			}
			if inst.Tracer("coordinator") == nil {
				t.Error("Tracer('coordinator') returned nil")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.TracerProvider() == nil || inst.MeterProvider() == nil {
				t.Error("providers must never be nil")
			}
			if inst.Resource() == nil {
				t.Error("Resource() returned nil")
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.config.ServiceName != DefaultServiceName {
		t.Errorf("ServiceName = %q, want %q", inst.config.ServiceName, DefaultServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
}

func TestNew_UsesProvidedTracerProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	inst, err := New(Config{Enabled: true, TracerProvider: tp, MeterProvider: noop.NewMeterProvider()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, span := inst.Tracer("coordinator").Start(context.Background(), SpanAuthorize)
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(ended))
	}
	if ended[0].Name() != SpanAuthorize {
		t.Errorf("span name = %q, want %q", ended[0].Name(), SpanAuthorize)
	}
	if got := ended[0].InstrumentationScope().Name; got != "github.com/giantswarm/mcp-appauth/coordinator" {
		t.Errorf("scope = %q", got)
	}
}

func TestNew_DisabledIgnoresProviders(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	inst, err := New(Config{Enabled: false, TracerProvider: tp})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, span := inst.Tracer("coordinator").Start(context.Background(), SpanRefresh)
	span.End()

	if n := len(recorder.Ended()); n != 0 {
		t.Errorf("disabled instrumentation recorded %d spans", n)
	}
}

func TestNewDisabled(t *testing.T) {
	inst := NewDisabled()
	if inst == nil || inst.Metrics() == nil {
		t.Fatal("NewDisabled() must return usable instrumentation")
	}
}

func TestRegisterPendingCallback(t *testing.T) {
	inst := NewDisabled()

	if _, err := inst.RegisterPendingCallback(nil); err == nil {
		t.Error("expected error for nil callback")
	}

	unregister, err := inst.RegisterPendingCallback(func() int64 { return 1 })
	if err != nil {
		t.Fatalf("RegisterPendingCallback() error = %v", err)
	}
	if err := unregister(); err != nil {
		t.Errorf("unregister() error = %v", err)
	}
}

func TestInstrumentation_ConcurrentAccess(t *testing.T) {
	inst := NewDisabled()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = inst.Meter("coordinator")
			_ = inst.Tracer("token")
			inst.Metrics().RecordAuthorizationStarted(context.Background(), "issuer.example.com")
		}()
	}
	wg.Wait()
}

func TestShutdown_Idempotent(t *testing.T) {
	inst := NewDisabled()

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
