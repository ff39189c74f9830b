package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"jobpulse/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the OpenTelemetry tracer and meter providers and their
// exporters for the life of the process.
type Manager struct {
	cfg            config.ObservabilityConfig
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        *Metrics
	shutdownFuncs  []func(context.Context) error
	prometheusMux  *http.ServeMux
}

// NewManager sets up tracing and metrics per configuration. A disabled
// configuration yields a manager whose tracers and meters are no-ops.
func NewManager(cfg config.ObservabilityConfig, version string) (*Manager, error) {
	if !cfg.Enabled {
		return &Manager{cfg: cfg}, nil
	}

	m := &Manager{
		cfg:           cfg,
		shutdownFuncs: make([]func(context.Context) error, 0),
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(versionOr(cfg.ServiceVersion, version)),
			semconv.ServiceInstanceID(cfg.ServiceInstance),
		))
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	if err := m.setupTracing(res); err != nil {
		return nil, err
	}
	if err := m.setupMetrics(res); err != nil {
		return nil, err
	}

	metrics, err := newMetrics(m.meterProvider.Meter("jobpulse"))
	if err != nil {
		return nil, err
	}
	m.metrics = metrics

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return m, nil
}

func versionOr(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func (m *Manager) setupTracing(res *resource.Resource) error {
	var exporters []trace.SpanExporter

	if m.cfg.ConsoleOutput {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}

	if m.cfg.OTLP.Enabled {
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpointURL(m.cfg.OTLP.Endpoint),
		}
		if m.cfg.OTLP.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(m.cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(m.cfg.OTLP.Headers))
		}
		exp, err := otlptracehttp.New(context.Background(), opts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}

	tpOpts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(m.cfg.SampleRate)),
	}
	for _, exp := range exporters {
		tpOpts = append(tpOpts, trace.WithBatcher(exp))
	}

	m.tracerProvider = trace.NewTracerProvider(tpOpts...)
	m.shutdownFuncs = append(m.shutdownFuncs, m.tracerProvider.Shutdown)
	otel.SetTracerProvider(m.tracerProvider)
	return nil
}

func (m *Manager) setupMetrics(res *resource.Resource) error {
	var readers []sdkmetric.Reader

	promReader, promMux, err := SetupPrometheusExporter(m.cfg.Prometheus)
	if err != nil {
		return err
	}
	if promReader != nil {
		readers = append(readers, promReader)
		m.prometheusMux = promMux
	}

	if m.cfg.ConsoleOutput {
		exp, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(15*time.Second)))
	}

	if m.cfg.OTLP.Enabled {
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpointURL(m.cfg.OTLP.Endpoint),
		}
		if m.cfg.OTLP.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(context.Background(), opts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp))
	}

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, reader := range readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
	}

	m.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
	m.shutdownFuncs = append(m.shutdownFuncs, m.meterProvider.Shutdown)
	otel.SetMeterProvider(m.meterProvider)
	return nil
}

// StartPrometheus serves the metrics endpoint on its dedicated port.
func (m *Manager) StartPrometheus() {
	if m.prometheusMux != nil {
		StartPrometheusServer(m.prometheusMux, m.cfg.Prometheus.Port)
	}
}

// Tracer returns a tracer, no-op when observability is disabled.
func (m *Manager) Tracer(name string) oteltrace.Tracer {
	if m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// GetMetrics returns the custom metrics set; nil-safe for callers when
// observability is disabled.
func (m *Manager) GetMetrics() *Metrics {
	return m.metrics
}

// Shutdown flushes and stops all exporters.
func (m *Manager) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range m.shutdownFuncs {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
