// Package observability wires tracing (OpenTelemetry) and metrics
// (Prometheus) once per process and hands small, narrow accessors to
// the HTTP surface and the scheduler, instead of a global singleton.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Manager owns the process-wide TracerProvider, MeterProvider, and
// Prometheus registry. One Manager is constructed in cmd/raro and
// threaded through Server and Kernel construction.
type Manager struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	invocations   *prometheus.CounterVec
	invocationDur *prometheus.HistogramVec
}

// NewManager constructs tracing and metrics for serviceName. There is
// no OTLP exporter wired here (the pack's corpus carries
// otlptracegrpc, but it is not among this module's dependencies): the
// TracerProvider still samples and records spans so in-process
// instrumentation calls (otel.Tracer(...).Start) are real spans with a
// resource attached, they are simply not shipped anywhere without an
// exporter configured by the deployer. Prometheus is the metrics
// system actually exposed over HTTP, via the standard
// prometheus/client_golang registry and promhttp handler.
func NewManager(ctx context.Context, serviceName string) (*Manager, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	reg := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raro",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests served by the runtime kernel's HTTP surface.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "raro",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	invocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raro",
		Subsystem: "scheduler",
		Name:      "invocations_total",
		Help:      "Total agent invocations, by outcome.",
	}, []string{"status"})

	invocationDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "raro",
		Subsystem: "scheduler",
		Name:      "invocation_latency_seconds",
		Help:      "Agent invocation latency as reported by the LLM adapter.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"model"})

	reg.MustRegister(httpRequests, httpDuration, invocations, invocationDur)

	return &Manager{
		tracerProvider: tp,
		meterProvider:  mp,
		registry:       reg,
		httpRequests:   httpRequests,
		httpDuration:   httpDuration,
		invocations:    invocations,
		invocationDur:  invocationDur,
	}, nil
}

// Tracer returns a named tracer for creating spans.
func (m *Manager) Tracer(name string) trace.Tracer {
	if m == nil {
		return otel.Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// MetricsHandler exposes the Prometheus registry for a dedicated
// /metrics listener (ServerConfig.MetricsAddr).
func (m *Manager) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served HTTP request's outcome and
// latency.
func (m *Manager) RecordHTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, fmt.Sprintf("%d", status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordInvocation records one finished agent invocation's outcome and
// adapter-reported latency.
func (m *Manager) RecordInvocation(status, model string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(status).Inc()
	m.invocationDur.WithLabelValues(model).Observe(latencySeconds)
}

// Shutdown flushes and releases the tracer and meter providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if err := m.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("observability: shutdown errors: %v", errs)
	}
	return nil
}
