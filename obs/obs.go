// Package obs is the engine's ambient observability surface: a
// tracer provider and a small set of Prometheus counters/histograms,
// both wired through OpenTelemetry. The engine's packages record
// metrics only; none of them starts a span.
// Trimmed to the exporters reachable without a network transport —
// the stdout trace exporter and an in-process Prometheus registry —
// since the core has no networking transport of its own.
package obs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope every engine span is
// recorded under.
const TracerName = "sagaengine"

// Provider bundles the tracer and meter providers the engine needs.
// Callers obtain one at process start and pass it (or its Tracer/Meter)
// into the components that want spans and metrics.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Metrics        *Metrics
}

// NewStdoutProvider wires a TracerProvider that writes spans to
// stdout (no collector dependency, matching the core's no-networking
// Non-goal) and a MeterProvider backed by an in-process Prometheus
// registry. Call Shutdown before process exit to flush the trace
// exporter.
func NewStdoutProvider(ctx context.Context) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	reader, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(TracerName))
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	return &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		Tracer:         tp.Tracer(TracerName),
		Metrics:        m,
	}, nil
}

// MetricsHandler returns the standard Prometheus scrape handler. The
// otel Prometheus exporter registers its collectors against the
// default registry, so any host that wants to expose /metrics over
// HTTP can mount this directly — the engine itself never listens.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes the trace exporter and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		return p.meterProvider.Shutdown(ctx)
	}
	return nil
}

// Metrics is the engine's fixed set of counters and histograms:
// interaction operations, anti-cheat claim outcomes, and replay cost.
type Metrics struct {
	InteractionsTotal    metric.Int64Counter
	ClaimsAccepted       metric.Int64Counter
	ClaimsRejected       metric.Int64Counter
	CheatFlagsRaised     metric.Int64Counter
	ReplayDuration       metric.Float64Histogram
	TransactionsAppended metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	interactionsTotal, err := meter.Int64Counter(
		"sagaengine_interactions_total",
		metric.WithDescription("Total number of interaction operations (trigger updates, feature interactions, dialogue node visits)"),
	)
	if err != nil {
		return nil, err
	}

	claimsAccepted, err := meter.Int64Counter(
		"sagaengine_anticheat_claims_accepted_total",
		metric.WithDescription("Total number of anti-cheat claims accepted by the real-time validator"),
	)
	if err != nil {
		return nil, err
	}

	claimsRejected, err := meter.Int64Counter(
		"sagaengine_anticheat_claims_rejected_total",
		metric.WithDescription("Total number of anti-cheat claims rejected by the real-time validator"),
	)
	if err != nil {
		return nil, err
	}

	cheatFlagsRaised, err := meter.Int64Counter(
		"sagaengine_anticheat_flags_raised_total",
		metric.WithDescription("Total number of CheatFlags raised by the retrospective analyzer"),
	)
	if err != nil {
		return nil, err
	}

	replayDuration, err := meter.Float64Histogram(
		"sagaengine_replay_duration_seconds",
		metric.WithDescription("Time spent folding a SagaInstance's committed transactions into SagaState"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	transactionsAppended, err := meter.Int64Counter(
		"sagaengine_transactions_appended_total",
		metric.WithDescription("Total number of transactions appended to any SagaInstance log"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		InteractionsTotal:    interactionsTotal,
		ClaimsAccepted:       claimsAccepted,
		ClaimsRejected:       claimsRejected,
		CheatFlagsRaised:     cheatFlagsRaised,
		ReplayDuration:       replayDuration,
		TransactionsAppended: transactionsAppended,
	}, nil
}
