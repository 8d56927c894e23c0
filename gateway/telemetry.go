package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AttemptOutcome is the outcome field of a telemetry event.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeError   AttemptOutcome = "error"
)

// AttemptEvent is the structured per-attempt event §4.6 specifies. One
// event is emitted per provider call made inside Router.Generate;
// Router.Stream emits none.
type AttemptEvent struct {
	RequestID     string
	Provider      string
	ProviderModel string
	LatencyMS     int64
	Tokens        int
	CostUSD       float64
	Outcome       AttemptOutcome
	ErrorCode     string
	FallbackCount int
	PromptChars   int
	Raw           map[string]any
}

// Telemetry fans each AttemptEvent out to a zap structured log line, a
// Prometheus counter/histogram pair (§4.6.1), and the OTel metric
// instruments; tracing spans are opened separately by StartSpan, not by
// Emit — one call site, multiple sinks, following the
// teacher's internal/metrics.Collector + internal/telemetry pairing.
type Telemetry struct {
	logger        *zap.Logger
	tracer        trace.Tracer
	attemptsTotal *prometheus.CounterVec
	latencyMillis *prometheus.HistogramVec
	policy        *PolicyEngine

	// otelAttempts/otelLatency/otelCost mirror attemptsTotal/
	// latencyMillis onto the OTel metrics API, so a collector pointed at
	// NewTelemetryProviders' OTLP exporter sees the same attempt data
	// Prometheus scrapes locally. Built from otel.Meter(...), so they
	// stay safe no-ops (recording into the discard aggregator) until a
	// real MeterProvider is installed.
	otelAttempts metric.Int64Counter
	otelLatency  metric.Float64Histogram
	otelCost     metric.Float64Counter
}

// NewTelemetry builds a Telemetry sink. logger may be nil (falls back to
// zap.NewNop()); policy may be nil (no PII redaction is applied to log
// fields).
//
// namespace is prefixed onto the Prometheus metric names, following
// internal/metrics.Collector's NewCollector(namespace, ...) pattern: the
// empty string keeps the production names (llmgateway_attempts_total,
// llmgateway_latency_ms) unprefixed, while callers that construct more
// than one Telemetry in a single process (tests, multi-tenant embedding)
// pass distinct namespaces so promauto doesn't register the same
// collector twice against the default registerer.
func NewTelemetry(logger *zap.Logger, policy *PolicyEngine, namespace string) *Telemetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter("github.com/arclight/llmgateway/gateway")
	otelAttempts, _ := meter.Int64Counter("llmgateway.attempts",
		metric.WithDescription("Total number of provider attempts by outcome."))
	otelLatency, _ := meter.Float64Histogram("llmgateway.latency_ms",
		metric.WithDescription("Per-attempt provider latency in milliseconds."))
	otelCost, _ := meter.Float64Counter("llmgateway.cost_usd",
		metric.WithDescription("Estimated cost in USD accrued per provider attempt."))

	return &Telemetry{
		logger:       logger.With(zap.String("component", "gateway")),
		tracer:       otel.Tracer("github.com/arclight/llmgateway/gateway"),
		policy:       policy,
		otelAttempts: otelAttempts,
		otelLatency:  otelLatency,
		otelCost:     otelCost,
		attemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llmgateway_attempts_total",
				Help:      "Total number of provider attempts by outcome.",
			},
			[]string{"provider", "outcome"},
		),
		latencyMillis: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llmgateway_latency_ms",
				Help:      "Per-attempt provider latency in milliseconds.",
				Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
			},
			[]string{"provider"},
		),
	}
}

// defaultTelemetrySeq hands out unique namespaces to Router's nil-telemetry
// convenience path (see NewRouter), so constructing many Routers in one
// process — as the test suite does — never trips promauto's "duplicate
// metrics collector registration attempted" panic against the default
// registerer.
var defaultTelemetrySeq uint64

func nextDefaultTelemetryNamespace() string {
	seq := atomic.AddUint64(&defaultTelemetrySeq, 1)
	return fmt.Sprintf("llmgatewayrouter%d", seq)
}

// StartSpan opens a tracing span around one Generate/Stream call. When no
// tracer is registered globally, otel's default no-op tracer is used and
// behavior is unchanged, per §4.6 ("absence of a tracer must not change
// behavior").
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// Emit records one AttemptEvent to all configured sinks.
func (t *Telemetry) Emit(ev AttemptEvent) {
	t.attemptsTotal.WithLabelValues(ev.Provider, string(ev.Outcome)).Inc()
	t.latencyMillis.WithLabelValues(ev.Provider).Observe(float64(ev.LatencyMS))

	attrs := metric.WithAttributes(
		attribute.String("provider", ev.Provider),
		attribute.String("outcome", string(ev.Outcome)),
	)
	ctx := context.Background()
	t.otelAttempts.Add(ctx, 1, attrs)
	t.otelLatency.Record(ctx, float64(ev.LatencyMS), attrs)
	if ev.CostUSD > 0 {
		t.otelCost.Add(ctx, ev.CostUSD, attrs)
	}

	fields := []zap.Field{
		zap.String("request_id", ev.RequestID),
		zap.String("provider", ev.Provider),
		zap.String("provider_model", ev.ProviderModel),
		zap.Int64("latency_ms", ev.LatencyMS),
		zap.Int("tokens", ev.Tokens),
		zap.Float64("cost_usd", ev.CostUSD),
		zap.String("outcome", string(ev.Outcome)),
		zap.Int("fallback_count", ev.FallbackCount),
	}
	if ev.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", ev.ErrorCode))
	}
	if raw := MaskCredentials(ev.Raw); raw != nil {
		fields = append(fields, zap.Any("raw", raw))
	}

	switch ev.Outcome {
	case OutcomeSuccess:
		t.logger.Info("provider attempt", fields...)
	default:
		t.logger.Warn("provider attempt", fields...)
	}
}
