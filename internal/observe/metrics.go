// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge so the standard
// /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/Nitesh0626/callingAgent-backend"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Counters ---

	// FramesInbound counts telephony frames decoded and forwarded to the model.
	FramesInbound metric.Int64Counter

	// ChunksOutbound counts model audio chunks encoded and sent to telephony.
	ChunksOutbound metric.Int64Counter

	// ChunksDropped counts outbound chunks dropped by backpressure and
	// inbound frames dropped while the model session was still connecting.
	// Use with attribute.String("reason", ...).
	ChunksDropped metric.Int64Counter

	// MalformedFrames counts unparseable protocol messages that were
	// dropped without closing the session.
	MalformedFrames metric.Int64Counter

	// Interruptions counts barge-in events.
	Interruptions metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Histograms ---

	// SessionDuration tracks completed call length.
	SessionDuration metric.Float64Histogram

	// ToolDuration tracks tool dispatch latency, store write included.
	ToolDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request handling time.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for tool
// dispatch latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for call
// durations.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("callagent.active_sessions",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	if met.FramesInbound, err = m.Int64Counter("callagent.frames.inbound",
		metric.WithDescription("Telephony frames decoded and forwarded to the model."),
	); err != nil {
		return nil, err
	}
	if met.ChunksOutbound, err = m.Int64Counter("callagent.chunks.outbound",
		metric.WithDescription("Model audio chunks encoded and sent to telephony."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("callagent.chunks.dropped",
		metric.WithDescription("Audio chunks dropped, by reason."),
	); err != nil {
		return nil, err
	}
	if met.MalformedFrames, err = m.Int64Counter("callagent.frames.malformed",
		metric.WithDescription("Unparseable protocol messages dropped."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("callagent.interruptions",
		metric.WithDescription("Barge-in events."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("callagent.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	if met.SessionDuration, err = m.Float64Histogram("callagent.session.duration",
		metric.WithDescription("Completed call length."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("callagent.tool.duration",
		metric.WithDescription("Tool dispatch latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("callagent.http.request.duration",
		metric.WithDescription("HTTP request handling time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordToolCall records one tool invocation with its latency and outcome.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordDrop records a dropped audio chunk with the reason.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.ChunksDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded decrements the gauge and records the call duration.
func (m *Metrics) SessionEnded(ctx context.Context, elapsed time.Duration) {
	m.ActiveSessions.Add(ctx, -1)
	m.SessionDuration.Record(ctx, elapsed.Seconds())
}
