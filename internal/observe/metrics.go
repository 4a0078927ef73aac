// Package observe provides the service's observability primitives:
// OpenTelemetry metrics, tracing, trace-aware structured logging and the HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus format by [InitProvider]. [DefaultMetrics] returns a
// package-level instance bound to the global meter provider; tests should use
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every instrument in this package.
const meterName = "github.com/apper-canvas/linguaflow-1080p-card"

// Metrics holds all metric instruments of the service. All fields are safe
// for concurrent use.
type Metrics struct {
	// SendCycleDuration covers one learner turn from the user message to the
	// stored coach reply.
	SendCycleDuration metric.Float64Histogram

	// CoachDuration tracks reply generation latency, excluding the thinking
	// delay.
	CoachDuration metric.Float64Histogram

	// MessagesCreated counts stored messages. Attribute: "sender".
	MessagesCreated metric.Int64Counter

	// CorrectionsDetected counts stored corrections. Attribute: "rule".
	CorrectionsDetected metric.Int64Counter

	// CorrectionOutcomes counts lifecycle transitions. Attribute: "outcome"
	// ("accepted" or "rejected").
	CorrectionOutcomes metric.Int64Counter

	// Failures counts failed engine operations. Attributes: "op" and
	// "reason".
	Failures metric.Int64Counter

	// BreakerTransitions counts coach circuit breaker state changes.
	// Attributes: "name" and "to".
	BreakerTransitions metric.Int64Counter

	// ActiveSessions is the number of active conversations.
	ActiveSessions metric.Int64UpDownCounter

	// EventSubscribers is the number of connected event stream clients.
	EventSubscribers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks request latency. Attributes: "method",
	// "route" and "status".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. The send cycle includes
// a thinking delay of a few seconds, so the range extends past typical HTTP
// latencies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SendCycleDuration, err = m.Float64Histogram("linguaflow.send_cycle.duration",
		metric.WithDescription("Duration of a full learner turn including the coach reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CoachDuration, err = m.Float64Histogram("linguaflow.coach.duration",
		metric.WithDescription("Latency of coach reply generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("linguaflow.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.MessagesCreated, err = m.Int64Counter("linguaflow.messages.created",
		metric.WithDescription("Stored messages by sender."),
	); err != nil {
		return nil, err
	}
	if met.CorrectionsDetected, err = m.Int64Counter("linguaflow.corrections.detected",
		metric.WithDescription("Stored corrections by rule label."),
	); err != nil {
		return nil, err
	}
	if met.CorrectionOutcomes, err = m.Int64Counter("linguaflow.corrections.outcomes",
		metric.WithDescription("Accepted and rejected corrections."),
	); err != nil {
		return nil, err
	}
	if met.Failures, err = m.Int64Counter("linguaflow.failures",
		metric.WithDescription("Failed engine operations by operation and reason."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("linguaflow.breaker.transitions",
		metric.WithDescription("Coach circuit breaker state changes."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("linguaflow.active_sessions",
		metric.WithDescription("Conversations with live session state."),
	); err != nil {
		return nil, err
	}
	if met.EventSubscribers, err = m.Int64UpDownCounter("linguaflow.event_subscribers",
		metric.WithDescription("Connected event stream clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. Call [InitProvider] before the first call so
// the instruments bind to the Prometheus exporter.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordMessage counts a stored message.
func (m *Metrics) RecordMessage(ctx context.Context, sender string) {
	m.MessagesCreated.Add(ctx, 1, metric.WithAttributes(Attr("sender", sender)))
}

// RecordCorrection counts a stored correction.
func (m *Metrics) RecordCorrection(ctx context.Context, rule string) {
	m.CorrectionsDetected.Add(ctx, 1, metric.WithAttributes(Attr("rule", rule)))
}

// RecordOutcome counts an accepted or rejected correction.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.CorrectionOutcomes.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordFailure counts a failed operation.
func (m *Metrics) RecordFailure(ctx context.Context, op, reason string) {
	m.Failures.Add(ctx, 1, metric.WithAttributes(Attr("op", op), Attr("reason", reason)))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("name", name), Attr("to", to)))
}
