// Package observe provides the pilot's observability primitives: OpenTelemetry
// metric instruments and a Prometheus exporter bridge so the arbitration
// engine's counters can be scraped from the ops endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pilot metrics.
const meterName = "github.com/teslashibe/go-tello"

// Metrics holds the metric instruments recorded by the engine and its
// collaborators. All fields are safe for concurrent use.
type Metrics struct {
	// Events counts symbolic events entering the queue. Attributes:
	//   attribute.String("kind", ...)
	Events metric.Int64Counter

	// Commits counts debounced command commits. Attributes:
	//   attribute.String("modality", ...)
	Commits metric.Int64Counter

	// Dispatches counts dispatcher outcomes. Attributes:
	//   attribute.String("action", ...), attribute.String("status", ...)
	Dispatches metric.Int64Counter

	// Drops counts events that never reached the transport. Attributes:
	//   attribute.String("reason", ...)
	Drops metric.Int64Counter

	// VisionQueryDuration tracks one vision query round-trip.
	VisionQueryDuration metric.Float64Histogram

	// QueueDepth tracks the engine queue occupancy.
	QueueDepth metric.Int64UpDownCounter
}

// visionBuckets covers vision-language backend latencies, which run from
// sub-second local models to minutes on a loaded host.
var visionBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] over the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Events, err = m.Int64Counter("tello.events",
		metric.WithDescription("Symbolic events enqueued, by kind."),
	); err != nil {
		return nil, err
	}
	if met.Commits, err = m.Int64Counter("tello.commits",
		metric.WithDescription("Debounced command commits, by modality."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("tello.dispatches",
		metric.WithDescription("Dispatcher outcomes, by action and status."),
	); err != nil {
		return nil, err
	}
	if met.Drops, err = m.Int64Counter("tello.drops",
		metric.WithDescription("Events and commands dropped before the transport, by reason."),
	); err != nil {
		return nil, err
	}
	if met.VisionQueryDuration, err = m.Float64Histogram("tello.vision.query.duration",
		metric.WithDescription("Vision-language query round-trip latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(visionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("tello.engine.queue_depth",
		metric.WithDescription("Events waiting in the engine queue."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call over the global meter provider. Panics if instrument creation
// fails, which cannot happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDispatch increments the dispatch counter with the standard attribute
// set.
func (m *Metrics) RecordDispatch(ctx context.Context, action, status string) {
	m.Dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	))
}

// RecordDrop increments the drop counter for one reason.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.Drops.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
