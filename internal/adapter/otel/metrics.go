package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "circuitforge"

// Render outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeCompile  = "compile_failed"
	OutcomeCapacity = "capacity"
	OutcomeInternal = "internal"
)

// Metrics holds all CircuitForge metric instruments.
type Metrics struct {
	meter metric.Meter

	RendersStarted metric.Int64Counter
	RendersDone    metric.Int64Counter
	RenderDuration metric.Float64Histogram
	QueueWait      metric.Float64Histogram
	Broadcasts     metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates all metric instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error

	m.RendersStarted, err = meter.Int64Counter("circuitforge.renders.started",
		metric.WithDescription("Number of renders admitted to the pipeline"))
	if err != nil {
		return nil, err
	}

	m.RendersDone, err = meter.Int64Counter("circuitforge.renders.completed",
		metric.WithDescription("Number of renders finished, by outcome"))
	if err != nil {
		return nil, err
	}

	m.RenderDuration, err = meter.Float64Histogram("circuitforge.render.duration_seconds",
		metric.WithDescription("Render duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.QueueWait, err = meter.Float64Histogram("circuitforge.render.queue_wait_seconds",
		metric.WithDescription("Time spent waiting for a render slot"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.Broadcasts, err = meter.Int64Counter("circuitforge.hub.broadcasts",
		metric.WithDescription("Number of update events published"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOutcome counts a finished render and its duration.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.RendersDone.Add(ctx, 1, attrs)
	m.RenderDuration.Record(ctx, seconds, attrs)
}

// ObserveSubscribers registers a gauge reporting the live subscriber count.
func (m *Metrics) ObserveSubscribers(count func() int) error {
	_, err := m.meter.Int64ObservableGauge("circuitforge.hub.subscribers",
		metric.WithDescription("Number of live-update subscribers"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(count()))
			return nil
		}))
	return err
}
