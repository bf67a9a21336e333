package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "a2a-validator"

// Metrics holds the validator's metric instruments. It satisfies the session
// package's Stats interface; all methods tolerate a nil receiver so callers
// never need a telemetry-enabled branch.
type Metrics struct {
	sessions     metric.Int64UpDownCounter
	messages     metric.Int64Counter
	sendDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.sessions, err = meter.Int64UpDownCounter("a2a_validator.sessions.active",
		metric.WithDescription("Number of live validator sessions"))
	if err != nil {
		return nil, err
	}

	m.messages, err = meter.Int64Counter("a2a_validator.messages.dispatched",
		metric.WithDescription("Messages dispatched to agents"))
	if err != nil {
		return nil, err
	}

	m.sendDuration, err = meter.Float64Histogram("a2a_validator.send.duration_seconds",
		metric.WithDescription("Full dispatch duration including streamed events"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SessionOpened records one new session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Add(context.Background(), 1)
}

// SessionClosed records one closed session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Add(context.Background(), -1)
}

// MessageDispatched records one completed dispatch with its outcome.
func (m *Metrics) MessageDispatched(elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("failed", failed))
	m.messages.Add(context.Background(), 1, attrs)
	m.sendDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}
