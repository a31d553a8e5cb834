package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "triggergate"

// Metrics holds all gateway metric instruments.
type Metrics struct {
	MessagesReceived   metric.Int64Counter
	SignatureFailures  metric.Int64Counter
	MessagesDropped    metric.Int64Counter
	MessagesDispatched metric.Int64Counter
	PolicyDecisions    metric.Int64Counter
	ApprovalsResolved  metric.Int64Counter
	IngestDuration     metric.Float64Histogram
	DispatchDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.MessagesReceived, err = meter.Int64Counter("triggergate.messages.received",
		metric.WithDescription("Inbound deliveries accepted for processing"))
	if err != nil {
		return nil, err
	}

	m.SignatureFailures, err = meter.Int64Counter("triggergate.signatures.failed",
		metric.WithDescription("Deliveries rejected by signature verification"))
	if err != nil {
		return nil, err
	}

	m.MessagesDropped, err = meter.Int64Counter("triggergate.messages.dropped",
		metric.WithDescription("Deliveries dropped before dispatch"))
	if err != nil {
		return nil, err
	}

	m.MessagesDispatched, err = meter.Int64Counter("triggergate.messages.dispatched",
		metric.WithDescription("Commands published to the dispatch queue"))
	if err != nil {
		return nil, err
	}

	m.PolicyDecisions, err = meter.Int64Counter("triggergate.policy.decisions",
		metric.WithDescription("Policy evaluations by outcome"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsResolved, err = meter.Int64Counter("triggergate.approvals.resolved",
		metric.WithDescription("Approval requests reaching a terminal state"))
	if err != nil {
		return nil, err
	}

	m.IngestDuration, err = meter.Float64Histogram("triggergate.ingest.duration_seconds",
		metric.WithDescription("Time from delivery receipt to decision"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("triggergate.dispatch.duration_seconds",
		metric.WithDescription("Time to publish a command to the queue"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
