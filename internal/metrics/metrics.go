// Package metrics registers the service's OpenTelemetry instruments on the
// global meter provider.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "sms-gateway"

// Metrics holds all instruments. A nil *Metrics records nothing.
type Metrics struct {
	JobsCreated     metric.Int64Counter
	JobsDecided     metric.Int64Counter
	SegmentsDebited metric.Int64Counter
	CreditsFunded   metric.Int64Counter
	FundingOutcomes metric.Int64Counter
	GatewayCallSecs metric.Float64Histogram
}

func New() (*Metrics, error) {
	return NewWithMeter(otel.Meter(meterName))
}

func NewWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.JobsCreated, err = meter.Int64Counter("sms.jobs.created",
		metric.WithDescription("SMS jobs created, by type and approval path"))
	if err != nil {
		return nil, err
	}

	m.JobsDecided, err = meter.Int64Counter("sms.jobs.decided",
		metric.WithDescription("Approval decisions on parked jobs"))
	if err != nil {
		return nil, err
	}

	m.SegmentsDebited, err = meter.Int64Counter("sms.credits.debited",
		metric.WithDescription("SMS credits spent on jobs"))
	if err != nil {
		return nil, err
	}

	m.CreditsFunded, err = meter.Int64Counter("sms.credits.funded",
		metric.WithDescription("SMS credits added by confirmed payments"))
	if err != nil {
		return nil, err
	}

	m.FundingOutcomes, err = meter.Int64Counter("sms.funding.confirmations",
		metric.WithDescription("Funding confirmations by resulting status"))
	if err != nil {
		return nil, err
	}

	m.GatewayCallSecs, err = meter.Float64Histogram("sms.gateway.call_duration_seconds",
		metric.WithDescription("Payment gateway call latency"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) JobCreated(ctx context.Context, jobType string, parked bool, segmentsDebited int64) {
	if m == nil {
		return
	}
	m.JobsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.Bool("pending_approval", parked),
	))
	if segmentsDebited > 0 {
		m.SegmentsDebited.Add(ctx, segmentsDebited)
	}
}

func (m *Metrics) JobDecided(ctx context.Context, decision string, segmentsDebited int64) {
	if m == nil {
		return
	}
	m.JobsDecided.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
	if segmentsDebited > 0 {
		m.SegmentsDebited.Add(ctx, segmentsDebited)
	}
}

func (m *Metrics) FundingConfirmed(ctx context.Context, status string, credits int64) {
	if m == nil {
		return
	}
	m.FundingOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if credits > 0 {
		m.CreditsFunded.Add(ctx, credits)
	}
}

func (m *Metrics) GatewayCall(ctx context.Context, op string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.GatewayCallSecs.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("failed", failed),
	))
}
