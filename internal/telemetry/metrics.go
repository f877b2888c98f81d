package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Withdraw outcomes recorded on lnurl.withdraw.requests.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// WithdrawMetrics counts withdraw callbacks and paid volume.
type WithdrawMetrics struct {
	requests metric.Int64Counter
	paidMsat metric.Int64Counter
}

// NewWithdrawMetrics registers the withdraw instruments on meter.
func NewWithdrawMetrics(meter metric.Meter) (*WithdrawMetrics, error) {
	requests, err := meter.Int64Counter(
		"lnurl.withdraw.requests",
		metric.WithDescription("LNURL-withdraw callbacks by phase and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	paid, err := meter.Int64Counter(
		"lnurl.withdraw.paid_msat",
		metric.WithDescription("Millisatoshis paid out through withdraw sessions"),
		metric.WithUnit("msat"),
	)
	if err != nil {
		return nil, err
	}

	return &WithdrawMetrics{requests: requests, paidMsat: paid}, nil
}

// RecordRequest counts one callback. code is the error code, empty on success.
func (m *WithdrawMetrics) RecordRequest(ctx context.Context, phase, code string) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if code != "" {
		outcome = OutcomeError
	}
	attrs := []attribute.KeyValue{
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	}
	if code != "" {
		attrs = append(attrs, attribute.String("error.code", code))
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaid adds a settled payment amount.
func (m *WithdrawMetrics) RecordPaid(ctx context.Context, amountMsat int64, backend string) {
	if m == nil {
		return
	}
	m.paidMsat.Add(ctx, amountMsat, metric.WithAttributes(attribute.String("backend", backend)))
}

// RateMetrics counts exchange-rate cache hits by layer.
type RateMetrics struct {
	lookups metric.Int64Counter
}

// NewRateMetrics registers the rate lookup counter on meter.
func NewRateMetrics(meter metric.Meter) (*RateMetrics, error) {
	lookups, err := meter.Int64Counter(
		"lnurl.rates.lookups",
		metric.WithDescription("Exchange-rate lookups by the layer that answered"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}
	return &RateMetrics{lookups: lookups}, nil
}

// RecordLookup counts a lookup answered by source (l1, l2 or provider).
func (m *RateMetrics) RecordLookup(ctx context.Context, provider, source string) {
	if m == nil {
		return
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("source", source),
	))
}
