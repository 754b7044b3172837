package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// UpstreamMetrics records every call the gateway makes to the ERP.
type UpstreamMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewUpstreamMetrics registers the instruments on the global MeterProvider.
func NewUpstreamMetrics() (*UpstreamMetrics, error) {
	meter := otel.Meter("github.com/winfrey-Git/customer-portal/gateway")

	requests, err := meter.Int64Counter("erp.upstream.requests",
		metric.WithDescription("Outbound requests to the ERP by entity and outcome"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("erp.upstream.duration",
		metric.WithDescription("Outbound ERP request latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &UpstreamMetrics{requests: requests, duration: duration}, nil
}

// Record is safe to call on a nil receiver.
func (m *UpstreamMetrics) Record(ctx context.Context, service, target, method string, status int, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("erp.service", service),
		attribute.String("erp.target", target),
		attribute.String("http.request.method", method),
		attribute.Int("http.response.status_code", status),
		attribute.String("outcome", outcome),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
