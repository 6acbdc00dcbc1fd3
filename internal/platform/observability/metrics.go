package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/marigold-store/api/internal/platform/observability"

// WebhookMetrics counts webhook processing outcomes per provider.
type WebhookMetrics struct {
	verifications metric.Int64Counter
	outcomes      metric.Int64Counter
}

// NewWebhookMetrics registers the webhook counters on the global meter
// provider. Instrument creation failures degrade to no-op counters.
func NewWebhookMetrics() *WebhookMetrics {
	meter := otel.Meter(meterName)
	verifications, err := meter.Int64Counter("webhook.verifications",
		metric.WithDescription("Webhook signature verification results by provider."))
	if err != nil {
		verifications = nil
	}
	outcomes, err := meter.Int64Counter("webhook.outcomes",
		metric.WithDescription("Webhook processing outcomes by provider."))
	if err != nil {
		outcomes = nil
	}
	return &WebhookMetrics{verifications: verifications, outcomes: outcomes}
}

// RecordVerification counts one verification attempt.
func (m *WebhookMetrics) RecordVerification(ctx context.Context, provider, result string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("result", result),
	))
}

// RecordOutcome counts one processed delivery.
func (m *WebhookMetrics) RecordOutcome(ctx context.Context, provider string, accepted bool) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("accepted", accepted),
	))
}
