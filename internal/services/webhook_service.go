package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/marigold-store/api/internal/domain"
	"github.com/marigold-store/api/internal/gateways"
	"github.com/marigold-store/api/internal/platform/observability"
	"github.com/marigold-store/api/internal/repositories"
)

// HashPolicy controls how a hash-signed provider's verification mismatch is
// handled.
type HashPolicy string

const (
	// HashPolicyStrict rejects deliveries whose hash does not verify.
	HashPolicyStrict HashPolicy = "strict"
	// HashPolicyLenient logs the mismatch and continues processing, matching
	// the tolerance some merchants run with for provider-side hash quirks.
	HashPolicyLenient HashPolicy = "lenient"
)

// Outcome is the result of processing one webhook delivery. It always maps
// to an HTTP 200 body; OK distinguishes accepted from rejected deliveries.
type Outcome struct {
	OK            bool
	Message       string
	OrderID       string
	TransactionID string
	PaymentStatus string
	OrderStatus   string
	StatusApplied bool
	Provider      gateways.Provider
}

// WebhookProcessor processes authenticated gateway deliveries.
type WebhookProcessor interface {
	// Process runs the full pipeline for one delivery. generic marks
	// deliveries arriving on the shared endpoint, which additionally
	// cross-checks the active gateway before any mutation.
	Process(ctx context.Context, event gateways.Event, generic bool) Outcome
}

// WebhookServiceDeps wires the webhook pipeline dependencies.
type WebhookServiceDeps struct {
	Orders        repositories.OrderRepository
	GatewayConfig repositories.GatewayConfigRepository
	Inventory     *InventoryService
	Publisher     PaymentEventPublisher
	Credentials   gateways.Credentials
	HashPolicy    HashPolicy
	Metrics       *observability.WebhookMetrics
	Clock         func() time.Time
}

type webhookService struct {
	deps WebhookServiceDeps
}

// NewWebhookService validates the dependencies and returns the processor.
func NewWebhookService(deps WebhookServiceDeps) (WebhookProcessor, error) {
	if deps.Orders == nil {
		return nil, errors.New("services: webhook service requires an order repository")
	}
	if deps.GatewayConfig == nil {
		return nil, errors.New("services: webhook service requires a gateway config repository")
	}
	if deps.Inventory == nil {
		return nil, errors.New("services: webhook service requires the inventory service")
	}
	if deps.HashPolicy == "" {
		deps.HashPolicy = HashPolicyStrict
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &webhookService{deps: deps}, nil
}

func (s *webhookService) Process(ctx context.Context, event gateways.Event, generic bool) Outcome {
	provider := event.Provider()
	deliveryID := ulid.Make().String()
	logger := observability.FromContext(ctx).With(
		zap.String("delivery_id", deliveryID),
		zap.String("provider", string(provider)),
	)
	ctx = observability.WithLogger(ctx, logger)

	reject := func(message string) Outcome {
		s.deps.Metrics.RecordOutcome(ctx, string(provider), false)
		return Outcome{OK: false, Message: message, Provider: provider}
	}

	// The shared endpoint refuses deliveries from gateways that are not the
	// active primary, so a stale second integration cannot corrupt orders.
	if generic {
		active, err := s.deps.GatewayConfig.ActivePaymentMethod(ctx)
		if err != nil {
			logger.Error("active gateway lookup failed", zap.Error(err))
			return reject("Payment configuration unavailable")
		}
		if active != "" && active != string(provider) {
			logger.Warn("gateway mismatch", zap.String("active", active))
			return reject("Gateway mismatch")
		}
	}

	if !s.verify(ctx, event) {
		return reject("Invalid signature")
	}

	orderID, err := event.ResolveOrderID()
	if err != nil {
		logger.Warn("order id resolution failed", zap.Error(err))
		if errors.Is(err, gateways.ErrOrderIDInvalid) {
			return reject("Invalid order ID format")
		}
		return reject("Order id missing in webhook")
	}
	logger = logger.With(zap.String("order_id", orderID))
	ctx = observability.WithLogger(ctx, logger)

	now := s.deps.Clock()
	decision := ReconcileStatus(event.StatusToken())
	transactionID := event.TransactionID(now)

	gatewayResponse := ""
	if raw, err := json.Marshal(event.Payload()); err == nil {
		gatewayResponse = string(raw)
	}

	applied, err := s.deps.Orders.ApplyReconciliation(ctx, repositories.ApplyReconciliationRequest{
		OrderID:         orderID,
		TargetStatus:    decision.TargetStatus,
		PaymentStatus:   decision.PaymentStatus,
		TransactionID:   transactionID,
		Gateway:         string(provider),
		GatewayResponse: gatewayResponse,
		Now:             now,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			logger.Warn("order not found")
			return reject("Order not found")
		}
		logger.Error("reconciliation apply failed", zap.Error(err))
		return reject("Order update failed: " + err.Error())
	}
	if !applied.StatusApplied {
		logger.Info("status regression prevented",
			zap.String("current", string(applied.PreviousStatus)),
			zap.String("target", string(decision.TargetStatus)),
		)
	}

	if decision.PaymentStatus == domain.PaymentStatusPaid {
		claim, err := s.deps.Inventory.DecrementForOrder(ctx, orderID)
		switch {
		case err != nil:
			// Stock bookkeeping must not bounce the gateway; the order is
			// already reconciled and the claim can be retried out of band.
			logger.Error("inventory decrement failed", zap.Error(err))
		case claim.Claimed:
			s.publish(ctx, PaymentEventMessage{
				EventID:       ulid.Make().String(),
				Type:          EventInventoryDecremented,
				OrderID:       orderID,
				Provider:      string(provider),
				PaymentStatus: string(decision.PaymentStatus),
				OrderStatus:   string(applied.FinalStatus),
				TransactionID: transactionID,
				OccurredAt:    now,
			})
		}
	}

	s.publish(ctx, PaymentEventMessage{
		EventID:       deliveryID,
		Type:          EventPaymentReconciled,
		OrderID:       orderID,
		Provider:      string(provider),
		PaymentStatus: string(decision.PaymentStatus),
		OrderStatus:   string(applied.FinalStatus),
		TransactionID: transactionID,
		OccurredAt:    now,
	})

	s.deps.Metrics.RecordOutcome(ctx, string(provider), true)
	return Outcome{
		OK:            true,
		Message:       "Webhook processed successfully",
		OrderID:       orderID,
		TransactionID: transactionID,
		PaymentStatus: string(decision.PaymentStatus),
		OrderStatus:   string(applied.FinalStatus),
		StatusApplied: applied.StatusApplied,
		Provider:      provider,
	}
}

// verify runs signature verification and applies the hash policy. It returns
// false when processing must stop.
func (s *webhookService) verify(ctx context.Context, event gateways.Event) bool {
	logger := observability.FromContext(ctx)
	err := event.Verify(s.deps.Credentials)
	switch {
	case err == nil:
		s.deps.Metrics.RecordVerification(ctx, string(event.Provider()), "ok")
		return true
	case errors.Is(err, gateways.ErrVerifierUnconfigured):
		logger.Warn("signature verification skipped", zap.Error(err))
		s.deps.Metrics.RecordVerification(ctx, string(event.Provider()), "skipped")
		return true
	case errors.Is(err, gateways.ErrSignatureMismatch):
		s.deps.Metrics.RecordVerification(ctx, string(event.Provider()), "mismatch")
		if event.Provider() == gateways.ProviderEasebuzz && s.deps.HashPolicy == HashPolicyLenient {
			logger.Warn("hash mismatch tolerated by lenient policy", zap.Error(err))
			return true
		}
		logger.Warn("signature verification failed", zap.Error(err))
		return false
	default:
		logger.Warn("signature verification failed", zap.Error(err))
		s.deps.Metrics.RecordVerification(ctx, string(event.Provider()), "error")
		return false
	}
}

// publish sends the reconciliation event when a publisher is configured.
func (s *webhookService) publish(ctx context.Context, message PaymentEventMessage) {
	if s.deps.Publisher == nil {
		return
	}
	if _, err := s.deps.Publisher.PublishPaymentEvent(ctx, message); err != nil {
		observability.FromContext(ctx).Error("payment event publish failed", zap.Error(err))
	}
}
