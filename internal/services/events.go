package services

import (
	"context"
	"time"
)

// Payment event types published after successful reconciliation.
const (
	EventPaymentReconciled    = "payments.reconciled"
	EventInventoryDecremented = "inventory.decremented"
)

// PaymentEventMessage is the payload published to the events topic.
type PaymentEventMessage struct {
	EventID       string    `json:"eventId"`
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	Provider      string    `json:"provider"`
	PaymentStatus string    `json:"paymentStatus"`
	OrderStatus   string    `json:"orderStatus"`
	TransactionID string    `json:"transactionId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// PaymentEventPublisher delivers reconciliation events to downstream
// consumers. Publishing is best effort; failures never fail the webhook.
type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, message PaymentEventMessage) (string, error)
}
