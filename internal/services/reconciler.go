package services

import (
	"strings"

	"github.com/marigold-store/api/internal/domain"
)

// Decision is the normalised outcome of a raw gateway status token.
type Decision struct {
	PaymentStatus domain.PaymentStatus
	TargetStatus  domain.OrderStatus
}

// ReconcileStatus maps a raw provider status token onto the payment status
// and the order status it argues for. Tokens are compared case-insensitively
// because providers disagree on casing. Unknown tokens resolve to pending so
// an unrecognised callback can never fail or confirm an order by accident.
func ReconcileStatus(token string) Decision {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "success", "paid", "completed":
		return Decision{PaymentStatus: domain.PaymentStatusPaid, TargetStatus: domain.OrderStatusConfirmed}
	case "autorefunded", "refunded", "refund":
		return Decision{PaymentStatus: domain.PaymentStatusRefunded, TargetStatus: domain.OrderStatusRefunded}
	case "failed", "failure", "declined", "error":
		return Decision{PaymentStatus: domain.PaymentStatusFailed, TargetStatus: domain.OrderStatusCancelled}
	default:
		return Decision{PaymentStatus: domain.PaymentStatusPending, TargetStatus: domain.OrderStatusPending}
	}
}
