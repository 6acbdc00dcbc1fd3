package services

import (
	"testing"

	"github.com/marigold-store/api/internal/domain"
)

func TestReconcileStatus(t *testing.T) {
	cases := []struct {
		token       string
		wantPayment domain.PaymentStatus
		wantTarget  domain.OrderStatus
	}{
		{"success", domain.PaymentStatusPaid, domain.OrderStatusConfirmed},
		{"paid", domain.PaymentStatusPaid, domain.OrderStatusConfirmed},
		{"COMPLETED", domain.PaymentStatusPaid, domain.OrderStatusConfirmed},
		{"Success", domain.PaymentStatusPaid, domain.OrderStatusConfirmed},
		{"autorefunded", domain.PaymentStatusRefunded, domain.OrderStatusRefunded},
		{"refund", domain.PaymentStatusRefunded, domain.OrderStatusRefunded},
		{"failed", domain.PaymentStatusFailed, domain.OrderStatusCancelled},
		{"DECLINED", domain.PaymentStatusFailed, domain.OrderStatusCancelled},
		{"error", domain.PaymentStatusFailed, domain.OrderStatusCancelled},
		{"pending", domain.PaymentStatusPending, domain.OrderStatusPending},
		{"", domain.PaymentStatusPending, domain.OrderStatusPending},
		{"something-new", domain.PaymentStatusPending, domain.OrderStatusPending},
	}
	for _, tc := range cases {
		got := ReconcileStatus(tc.token)
		if got.PaymentStatus != tc.wantPayment || got.TargetStatus != tc.wantTarget {
			t.Fatalf("ReconcileStatus(%q) = (%s, %s), want (%s, %s)",
				tc.token, got.PaymentStatus, got.TargetStatus, tc.wantPayment, tc.wantTarget)
		}
	}
}
