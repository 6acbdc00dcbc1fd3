// Package repositories declares the persistence contracts the webhook
// pipeline depends on. Implementations live in subpackages; services only
// see these interfaces.
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/marigold-store/api/internal/domain"
)

var (
	// ErrOrderNotFound indicates no order exists for the resolved order id.
	ErrOrderNotFound = errors.New("repositories: order not found")
	// ErrProductNotFound indicates the order references a missing product.
	ErrProductNotFound = errors.New("repositories: product not found")
	// ErrConflict indicates a transactional update lost against a concurrent
	// writer and was not retried to completion.
	ErrConflict = errors.New("repositories: concurrent update conflict")
)

// ApplyReconciliationRequest carries one reconciliation decision to persist.
// The storage layer re-evaluates the non-regression rules against the
// just-read document inside its transaction, so a stale caller decision can
// never clobber a more advanced order.
type ApplyReconciliationRequest struct {
	OrderID         string
	TargetStatus    domain.OrderStatus
	PaymentStatus   domain.PaymentStatus
	TransactionID   string
	Gateway         string
	GatewayResponse string
	Now             time.Time
}

// ApplyReconciliationResult reports what the transaction actually wrote.
type ApplyReconciliationResult struct {
	PreviousStatus domain.OrderStatus
	FinalStatus    domain.OrderStatus
	// StatusApplied is false when the non-regression rules kept the current
	// status. Payment status and transaction id are written either way.
	StatusApplied bool
	Order         domain.Order
}

// InventoryMutator applies the stock decrement to the product in place. It
// runs inside the storage transaction and must be side-effect free apart
// from mutating its arguments.
type InventoryMutator func(order domain.Order, product *domain.Product) error

// InventoryClaimResult reports the outcome of a decrement claim.
type InventoryClaimResult struct {
	// Claimed is true when this call won the flag and wrote the mutation.
	Claimed bool
	// AlreadyDecremented is true when a previous webhook holds the flag.
	AlreadyDecremented bool
	// Product is the post-mutation product state when Claimed.
	Product *domain.Product
}

// OrderRepository is the order/product store contract.
type OrderRepository interface {
	// GetWithProduct loads an order and its product. The product pointer is
	// nil when the order has no product reference.
	GetWithProduct(ctx context.Context, orderID string) (domain.Order, *domain.Product, error)

	// ApplyReconciliation atomically applies a reconciliation decision,
	// re-checking the non-regression rules inside the transaction.
	ApplyReconciliation(ctx context.Context, req ApplyReconciliationRequest) (ApplyReconciliationResult, error)

	// ClaimInventoryDecrement atomically claims the order's decrement flag
	// and, when won, runs mutate and persists the product. A second caller
	// observes the claimed flag and gets AlreadyDecremented.
	ClaimInventoryDecrement(ctx context.Context, orderID string, mutate InventoryMutator) (InventoryClaimResult, error)
}

// GatewayConfigRepository exposes the payment gateway configuration.
type GatewayConfigRepository interface {
	// ActivePaymentMethod returns the provider key of the enabled primary
	// gateway, re-read per request rather than cached.
	ActivePaymentMethod(ctx context.Context) (string, error)
}
