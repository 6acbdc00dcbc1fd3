package services

import (
	"context"
	"fmt"
	"time"

	"github.com/marigold-store/api/internal/domain"
	"github.com/marigold-store/api/internal/gateways"
	"github.com/marigold-store/api/internal/repositories"
)

// memoryOrderRepo mirrors the repository contract in memory, including the
// transactional semantics: the non-regression rules re-run against current
// state and the decrement flag gates mutation.
type memoryOrderRepo struct {
	order    domain.Order
	product  *domain.Product
	applyErr error

	applyCalls    int
	claimCalls    int
	productWrites int
}

func (m *memoryOrderRepo) GetWithProduct(_ context.Context, orderID string) (domain.Order, *domain.Product, error) {
	if m.order.OrderID != orderID {
		return domain.Order{}, nil, fmt.Errorf("%w: %s", repositories.ErrOrderNotFound, orderID)
	}
	return m.order, m.product, nil
}

func (m *memoryOrderRepo) ApplyReconciliation(_ context.Context, req repositories.ApplyReconciliationRequest) (repositories.ApplyReconciliationResult, error) {
	m.applyCalls++
	if m.applyErr != nil {
		return repositories.ApplyReconciliationResult{}, m.applyErr
	}
	if m.order.OrderID != req.OrderID {
		return repositories.ApplyReconciliationResult{}, fmt.Errorf("%w: %s", repositories.ErrOrderNotFound, req.OrderID)
	}
	prev := m.order.Status
	final, applied := domain.NextStatus(m.order.Status, req.TargetStatus, req.PaymentStatus)
	m.order.Status = final
	m.order.PaymentStatus = req.PaymentStatus
	m.order.TransactionID = req.TransactionID
	if req.Gateway != "" {
		m.order.PaymentMethod = req.Gateway
	}
	if req.GatewayResponse != "" {
		m.order.GatewayResponse = req.GatewayResponse
	}
	m.order.UpdatedAt = req.Now
	return repositories.ApplyReconciliationResult{
		PreviousStatus: prev,
		FinalStatus:    final,
		StatusApplied:  applied,
		Order:          m.order,
	}, nil
}

func (m *memoryOrderRepo) ClaimInventoryDecrement(_ context.Context, orderID string, mutate repositories.InventoryMutator) (repositories.InventoryClaimResult, error) {
	m.claimCalls++
	if m.order.OrderID != orderID {
		return repositories.InventoryClaimResult{}, fmt.Errorf("%w: %s", repositories.ErrOrderNotFound, orderID)
	}
	if m.order.InventoryDecremented {
		return repositories.InventoryClaimResult{AlreadyDecremented: true}, nil
	}
	if err := mutate(m.order, m.product); err != nil {
		return repositories.InventoryClaimResult{}, err
	}
	m.order.InventoryDecremented = true
	m.productWrites++
	return repositories.InventoryClaimResult{Claimed: true, Product: m.product}, nil
}

type stubGatewayConfig struct {
	active string
	err    error
}

func (s *stubGatewayConfig) ActivePaymentMethod(context.Context) (string, error) {
	return s.active, s.err
}

type capturePublisher struct {
	messages []PaymentEventMessage
	err      error
}

func (p *capturePublisher) PublishPaymentEvent(_ context.Context, message PaymentEventMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, message)
	return fmt.Sprintf("msg-%d", len(p.messages)), nil
}

// fakeEvent is a hand-rolled gateways.Event for pipeline tests.
type fakeEvent struct {
	provider  gateways.Provider
	orderID   string
	orderErr  error
	txnID     string
	token     string
	verifyErr error
}

func (f *fakeEvent) Provider() gateways.Provider          { return f.provider }
func (f *fakeEvent) Verify(gateways.Credentials) error    { return f.verifyErr }
func (f *fakeEvent) ResolveOrderID() (string, error)      { return f.orderID, f.orderErr }
func (f *fakeEvent) TransactionID(_ time.Time) string     { return f.txnID }
func (f *fakeEvent) StatusToken() string                  { return f.token }
func (f *fakeEvent) Amount() string                       { return "499.00" }
func (f *fakeEvent) Payload() map[string]any              { return map[string]any{"status": f.token} }
