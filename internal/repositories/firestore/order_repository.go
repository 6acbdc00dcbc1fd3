// Package firestore implements the repository contracts on Cloud Firestore.
// Order documents are keyed by their canonical order id; products by product
// id. Both reconciliation and the inventory claim run inside transactions so
// racing webhook deliveries serialise at the store.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/marigold-store/api/internal/domain"
	pfs "github.com/marigold-store/api/internal/platform/firestore"
	"github.com/marigold-store/api/internal/repositories"
)

const (
	ordersCollection   = "orders"
	productsCollection = "products"
)

type orderDoc struct {
	OrderID              string    `firestore:"order_id"`
	Status               string    `firestore:"status"`
	PaymentStatus        string    `firestore:"payment_status"`
	PaymentMethod        string    `firestore:"payment_method"`
	TransactionID        string    `firestore:"transaction_id"`
	ProductID            string    `firestore:"product_id"`
	Quantity             int       `firestore:"quantity"`
	ProductColors        []string  `firestore:"product_colors"`
	ProductSizes         []string  `firestore:"product_sizes"`
	InventoryDecremented bool      `firestore:"inventory_decremented"`
	GatewayResponse      string    `firestore:"payment_gateway_response"`
	UpdatedAt            time.Time `firestore:"updated_at"`
}

func (d orderDoc) toDomain() domain.Order {
	return domain.Order{
		OrderID:              d.OrderID,
		Status:               domain.OrderStatus(d.Status),
		PaymentStatus:        domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:        d.PaymentMethod,
		TransactionID:        d.TransactionID,
		ProductID:            d.ProductID,
		Quantity:             d.Quantity,
		ProductColors:        d.ProductColors,
		ProductSizes:         d.ProductSizes,
		InventoryDecremented: d.InventoryDecremented,
		GatewayResponse:      d.GatewayResponse,
		UpdatedAt:            d.UpdatedAt,
	}
}

type colorStockDoc struct {
	Color string `firestore:"color"`
	Stock int    `firestore:"stock"`
}

type sizeStockDoc struct {
	Size  string `firestore:"size"`
	Stock int    `firestore:"stock"`
}

type colorSizeStockDoc struct {
	Color string         `firestore:"color"`
	Sizes []sizeStockDoc `firestore:"sizes"`
}

type productDoc struct {
	ColorStock     []colorStockDoc     `firestore:"color_stock"`
	ColorSizeStock []colorSizeStockDoc `firestore:"color_size_stock"`
	TotalStock     int                 `firestore:"total_stock"`
	StockStatus    string              `firestore:"stock_status"`
	UpdatedAt      time.Time           `firestore:"updated_at"`
}

func (d productDoc) toDomain(id string) *domain.Product {
	product := &domain.Product{
		ID:          id,
		TotalStock:  d.TotalStock,
		StockStatus: domain.StockStatus(d.StockStatus),
	}
	for _, cell := range d.ColorStock {
		product.ColorStock = append(product.ColorStock, domain.ColorStock{Color: cell.Color, Stock: cell.Stock})
	}
	for _, variant := range d.ColorSizeStock {
		v := domain.ColorSizeStock{Color: variant.Color}
		for _, cell := range variant.Sizes {
			v.Sizes = append(v.Sizes, domain.SizeStock{Size: cell.Size, Stock: cell.Stock})
		}
		product.ColorSizeStock = append(product.ColorSizeStock, v)
	}
	return product
}

func productDocFrom(product *domain.Product, now time.Time) productDoc {
	doc := productDoc{
		TotalStock:  product.TotalStock,
		StockStatus: string(product.StockStatus),
		UpdatedAt:   now,
	}
	for _, cell := range product.ColorStock {
		doc.ColorStock = append(doc.ColorStock, colorStockDoc{Color: cell.Color, Stock: cell.Stock})
	}
	for _, variant := range product.ColorSizeStock {
		v := colorSizeStockDoc{Color: variant.Color}
		for _, cell := range variant.Sizes {
			v.Sizes = append(v.Sizes, sizeStockDoc{Size: cell.Size, Stock: cell.Stock})
		}
		doc.ColorSizeStock = append(doc.ColorSizeStock, v)
	}
	return doc
}

// OrderRepository implements repositories.OrderRepository.
type OrderRepository struct {
	provider *pfs.Provider
}

// NewOrderRepository constructs the repository.
func NewOrderRepository(provider *pfs.Provider) *OrderRepository {
	return &OrderRepository{provider: provider}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// GetWithProduct implements repositories.OrderRepository.
func (r *OrderRepository) GetWithProduct(ctx context.Context, orderID string) (domain.Order, *domain.Product, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, nil, err
	}

	snap, err := client.Collection(ordersCollection).Doc(orderID).Get(ctx)
	if err != nil {
		wrapped := pfs.WrapError("orders.get", err)
		if pfs.IsNotFound(wrapped) {
			return domain.Order{}, nil, fmt.Errorf("%w: %s", repositories.ErrOrderNotFound, orderID)
		}
		return domain.Order{}, nil, wrapped
	}
	var od orderDoc
	if err := snap.DataTo(&od); err != nil {
		return domain.Order{}, nil, fmt.Errorf("firestore: decode order %s: %w", orderID, err)
	}
	order := od.toDomain()

	if order.ProductID == "" {
		return order, nil, nil
	}
	productSnap, err := client.Collection(productsCollection).Doc(order.ProductID).Get(ctx)
	if err != nil {
		wrapped := pfs.WrapError("products.get", err)
		if pfs.IsNotFound(wrapped) {
			return order, nil, nil
		}
		return order, nil, wrapped
	}
	var pd productDoc
	if err := productSnap.DataTo(&pd); err != nil {
		return order, nil, fmt.Errorf("firestore: decode product %s: %w", order.ProductID, err)
	}
	return order, pd.toDomain(order.ProductID), nil
}

// ApplyReconciliation implements repositories.OrderRepository. The
// non-regression rules are re-evaluated against the document read inside the
// transaction, so the decision applied is always relative to the freshest
// persisted state, not to whatever the caller read earlier.
func (r *OrderRepository) ApplyReconciliation(ctx context.Context, req repositories.ApplyReconciliationRequest) (repositories.ApplyReconciliationResult, error) {
	var result repositories.ApplyReconciliationResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.ApplyReconciliationResult{}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		ref := client.Collection(ordersCollection).Doc(req.OrderID)
		snap, err := tx.Get(ref)
		if err != nil {
			return pfs.WrapError("orders.tx.get", err)
		}
		var od orderDoc
		if err := snap.DataTo(&od); err != nil {
			return fmt.Errorf("firestore: decode order %s: %w", req.OrderID, err)
		}
		order := od.toDomain()

		final, applied := domain.NextStatus(order.Status, req.TargetStatus, req.PaymentStatus)

		updates := []firestore.Update{
			{Path: "payment_status", Value: string(req.PaymentStatus)},
			{Path: "transaction_id", Value: req.TransactionID},
			{Path: "updated_at", Value: req.Now},
		}
		if req.Gateway != "" {
			updates = append(updates, firestore.Update{Path: "payment_method", Value: req.Gateway})
		}
		if req.GatewayResponse != "" {
			updates = append(updates, firestore.Update{Path: "payment_gateway_response", Value: req.GatewayResponse})
		}
		if applied {
			updates = append(updates, firestore.Update{Path: "status", Value: string(final)})
		}
		if err := tx.Update(ref, updates); err != nil {
			return pfs.WrapError("orders.tx.update", err)
		}

		result.PreviousStatus = order.Status
		result.FinalStatus = final
		result.StatusApplied = applied

		order.Status = final
		order.PaymentStatus = req.PaymentStatus
		order.TransactionID = req.TransactionID
		if req.Gateway != "" {
			order.PaymentMethod = req.Gateway
		}
		if req.GatewayResponse != "" {
			order.GatewayResponse = req.GatewayResponse
		}
		order.UpdatedAt = req.Now
		result.Order = order
		return nil
	})
	if err != nil {
		if pfs.IsNotFound(err) {
			return repositories.ApplyReconciliationResult{}, fmt.Errorf("%w: %s", repositories.ErrOrderNotFound, req.OrderID)
		}
		if pfs.IsConflict(err) {
			return repositories.ApplyReconciliationResult{}, fmt.Errorf("%w: %s", repositories.ErrConflict, req.OrderID)
		}
		return repositories.ApplyReconciliationResult{}, err
	}
	return result, nil
}

// ClaimInventoryDecrement implements repositories.OrderRepository. The
// decrement flag is claimed in the same transaction that writes the product
// mutation; a delivery racing with the winner re-reads the claimed flag on
// retry and no-ops.
func (r *OrderRepository) ClaimInventoryDecrement(ctx context.Context, orderID string, mutate repositories.InventoryMutator) (repositories.InventoryClaimResult, error) {
	var result repositories.InventoryClaimResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.InventoryClaimResult{}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		orderRef := client.Collection(ordersCollection).Doc(orderID)
		snap, err := tx.Get(orderRef)
		if err != nil {
			return pfs.WrapError("orders.tx.get", err)
		}
		var od orderDoc
		if err := snap.DataTo(&od); err != nil {
			return fmt.Errorf("firestore: decode order %s: %w", orderID, err)
		}
		order := od.toDomain()

		if order.InventoryDecremented {
			result.AlreadyDecremented = true
			return nil
		}
		if order.ProductID == "" {
			return fmt.Errorf("%w: order %s has no product", repositories.ErrProductNotFound, orderID)
		}

		productRef := client.Collection(productsCollection).Doc(order.ProductID)
		productSnap, err := tx.Get(productRef)
		if err != nil {
			wrapped := pfs.WrapError("products.tx.get", err)
			if pfs.IsNotFound(wrapped) {
				return fmt.Errorf("%w: %s", repositories.ErrProductNotFound, order.ProductID)
			}
			return wrapped
		}
		var pd productDoc
		if err := productSnap.DataTo(&pd); err != nil {
			return fmt.Errorf("firestore: decode product %s: %w", order.ProductID, err)
		}
		product := pd.toDomain(order.ProductID)

		if err := mutate(order, product); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Set(productRef, productDocFrom(product, now)); err != nil {
			return pfs.WrapError("products.tx.set", err)
		}
		if err := tx.Update(orderRef, []firestore.Update{
			{Path: "inventory_decremented", Value: true},
			{Path: "updated_at", Value: now},
		}); err != nil {
			return pfs.WrapError("orders.tx.update", err)
		}

		result.Claimed = true
		result.Product = product
		return nil
	})
	if err != nil {
		if pfs.IsNotFound(err) {
			return repositories.InventoryClaimResult{}, fmt.Errorf("%w: %s", repositories.ErrOrderNotFound, orderID)
		}
		if pfs.IsConflict(err) {
			return repositories.InventoryClaimResult{}, fmt.Errorf("%w: %s", repositories.ErrConflict, orderID)
		}
		return repositories.InventoryClaimResult{}, err
	}
	return result, nil
}
