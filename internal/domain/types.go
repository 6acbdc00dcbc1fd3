package domain

import (
	"regexp"
	"time"
)

// OrderStatus enumerates fulfilment states an order moves through.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusConfirmed   OrderStatus = "confirmed"
	OrderStatusProcessing  OrderStatus = "processing"
	OrderStatusReadyToShip OrderStatus = "ready_to_ship"
	OrderStatusShipped     OrderStatus = "shipped"
	OrderStatusDelivered   OrderStatus = "delivered"
	OrderStatusCancelled   OrderStatus = "cancelled"
	OrderStatusRefunded    OrderStatus = "refunded"
	OrderStatusFailed      OrderStatus = "failed"
)

// PaymentStatus enumerates the normalised payment states shared across gateways.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// StockStatus describes derived product availability.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// lowStockThreshold is the inclusive total below which a product is flagged low.
const lowStockThreshold = 5

// statusHierarchy ranks order statuses for regression checks. Higher means
// further through fulfilment. Terminal failure states share rank zero with
// pending so a recovered payment can still confirm them.
var statusHierarchy = map[OrderStatus]int{
	OrderStatusPending:     0,
	OrderStatusFailed:      0,
	OrderStatusCancelled:   0,
	OrderStatusConfirmed:   1,
	OrderStatusProcessing:  2,
	OrderStatusReadyToShip: 3,
	OrderStatusShipped:     4,
	OrderStatusDelivered:   5,
	OrderStatusRefunded:    6,
}

// StatusLevel returns the hierarchy rank for the given status. Unknown
// statuses rank zero, matching pending.
func StatusLevel(status OrderStatus) int {
	return statusHierarchy[status]
}

var orderIDPattern = regexp.MustCompile(`^[A-Z]{3}_[A-Z]\d+$`)

// ValidOrderID reports whether the value matches the canonical order id
// format, e.g. OCT_P428.
func ValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

// Order is the canonical order record owned by the order store. Webhook
// reconciliation only reads it and patches the payment-related fields.
type Order struct {
	OrderID              string
	Status               OrderStatus
	PaymentStatus        PaymentStatus
	PaymentMethod        string
	TransactionID        string
	ProductID            string
	Quantity             int
	ProductColors        []string
	ProductSizes         []string
	InventoryDecremented bool
	GatewayResponse      string
	UpdatedAt            time.Time
}

// ColorStock is one cell of a flat (colour-only) stock list.
type ColorStock struct {
	Color string
	Stock int
}

// SizeStock is one size cell inside a colour variant.
type SizeStock struct {
	Size  string
	Stock int
}

// ColorSizeStock is one colour variant holding per-size stock cells.
type ColorSizeStock struct {
	Color string
	Sizes []SizeStock
}

// Product carries the two mutually exclusive stock shapes. Variant products
// populate ColorSizeStock; flat products populate ColorStock; products with
// no colour breakdown at all track only TotalStock.
type Product struct {
	ID             string
	ColorStock     []ColorStock
	ColorSizeStock []ColorSizeStock
	TotalStock     int
	StockStatus    StockStatus
}

// HasVariantStock reports whether the product uses per-colour-per-size cells.
func (p *Product) HasVariantStock() bool {
	return p != nil && len(p.ColorSizeStock) > 0
}

// StockStatusFor derives the availability flag from a total. The flag is
// never stored independently of the numeric total.
func StockStatusFor(total int) StockStatus {
	switch {
	case total <= 0:
		return StockStatusOutOfStock
	case total <= lowStockThreshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// RecalculateStock recomputes TotalStock and StockStatus from the current
// cells. Products without any colour breakdown keep their raw counter.
func (p *Product) RecalculateStock() {
	if p == nil {
		return
	}
	switch {
	case len(p.ColorSizeStock) > 0:
		total := 0
		for _, variant := range p.ColorSizeStock {
			for _, cell := range variant.Sizes {
				if cell.Stock > 0 {
					total += cell.Stock
				}
			}
		}
		p.TotalStock = total
	case len(p.ColorStock) > 0:
		total := 0
		for _, cell := range p.ColorStock {
			if cell.Stock > 0 {
				total += cell.Stock
			}
		}
		p.TotalStock = total
	}
	if p.TotalStock < 0 {
		p.TotalStock = 0
	}
	p.StockStatus = StockStatusFor(p.TotalStock)
}

// NextStatus decides whether a reconciled target status may be applied over
// the currently persisted one. It returns the status to store and whether the
// target was accepted. Payment status and transaction id are always applied
// by the caller regardless of the decision.
//
// The target is accepted when any of:
//  1. it ranks strictly higher than the current status;
//  2. the order sits at pending/failed and a successful payment confirms it;
//  3. the payment outcome is failed or refunded, which must always be
//     recorded even on an advanced order.
//
// Otherwise the current status is kept, so late or duplicate success
// callbacks can never regress fulfilment progress.
func NextStatus(current OrderStatus, target OrderStatus, payment PaymentStatus) (OrderStatus, bool) {
	if current == "" {
		current = OrderStatusPending
	}
	if StatusLevel(target) > StatusLevel(current) {
		return target, true
	}
	if (current == OrderStatusPending || current == OrderStatusFailed) &&
		target == OrderStatusConfirmed && payment == PaymentStatusPaid {
		return target, true
	}
	if payment == PaymentStatusFailed || payment == PaymentStatusRefunded {
		return target, true
	}
	return current, false
}
