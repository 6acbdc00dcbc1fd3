package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/marigold-store/api/internal/domain"
	"github.com/marigold-store/api/internal/platform/observability"
	"github.com/marigold-store/api/internal/repositories"
)

// allocationPolicy names the stock policy surfaced in logs: allocation clamps
// at zero and never creates backorders.
const allocationPolicy = "clamp-at-zero"

// ErrNothingToDecrement indicates the order carries no product reference.
var ErrNothingToDecrement = errors.New("services: order has no product to decrement")

// InventoryService performs the exactly-once stock decrement for paid orders.
type InventoryService struct {
	orders repositories.OrderRepository
}

// NewInventoryService constructs the service.
func NewInventoryService(orders repositories.OrderRepository) (*InventoryService, error) {
	if orders == nil {
		return nil, errors.New("services: inventory service requires an order repository")
	}
	return &InventoryService{orders: orders}, nil
}

// DecrementForOrder claims the order's decrement flag and applies the stock
// mutation in one storage transaction. Calling it again after a successful
// claim is a no-op.
func (s *InventoryService) DecrementForOrder(ctx context.Context, orderID string) (repositories.InventoryClaimResult, error) {
	logger := observability.FromContext(ctx).With(zap.String("order_id", orderID))

	result, err := s.orders.ClaimInventoryDecrement(ctx, orderID, func(order domain.Order, product *domain.Product) error {
		if product == nil {
			return fmt.Errorf("%w: %s", ErrNothingToDecrement, orderID)
		}
		qty := order.Quantity
		if qty < 1 {
			qty = 1
		}

		var allocated int
		if product.HasVariantStock() {
			allocated = decrementVariant(product, order.ProductColors, order.ProductSizes, qty)
		} else {
			allocated = decrementFlat(product, order.ProductColors, qty)
		}
		product.RecalculateStock()

		if allocated < qty {
			logger.Warn("insufficient stock for full decrement",
				zap.String("product_id", product.ID),
				zap.Int("requested", qty),
				zap.Int("allocated", allocated),
				zap.String("policy", allocationPolicy),
			)
		}
		return nil
	})
	if err != nil {
		return repositories.InventoryClaimResult{}, err
	}

	if result.AlreadyDecremented {
		logger.Info("inventory already decremented, skipping")
		return result, nil
	}
	if result.Claimed && result.Product != nil {
		logger.Info("inventory decremented",
			zap.String("product_id", result.Product.ID),
			zap.Int("total_stock", result.Product.TotalStock),
			zap.String("stock_status", string(result.Product.StockStatus)),
		)
	}
	return result, nil
}

// decrementVariant allocates qty across colour/size cells. Cells matching the
// ordered colours and sizes are drained first; whatever remains is taken from
// any cell that still has stock. Returns the units actually allocated.
func decrementVariant(product *domain.Product, colors, sizes []string, qty int) int {
	wantColor := toSet(colors)
	wantSize := toSet(sizes)
	remaining := qty

	for pass := 0; pass < 2 && remaining > 0; pass++ {
		for vi := range product.ColorSizeStock {
			variant := &product.ColorSizeStock[vi]
			for si := range variant.Sizes {
				if remaining == 0 {
					return qty
				}
				cell := &variant.Sizes[si]
				if cell.Stock <= 0 {
					continue
				}
				if pass == 0 && !(matches(wantColor, variant.Color) && matches(wantSize, cell.Size)) {
					continue
				}
				take := cell.Stock
				if take > remaining {
					take = remaining
				}
				cell.Stock -= take
				remaining -= take
			}
		}
	}
	return qty - remaining
}

// decrementFlat allocates qty across colour cells, ordered colours first,
// then any colour with stock. Products without colour cells fall back to the
// raw total counter. Returns the units actually allocated.
func decrementFlat(product *domain.Product, colors []string, qty int) int {
	if len(product.ColorStock) == 0 {
		take := product.TotalStock
		if take > qty {
			take = qty
		}
		if take < 0 {
			take = 0
		}
		product.TotalStock -= take
		return take
	}

	wantColor := toSet(colors)
	remaining := qty
	for pass := 0; pass < 2 && remaining > 0; pass++ {
		for i := range product.ColorStock {
			if remaining == 0 {
				break
			}
			cell := &product.ColorStock[i]
			if cell.Stock <= 0 {
				continue
			}
			if pass == 0 && !matches(wantColor, cell.Color) {
				continue
			}
			take := cell.Stock
			if take > remaining {
				take = remaining
			}
			cell.Stock -= take
			remaining -= take
		}
	}
	return qty - remaining
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

// matches treats an empty selection as matching everything, so orders without
// an explicit colour or size choice drain cells in listed order. Gateway and
// catalogue casing differ, so the comparison folds case.
func matches(set map[string]struct{}, value string) bool {
	if set == nil {
		return true
	}
	_, ok := set[strings.ToLower(value)]
	return ok
}
