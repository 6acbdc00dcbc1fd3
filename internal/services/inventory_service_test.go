package services

import (
	"context"
	"testing"

	"github.com/marigold-store/api/internal/domain"
)

func newInventoryFixture(t *testing.T, order domain.Order, product *domain.Product) (*InventoryService, *memoryOrderRepo) {
	t.Helper()
	repo := &memoryOrderRepo{order: order, product: product}
	svc, err := NewInventoryService(repo)
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}
	return svc, repo
}

func TestDecrementFlatFallbackAllocation(t *testing.T) {
	order := domain.Order{
		OrderID:       "OCT_P428",
		ProductID:     "prod-1",
		Quantity:      1,
		ProductColors: []string{"blue"},
	}
	product := &domain.Product{
		ID:         "prod-1",
		ColorStock: []domain.ColorStock{{Color: "red", Stock: 2}, {Color: "blue", Stock: 0}},
	}
	svc, repo := newInventoryFixture(t, order, product)

	result, err := svc.DecrementForOrder(context.Background(), "OCT_P428")
	if err != nil {
		t.Fatalf("DecrementForOrder: %v", err)
	}
	if !result.Claimed {
		t.Fatalf("expected claim to succeed")
	}
	if product.ColorStock[0].Stock != 1 || product.ColorStock[1].Stock != 0 {
		t.Fatalf("fallback allocation wrong: %+v", product.ColorStock)
	}
	if product.TotalStock != 1 || product.StockStatus != domain.StockStatusLowStock {
		t.Fatalf("totals not recomputed: total=%d status=%s", product.TotalStock, product.StockStatus)
	}
	if repo.productWrites != 1 {
		t.Fatalf("expected one product write, got %d", repo.productWrites)
	}
}

func TestDecrementSelectionMatchesCaseInsensitively(t *testing.T) {
	order := domain.Order{
		OrderID:       "OCT_P434",
		ProductID:     "prod-7",
		Quantity:      1,
		ProductColors: []string{"red"},
	}
	product := &domain.Product{
		ID:         "prod-7",
		ColorStock: []domain.ColorStock{{Color: "Blue", Stock: 5}, {Color: "Red", Stock: 5}},
	}
	svc, _ := newInventoryFixture(t, order, product)

	if _, err := svc.DecrementForOrder(context.Background(), "OCT_P434"); err != nil {
		t.Fatalf("DecrementForOrder: %v", err)
	}
	// The catalogue capitalises colours while gateways echo them lowercased;
	// the ordered colour must still win over the fallback scan.
	if product.ColorStock[1].Stock != 4 {
		t.Fatalf("ordered colour not drained: %+v", product.ColorStock)
	}
	if product.ColorStock[0].Stock != 5 {
		t.Fatalf("fallback drained the wrong cell: %+v", product.ColorStock)
	}

	variantOrder := domain.Order{
		OrderID:       "OCT_P435",
		ProductID:     "prod-8",
		Quantity:      1,
		ProductColors: []string{"RED"},
		ProductSizes:  []string{"m"},
	}
	variantProduct := &domain.Product{
		ID: "prod-8",
		ColorSizeStock: []domain.ColorSizeStock{
			{Color: "Blue", Sizes: []domain.SizeStock{{Size: "M", Stock: 3}}},
			{Color: "Red", Sizes: []domain.SizeStock{{Size: "M", Stock: 3}}},
		},
	}
	svc, _ = newInventoryFixture(t, variantOrder, variantProduct)

	if _, err := svc.DecrementForOrder(context.Background(), "OCT_P435"); err != nil {
		t.Fatalf("DecrementForOrder: %v", err)
	}
	if variantProduct.ColorSizeStock[1].Sizes[0].Stock != 2 {
		t.Fatalf("selected variant cell not drained: %+v", variantProduct.ColorSizeStock)
	}
	if variantProduct.ColorSizeStock[0].Sizes[0].Stock != 3 {
		t.Fatalf("unselected variant cell drained: %+v", variantProduct.ColorSizeStock)
	}
}

func TestDecrementVariantTwoPhase(t *testing.T) {
	order := domain.Order{
		OrderID:       "OCT_P429",
		ProductID:     "prod-2",
		Quantity:      3,
		ProductColors: []string{"red"},
		ProductSizes:  []string{"M"},
	}
	product := &domain.Product{
		ID: "prod-2",
		ColorSizeStock: []domain.ColorSizeStock{
			{Color: "red", Sizes: []domain.SizeStock{{Size: "M", Stock: 2}, {Size: "L", Stock: 4}}},
			{Color: "blue", Sizes: []domain.SizeStock{{Size: "M", Stock: 5}}},
		},
	}
	svc, _ := newInventoryFixture(t, order, product)

	if _, err := svc.DecrementForOrder(context.Background(), "OCT_P429"); err != nil {
		t.Fatalf("DecrementForOrder: %v", err)
	}
	// Selected cell (red, M) drains first, the remaining unit comes from the
	// scan over any cell with stock.
	if product.ColorSizeStock[0].Sizes[0].Stock != 0 {
		t.Fatalf("selected cell not drained: %+v", product.ColorSizeStock)
	}
	if product.TotalStock != 8 {
		t.Fatalf("expected 8 units left, got %d", product.TotalStock)
	}
}

func TestDecrementClampsAtZero(t *testing.T) {
	order := domain.Order{
		OrderID:       "OCT_P430",
		ProductID:     "prod-3",
		Quantity:      10,
		ProductColors: []string{"red"},
	}
	product := &domain.Product{
		ID:         "prod-3",
		ColorStock: []domain.ColorStock{{Color: "red", Stock: 3}},
	}
	svc, _ := newInventoryFixture(t, order, product)

	if _, err := svc.DecrementForOrder(context.Background(), "OCT_P430"); err != nil {
		t.Fatalf("DecrementForOrder: %v", err)
	}
	if product.ColorStock[0].Stock != 0 {
		t.Fatalf("stock went negative: %d", product.ColorStock[0].Stock)
	}
	if product.TotalStock != 0 || product.StockStatus != domain.StockStatusOutOfStock {
		t.Fatalf("expected out_of_stock at zero, got total=%d status=%s", product.TotalStock, product.StockStatus)
	}
}

func TestDecrementCounterOnlyProduct(t *testing.T) {
	order := domain.Order{OrderID: "OCT_P431", ProductID: "prod-4", Quantity: 2}
	product := &domain.Product{ID: "prod-4", TotalStock: 7}
	svc, _ := newInventoryFixture(t, order, product)

	if _, err := svc.DecrementForOrder(context.Background(), "OCT_P431"); err != nil {
		t.Fatalf("DecrementForOrder: %v", err)
	}
	if product.TotalStock != 5 || product.StockStatus != domain.StockStatusLowStock {
		t.Fatalf("counter decrement wrong: total=%d status=%s", product.TotalStock, product.StockStatus)
	}
}

func TestDecrementFlagGate(t *testing.T) {
	order := domain.Order{
		OrderID:              "OCT_P432",
		ProductID:            "prod-5",
		Quantity:             1,
		ProductColors:        []string{"red"},
		InventoryDecremented: true,
	}
	product := &domain.Product{
		ID:         "prod-5",
		ColorStock: []domain.ColorStock{{Color: "red", Stock: 4}},
	}
	svc, repo := newInventoryFixture(t, order, product)

	for i := 0; i < 2; i++ {
		result, err := svc.DecrementForOrder(context.Background(), "OCT_P432")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !result.AlreadyDecremented || result.Claimed {
			t.Fatalf("call %d: expected AlreadyDecremented, got %+v", i, result)
		}
	}
	if repo.productWrites != 0 {
		t.Fatalf("claimed flag must gate all mutations, got %d writes", repo.productWrites)
	}
	if product.ColorStock[0].Stock != 4 {
		t.Fatalf("stock mutated despite flag: %+v", product.ColorStock)
	}
}

func TestDecrementZeroQuantityTreatedAsOne(t *testing.T) {
	order := domain.Order{OrderID: "OCT_P433", ProductID: "prod-6", Quantity: 0, ProductColors: []string{"red"}}
	product := &domain.Product{ID: "prod-6", ColorStock: []domain.ColorStock{{Color: "red", Stock: 2}}}
	svc, _ := newInventoryFixture(t, order, product)

	if _, err := svc.DecrementForOrder(context.Background(), "OCT_P433"); err != nil {
		t.Fatalf("DecrementForOrder: %v", err)
	}
	if product.ColorStock[0].Stock != 1 {
		t.Fatalf("zero quantity must decrement one unit, got %d", product.ColorStock[0].Stock)
	}
}
