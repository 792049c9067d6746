package staging

import "testing"

func TestComputeLineTotalsFollowsGlobal(t *testing.T) {
	// Arrange
	item := LineItem{
		ID:             "item-1",
		ProductID:      "product-1",
		Quantity:       3,
		UnitPriceCents: 2000,
		Discount:       FollowsGlobal(),
	}

	// Act
	totals := ComputeLineTotals(item, 10)

	// Assert
	if totals.SubtotalCents != 6000 {
		t.Errorf("Expected subtotal 6000, got %d", totals.SubtotalCents)
	}
	if totals.DiscountCents != 600 {
		t.Errorf("Expected discount 600, got %d", totals.DiscountCents)
	}
	if totals.TotalCents != 5400 {
		t.Errorf("Expected total 5400, got %d", totals.TotalCents)
	}
}

func TestComputeLineTotalsMarkup(t *testing.T) {
	// A negative percent override is an explicit markup and must be
	// preserved, not clamped to zero
	item := LineItem{
		ID:             "item-1",
		ProductID:      "product-1",
		Quantity:       3,
		UnitPriceCents: 2000,
		Discount:       PercentOverride(-15),
	}

	totals := ComputeLineTotals(item, 10)

	if totals.DiscountCents != -900 {
		t.Errorf("Expected discount -900, got %d", totals.DiscountCents)
	}
	if totals.TotalCents != 6900 {
		t.Errorf("Expected total 6900, got %d", totals.TotalCents)
	}
}

func TestComputeLineTotalsFixedPrice(t *testing.T) {
	// The fixed price is authoritative; the subtotal is kept only for
	// displaying savings
	item := LineItem{
		ID:             "item-1",
		ProductID:      "product-1",
		Quantity:       2,
		UnitPriceCents: 2000,
		Discount:       FixedPrice(1500),
	}

	totals := ComputeLineTotals(item, 50)

	if totals.SubtotalCents != 4000 {
		t.Errorf("Expected subtotal 4000, got %d", totals.SubtotalCents)
	}
	if totals.DiscountCents != 0 {
		t.Errorf("Expected discount 0 for fixed price, got %d", totals.DiscountCents)
	}
	if totals.TotalCents != 3000 {
		t.Errorf("Expected total 3000, got %d", totals.TotalCents)
	}
}

func TestComputeLineTotalsIsPure(t *testing.T) {
	item := LineItem{
		ID:             "item-1",
		ProductID:      "product-1",
		Quantity:       7,
		UnitPriceCents: 1234,
		Discount:       PercentOverride(33),
	}

	first := ComputeLineTotals(item, 10)
	second := ComputeLineTotals(item, 10)

	if first != second {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
	if first.TotalCents != first.SubtotalCents-first.DiscountCents {
		t.Errorf("Expected total = subtotal - discount, got %+v", first)
	}
}

func TestComputeLineTotalsFloorsAtZero(t *testing.T) {
	item := LineItem{
		ID:             "item-1",
		ProductID:      "product-1",
		Quantity:       1,
		UnitPriceCents: 1000,
		Discount:       PercentOverride(100),
	}

	totals := ComputeLineTotals(item, 0)

	if totals.TotalCents != 0 {
		t.Errorf("Expected total floored at 0, got %d", totals.TotalCents)
	}
}

func TestAggregateTotalsSkipsDeletedItems(t *testing.T) {
	items := []LineItem{
		{ID: "item-1", Quantity: 1, UnitPriceCents: 1000, Discount: FollowsGlobal(), Lifecycle: LifecycleUnchanged},
		{ID: "item-2", Quantity: 2, UnitPriceCents: 500, Discount: FollowsGlobal(), Lifecycle: LifecyclePendingDelete},
	}

	agg := AggregateTotals(items, 0)

	if agg.ItemCount != 1 {
		t.Errorf("Expected 1 aggregated item, got %d", agg.ItemCount)
	}
	if agg.TotalCents != 1000 {
		t.Errorf("Expected total 1000, got %d", agg.TotalCents)
	}
}
