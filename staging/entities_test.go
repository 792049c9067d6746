package staging

import "testing"

func TestDiscountPolicyConstructors(t *testing.T) {
	// Setting a percent clears the fixed price and vice versa: the illegal
	// combination is unrepresentable
	percent := PercentOverride(25)
	if percent.Kind != DiscountPercentOverride {
		t.Errorf("Expected kind %s, got %s", DiscountPercentOverride, percent.Kind)
	}
	if percent.FixedPriceCents != 0 {
		t.Errorf("Expected fixed price cleared, got %d", percent.FixedPriceCents)
	}

	fixed := FixedPrice(999)
	if fixed.Kind != DiscountFixedPrice {
		t.Errorf("Expected kind %s, got %s", DiscountFixedPrice, fixed.Kind)
	}
	if fixed.Percent != 0 {
		t.Errorf("Expected percent cleared, got %v", fixed.Percent)
	}
}

func TestPercentOverrideClampRange(t *testing.T) {
	if got := PercentOverride(150).Percent; got != 100 {
		t.Errorf("Expected clamp to 100, got %v", got)
	}
	if got := PercentOverride(-150).Percent; got != -100 {
		t.Errorf("Expected clamp to -100, got %v", got)
	}
	if got := PercentOverride(-15).Percent; got != -15 {
		t.Errorf("Expected markup preserved, got %v", got)
	}
}

func TestFixedPriceNeverNegative(t *testing.T) {
	if got := FixedPrice(-500).FixedPriceCents; got != 0 {
		t.Errorf("Expected negative fixed price floored at 0, got %d", got)
	}
}

func TestLineItemKey(t *testing.T) {
	existing := LineItem{ID: "item-1", TempID: "ignored"}
	if existing.Key() != "item-1" {
		t.Errorf("Expected stable id as key, got %s", existing.Key())
	}
	if !existing.Existing() {
		t.Error("Expected item with stable id to be existing")
	}

	staged := LineItem{TempID: "abc"}
	if staged.Key() != "tmp:abc" {
		t.Errorf("Expected temp key, got %s", staged.Key())
	}
	if staged.Existing() {
		t.Error("Expected item without stable id to be new")
	}
}

func TestAddressIsZero(t *testing.T) {
	if !(Address{}).IsZero() {
		t.Error("Expected empty address to be zero")
	}
	if (Address{City: "Recife"}).IsZero() {
		t.Error("Expected non-empty address to not be zero")
	}
}
