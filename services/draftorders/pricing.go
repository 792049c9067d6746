package main

import "math"

// lineTotalCents calcula o total de uma linha sob a política de desconto
// vigente, espelhando o cálculo do cliente. O servidor é autoritativo: o
// clamp do desconto de pontos usa este total, não o que o cliente exibiu.
func lineTotalCents(item OrderItem, globalDiscountPercent float64) int64 {
	qty := int64(item.Quantity)
	if qty < 0 {
		qty = 0
	}
	subtotal := item.UnitPriceCents * qty

	switch item.DiscountKind {
	case DiscountFixedPrice:
		price := item.FixedPriceCents
		if price < 0 {
			price = 0
		}
		return price * qty
	case DiscountPercentOverride:
		return applyPercent(subtotal, item.DiscountPercent)
	default:
		return applyPercent(subtotal, globalDiscountPercent)
	}
}

// orderTotalCents soma os totais de todas as linhas do pedido, antes do
// desconto de pontos
func orderTotalCents(items []OrderItem, globalDiscountPercent float64) int64 {
	var total int64
	for _, it := range items {
		total += lineTotalCents(it, globalDiscountPercent)
	}
	return total
}

func applyPercent(subtotalCents int64, percent float64) int64 {
	if percent > 100 {
		percent = 100
	}
	if percent < -100 {
		percent = -100
	}
	discount := roundCents(float64(subtotalCents) * percent / 100)
	total := subtotalCents - discount
	if total < 0 {
		total = 0
	}
	return total
}

func roundCents(v float64) int64 {
	if v < 0 {
		return -int64(math.Floor(-v + 0.5))
	}
	return int64(math.Floor(v + 0.5))
}
