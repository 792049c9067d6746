package staging

import "math"

// LineTotals é o resultado do cálculo de uma linha, em centavos
type LineTotals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// OrderTotals agrega os totais de todos os itens não deletados do pedido.
// É a única fonte de verdade consumida tanto pela exibição de linha quanto
// pelo total geral.
type OrderTotals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
	ItemCount     int   `json:"item_count"`
}

// ComputeLineTotals calcula o breakdown monetário de um item sob a política
// de desconto vigente. Função pura: sem I/O, sem estado externo, barata o
// suficiente para rodar a cada tecla digitada.
func ComputeLineTotals(item LineItem, globalDiscountPercent float64) LineTotals {
	qty := int64(item.Quantity)
	if qty < 0 {
		qty = 0
	}
	subtotal := item.UnitPriceCents * qty

	switch item.Discount.Kind {
	case DiscountFixedPrice:
		// O preço fixo é autoritativo; o subtotal serve apenas para exibir a
		// economia, nunca para re-derivar o preço.
		price := item.Discount.FixedPriceCents
		if price < 0 {
			price = 0
		}
		return LineTotals{
			SubtotalCents: subtotal,
			DiscountCents: 0,
			TotalCents:    price * qty,
		}

	case DiscountPercentOverride:
		return percentTotals(subtotal, item.Discount.Percent)

	default:
		return percentTotals(subtotal, globalDiscountPercent)
	}
}

// percentTotals aplica um desconto percentual. Percentuais negativos
// (markup) produzem desconto negativo e total acima do subtotal.
func percentTotals(subtotalCents int64, percent float64) LineTotals {
	percent = clampPercent(percent)
	discount := roundCents(float64(subtotalCents) * percent / 100)
	total := subtotalCents - discount
	if total < 0 {
		total = 0
	}
	return LineTotals{
		SubtotalCents: subtotalCents,
		DiscountCents: discount,
		TotalCents:    total,
	}
}

// AggregateTotals soma subtotais, descontos e totais de todos os itens que
// não estão marcados para remoção. O(n) no número de itens.
func AggregateTotals(items []LineItem, globalDiscountPercent float64) OrderTotals {
	var agg OrderTotals
	for i := range items {
		if items[i].Lifecycle == LifecyclePendingDelete {
			continue
		}
		lt := ComputeLineTotals(items[i], globalDiscountPercent)
		agg.SubtotalCents += lt.SubtotalCents
		agg.DiscountCents += lt.DiscountCents
		agg.TotalCents += lt.TotalCents
		agg.ItemCount++
	}
	return agg
}

// roundCents arredonda para o centavo mais próximo, afastando do zero
func roundCents(v float64) int64 {
	if v < 0 {
		return -int64(math.Floor(-v + 0.5))
	}
	return int64(math.Floor(v + 0.5))
}
