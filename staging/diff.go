package staging

import (
	"fmt"
	"sort"
	"strconv"
)

// FieldChange descreve um campo cuja cópia de trabalho difere do baseline.
// O UI usa Field para destacar o input e Was para o indicador "was: X".
type FieldChange struct {
	Field string `json:"field"`
	Was   string `json:"was,omitempty"`
	Now   string `json:"now,omitempty"`
}

// IsDirty informa se a sessão tem alguma mudança pendente em relação ao
// baseline. É o sinal que habilita a ação de salvar.
func IsDirty(s *Session) bool {
	return len(Diff(s)) > 0
}

// Diff compara a sessão com o baseline campo a campo. Comparação puramente
// estrutural e sem efeito colateral: chamar repetidas vezes sem edição no
// meio devolve sempre o mesmo resultado e nunca muta a sessão.
//
// Itens pré-existentes são comparados como conjunto de tuplas
// (identidade, quantidade, desconto efetivo, flag de preço fixo) —
// reordenar a lista não é mudança. Inserções staged, remoções pendentes e
// notas staged são sujas incondicionalmente: não existem no baseline, não
// há com o que comparar.
func Diff(s *Session) []FieldChange {
	var changes []FieldChange

	base := make(map[string]LineItem, len(s.baseline.items))
	for _, it := range s.baseline.items {
		base[it.Key()] = it
	}

	seen := make(map[string]bool, len(s.Items))
	for i := range s.Items {
		item := s.Items[i]
		key := item.Key()
		seen[key] = true

		switch item.Lifecycle {
		case LifecyclePendingInsert:
			changes = append(changes, FieldChange{
				Field: "item:" + key + ":inserted",
				Now:   item.ProductID,
			})
			continue
		case LifecyclePendingDelete:
			changes = append(changes, FieldChange{
				Field: "item:" + key + ":deleted",
				Was:   item.ProductID,
			})
			continue
		}

		prev, ok := base[key]
		if !ok {
			// item sem baseline e sem flag de insert não deveria existir,
			// mas tratar como inserção evita esconder estado staged
			changes = append(changes, FieldChange{
				Field: "item:" + key + ":inserted",
				Now:   item.ProductID,
			})
			continue
		}
		changes = append(changes, diffItem(key, prev, item)...)
	}

	for _, it := range s.baseline.items {
		if !seen[it.Key()] {
			changes = append(changes, FieldChange{
				Field: "item:" + it.Key() + ":deleted",
				Was:   it.ProductID,
			})
		}
	}

	if s.GlobalDiscountPercent != s.baseline.globalDiscountPercent {
		changes = append(changes, FieldChange{
			Field: "global_discount_percent",
			Was:   formatPercent(s.baseline.globalDiscountPercent),
			Now:   formatPercent(s.GlobalDiscountPercent),
		})
	}

	if s.PointsRequested != s.baseline.pointsRequested {
		changes = append(changes, FieldChange{
			Field: "points_requested",
			Was:   strconv.FormatInt(s.baseline.pointsRequested, 10),
			Now:   strconv.FormatInt(s.PointsRequested, 10),
		})
	}

	for i, note := range s.NotesToAdd {
		changes = append(changes, FieldChange{
			Field: fmt.Sprintf("note:%d", i),
			Now:   note.Body,
		})
	}

	changes = append(changes, diffAddress("billing_address", s.baseline.billing, s.BillingOverride)...)
	changes = append(changes, diffAddress("shipping_address", s.baseline.shipping, s.ShippingOverride)...)

	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

func diffItem(key string, prev, cur LineItem) []FieldChange {
	var changes []FieldChange
	if prev.Quantity != cur.Quantity {
		changes = append(changes, FieldChange{
			Field: "item:" + key + ":quantity",
			Was:   strconv.Itoa(prev.Quantity),
			Now:   strconv.Itoa(cur.Quantity),
		})
	}
	if prev.Discount != cur.Discount {
		changes = append(changes, FieldChange{
			Field: "item:" + key + ":discount",
			Was:   formatDiscount(prev.Discount),
			Now:   formatDiscount(cur.Discount),
		})
	}
	return changes
}

// diffAddress compara endereço campo a campo. Campo ausente no baseline e
// vazio no override não é mudança, para não sujar a sessão por causa de
// campos opcionais.
func diffAddress(prefix string, base Address, override *Address) []FieldChange {
	if override == nil {
		return nil
	}
	baseFields := base.fields()
	curFields := override.fields()

	var changes []FieldChange
	for _, name := range addressFieldOrder {
		was, now := baseFields[name], curFields[name]
		if was == "" && now == "" {
			continue
		}
		if was != now {
			changes = append(changes, FieldChange{
				Field: prefix + "." + name,
				Was:   was,
				Now:   now,
			})
		}
	}
	return changes
}

var addressFieldOrder = []string{
	"name", "street1", "street2", "city", "region", "postal_code", "country", "phone",
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

func formatDiscount(d DiscountPolicy) string {
	switch d.Kind {
	case DiscountFixedPrice:
		return fmt.Sprintf("fixed:%d", d.FixedPriceCents)
	case DiscountPercentOverride:
		return fmt.Sprintf("percent:%s", strconv.FormatFloat(d.Percent, 'f', -1, 64))
	default:
		return "global"
	}
}
