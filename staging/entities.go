package staging

import (
	"strings"
	"time"
)

// DiscountKind representa os tipos de política de desconto por item
type DiscountKind string

const (
	DiscountFollowsGlobal   DiscountKind = "follows_global"
	DiscountPercentOverride DiscountKind = "percent_override"
	DiscountFixedPrice      DiscountKind = "fixed_price"
)

// DiscountPolicy é a variante de desconto de um item. Os construtores
// garantem exclusão mútua: definir um percentual zera o preço fixo e
// vice-versa.
type DiscountPolicy struct {
	Kind            DiscountKind `json:"kind"`
	Percent         float64      `json:"percent,omitempty"`
	FixedPriceCents int64        `json:"fixed_price_cents,omitempty"`
}

// FollowsGlobal cria a política padrão: o item segue o desconto global do pedido
func FollowsGlobal() DiscountPolicy {
	return DiscountPolicy{Kind: DiscountFollowsGlobal}
}

// PercentOverride cria uma política de percentual por item.
// Percentuais negativos são markup explícito e devem ser preservados.
func PercentOverride(percent float64) DiscountPolicy {
	return DiscountPolicy{Kind: DiscountPercentOverride, Percent: clampPercent(percent)}
}

// FixedPrice cria uma política de preço fixo por unidade (em centavos)
func FixedPrice(cents int64) DiscountPolicy {
	if cents < 0 {
		cents = 0
	}
	return DiscountPolicy{Kind: DiscountFixedPrice, FixedPriceCents: cents}
}

// clampPercent limita o percentual ao intervalo [-100, 100] sem descartar markups
func clampPercent(p float64) float64 {
	if p > 100 {
		return 100
	}
	if p < -100 {
		return -100
	}
	return p
}

// LifecycleFlag representa o estado de um item dentro da sessão de staging
type LifecycleFlag string

const (
	LifecycleUnchanged     LifecycleFlag = "unchanged"
	LifecyclePendingInsert LifecycleFlag = "pending_insert"
	LifecyclePendingUpdate LifecycleFlag = "pending_update"
	LifecyclePendingDelete LifecycleFlag = "pending_delete"
)

// LineItem representa uma linha do pedido dentro da sessão.
// Itens pré-existentes carregam ID estável do servidor; itens novos são
// identificados por TempID até o commit.
type LineItem struct {
	ID             string        `json:"id,omitempty"`
	TempID         string        `json:"temp_id,omitempty"`
	ProductID      string        `json:"product_id"`
	Quantity       int           `json:"quantity"`
	UnitPriceCents int64         `json:"unit_price_cents"`
	Discount       DiscountPolicy `json:"discount"`
	Lifecycle      LifecycleFlag `json:"lifecycle"`
}

// Key retorna a identidade do item dentro da sessão: o ID estável quando
// existe, senão o TempID gerado localmente.
func (it *LineItem) Key() string {
	if it.ID != "" {
		return it.ID
	}
	return "tmp:" + it.TempID
}

// Existing informa se o item já existe no registro autoritativo do servidor
func (it *LineItem) Existing() bool {
	return it.ID != ""
}

// Note é uma anotação a ser anexada ao pedido. A lista de notas staged é
// append-only: notas já persistidas nunca são alteradas pelo cliente.
type Note struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Address representa um endereço de cobrança ou entrega
type Address struct {
	Name       string `json:"name,omitempty"`
	Street1    string `json:"street1,omitempty"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// IsZero informa se todos os campos do endereço estão vazios
func (a Address) IsZero() bool {
	return a == Address{}
}

// fields expõe o endereço campo a campo para a comparação do ChangeDetector
func (a Address) fields() map[string]string {
	return map[string]string{
		"name":        strings.TrimSpace(a.Name),
		"street1":     strings.TrimSpace(a.Street1),
		"street2":     strings.TrimSpace(a.Street2),
		"city":        strings.TrimSpace(a.City),
		"region":      strings.TrimSpace(a.Region),
		"postal_code": strings.TrimSpace(a.PostalCode),
		"country":     strings.TrimSpace(a.Country),
		"phone":       strings.TrimSpace(a.Phone),
	}
}
