package main

import (
	"errors"
	"time"
)

// Order representa o registro autoritativo de um pedido em edição
type Order struct {
	ID                    string    `json:"id" db:"id"`
	CustomerID            string    `json:"customer_id" db:"customer_id"`
	Status                string    `json:"status" db:"status"`
	GlobalDiscountPercent float64   `json:"global_discount_percent" db:"global_discount_percent"`
	AppliedPoints         int64     `json:"applied_points" db:"applied_points"`
	PointsDiscountCents   int64     `json:"points_discount_cents" db:"points_discount_cents"`
	BillingAddress        Address   `json:"billing_address" db:"billing_address"`
	ShippingAddress       Address   `json:"shipping_address" db:"shipping_address"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// OrderStatus representa os possíveis status de um pedido
const (
	OrderStatusDraft  = "draft"
	OrderStatusPlaced = "placed"
)

// CanEdit informa se o pedido ainda aceita commits de staging
func (o *Order) CanEdit() error {
	if o.Status != OrderStatusDraft {
		return errors.New("only draft orders can be edited")
	}
	return nil
}

// OrderItem representa uma linha persistida do pedido
type OrderItem struct {
	ID              string    `json:"id" db:"id"`
	OrderID         string    `json:"order_id" db:"order_id"`
	ProductID       string    `json:"product_id" db:"product_id"`
	Quantity        int       `json:"quantity" db:"quantity"`
	UnitPriceCents  int64     `json:"unit_price_cents" db:"unit_price_cents"`
	DiscountKind    string    `json:"discount_kind" db:"discount_kind"`
	DiscountPercent float64   `json:"discount_percent" db:"discount_percent"`
	FixedPriceCents int64     `json:"fixed_price_cents" db:"fixed_price_cents"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// DiscountKind espelha a variante de desconto do cliente
const (
	DiscountFollowsGlobal   = "follows_global"
	DiscountPercentOverride = "percent_override"
	DiscountFixedPrice      = "fixed_price"
)

// NewOrderItem cria uma nova linha de pedido validada
func NewOrderItem(id, orderID, productID string, quantity int, unitPriceCents int64) (*OrderItem, error) {
	if quantity < 1 {
		return nil, errors.New("new order items require quantity of at least 1")
	}
	if unitPriceCents < 0 {
		return nil, errors.New("unit price must not be negative")
	}
	now := time.Now()
	return &OrderItem{
		ID:             id,
		OrderID:        orderID,
		ProductID:      productID,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		DiscountKind:   DiscountFollowsGlobal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Address é o endereço de cobrança ou entrega persistido no pedido
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

// OrderNote é uma anotação persistida do pedido
type OrderNote struct {
	ID        string    `json:"id" db:"id"`
	OrderID   string    `json:"order_id" db:"order_id"`
	Author    string    `json:"author" db:"author"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CustomerBalance representa o saldo de pontos resgatáveis do cliente fora
// deste pedido. Os pontos já commitados no pedido nunca são contados duas
// vezes aqui.
type CustomerBalance struct {
	CustomerID    string    `json:"customer_id" db:"customer_id"`
	PointsBalance int64     `json:"points_balance" db:"points_balance"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// PointsTransaction registra um ajuste com sinal no saldo de pontos, com
// referência ao pedido, suficiente para reverter manualmente um ajuste
// errado. Nunca um overwrite de saldo.
type PointsTransaction struct {
	ID         string    `json:"id" db:"id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	OrderID    string    `json:"order_id" db:"order_id"`
	Delta      int64     `json:"delta" db:"delta"`
	Reason     string    `json:"reason" db:"reason"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PointsTransactionReason representa os motivos de ajuste de saldo
const (
	PointsReasonRedeem = "redeem"
	PointsReasonRefund = "refund"
)

// PointsDiscount é a representação de desconto sintético que encoda os
// pontos resgatados neste pedido. Após cada reconciliação existe
// exatamente uma.
type PointsDiscount struct {
	ID          string    `json:"id" db:"id"`
	OrderID     string    `json:"order_id" db:"order_id"`
	Points      int64     `json:"points" db:"points"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
