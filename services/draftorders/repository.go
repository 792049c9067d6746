package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository define a interface para operações de banco de dados do pedido
// em edição e do ledger de pontos
type Repository interface {
	BeginTx(ctx context.Context) (Tx, error)

	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderForUpdate(ctx context.Context, tx Tx, orderID string) (*Order, error)
	UpdateOrderSettings(ctx context.Context, tx Tx, orderID string, globalDiscountPercent float64) error
	UpdateAddresses(ctx context.Context, tx Tx, orderID string, billing, shipping *Address) error

	ListItems(ctx context.Context, orderID string) ([]OrderItem, error)
	ListItemsTx(ctx context.Context, tx Tx, orderID string) ([]OrderItem, error)
	InsertItem(ctx context.Context, tx Tx, item *OrderItem) error
	UpdateItem(ctx context.Context, tx Tx, item *OrderItem) error
	DeleteItem(ctx context.Context, tx Tx, orderID, itemID string) error

	InsertNote(ctx context.Context, tx Tx, note *OrderNote) error

	GetProductPrice(ctx context.Context, tx Tx, productID string) (int64, error)

	GetBalance(ctx context.Context, tx Tx, customerID string) (*CustomerBalance, error)
	GetBalanceForUpdate(ctx context.Context, tx Tx, customerID string) (*CustomerBalance, error)
	ApplyBalanceDelta(ctx context.Context, tx Tx, customerID, orderID string, delta int64, reason string) error

	GetCommittedPoints(ctx context.Context, tx Tx, orderID string) (int64, error)
	ReplacePointsDiscount(ctx context.Context, tx Tx, orderID string, points, amountCents int64) error
	SetAppliedPoints(ctx context.Context, tx Tx, orderID string, points, amountCents int64) error
}

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// PostgresRepository implementa Repository usando PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewRepository cria uma nova instância de PostgresRepository
func NewRepository(db *pgxpool.Pool) Repository {
	return &PostgresRepository{db: db}
}

// BeginTx inicia uma nova transação
func (r *PostgresRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

const orderColumns = `id, customer_id, status, global_discount_percent, applied_points,
	points_discount_cents, billing_address, shipping_address, created_at, updated_at`

// GetOrder busca um pedido pelo ID
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE id = $1
	`, orderID)
	return scanOrder(row)
}

// GetOrderForUpdate obtém o pedido com lock pessimista (FOR UPDATE)
func (r *PostgresRepository) GetOrderForUpdate(ctx context.Context, tx Tx, orderID string) (*Order, error) {
	pgTx := tx.(*PostgresTx).tx
	row := pgTx.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE id = $1
		FOR UPDATE
	`, orderID)
	return scanOrder(row)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var order Order
	var billing, shipping []byte
	err := row.Scan(
		&order.ID, &order.CustomerID, &order.Status, &order.GlobalDiscountPercent,
		&order.AppliedPoints, &order.PointsDiscountCents, &billing, &shipping,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &order.BillingAddress); err != nil {
			return nil, fmt.Errorf("failed to decode billing address: %w", err)
		}
	}
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}
	return &order, nil
}

// UpdateOrderSettings atualiza o desconto global do pedido
func (r *PostgresRepository) UpdateOrderSettings(ctx context.Context, tx Tx, orderID string, globalDiscountPercent float64) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		UPDATE orders
		SET global_discount_percent = $1, updated_at = NOW()
		WHERE id = $2
	`, globalDiscountPercent, orderID)
	return err
}

// UpdateAddresses substitui os endereços pendentes do pedido. Endereço nil
// permanece como está.
func (r *PostgresRepository) UpdateAddresses(ctx context.Context, tx Tx, orderID string, billing, shipping *Address) error {
	pgTx := tx.(*PostgresTx).tx
	if billing != nil {
		encoded, err := json.Marshal(billing)
		if err != nil {
			return fmt.Errorf("failed to encode billing address: %w", err)
		}
		if _, err := pgTx.Exec(ctx, `
			UPDATE orders SET billing_address = $1, updated_at = NOW() WHERE id = $2
		`, encoded, orderID); err != nil {
			return err
		}
	}
	if shipping != nil {
		encoded, err := json.Marshal(shipping)
		if err != nil {
			return fmt.Errorf("failed to encode shipping address: %w", err)
		}
		if _, err := pgTx.Exec(ctx, `
			UPDATE orders SET shipping_address = $1, updated_at = NOW() WHERE id = $2
		`, encoded, orderID); err != nil {
			return err
		}
	}
	return nil
}

const itemColumns = `id, order_id, product_id, quantity, unit_price_cents,
	discount_kind, discount_percent, fixed_price_cents, created_at, updated_at`

// ListItems busca as linhas do pedido
func (r *PostgresRepository) ListItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM order_items WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListItemsTx busca as linhas do pedido dentro da transação corrente
func (r *PostgresRepository) ListItemsTx(ctx context.Context, tx Tx, orderID string) ([]OrderItem, error) {
	pgTx := tx.(*PostgresTx).tx
	rows, err := pgTx.Query(ctx, `
		SELECT `+itemColumns+`
		FROM order_items WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]OrderItem, error) {
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPriceCents,
			&it.DiscountKind, &it.DiscountPercent, &it.FixedPriceCents,
			&it.CreatedAt, &it.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertItem insere uma linha nova no pedido
func (r *PostgresRepository) InsertItem(ctx context.Context, tx Tx, item *OrderItem) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price_cents,
			discount_kind, discount_percent, fixed_price_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPriceCents,
		item.DiscountKind, item.DiscountPercent, item.FixedPriceCents,
		item.CreatedAt, item.UpdatedAt)
	return err
}

// UpdateItem atualiza quantidade e desconto de uma linha existente
func (r *PostgresRepository) UpdateItem(ctx context.Context, tx Tx, item *OrderItem) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		UPDATE order_items
		SET quantity = $1, discount_kind = $2, discount_percent = $3,
			fixed_price_cents = $4, updated_at = NOW()
		WHERE id = $5 AND order_id = $6
	`, item.Quantity, item.DiscountKind, item.DiscountPercent,
		item.FixedPriceCents, item.ID, item.OrderID)
	return err
}

// DeleteItem remove uma linha do pedido
func (r *PostgresRepository) DeleteItem(ctx context.Context, tx Tx, orderID, itemID string) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		DELETE FROM order_items WHERE id = $1 AND order_id = $2
	`, itemID, orderID)
	return err
}

// InsertNote anexa uma nota ao pedido. Notas já persistidas nunca são
// alteradas.
func (r *PostgresRepository) InsertNote(ctx context.Context, tx Tx, note *OrderNote) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		INSERT INTO order_notes (id, order_id, author, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, note.ID, note.OrderID, note.Author, note.Body, note.CreatedAt)
	return err
}

// GetProductPrice busca o preço corrente de um produto no catálogo
func (r *PostgresRepository) GetProductPrice(ctx context.Context, tx Tx, productID string) (int64, error) {
	pgTx := tx.(*PostgresTx).tx
	var price int64
	err := pgTx.QueryRow(ctx, `
		SELECT price_cents FROM products WHERE id = $1
	`, productID).Scan(&price)
	if err != nil {
		return 0, err
	}
	return price, nil
}

// GetBalance busca o saldo de pontos do cliente
func (r *PostgresRepository) GetBalance(ctx context.Context, tx Tx, customerID string) (*CustomerBalance, error) {
	pgTx := tx.(*PostgresTx).tx
	var balance CustomerBalance
	err := pgTx.QueryRow(ctx, `
		SELECT customer_id, points_balance, updated_at
		FROM customer_balances WHERE customer_id = $1
	`, customerID).Scan(&balance.CustomerID, &balance.PointsBalance, &balance.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetBalanceForUpdate obtém o saldo com lock pessimista (SELECT FOR UPDATE)
func (r *PostgresRepository) GetBalanceForUpdate(ctx context.Context, tx Tx, customerID string) (*CustomerBalance, error) {
	pgTx := tx.(*PostgresTx).tx
	var balance CustomerBalance
	err := pgTx.QueryRow(ctx, `
		SELECT customer_id, points_balance, updated_at
		FROM customer_balances WHERE customer_id = $1
		FOR UPDATE
	`, customerID).Scan(&balance.CustomerID, &balance.PointsBalance, &balance.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// ApplyBalanceDelta aplica um ajuste com sinal no saldo e registra a
// transação de ledger correspondente, com referência ao pedido. Nunca
// sobrescreve o saldo com um valor absoluto.
func (r *PostgresRepository) ApplyBalanceDelta(ctx context.Context, tx Tx, customerID, orderID string, delta int64, reason string) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		UPDATE customer_balances
		SET points_balance = points_balance + $1, updated_at = NOW()
		WHERE customer_id = $2
	`, delta, customerID)
	if err != nil {
		return err
	}
	_, err = pgTx.Exec(ctx, `
		INSERT INTO points_transactions (id, customer_id, order_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), customerID, orderID, delta, reason, time.Now())
	return err
}

// GetCommittedPoints lê os pontos já encodados como desconto ativo neste
// pedido. Fallback: deriva da representação de desconto quando o campo
// primário está zerado (as duas representações coexistiram historicamente).
func (r *PostgresRepository) GetCommittedPoints(ctx context.Context, tx Tx, orderID string) (int64, error) {
	pgTx := tx.(*PostgresTx).tx
	var points int64
	err := pgTx.QueryRow(ctx, `
		SELECT applied_points FROM orders WHERE id = $1
	`, orderID).Scan(&points)
	if err != nil {
		return 0, err
	}
	if points > 0 {
		return points, nil
	}

	err = pgTx.QueryRow(ctx, `
		SELECT points FROM points_discounts WHERE order_id = $1
	`, orderID).Scan(&points)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return points, nil
}

// ReplacePointsDiscount substitui qualquer representação anterior de
// desconto de pontos por exatamente uma nova com o valor final aplicado
func (r *PostgresRepository) ReplacePointsDiscount(ctx context.Context, tx Tx, orderID string, points, amountCents int64) error {
	pgTx := tx.(*PostgresTx).tx
	if _, err := pgTx.Exec(ctx, `
		DELETE FROM points_discounts WHERE order_id = $1
	`, orderID); err != nil {
		return err
	}
	if points == 0 {
		return nil
	}
	_, err := pgTx.Exec(ctx, `
		INSERT INTO points_discounts (id, order_id, points, amount_cents, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), orderID, points, amountCents, time.Now())
	return err
}

// SetAppliedPoints persiste no pedido a contagem de pontos aplicada, para o
// cálculo de delta do próximo commit
func (r *PostgresRepository) SetAppliedPoints(ctx context.Context, tx Tx, orderID string, points, amountCents int64) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		UPDATE orders
		SET applied_points = $1, points_discount_cents = $2, updated_at = NOW()
		WHERE id = $3
	`, points, amountCents, orderID)
	return err
}
