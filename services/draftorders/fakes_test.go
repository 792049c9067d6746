package main

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// fakeTx simula uma transação para os testes de use case
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit() error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// fakeRepository implementa Repository em memória
type fakeRepository struct {
	orders    map[string]*Order
	items     map[string][]OrderItem
	balances  map[string]*CustomerBalance
	discounts map[string]*PointsDiscount
	ledger    []PointsTransaction
	notes     []OrderNote
	prices    map[string]int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		orders:    make(map[string]*Order),
		items:     make(map[string][]OrderItem),
		balances:  make(map[string]*CustomerBalance),
		discounts: make(map[string]*PointsDiscount),
		prices:    make(map[string]int64),
	}
}

func (r *fakeRepository) BeginTx(ctx context.Context) (Tx, error) {
	return &fakeTx{}, nil
}

func (r *fakeRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *order
	return &copied, nil
}

func (r *fakeRepository) GetOrderForUpdate(ctx context.Context, tx Tx, orderID string) (*Order, error) {
	return r.GetOrder(ctx, orderID)
}

func (r *fakeRepository) UpdateOrderSettings(ctx context.Context, tx Tx, orderID string, percent float64) error {
	if order, ok := r.orders[orderID]; ok {
		order.GlobalDiscountPercent = percent
	}
	return nil
}

func (r *fakeRepository) UpdateAddresses(ctx context.Context, tx Tx, orderID string, billing, shipping *Address) error {
	order, ok := r.orders[orderID]
	if !ok {
		return pgx.ErrNoRows
	}
	if billing != nil {
		order.BillingAddress = *billing
	}
	if shipping != nil {
		order.ShippingAddress = *shipping
	}
	return nil
}

func (r *fakeRepository) ListItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	return append([]OrderItem(nil), r.items[orderID]...), nil
}

func (r *fakeRepository) ListItemsTx(ctx context.Context, tx Tx, orderID string) ([]OrderItem, error) {
	return r.ListItems(ctx, orderID)
}

func (r *fakeRepository) InsertItem(ctx context.Context, tx Tx, item *OrderItem) error {
	r.items[item.OrderID] = append(r.items[item.OrderID], *item)
	return nil
}

func (r *fakeRepository) UpdateItem(ctx context.Context, tx Tx, item *OrderItem) error {
	items := r.items[item.OrderID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = *item
		}
	}
	return nil
}

func (r *fakeRepository) DeleteItem(ctx context.Context, tx Tx, orderID, itemID string) error {
	items := r.items[orderID]
	kept := items[:0]
	for _, it := range items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	r.items[orderID] = kept
	return nil
}

func (r *fakeRepository) InsertNote(ctx context.Context, tx Tx, note *OrderNote) error {
	r.notes = append(r.notes, *note)
	return nil
}

func (r *fakeRepository) GetProductPrice(ctx context.Context, tx Tx, productID string) (int64, error) {
	price, ok := r.prices[productID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return price, nil
}

func (r *fakeRepository) GetBalance(ctx context.Context, tx Tx, customerID string) (*CustomerBalance, error) {
	balance, ok := r.balances[customerID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *balance
	return &copied, nil
}

func (r *fakeRepository) GetBalanceForUpdate(ctx context.Context, tx Tx, customerID string) (*CustomerBalance, error) {
	return r.GetBalance(ctx, tx, customerID)
}

func (r *fakeRepository) ApplyBalanceDelta(ctx context.Context, tx Tx, customerID, orderID string, delta int64, reason string) error {
	balance, ok := r.balances[customerID]
	if !ok {
		return pgx.ErrNoRows
	}
	balance.PointsBalance += delta
	r.ledger = append(r.ledger, PointsTransaction{
		CustomerID: customerID,
		OrderID:    orderID,
		Delta:      delta,
		Reason:     reason,
	})
	return nil
}

func (r *fakeRepository) GetCommittedPoints(ctx context.Context, tx Tx, orderID string) (int64, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	if order.AppliedPoints > 0 {
		return order.AppliedPoints, nil
	}
	if discount, ok := r.discounts[orderID]; ok {
		return discount.Points, nil
	}
	return 0, nil
}

func (r *fakeRepository) ReplacePointsDiscount(ctx context.Context, tx Tx, orderID string, points, amountCents int64) error {
	delete(r.discounts, orderID)
	if points > 0 {
		r.discounts[orderID] = &PointsDiscount{OrderID: orderID, Points: points, AmountCents: amountCents}
	}
	return nil
}

func (r *fakeRepository) SetAppliedPoints(ctx context.Context, tx Tx, orderID string, points, amountCents int64) error {
	order, ok := r.orders[orderID]
	if !ok {
		return pgx.ErrNoRows
	}
	order.AppliedPoints = points
	order.PointsDiscountCents = amountCents
	return nil
}

// fakeLock implementa OrderLock em memória
type fakeLock struct {
	held     map[string]bool
	acquired int
	released int
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) Acquire(ctx context.Context, orderID string) (string, bool, error) {
	if l.held[orderID] {
		return "", false, nil
	}
	l.held[orderID] = true
	l.acquired++
	return "token-" + orderID, true, nil
}

func (l *fakeLock) Release(ctx context.Context, orderID, token string) error {
	delete(l.held, orderID)
	l.released++
	return nil
}
