package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DraftOrderUseCase contém a lógica de negócio do pedido em edição
type DraftOrderUseCase struct {
	repository Repository
	lock       OrderLock
	reconciler *PointsReconciler
}

// NewDraftOrderUseCase cria uma nova instância de DraftOrderUseCase
func NewDraftOrderUseCase(repository Repository, lock OrderLock, reconciler *PointsReconciler) *DraftOrderUseCase {
	return &DraftOrderUseCase{
		repository: repository,
		lock:       lock,
		reconciler: reconciler,
	}
}

// LoadOrder devolve o snapshot autoritativo que alimenta a sessão de
// staging do cliente
func (uc *DraftOrderUseCase) LoadOrder(ctx context.Context, orderID string) (*OrderSnapshotResponse, error) {
	order, err := uc.repository.GetOrder(ctx, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	items, err := uc.repository.ListItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	return &OrderSnapshotResponse{
		OrderID:               order.ID,
		CustomerID:            order.CustomerID,
		Items:                 itemsToResponse(items, nil),
		GlobalDiscountPercent: order.GlobalDiscountPercent,
		AppliedPoints:         order.AppliedPoints,
		PointsDiscountCents:   order.PointsDiscountCents,
		Billing:               order.BillingAddress,
		Shipping:              order.ShippingAddress,
	}, nil
}

// CommitDraft aplica o ChangeSet completo como uma unidade lógica: linhas,
// desconto global, notas, endereços e a reconciliação de pontos, tudo sob
// o lock do pedido e uma única transação.
func (uc *DraftOrderUseCase) CommitDraft(ctx context.Context, orderID string, req CommitRequest) (*CommitResponse, error) {
	log.Printf("➡️ [COMMIT DRAFT] OrderID: %s | Items: %d | Points: %d", orderID, len(req.Items), req.RequestedPoints)

	// 1. Lock por pedido: a segunda submissão concorrente é recusada como
	// transiente, não processada em dobro
	token, ok, err := uc.lock.Acquire(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !ok {
		log.Printf("ℹ️ [COMMIT] Lock contention | OrderID=%s", orderID)
		return nil, ErrOrderBusy
	}
	// Liberação garantida: erro no meio da transação não pode deixar o
	// pedido travado até o TTL
	defer func() {
		if err := uc.lock.Release(context.WithoutCancel(ctx), orderID, token); err != nil {
			log.Printf("❌ Failed to release order lock | OrderID=%s: %v", orderID, err)
		}
	}()

	// 2. Transação única para todo o ChangeSet
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	if err := order.CanEdit(); err != nil {
		return nil, err
	}

	existing, err := uc.repository.ListItemsTx(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	existingByID := make(map[string]OrderItem, len(existing))
	for _, it := range existing {
		existingByID[it.ID] = it
	}

	// 3. Linhas: mismatches com o estado autoritativo viram erros por item,
	// sem descartar o resto do ChangeSet
	var itemErrors []ItemErrorResponse
	insertedByID := make(map[string]string) // item id -> temp id do cliente
	for _, wire := range req.Items {
		switch {
		case wire.Deleted && wire.ID != "":
			if _, ok := existingByID[wire.ID]; !ok {
				continue // já removido; deleção é idempotente
			}
			if err := uc.repository.DeleteItem(ctx, tx, orderID, wire.ID); err != nil {
				return nil, fmt.Errorf("failed to delete item: %w", err)
			}

		case wire.TempID != "":
			itemID, itemErr := uc.insertStagedItem(ctx, tx, orderID, wire)
			if itemErr != nil {
				itemErrors = append(itemErrors, ItemErrorResponse{TempID: wire.TempID, Error: itemErr.Error()})
				continue
			}
			insertedByID[itemID] = wire.TempID

		default:
			if itemErr := uc.updateStagedItem(ctx, tx, existingByID, wire); itemErr != nil {
				itemErrors = append(itemErrors, ItemErrorResponse{ID: wire.ID, Error: itemErr.Error()})
			}
		}
	}

	// 4. Desconto global, notas e endereços
	if err := uc.repository.UpdateOrderSettings(ctx, tx, orderID, req.GlobalDiscountPercent); err != nil {
		return nil, fmt.Errorf("failed to update order settings: %w", err)
	}
	for _, note := range req.Notes {
		if err := uc.repository.InsertNote(ctx, tx, &OrderNote{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			Author:    note.Author,
			Body:      note.Body,
			CreatedAt: time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("failed to insert note: %w", err)
		}
	}
	if err := uc.repository.UpdateAddresses(ctx, tx, orderID, req.Billing, req.Shipping); err != nil {
		return nil, fmt.Errorf("failed to update addresses: %w", err)
	}

	// 5. Reconciliação de pontos sobre o total pós-mutação, antes do
	// desconto de pontos
	items, err := uc.repository.ListItemsTx(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload order items: %w", err)
	}
	preTotal := orderTotalCents(items, req.GlobalDiscountPercent)

	var commitErrors []string
	result, err := uc.reconciler.Reconcile(ctx, tx, order, req.RequestedPoints, preTotal)
	if err != nil {
		var insufficient *InsufficientBalanceError
		if errors.As(err, &insufficient) || errors.Is(err, ErrPointsExceedTotal) {
			// validação de pontos não derruba o resto do commit
			commitErrors = append(commitErrors, err.Error())
		} else {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit draft: %w", err)
	}

	resp := &CommitResponse{
		OrderID:               orderID,
		CustomerID:            order.CustomerID,
		Items:                 itemsToResponse(items, insertedByID),
		GlobalDiscountPercent: req.GlobalDiscountPercent,
		Billing:               pickAddress(req.Billing, order.BillingAddress),
		Shipping:              pickAddress(req.Shipping, order.ShippingAddress),
		ItemErrors:            itemErrors,
		Errors:                commitErrors,
	}
	if result != nil {
		resp.AppliedPoints = result.AppliedPoints
		resp.PointsDiscountCents = result.DiscountCents
		resp.BalanceRemaining = result.BalanceRemaining
	} else {
		resp.AppliedPoints = order.AppliedPoints
		resp.PointsDiscountCents = order.PointsDiscountCents
		resp.BalanceRemaining = uc.readBalance(ctx, order.CustomerID)
	}

	log.Printf("✅ [COMMIT DRAFT] OrderID: %s | ItemErrors: %d | AppliedPoints: %d", orderID, len(itemErrors), resp.AppliedPoints)
	return resp, nil
}

// ReconcilePoints é o caminho standalone da fronteira do ledger, usado por
// retries e múltiplas abas sem um commit completo
func (uc *DraftOrderUseCase) ReconcilePoints(ctx context.Context, orderID string, requestedPoints int64) (*ReconcileResult, error) {
	token, ok, err := uc.lock.Acquire(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !ok {
		// submissão duplicada dentro do TTL: "já processado", não erro
		log.Printf("ℹ️ [POINTS] Duplicate submission absorbed | OrderID=%s", orderID)
		return &ReconcileResult{AlreadyProcessed: true}, nil
	}
	defer func() {
		if err := uc.lock.Release(context.WithoutCancel(ctx), orderID, token); err != nil {
			log.Printf("❌ Failed to release order lock | OrderID=%s: %v", orderID, err)
		}
	}()

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	items, err := uc.repository.ListItemsTx(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	preTotal := orderTotalCents(items, order.GlobalDiscountPercent)

	result, err := uc.reconciler.Reconcile(ctx, tx, order, requestedPoints, preTotal)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return result, nil
}

// insertStagedItem valida e insere um item novo. Produto desconhecido ou
// preço defasado em relação ao catálogo são erros por item.
func (uc *DraftOrderUseCase) insertStagedItem(ctx context.Context, tx Tx, orderID string, wire CommitItemRequest) (string, error) {
	price, err := uc.repository.GetProductPrice(ctx, tx, wire.ProductID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("unknown product %s", wire.ProductID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to check product: %w", err)
	}
	if price != wire.UnitPriceCents {
		return "", fmt.Errorf("stale price for product %s: staged %d, current %d", wire.ProductID, wire.UnitPriceCents, price)
	}

	item, err := NewOrderItem(uuid.New().String(), orderID, wire.ProductID, wire.Quantity, wire.UnitPriceCents)
	if err != nil {
		return "", err
	}
	if err := applyDiscountFields(item, wire); err != nil {
		return "", err
	}
	if err := uc.repository.InsertItem(ctx, tx, item); err != nil {
		return "", fmt.Errorf("failed to insert item: %w", err)
	}
	return item.ID, nil
}

func (uc *DraftOrderUseCase) updateStagedItem(ctx context.Context, tx Tx, existingByID map[string]OrderItem, wire CommitItemRequest) error {
	item, ok := existingByID[wire.ID]
	if !ok {
		return fmt.Errorf("unknown item %s", wire.ID)
	}
	if wire.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1 (use deleted flag to remove)")
	}
	item.Quantity = wire.Quantity
	if err := applyDiscountFields(&item, wire); err != nil {
		return err
	}
	return uc.repository.UpdateItem(ctx, tx, &item)
}

func applyDiscountFields(item *OrderItem, wire CommitItemRequest) error {
	switch wire.DiscountKind {
	case "", DiscountFollowsGlobal:
		item.DiscountKind = DiscountFollowsGlobal
		item.DiscountPercent = 0
		item.FixedPriceCents = 0
	case DiscountPercentOverride:
		if wire.DiscountPercent < -100 || wire.DiscountPercent > 100 {
			return fmt.Errorf("discount percent out of range: %v", wire.DiscountPercent)
		}
		item.DiscountKind = DiscountPercentOverride
		item.DiscountPercent = wire.DiscountPercent
		item.FixedPriceCents = 0
	case DiscountFixedPrice:
		if wire.FixedPriceCents < 0 {
			return fmt.Errorf("fixed price must not be negative")
		}
		item.DiscountKind = DiscountFixedPrice
		item.DiscountPercent = 0
		item.FixedPriceCents = wire.FixedPriceCents
	default:
		return fmt.Errorf("unknown discount kind %q", wire.DiscountKind)
	}
	return nil
}

func (uc *DraftOrderUseCase) readBalance(ctx context.Context, customerID string) int64 {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return 0
	}
	defer tx.Rollback()
	balance, err := uc.repository.GetBalance(ctx, tx, customerID)
	if err != nil {
		return 0
	}
	return balance.PointsBalance
}

func itemsToResponse(items []OrderItem, tempIDByItemID map[string]string) []CommittedItemResponse {
	out := make([]CommittedItemResponse, 0, len(items))
	for _, it := range items {
		resp := CommittedItemResponse{
			ID:              it.ID,
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			UnitPriceCents:  it.UnitPriceCents,
			DiscountKind:    it.DiscountKind,
			DiscountPercent: it.DiscountPercent,
			FixedPriceCents: it.FixedPriceCents,
		}
		if tempIDByItemID != nil {
			resp.TempID = tempIDByItemID[it.ID]
		}
		out = append(out, resp)
	}
	return out
}

func pickAddress(override *Address, current Address) Address {
	if override != nil {
		return *override
	}
	return current
}
