package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/metric"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderBusy é o sinal transiente de contenção de lock: o chamador
	// deve apresentar "tente de novo", não uma falha definitiva
	ErrOrderBusy = errors.New("order reconciliation already in progress, retry later")

	// ErrPointsExceedTotal só é devolvido sob a política "reject"
	ErrPointsExceedTotal = errors.New("requested points exceed the order total")
)

// InsufficientBalanceError carrega o shortfall explícito exigido pela
// validação de saldo
type InsufficientBalanceError struct {
	Shortfall int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient points balance: short by %d points", e.Shortfall)
}

// ClampPolicy decide o que fazer quando o valor monetário dos pontos
// excederia o total do pedido. Política configurável, não comportamento
// fixo; o valor ajustado é devolvido ao chamador em todos os casos.
type ClampPolicy string

const (
	ClampAndReport ClampPolicy = "clamp-and-report"
	ClampReject    ClampPolicy = "reject"
)

// ReconcileResult é o resultado autoritativo de uma reconciliação
type ReconcileResult struct {
	AppliedPoints    int64 `json:"applied_points"`
	DiscountCents    int64 `json:"discount_cents"`
	BalanceRemaining int64 `json:"balance_remaining"`
	NoOp             bool  `json:"no_op,omitempty"`
	AlreadyProcessed bool  `json:"already_processed,omitempty"`
	Clamped          bool  `json:"clamped,omitempty"`
}

// PointsReconciler aplica ajustes delta-based e idempotentes ao saldo de
// pontos do cliente, representados como um desconto sintético no pedido.
//
// A máquina de estados por pedido (Idle → Locked → Applied|Rejected →
// Idle) é realizada pelo chamador via OrderLock; Reconcile executa o
// trecho Locked e assume que o lock e a transação já foram tomados.
type PointsReconciler struct {
	repository Repository

	// pointsPerCent converte pontos em centavos: discount = points / rate
	pointsPerCent int64
	clampPolicy   ClampPolicy

	reconcileAppliedCounter  metric.Int64Counter
	reconcileRejectedCounter metric.Int64Counter
	reconcileNoopCounter     metric.Int64Counter
}

// NewPointsReconciler cria o reconciliador com a taxa de conversão e a
// política de clamp configuradas
func NewPointsReconciler(repository Repository, pointsPerCent int64, clampPolicy ClampPolicy, meter metric.Meter) *PointsReconciler {
	if pointsPerCent < 1 {
		pointsPerCent = 1
	}
	rc := &PointsReconciler{
		repository:    repository,
		pointsPerCent: pointsPerCent,
		clampPolicy:   clampPolicy,
	}
	if meter != nil {
		rc.reconcileAppliedCounter, _ = meter.Int64Counter("points_reconcile_applied_total")
		rc.reconcileRejectedCounter, _ = meter.Int64Counter("points_reconcile_rejected_total")
		rc.reconcileNoopCounter, _ = meter.Int64Counter("points_reconcile_noop_total")
	}
	return rc
}

// Reconcile aplica exatamente o delta entre os pontos pedidos e os já
// commitados neste pedido — nunca o valor bruto pedido. prePointsTotalCents
// é o total do pedido antes do desconto de pontos, usado pelo clamp.
func (rc *PointsReconciler) Reconcile(ctx context.Context, tx Tx, order *Order, requestedPoints, prePointsTotalCents int64) (*ReconcileResult, error) {
	// 1. Pontos já encodados como desconto ativo (com fallback histórico)
	committed, err := rc.repository.GetCommittedPoints(ctx, tx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read committed points: %w", err)
	}

	// 2. Clamp antes de qualquer mutação: o valor monetário nunca excede o
	// total do pedido excluindo este próprio desconto, para não gerar
	// total negativo. Se reduzir, a contagem aplicada cai proporcionalmente.
	applied := requestedPoints
	discountCents := requestedPoints / rc.pointsPerCent
	clamped := false
	if discountCents > prePointsTotalCents {
		if rc.clampPolicy == ClampReject {
			rc.count(ctx, rc.reconcileRejectedCounter)
			return nil, ErrPointsExceedTotal
		}
		discountCents = prePointsTotalCents
		applied = prePointsTotalCents * rc.pointsPerCent
		clamped = true
		log.Printf("ℹ️ [POINTS] Clamped redemption | OrderID=%s requested=%d applied=%d", order.ID, requestedPoints, applied)
	}

	// 3. Delta com sinal. Zero é sucesso no-op idempotente, não erro.
	delta := applied - committed
	if delta == 0 {
		balance, err := rc.repository.GetBalance(ctx, tx, order.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to read balance: %w", err)
		}
		rc.count(ctx, rc.reconcileNoopCounter)
		log.Printf("ℹ️ [POINTS] No-op reconciliation | OrderID=%s committed=%d", order.ID, committed)
		return &ReconcileResult{
			AppliedPoints:    committed,
			DiscountCents:    discountCents,
			BalanceRemaining: balance.PointsBalance,
			NoOp:             true,
			Clamped:          clamped,
		}, nil
	}

	// 4. Saldo com lock pessimista; valida shortfall explícito para
	// resgates adicionais
	balance, err := rc.repository.GetBalanceForUpdate(ctx, tx, order.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	if delta > 0 && balance.PointsBalance < delta {
		rc.count(ctx, rc.reconcileRejectedCounter)
		log.Printf("❌ [POINTS] Insufficient balance | OrderID=%s delta=%+d balance=%d", order.ID, delta, balance.PointsBalance)
		return nil, &InsufficientBalanceError{Shortfall: delta - balance.PointsBalance}
	}

	// 5. Ajuste com sinal via transação de ledger, nunca overwrite de saldo
	reason := PointsReasonRedeem
	if delta < 0 {
		reason = PointsReasonRefund
	}
	if err := rc.repository.ApplyBalanceDelta(ctx, tx, order.CustomerID, order.ID, -delta, reason); err != nil {
		return nil, fmt.Errorf("failed to apply balance delta: %w", err)
	}

	// 6. Exatamente uma representação de desconto de pontos após o commit,
	// e a contagem aplicada persistida para o próximo cálculo de delta
	if err := rc.repository.ReplacePointsDiscount(ctx, tx, order.ID, applied, discountCents); err != nil {
		return nil, fmt.Errorf("failed to replace points discount: %w", err)
	}
	if err := rc.repository.SetAppliedPoints(ctx, tx, order.ID, applied, discountCents); err != nil {
		return nil, fmt.Errorf("failed to persist applied points: %w", err)
	}

	rc.count(ctx, rc.reconcileAppliedCounter)
	log.Printf("💳 [POINTS] Ledger adjustment | OrderID=%s CustomerID=%s delta=%+d reason=%s applied=%d",
		order.ID, order.CustomerID, -delta, reason, applied)

	return &ReconcileResult{
		AppliedPoints:    applied,
		DiscountCents:    discountCents,
		BalanceRemaining: balance.PointsBalance - delta,
		Clamped:          clamped,
	}, nil
}

func (rc *PointsReconciler) count(ctx context.Context, counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(ctx, 1)
	}
}
