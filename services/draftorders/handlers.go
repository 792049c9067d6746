package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DraftOrderUseCaseInterface define a interface para o use case
type DraftOrderUseCaseInterface interface {
	LoadOrder(ctx context.Context, orderID string) (*OrderSnapshotResponse, error)
	CommitDraft(ctx context.Context, orderID string, req CommitRequest) (*CommitResponse, error)
	ReconcilePoints(ctx context.Context, orderID string, requestedPoints int64) (*ReconcileResult, error)
}

// DraftOrderHandler contém os handlers HTTP
type DraftOrderHandler struct {
	useCase DraftOrderUseCaseInterface
	tracer  trace.Tracer
}

// NewDraftOrderHandler cria uma nova instância de DraftOrderHandler
func NewDraftOrderHandler(useCase DraftOrderUseCaseInterface, tracer trace.Tracer) *DraftOrderHandler {
	return &DraftOrderHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// LoadOrder devolve o snapshot autoritativo que inicializa a sessão de
// staging
func (h *DraftOrderHandler) LoadOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "load_order")
	defer span.End()

	orderID := c.Param("id")
	span.SetAttributes(attribute.String("order_id", orderID))

	snapshot, err := h.useCase.LoadOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// CommitDraft aplica o ChangeSet completo de uma sessão de staging
func (h *DraftOrderHandler) CommitDraft(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "commit_draft")
	defer span.End()

	orderID := c.Param("id")

	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.Int("items", len(req.Items)),
		attribute.Int64("requested_points", req.RequestedPoints),
		attribute.Float64("global_discount_percent", req.GlobalDiscountPercent),
	)

	resp, err := h.useCase.CommitDraft(ctx, orderID, req)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrOrderBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retry": true})
			return
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.Int64("applied_points", resp.AppliedPoints),
		attribute.Int("item_errors", len(resp.ItemErrors)),
	)
	c.JSON(http.StatusOK, resp)
}

// ReconcilePoints é o endpoint standalone da fronteira do ledger
func (h *DraftOrderHandler) ReconcilePoints(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "reconcile_points")
	defer span.End()

	orderID := c.Param("id")

	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.Int64("requested_points", req.RequestedPoints),
	)

	result, err := h.useCase.ReconcilePoints(ctx, orderID, req.RequestedPoints)
	if err != nil {
		span.RecordError(err)
		var insufficient *InsufficientBalanceError
		if errors.As(err, &insufficient) {
			c.JSON(http.StatusUnprocessableEntity, ReconcileResponse{
				Success: false,
				Errors:  []string{err.Error()},
			})
			return
		}
		if errors.Is(err, ErrPointsExceedTotal) {
			c.JSON(http.StatusUnprocessableEntity, ReconcileResponse{
				Success: false,
				Errors:  []string{err.Error()},
			})
			return
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ReconcileResponse{
		AppliedPoints:    result.AppliedPoints,
		DiscountCents:    result.DiscountCents,
		BalanceRemaining: result.BalanceRemaining,
		Success:          true,
		AlreadyProcessed: result.AlreadyProcessed,
		Clamped:          result.Clamped,
	})
}

// HealthCheck verifica a saúde do serviço
func (h *DraftOrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "draftorders-service",
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrOrderBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
