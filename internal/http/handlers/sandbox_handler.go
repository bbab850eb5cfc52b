package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/errand-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/service"
)

// SandboxUseCase операции, доступные только с тестовым провайдером.
type SandboxUseCase interface {
	SimulateDeposit(ctx context.Context, actor service.Actor, paymentID uuid.UUID) (*models.Payment, error)
	SimulatePayout(ctx context.Context, actor service.Actor, paymentID uuid.UUID) (*service.SettlementOutcome, error)
	SimulateRefund(ctx context.Context, actor service.Actor, paymentID uuid.UUID, reason string) (*service.SettlementOutcome, error)
	PayErrand(ctx context.Context, actor service.Actor, errandID uuid.UUID) (*service.Receipt, error)
}

type SandboxHandler struct {
	payments SandboxUseCase
}

func NewSandboxHandler(payments SandboxUseCase) *SandboxHandler {
	return &SandboxHandler{payments: payments}
}

// Deposit POST /sandbox/payments/:id/deposit
func (h *SandboxHandler) Deposit(c *gin.Context) {
	actor, paymentID, ok := actorAndID(c)
	if !ok {
		return
	}

	payment, err := h.payments.SimulateDeposit(c.Request.Context(), actor, paymentID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// Payout POST /sandbox/payments/:id/payout
func (h *SandboxHandler) Payout(c *gin.Context) {
	actor, paymentID, ok := actorAndID(c)
	if !ok {
		return
	}

	outcome, err := h.payments.SimulatePayout(c.Request.Context(), actor, paymentID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// Refund POST /sandbox/payments/:id/refund
func (h *SandboxHandler) Refund(c *gin.Context) {
	actor, paymentID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// тело необязательно
	if err := common.BindJSON(c, &req); err != nil && !errors.Is(err, io.EOF) {
		common.Fail(c, err)
		return
	}

	outcome, err := h.payments.SimulateRefund(c.Request.Context(), actor, paymentID, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// PayErrand POST /sandbox/errands/:id/pay
func (h *SandboxHandler) PayErrand(c *gin.Context) {
	actor, errandID, ok := actorAndID(c)
	if !ok {
		return
	}

	receipt, err := h.payments.PayErrand(c.Request.Context(), actor, errandID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func actorAndID(c *gin.Context) (service.Actor, uuid.UUID, bool) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return service.Actor{}, uuid.Nil, false
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return service.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
