package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errand-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/service"
)

// PaymentUseCase операции с платежами, доступные пользователю.
type PaymentUseCase interface {
	Initialize(ctx context.Context, actor service.Actor, in service.InitializeInput) (*service.InitializeResult, error)
	Verify(ctx context.Context, actor service.Actor, reference string) (*models.Payment, error)
	ListForPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) (*models.PaymentListResult, error)
	GetByReference(ctx context.Context, actor service.Actor, reference string) (*models.Payment, error)
}

type PaymentHandler struct {
	payments PaymentUseCase
}

func NewPaymentHandler(payments PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Initialize POST /payments/initialize
func (h *PaymentHandler) Initialize(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		ErrandID string           `json:"errand_id" binding:"required"`
		Amount   *decimal.Decimal `json:"amount"`
		Currency string           `json:"currency"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}
	errandID, err := uuid.Parse(req.ErrandID)
	if err != nil {
		common.Fail(c, apperror.New(apperror.ErrCodeBadRequest, "неверный формат errand_id"))
		return
	}

	result, err := h.payments.Initialize(c.Request.Context(), actor, service.InitializeInput{
		ErrandID: errandID,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Verify GET /payments/verify/:reference
func (h *PaymentHandler) Verify(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	payment, err := h.payments.Verify(c.Request.Context(), actor, c.Param("reference"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// List GET /payments
func (h *PaymentHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	result, err := h.payments.ListForPayer(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Get GET /payments/:reference
func (h *PaymentHandler) Get(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	payment, err := h.payments.GetByReference(c.Request.Context(), actor, c.Param("reference"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}
