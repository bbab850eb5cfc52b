package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/errand-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/service"
)

// PayoutProfileUseCase управление реквизитами для выплат.
type PayoutProfileUseCase interface {
	GetPayoutProfile(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error)
	UpdatePayoutProfile(ctx context.Context, userID uuid.UUID, in service.PayoutProfileInput) (*models.PayoutProfile, error)
	CreateVirtualAccount(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error)
}

type ProfileHandler struct {
	profiles PayoutProfileUseCase
}

func NewProfileHandler(profiles PayoutProfileUseCase) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetPayout GET /profile/payout
func (h *ProfileHandler) GetPayout(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	profile, err := h.profiles.GetPayoutProfile(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdatePayout PUT /profile/payout
func (h *ProfileHandler) UpdatePayout(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		FirstName     string `json:"first_name"`
		LastName      string `json:"last_name"`
		Email         string `json:"email"`
		Phone         string `json:"phone"`
		AccountNumber string `json:"account_number"`
		BankName      string `json:"bank_name"`
		BankCode      string `json:"bank_code"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	profile, err := h.profiles.UpdatePayoutProfile(c.Request.Context(), userID, service.PayoutProfileInput{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Phone:         req.Phone,
		AccountNumber: req.AccountNumber,
		BankName:      req.BankName,
		BankCode:      req.BankCode,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// CreateVirtualAccount POST /profile/payout/vda
func (h *ProfileHandler) CreateVirtualAccount(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	profile, err := h.profiles.CreateVirtualAccount(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
