package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errand-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/service"
)

// maxDurationMinutes 30 суток.
const maxDurationMinutes = 30 * 24 * 60

// ErrandUseCase операции над поручениями.
type ErrandUseCase interface {
	Create(ctx context.Context, creatorID uuid.UUID, in service.CreateErrandInput) (*models.Errand, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Errand, error)
	List(ctx context.Context, q service.ListErrandsQuery) (*models.ErrandListResult, error)
	Accept(ctx context.Context, actorID, errandID uuid.UUID) (*models.Errand, error)
	MarkComplete(ctx context.Context, actorID, errandID uuid.UUID) (*models.Errand, error)
	Approve(ctx context.Context, actorID, errandID uuid.UUID) (*service.ApprovalResult, error)
	Cancel(ctx context.Context, actorID, errandID uuid.UUID) (*service.CancelResult, error)
	Delete(ctx context.Context, actorID, errandID uuid.UUID) error
}

type ErrandHandler struct {
	errands ErrandUseCase
}

func NewErrandHandler(errands ErrandUseCase) *ErrandHandler {
	return &ErrandHandler{errands: errands}
}

type createErrandRequest struct {
	Title           string          `json:"title" binding:"required"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes *int            `json:"duration_minutes"`
}

// Create POST /errands
func (h *ErrandHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req createErrandRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	in := service.CreateErrandInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes < 1 || *req.DurationMinutes > maxDurationMinutes {
			common.Fail(c, apperror.New(apperror.ErrCodeValidation, "срок поручения должен быть от 1 минуты до 30 суток"))
			return
		}
		d := time.Duration(*req.DurationMinutes) * time.Minute
		in.Duration = &d
	}

	errand, err := h.errands.Create(c.Request.Context(), userID, in)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, errand)
}

// List GET /errands
// Некорректные фильтры игнорируются, а не отклоняются.
func (h *ErrandHandler) List(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	result, err := h.errands.List(c.Request.Context(), service.ListErrandsQuery{
		Creator:       c.Query("creator"),
		Runner:        c.Query("runner"),
		Status:        c.Query("status"),
		CreatedAfter:  c.Query("created_after"),
		CreatedBefore: c.Query("created_before"),
		WithinMinutes: c.Query("within_minutes"),
		Sort:          c.Query("sort"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Get GET /errands/:id
func (h *ErrandHandler) Get(c *gin.Context) {
	errandID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	errand, err := h.errands.Get(c.Request.Context(), errandID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, errand)
}

// Accept POST /errands/:id/accept
func (h *ErrandHandler) Accept(c *gin.Context) {
	h.transition(c, h.errands.Accept)
}

// Complete POST /errands/:id/complete
func (h *ErrandHandler) Complete(c *gin.Context) {
	h.transition(c, h.errands.MarkComplete)
}

// Approve POST /errands/:id/approve
func (h *ErrandHandler) Approve(c *gin.Context) {
	userID, errandID, ok := h.actorAndErrand(c)
	if !ok {
		return
	}

	result, err := h.errands.Approve(c.Request.Context(), userID, errandID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Cancel POST /errands/:id/cancel
func (h *ErrandHandler) Cancel(c *gin.Context) {
	userID, errandID, ok := h.actorAndErrand(c)
	if !ok {
		return
	}

	result, err := h.errands.Cancel(c.Request.Context(), userID, errandID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Delete DELETE /errands/:id
func (h *ErrandHandler) Delete(c *gin.Context) {
	userID, errandID, ok := h.actorAndErrand(c)
	if !ok {
		return
	}

	if err := h.errands.Delete(c.Request.Context(), userID, errandID); err != nil {
		common.Fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ErrandHandler) transition(c *gin.Context, fn func(ctx context.Context, actorID, errandID uuid.UUID) (*models.Errand, error)) {
	userID, errandID, ok := h.actorAndErrand(c)
	if !ok {
		return
	}

	errand, err := fn(c.Request.Context(), userID, errandID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, errand)
}

func (h *ErrandHandler) actorAndErrand(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return uuid.Nil, uuid.Nil, false
	}
	errandID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, errandID, true
}
