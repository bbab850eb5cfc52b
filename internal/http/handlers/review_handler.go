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

type ReviewUseCase interface {
	Submit(ctx context.Context, errandID, reviewerID uuid.UUID, rating int, feedback *string) (*models.Review, error)
	ListByErrand(ctx context.Context, errandID uuid.UUID) ([]models.Review, error)
	ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) (*service.RunnerReviews, error)
}

type ReviewHandler struct {
	reviews ReviewUseCase
}

func NewReviewHandler(reviews ReviewUseCase) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Create POST /errands/:id/reviews
func (h *ReviewHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	errandID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	// rating 0 или отсутствие поля проверяет сервис
	var req struct {
		Rating   int     `json:"rating"`
		Feedback *string `json:"feedback"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	review, err := h.reviews.Submit(c.Request.Context(), errandID, userID, req.Rating, req.Feedback)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

// ListByErrand GET /errands/:id/reviews
func (h *ReviewHandler) ListByErrand(c *gin.Context) {
	errandID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	reviews, err := h.reviews.ListByErrand(c.Request.Context(), errandID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

// ListByRunner GET /users/:id/reviews
func (h *ReviewHandler) ListByRunner(c *gin.Context) {
	runnerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	result, err := h.reviews.ListByRunner(c.Request.Context(), runnerID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
