package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/repository"
	"github.com/ignatzorin/errand-backend/internal/validation"
)

type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	GetByErrandAndReviewer(ctx context.Context, errandID, reviewerID uuid.UUID) (*models.Review, error)
	ListByErrand(ctx context.Context, errandID uuid.UUID) ([]models.Review, error)
	ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) ([]models.Review, error)
	GetRunnerRating(ctx context.Context, runnerID uuid.UUID) (*models.RunnerRating, error)
}

// RunnerReviews отзывы об исполнителе с агрегированным рейтингом.
type RunnerReviews struct {
	RunnerID uuid.UUID           `json:"runner_id"`
	Rating   models.RunnerRating `json:"rating"`
	Reviews  []models.Review     `json:"reviews"`
}

type ReviewService struct {
	repo    ReviewRepository
	errands ErrandReader
}

func NewReviewService(repo ReviewRepository, errands ErrandReader) *ReviewService {
	return &ReviewService{repo: repo, errands: errands}
}

// Submit сохраняет отзыв автора об исполнителе завершённого поручения.
// Оценка 0 считается отсутствующей.
func (s *ReviewService) Submit(ctx context.Context, errandID, reviewerID uuid.UUID, rating int, feedback *string) (*models.Review, error) {
	if err := validation.ValidateRating(rating); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateFeedback(feedback); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	errand, err := s.errands.GetByID(ctx, errandID)
	if err != nil {
		return nil, mapErrandErr(err)
	}
	if !errand.IsCreator(reviewerID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "оставить отзыв может только автор поручения")
	}
	if errand.Status != valueobject.ErrandStatusCompleted || errand.RunnerID == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "отзыв можно оставить только после завершения поручения")
	}

	existing, err := s.repo.GetByErrandAndReviewer(ctx, errandID, reviewerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "вы уже оставили отзыв на это поручение")
	}

	if feedback != nil {
		trimmed := strings.TrimSpace(*feedback)
		feedback = &trimmed
		if trimmed == "" {
			feedback = nil
		}
	}

	review := &models.Review{
		ErrandID:   errandID,
		ReviewerID: reviewerID,
		RunnerID:   *errand.RunnerID,
		Rating:     rating,
		Feedback:   feedback,
	}
	if err := s.repo.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrReviewExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "вы уже оставили отзыв на это поручение")
		}
		return nil, err
	}

	return review, nil
}

// ListByErrand возвращает отзывы по поручению.
func (s *ReviewService) ListByErrand(ctx context.Context, errandID uuid.UUID) ([]models.Review, error) {
	if _, err := s.errands.GetByID(ctx, errandID); err != nil {
		return nil, mapErrandErr(err)
	}
	return s.repo.ListByErrand(ctx, errandID)
}

// ListByRunner возвращает отзывы об исполнителе и его средний рейтинг.
func (s *ReviewService) ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) (*RunnerReviews, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	reviews, err := s.repo.ListByRunner(ctx, runnerID, limit, offset)
	if err != nil {
		return nil, err
	}
	rating, err := s.repo.GetRunnerRating(ctx, runnerID)
	if err != nil {
		return nil, err
	}

	return &RunnerReviews{RunnerID: runnerID, Rating: *rating, Reviews: reviews}, nil
}
