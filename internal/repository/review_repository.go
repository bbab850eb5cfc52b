package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/repository/common"
)

var (
	// ErrReviewExists возвращается при повторном отзыве того же автора на поручение.
	ErrReviewExists = errors.New("review already exists")
)

type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create добавляет отзыв. Уникальность (errand_id, reviewer_id) гарантирует индекс.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (errand_id, reviewer_id, runner_id, rating, feedback)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		review.ErrandID, review.ReviewerID, review.RunnerID, review.Rating, review.Feedback,
	).Scan(&review.ID, &review.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrReviewExists
		}
		return fmt.Errorf("review repository: create: %w", err)
	}
	return nil
}

// GetByErrandAndReviewer возвращает nil, если автор ещё не оставлял отзыв.
func (r *ReviewRepository) GetByErrandAndReviewer(ctx context.Context, errandID, reviewerID uuid.UUID) (*models.Review, error) {
	var review models.Review
	err := r.db.GetContext(ctx, &review, `SELECT * FROM reviews WHERE errand_id = $1 AND reviewer_id = $2`, errandID, reviewerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("review repository: get by errand and reviewer: %w", err)
	}
	return &review, nil
}

// ListByErrand возвращает отзывы по поручению.
func (r *ReviewRepository) ListByErrand(ctx context.Context, errandID uuid.UUID) ([]models.Review, error) {
	reviews := make([]models.Review, 0)
	err := r.db.SelectContext(ctx, &reviews, `SELECT * FROM reviews WHERE errand_id = $1 ORDER BY created_at`, errandID)
	if err != nil {
		return nil, fmt.Errorf("review repository: list by errand: %w", err)
	}
	return reviews, nil
}

// ListByRunner возвращает отзывы об исполнителе.
func (r *ReviewRepository) ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) ([]models.Review, error) {
	reviews := make([]models.Review, 0)
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM reviews WHERE runner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, runnerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("review repository: list by runner: %w", err)
	}
	return reviews, nil
}

// GetRunnerRating возвращает средний рейтинг исполнителя.
func (r *ReviewRepository) GetRunnerRating(ctx context.Context, runnerID uuid.UUID) (*models.RunnerRating, error) {
	var rating models.RunnerRating
	err := r.db.GetContext(ctx, &rating, `
		SELECT COALESCE(AVG(rating), 0)::float8 AS average, COUNT(*) AS count
		FROM reviews WHERE runner_id = $1
	`, runnerID)
	if err != nil {
		return nil, fmt.Errorf("review repository: runner rating: %w", err)
	}
	return &rating, nil
}
