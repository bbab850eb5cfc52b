package models

import (
	"time"

	"github.com/google/uuid"
)

// Review оценка работы исполнителя, оставленная заказчиком после одобрения.
type Review struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ErrandID   uuid.UUID `db:"errand_id" json:"errand_id"`
	ReviewerID uuid.UUID `db:"reviewer_id" json:"reviewer_id"`
	RunnerID   uuid.UUID `db:"runner_id" json:"runner_id"`
	Rating     int       `db:"rating" json:"rating"`
	Feedback   *string   `db:"feedback" json:"feedback,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RunnerRating агрегированный рейтинг исполнителя.
type RunnerRating struct {
	Average float64 `db:"average" json:"average_rating"`
	Count   int     `db:"count" json:"total_reviews"`
}
