package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
)

// Errand описывает поручение, размещённое заказчиком.
type Errand struct {
	ID              uuid.UUID                `db:"id" json:"id"`
	CreatorID       uuid.UUID                `db:"creator_id" json:"creator_id"`
	RunnerID        *uuid.UUID               `db:"runner_id" json:"runner_id,omitempty"`
	Title           string                   `db:"title" json:"title"`
	Description     string                   `db:"description" json:"description"`
	Price           decimal.Decimal          `db:"price" json:"price"`
	DurationSeconds int64                    `db:"duration_seconds" json:"duration_seconds"`
	Status          valueobject.ErrandStatus `db:"status" json:"status"`
	Approved        bool                     `db:"approved" json:"approved"`
	CreatedAt       time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                `db:"updated_at" json:"updated_at"`

	HasExpired bool `db:"-" json:"has_expired"`
}

// Duration возвращает срок выполнения поручения.
func (e *Errand) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

// ExpiresAt момент, после которого поручение считается просроченным.
func (e *Errand) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.Duration())
}

// RefreshExpiry пересчитывает has_expired относительно now.
func (e *Errand) RefreshExpiry(now time.Time) {
	e.HasExpired = now.After(e.ExpiresAt())
}

// IsCreator проверяет, что пользователь является автором поручения.
func (e *Errand) IsCreator(userID uuid.UUID) bool {
	return e.CreatorID == userID
}

// IsRunner проверяет, что пользователь назначен исполнителем.
func (e *Errand) IsRunner(userID uuid.UUID) bool {
	return e.RunnerID != nil && *e.RunnerID == userID
}

// ErrandFilter параметры выборки списка поручений.
type ErrandFilter struct {
	CreatorID     *uuid.UUID
	RunnerID      *uuid.UUID
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	SortBy        string
	Descending    bool
	Limit         int
	Offset        int
}

// ErrandListResult страница списка поручений.
type ErrandListResult struct {
	Errands []Errand `json:"errands"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
	HasMore bool     `json:"has_more"`
}
