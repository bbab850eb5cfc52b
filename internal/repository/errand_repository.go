package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/repository/common"
)

var (
	// ErrErrandNotFound возвращается, когда поручение не найдено.
	ErrErrandNotFound = errors.New("errand not found")
	// ErrErrandTransition возвращается, когда условное обновление не затронуло ни одной строки:
	// поручение уже в другом статусе или у него другой участник.
	ErrErrandTransition = errors.New("errand transition rejected")
	// ErrErrandInvalid возвращается, когда запись нарушает ограничения таблицы errands.
	ErrErrandInvalid = errors.New("errand violates table constraints")
)

const errandColumns = `id, creator_id, runner_id, title, description, price, duration_seconds,
	status, approved, created_at, updated_at`

// sortableErrandColumns поля, по которым разрешена сортировка списка.
var sortableErrandColumns = map[string]string{
	"created_at":       "created_at",
	"updated_at":       "updated_at",
	"price":            "price",
	"title":            "title",
	"status":           "status",
	"duration":         "duration_seconds",
	"duration_seconds": "duration_seconds",
}

// ErrandRepository работает с таблицей errands.
type ErrandRepository struct {
	db *sqlx.DB
}

// NewErrandRepository создаёт репозиторий поручений.
func NewErrandRepository(db *sqlx.DB) *ErrandRepository {
	return &ErrandRepository{db: db}
}

// Create сохраняет новое поручение.
func (r *ErrandRepository) Create(ctx context.Context, errand *models.Errand) error {
	query := `
		INSERT INTO errands (creator_id, title, description, price, duration_seconds, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, approved, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(ctx, query,
		errand.CreatorID, errand.Title, errand.Description, errand.Price, errand.DurationSeconds, errand.Status,
	).Scan(&errand.ID, &errand.Approved, &errand.CreatedAt, &errand.UpdatedAt); err != nil {
		if common.IsConstraintViolation(err) {
			return fmt.Errorf("errand repository: create (%s): %w", common.ConstraintName(err), ErrErrandInvalid)
		}
		return fmt.Errorf("errand repository: create: %w", err)
	}

	return nil
}

// GetByID возвращает поручение по идентификатору.
func (r *ErrandRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Errand, error) {
	errand, err := common.GetByID[models.Errand](ctx, r.db, "errands", id, ErrErrandNotFound)
	if err != nil && !errors.Is(err, ErrErrandNotFound) {
		return nil, fmt.Errorf("errand repository: %w", err)
	}
	return errand, err
}

// List возвращает страницу поручений с фильтрами и сортировкой.
func (r *ErrandRepository) List(ctx context.Context, filter models.ErrandFilter) (*models.ErrandListResult, error) {
	var (
		conditions []string
		args       []interface{}
		argIndex   = 1
	)

	if filter.CreatorID != nil {
		conditions = append(conditions, fmt.Sprintf("creator_id = $%d", argIndex))
		args = append(args, *filter.CreatorID)
		argIndex++
	}
	if filter.RunnerID != nil {
		conditions = append(conditions, fmt.Sprintf("runner_id = $%d", argIndex))
		args = append(args, *filter.RunnerID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.CreatedAfter != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.CreatedAfter)
		argIndex++
	}
	if filter.CreatedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM errands " + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("errand repository: count: %w", err)
	}

	column, ok := sortableErrandColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM errands %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		errandColumns, where, column, direction, direction, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	errands := make([]models.Errand, 0)
	if err := r.db.SelectContext(ctx, &errands, query, args...); err != nil {
		return nil, fmt.Errorf("errand repository: list: %w", err)
	}

	return &models.ErrandListResult{
		Errands: errands,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		HasMore: filter.Offset+len(errands) < total,
	}, nil
}

// Accept атомарно назначает исполнителя: строка обновится только если поручение
// в статусе pending, исполнитель ещё не назначен и принимающий не автор.
func (r *ErrandRepository) Accept(ctx context.Context, id, runnerID uuid.UUID) (*models.Errand, error) {
	query := `
		UPDATE errands
		SET runner_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND runner_id IS NULL AND creator_id <> $2
		RETURNING ` + errandColumns

	return r.transition(ctx, "accept", query,
		id, runnerID, valueobject.ErrandStatusActive, valueobject.ErrandStatusPending)
}

// MarkAwaitingApproval переводит поручение исполнителя в ожидание одобрения.
func (r *ErrandRepository) MarkAwaitingApproval(ctx context.Context, id, runnerID uuid.UUID) (*models.Errand, error) {
	query := `
		UPDATE errands
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND runner_id = $2 AND status = $4
		RETURNING ` + errandColumns

	return r.transition(ctx, "mark awaiting approval", query,
		id, runnerID, valueobject.ErrandStatusAwaitingApproval, valueobject.ErrandStatusActive)
}

// Approve завершает поручение по решению автора и выставляет approved.
func (r *ErrandRepository) Approve(ctx context.Context, id, creatorID uuid.UUID) (*models.Errand, error) {
	query := `
		UPDATE errands
		SET status = $3, approved = TRUE, updated_at = NOW()
		WHERE id = $1 AND creator_id = $2 AND status = $4
		RETURNING ` + errandColumns

	return r.transition(ctx, "approve", query,
		id, creatorID, valueobject.ErrandStatusCompleted, valueobject.ErrandStatusAwaitingApproval)
}

// Cancel закрывает ещё не принятое поручение автора. После этого принять его уже нельзя.
func (r *ErrandRepository) Cancel(ctx context.Context, id, creatorID uuid.UUID) (*models.Errand, error) {
	query := `
		UPDATE errands
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND creator_id = $2 AND runner_id IS NULL AND status IN ($4, $5)
		RETURNING ` + errandColumns

	return r.transition(ctx, "cancel", query,
		id, creatorID, valueobject.ErrandStatusCancelled,
		valueobject.ErrandStatusPaymentPending, valueobject.ErrandStatusPending)
}

// MarkRefunded помечает отменённое поручение как возвращённое.
func (r *ErrandRepository) MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Errand, error) {
	query := `
		UPDATE errands
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING ` + errandColumns

	return r.transition(ctx, "mark refunded", query,
		id, valueobject.ErrandStatusRefunded, valueobject.ErrandStatusCancelled)
}

// MarkFunded переводит поручение из payment_pending в pending после подтверждения депозита.
// Возвращает false, если поручение уже в другом статусе или удалено.
func (r *ErrandRepository) MarkFunded(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE errands
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, valueobject.ErrandStatusPending, valueobject.ErrandStatusPaymentPending)
	if err != nil {
		return false, fmt.Errorf("errand repository: mark funded: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("errand repository: mark funded rows: %w", err)
	}
	return rows > 0, nil
}

// Delete удаляет закрытое поручение автора без исполнителя.
func (r *ErrandRepository) Delete(ctx context.Context, id, creatorID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM errands
		WHERE id = $1 AND creator_id = $2 AND runner_id IS NULL AND status IN ($3, $4)
	`, id, creatorID, valueobject.ErrandStatusCancelled, valueobject.ErrandStatusRefunded)
	if err != nil {
		return fmt.Errorf("errand repository: delete: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("errand repository: delete rows: %w", err)
	}
	if rows == 0 {
		return ErrErrandTransition
	}
	return nil
}

func (r *ErrandRepository) transition(ctx context.Context, op, query string, args ...interface{}) (*models.Errand, error) {
	var errand models.Errand
	if err := r.db.GetContext(ctx, &errand, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrErrandTransition
		}
		return nil, fmt.Errorf("errand repository: %s: %w", op, err)
	}
	return &errand, nil
}
