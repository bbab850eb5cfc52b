package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/repository/common"
)

var (
	// ErrPaymentNotFound возвращается, когда платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrDuplicateReference возвращается при повторном использовании reference.
	ErrDuplicateReference = errors.New("payment reference already exists")
	// ErrActivePaymentExists возвращается, когда у плательщика по поручению уже
	// есть платёж в статусе pending или success.
	ErrActivePaymentExists = errors.New("active payment for errand already exists")
)

// activePaymentConstraint частичный уникальный индекс на (errand_id, payer_id).
const activePaymentConstraint = "payments_errand_payer_active_key"

func uniqueViolationErr(err error) error {
	if common.ConstraintName(err) == activePaymentConstraint {
		return ErrActivePaymentExists
	}
	return ErrDuplicateReference
}

// PaymentRepository работает с таблицей payments. Переходы статусов выполняются
// под блокировкой строки, текущий статус проверяется перед изменением.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository создаёт репозиторий платежей.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет новый платёж в статусе pending.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (reference, provider, payer_id, errand_id, amount_expected, currency, status, authorization_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(ctx, query,
		p.Reference, p.Provider, p.PayerID, p.ErrandID, p.AmountExpected, p.Currency, p.Status, p.AuthorizationURL,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if common.IsUniqueViolation(err) {
			return uniqueViolationErr(err)
		}
		return fmt.Errorf("payment repository: create: %w", err)
	}

	return nil
}

// GetByID возвращает платёж по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, r.db, "payments", id, ErrPaymentNotFound)
}

// GetByReference возвращает платёж по reference провайдера.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "reference", reference, ErrPaymentNotFound)
}

// ListByPayer возвращает платежи пользователя, новые первыми.
func (r *PaymentRepository) ListByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	payments := make([]models.Payment, 0)
	query := `
		SELECT * FROM payments
		WHERE payer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &payments, query, payerID, limit, offset); err != nil {
		return nil, fmt.Errorf("payment repository: list by payer: %w", err)
	}
	return payments, nil
}

// ListOutstanding возвращает невозвращённые платежи плательщика по поручению.
func (r *PaymentRepository) ListOutstanding(ctx context.Context, errandID, payerID uuid.UUID) ([]models.Payment, error) {
	payments := make([]models.Payment, 0)
	query := `
		SELECT * FROM payments
		WHERE errand_id = $1 AND payer_id = $2 AND refunded = FALSE
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &payments, query, errandID, payerID); err != nil {
		return nil, fmt.Errorf("payment repository: list outstanding: %w", err)
	}
	return payments, nil
}

// Reinitialize переводит неудавшийся платёж в pending под новый reference.
func (r *PaymentRepository) Reinitialize(ctx context.Context, id uuid.UUID, p *models.Payment) (*models.Payment, error) {
	var updated models.Payment
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := common.LockByID[models.Payment](ctx, tx, "payments", id, ErrPaymentNotFound)
		if err != nil {
			return err
		}
		if current.Status != valueobject.PaymentStatusFailed {
			return fmt.Errorf("payment repository: reinitialize from %s: %w", current.Status, common.ErrInvalidInput)
		}

		query := `
			UPDATE payments
			SET reference = $2, amount_expected = $3, currency = $4, status = $5,
				authorization_url = $6, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`
		return tx.GetContext(ctx, &updated, query,
			id, p.Reference, p.AmountExpected, p.Currency, valueobject.PaymentStatusPending, p.AuthorizationURL)
	})
	if err != nil {
		if common.IsUniqueViolation(err) {
			return nil, uniqueViolationErr(err)
		}
		return nil, err
	}
	return &updated, nil
}

// ConfirmDeposit переводит платёж в success. Если платёж уже в success или
// refunded, возвращает его без изменений и applied=false.
func (r *PaymentRepository) ConfirmDeposit(ctx context.Context, id uuid.UUID, d models.DepositDetails) (*models.Payment, bool, error) {
	var (
		result  models.Payment
		applied bool
	)

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := common.LockByID[models.Payment](ctx, tx, "payments", id, ErrPaymentNotFound)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(valueobject.PaymentStatusSuccess) {
			result = *current
			return nil
		}

		query := `
			UPDATE payments
			SET status = $2, amount_paid = $3, payment_channel = NULLIF($4, ''), paid_at = $5,
				sender_bank = NULLIF($6, ''), sender_account_number = NULLIF($7, ''), updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`
		if err := tx.GetContext(ctx, &result, query,
			id, valueobject.PaymentStatusSuccess, d.AmountPaid, d.Channel, d.PaidAt, d.SenderBank, d.SenderAccountNumber,
		); err != nil {
			return fmt.Errorf("payment repository: confirm deposit: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &result, applied, nil
}

// MarkStatus выполняет переход без денежных полей (failed, invalid).
// Если переход из текущего статуса недопустим, платёж возвращается без изменений.
func (r *PaymentRepository) MarkStatus(ctx context.Context, id uuid.UUID, next valueobject.PaymentStatus) (*models.Payment, bool, error) {
	var (
		result  models.Payment
		applied bool
	)

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := common.LockByID[models.Payment](ctx, tx, "payments", id, ErrPaymentNotFound)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(next) || next.Funded() {
			result = *current
			return nil
		}

		query := `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING *`
		if err := tx.GetContext(ctx, &result, query, id, next); err != nil {
			return fmt.Errorf("payment repository: mark %s: %w", next, err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &result, applied, nil
}

// RecordTransfer сохраняет идентификатор перевода исполнителю.
// Повторная запись для уже выплаченного платежа не выполняется.
func (r *PaymentRepository) RecordTransfer(ctx context.Context, id uuid.UUID, transferID, status string) (*models.Payment, bool, error) {
	var (
		result  models.Payment
		applied bool
	)

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := common.LockByID[models.Payment](ctx, tx, "payments", id, ErrPaymentNotFound)
		if err != nil {
			return err
		}
		if current.Status != valueobject.PaymentStatusSuccess || current.Released() {
			result = *current
			return nil
		}

		query := `
			UPDATE payments
			SET provider_transfer_id = $2, provider_transfer_status = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`
		if err := tx.GetContext(ctx, &result, query, id, transferID, status); err != nil {
			return fmt.Errorf("payment repository: record transfer: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &result, applied, nil
}

// UpdateTransferStatus обновляет статус перевода по событию провайдера.
func (r *PaymentRepository) UpdateTransferStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET provider_transfer_status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("payment repository: update transfer status: %w", err)
	}
	return nil
}

// MarkRefunded фиксирует возврат средств. Переход возможен только из success;
// для уже возвращённого платежа причина возврата не меняется.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, id uuid.UUID, d models.RefundDetails) (*models.Payment, bool, error) {
	var (
		result  models.Payment
		applied bool
	)

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := common.LockByID[models.Payment](ctx, tx, "payments", id, ErrPaymentNotFound)
		if err != nil {
			return err
		}
		if current.Refunded || !current.Status.CanTransitionTo(valueobject.PaymentStatusRefunded) {
			result = *current
			return nil
		}

		query := `
			UPDATE payments
			SET status = $2, refunded = TRUE, refund_reason = $3,
				provider_refund_id = NULLIF($4, ''), provider_refund_status = NULLIF($5, ''), updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`
		if err := tx.GetContext(ctx, &result, query,
			id, valueobject.PaymentStatusRefunded, d.Reason, d.ProviderID, d.ProviderStatus,
		); err != nil {
			return fmt.Errorf("payment repository: mark refunded: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &result, applied, nil
}
