package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/repository/common"
)

var (
	// ErrUserNotFound возвращается, когда запись пользователя не найдена.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists возвращается при регистрации с занятым email или username.
	ErrUserExists = errors.New("user already exists")
	// ErrProfileNotFound возвращается, когда платёжный профиль не заполнен.
	ErrProfileNotFound = errors.New("payout profile not found")
)

// UserRepository отвечает за таблицы users и payout_profiles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(ctx, query,
		strings.ToLower(user.Email), user.Username, user.PasswordHash, user.Role,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if common.IsUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return common.GetByField[models.User](ctx, r.db, "users", "email", strings.ToLower(email), ErrUserNotFound)
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, ErrUserNotFound)
}

// GetPayoutProfile возвращает платёжный профиль пользователя.
func (r *UserRepository) GetPayoutProfile(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error) {
	var profile models.PayoutProfile
	if err := r.db.GetContext(ctx, &profile, `SELECT * FROM payout_profiles WHERE user_id = $1`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("user repository: get payout profile %w", err)
	}
	return &profile, nil
}

// UpsertPayoutProfile сохраняет банковские реквизиты. При смене счёта
// закешированный recipient_code сбрасывается.
func (r *UserRepository) UpsertPayoutProfile(ctx context.Context, profile *models.PayoutProfile) error {
	query := `
		INSERT INTO payout_profiles (user_id, first_name, last_name, email, phone, account_number, bank_name, bank_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			recipient_code = CASE
				WHEN payout_profiles.account_number = EXCLUDED.account_number
					AND payout_profiles.bank_code = EXCLUDED.bank_code
				THEN payout_profiles.recipient_code
				ELSE NULL
			END,
			account_number = EXCLUDED.account_number,
			bank_name = EXCLUDED.bank_name,
			bank_code = EXCLUDED.bank_code,
			updated_at = NOW()
		RETURNING recipient_code, vda_account_number, vda_bank_name, vda_reference, updated_at
	`

	if err := r.db.QueryRowxContext(ctx, query,
		profile.UserID, profile.FirstName, profile.LastName, profile.Email, profile.Phone,
		profile.AccountNumber, profile.BankName, profile.BankCode,
	).Scan(&profile.RecipientCode, &profile.VDAAccountNumber, &profile.VDABankName, &profile.VDAReference, &profile.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: upsert payout profile %w", err)
	}
	return nil
}

// SetRecipientCode кеширует код получателя, выданный провайдером.
func (r *UserRepository) SetRecipientCode(ctx context.Context, userID uuid.UUID, code string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payout_profiles SET recipient_code = $2, updated_at = NOW() WHERE user_id = $1
	`, userID, code)
	if err != nil {
		return fmt.Errorf("user repository: set recipient code %w", err)
	}
	return nil
}

// SetVirtualAccount сохраняет выделенный виртуальный счёт пользователя.
func (r *UserRepository) SetVirtualAccount(ctx context.Context, userID uuid.UUID, accountNumber, bankName, reference string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payout_profiles
		SET vda_account_number = $2, vda_bank_name = $3, vda_reference = $4, updated_at = NOW()
		WHERE user_id = $1
	`, userID, accountNumber, bankName, reference)
	if err != nil {
		return fmt.Errorf("user repository: set virtual account %w", err)
	}
	return nil
}
