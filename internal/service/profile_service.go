package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errand-backend/internal/logger"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/provider"
	"github.com/ignatzorin/errand-backend/internal/repository"
	"github.com/ignatzorin/errand-backend/internal/validation"
)

// ProfileRepository описывает зависимости ProfileService от хранилища.
type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetPayoutProfile(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error)
	UpsertPayoutProfile(ctx context.Context, profile *models.PayoutProfile) error
	SetVirtualAccount(ctx context.Context, userID uuid.UUID, accountNumber, bankName, reference string) error
}

// PayoutProfileInput банковские реквизиты для выплат.
type PayoutProfileInput struct {
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	AccountNumber string
	BankName      string
	BankCode      string
}

// ProfileService управляет платёжным профилем пользователя.
type ProfileService struct {
	repo     ProfileRepository
	provider provider.Provider
	timeout  time.Duration
	log      *logrus.Entry
}

// NewProfileService создаёт сервис платёжных профилей.
func NewProfileService(repo ProfileRepository, prov provider.Provider, timeout time.Duration) *ProfileService {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ProfileService{
		repo:     repo,
		provider: prov,
		timeout:  timeout,
		log:      logger.Component("profiles"),
	}
}

// GetPayoutProfile возвращает платёжный профиль пользователя.
func (s *ProfileService) GetPayoutProfile(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error) {
	profile, err := s.repo.GetPayoutProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperror.ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

// UpdatePayoutProfile сохраняет реквизиты. Email по умолчанию берётся из учётной записи.
func (s *ProfileService) UpdatePayoutProfile(ctx context.Context, userID uuid.UUID, in PayoutProfileInput) (*models.PayoutProfile, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		user, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, apperror.ErrUserNotFound
			}
			return nil, err
		}
		email = user.Email
	}

	checks := []error{
		validation.ValidatePersonName("имя", in.FirstName),
		validation.ValidatePersonName("фамилия", in.LastName),
		validation.ValidateEmail(email),
		validation.ValidatePhone(in.Phone),
		validation.ValidateAccountNumber(in.AccountNumber),
		validation.ValidateBankCode(in.BankCode),
	}
	for _, err := range checks {
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}

	profile := &models.PayoutProfile{
		UserID:        userID,
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		Email:         email,
		Phone:         strings.TrimSpace(in.Phone),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		BankName:      strings.TrimSpace(in.BankName),
		BankCode:      strings.TrimSpace(in.BankCode),
	}
	if err := s.repo.UpsertPayoutProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateVirtualAccount выделяет пользователю виртуальный счёт у провайдера.
// Если счёт уже выделен, возвращает сохранённый профиль.
func (s *ProfileService) CreateVirtualAccount(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error) {
	profile, err := s.GetPayoutProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.VDAAccountNumber != nil && *profile.VDAAccountNumber != "" {
		return profile, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	account, err := s.provider.CreateDedicatedAccount(pctx, provider.Customer{
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Phone:     profile.Phone,
	})
	cancel()
	if err != nil {
		s.log.WithField("user_id", userID).WithError(err).Warn("profiles: провайдер не выделил счёт")
		return nil, apperror.Provider(err, "не удалось создать виртуальный счёт")
	}

	if err := s.repo.SetVirtualAccount(ctx, userID, account.AccountNumber, account.BankName, account.Reference); err != nil {
		return nil, err
	}

	profile.VDAAccountNumber = &account.AccountNumber
	profile.VDABankName = &account.BankName
	profile.VDAReference = &account.Reference
	return profile, nil
}
