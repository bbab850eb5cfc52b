package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/logger"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/repository"
	"github.com/ignatzorin/errand-backend/internal/validation"
)

const (
	defaultErrandsLimit = 20
	maxErrandsLimit     = 100
	maxErrandDuration   = 30 * 24 * time.Hour
)

// ErrandRepository описывает зависимости ErrandService от хранилища.
type ErrandRepository interface {
	Create(ctx context.Context, errand *models.Errand) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Errand, error)
	List(ctx context.Context, filter models.ErrandFilter) (*models.ErrandListResult, error)
	Accept(ctx context.Context, id, runnerID uuid.UUID) (*models.Errand, error)
	MarkAwaitingApproval(ctx context.Context, id, runnerID uuid.UUID) (*models.Errand, error)
	Approve(ctx context.Context, id, creatorID uuid.UUID) (*models.Errand, error)
	Cancel(ctx context.Context, id, creatorID uuid.UUID) (*models.Errand, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Errand, error)
	Delete(ctx context.Context, id, creatorID uuid.UUID) error
}

// Settlement выплаты и возвраты по поручению.
type Settlement interface {
	ReleaseForErrand(ctx context.Context, errand *models.Errand) ([]SettlementOutcome, error)
	RefundForErrand(ctx context.Context, errand *models.Errand, reason string) []SettlementOutcome
}

// ErrandOptions настройки сервиса поручений.
type ErrandOptions struct {
	// EscrowRequired: новое поручение ждёт оплаты в payment_pending.
	EscrowRequired  bool
	DefaultDuration time.Duration
}

// CreateErrandInput данные нового поручения.
type CreateErrandInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Duration    *time.Duration
}

// ListErrandsQuery необработанные параметры списка из запроса.
// Некорректные значения игнорируются.
type ListErrandsQuery struct {
	Creator       string
	Runner        string
	Status        string
	CreatedAfter  string
	CreatedBefore string
	WithinMinutes string
	Sort          string
	Limit         int
	Offset        int
}

// ApprovalResult итог одобрения: поручение и результат выплаты.
type ApprovalResult struct {
	Errand      *models.Errand      `json:"errand"`
	Payouts     []SettlementOutcome `json:"payouts"`
	PayoutError string              `json:"payout_error,omitempty"`
}

// CancelResult итог отмены поручения.
type CancelResult struct {
	Errand  *models.Errand      `json:"errand"`
	Refunds []SettlementOutcome `json:"refunds"`
}

// ErrandService реализует жизненный цикл поручения.
type ErrandService struct {
	repo     ErrandRepository
	escrow   Settlement
	notifier Notifier
	opts     ErrandOptions
	now      func() time.Time
	log      *logrus.Entry
}

// NewErrandService создаёт сервис поручений.
func NewErrandService(repo ErrandRepository, escrow Settlement, opts ErrandOptions) *ErrandService {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 2 * time.Hour
	}
	return &ErrandService{
		repo:     repo,
		escrow:   escrow,
		notifier: nopNotifier{},
		opts:     opts,
		now:      time.Now,
		log:      logger.Component("errands"),
	}
}

// SetNotifier подключает доставку событий.
func (s *ErrandService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// Create размещает новое поручение.
func (s *ErrandService) Create(ctx context.Context, creatorID uuid.UUID, in CreateErrandInput) (*models.Errand, error) {
	if err := validation.ValidateErrandTitle(in.Title); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateErrandDescription(in.Description); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	price, err := valueobject.NewAmount(in.Price)
	if err != nil {
		return nil, err
	}

	duration := s.opts.DefaultDuration
	if in.Duration != nil {
		duration = *in.Duration
	}
	if duration <= 0 || duration > maxErrandDuration {
		return nil, apperror.New(apperror.ErrCodeValidation, "срок выполнения должен быть от 1 секунды до 30 дней")
	}

	status := valueobject.ErrandStatusPending
	if s.opts.EscrowRequired {
		status = valueobject.ErrandStatusPaymentPending
	}

	errand := &models.Errand{
		CreatorID:       creatorID,
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		Price:           price,
		DurationSeconds: int64(duration / time.Second),
		Status:          status,
	}
	if err := s.repo.Create(ctx, errand); err != nil {
		if errors.Is(err, repository.ErrErrandInvalid) {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "поручение не прошло проверку")
		}
		return nil, err
	}
	errand.RefreshExpiry(s.now())

	s.log.WithFields(logrus.Fields{
		"errand_id":  errand.ID,
		"creator_id": creatorID,
		"status":     errand.Status,
	}).Info("errands: поручение создано")

	return errand, nil
}

// Get возвращает поручение с вычисленным has_expired.
func (s *ErrandService) Get(ctx context.Context, id uuid.UUID) (*models.Errand, error) {
	errand, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapErrandErr(err)
	}
	errand.RefreshExpiry(s.now())
	return errand, nil
}

// List возвращает страницу поручений по фильтрам запроса.
func (s *ErrandService) List(ctx context.Context, q ListErrandsQuery) (*models.ErrandListResult, error) {
	result, err := s.repo.List(ctx, s.buildFilter(q))
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range result.Errands {
		result.Errands[i].RefreshExpiry(now)
	}
	return result, nil
}

func (s *ErrandService) buildFilter(q ListErrandsQuery) models.ErrandFilter {
	filter := models.ErrandFilter{
		SortBy:     "created_at",
		Descending: true,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}

	if id, err := uuid.Parse(strings.TrimSpace(q.Creator)); err == nil {
		filter.CreatorID = &id
	}
	if id, err := uuid.Parse(strings.TrimSpace(q.Runner)); err == nil {
		filter.RunnerID = &id
	}
	if status, err := valueobject.NewErrandStatus(strings.TrimSpace(q.Status)); err == nil {
		value := string(status)
		filter.Status = &value
	}
	if t, ok := parseFilterTime(q.CreatedAfter); ok {
		filter.CreatedAfter = &t
	}
	if t, ok := parseFilterTime(q.CreatedBefore); ok {
		filter.CreatedBefore = &t
	}
	if minutes, err := strconv.Atoi(strings.TrimSpace(q.WithinMinutes)); err == nil && minutes > 0 {
		since := s.now().Add(-time.Duration(minutes) * time.Minute)
		if filter.CreatedAfter == nil || since.After(*filter.CreatedAfter) {
			filter.CreatedAfter = &since
		}
	}

	if sort := strings.TrimSpace(q.Sort); sort != "" {
		filter.Descending = strings.HasPrefix(sort, "-")
		filter.SortBy = strings.TrimPrefix(sort, "-")
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultErrandsLimit
	}
	if filter.Limit > maxErrandsLimit {
		filter.Limit = maxErrandsLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return filter
}

func parseFilterTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Accept назначает текущего пользователя исполнителем. Из двух одновременных
// попыток успешна ровно одна, вторая получает Conflict.
func (s *ErrandService) Accept(ctx context.Context, actorID, errandID uuid.UUID) (*models.Errand, error) {
	errand, err := s.repo.GetByID(ctx, errandID)
	if err != nil {
		return nil, mapErrandErr(err)
	}
	if errand.IsCreator(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "нельзя принять собственное поручение")
	}
	if errand.RunnerID != nil || errand.Status != valueobject.ErrandStatusPending {
		return nil, errandConflict(errand)
	}

	accepted, err := s.repo.Accept(ctx, errandID, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrErrandTransition) {
			return nil, apperror.New(apperror.ErrCodeConflict, "поручение уже принято")
		}
		return nil, err
	}
	accepted.RefreshExpiry(s.now())

	s.log.WithFields(logrus.Fields{"errand_id": errandID, "runner_id": actorID}).Info("errands: поручение принято")
	s.notifier.Notify(accepted.CreatorID, models.EventErrandAccepted, accepted)

	return accepted, nil
}

// MarkComplete отмечает выполнение поручения исполнителем.
func (s *ErrandService) MarkComplete(ctx context.Context, actorID, errandID uuid.UUID) (*models.Errand, error) {
	errand, err := s.repo.GetByID(ctx, errandID)
	if err != nil {
		return nil, mapErrandErr(err)
	}
	if !errand.IsRunner(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "отметить выполнение может только исполнитель")
	}
	if errand.Status != valueobject.ErrandStatusActive {
		return nil, errandConflict(errand)
	}

	updated, err := s.repo.MarkAwaitingApproval(ctx, errandID, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrErrandTransition) {
			return nil, apperror.New(apperror.ErrCodeConflict, "поручение уже не в работе")
		}
		return nil, err
	}
	updated.RefreshExpiry(s.now())

	s.notifier.Notify(updated.CreatorID, models.EventErrandAwaitingApproval, updated)
	return updated, nil
}

// Approve завершает поручение и выплачивает исполнителю. Ошибка выплаты
// не отменяет одобрение: она возвращается в результате и пишется в лог.
func (s *ErrandService) Approve(ctx context.Context, actorID, errandID uuid.UUID) (*ApprovalResult, error) {
	errand, err := s.repo.GetByID(ctx, errandID)
	if err != nil {
		return nil, mapErrandErr(err)
	}
	if !errand.IsCreator(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "одобрить поручение может только автор")
	}
	if errand.Status != valueobject.ErrandStatusAwaitingApproval {
		return nil, errandConflict(errand)
	}

	approved, err := s.repo.Approve(ctx, errandID, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrErrandTransition) {
			return nil, apperror.New(apperror.ErrCodeConflict, "поручение уже одобрено или не готово")
		}
		return nil, err
	}
	approved.RefreshExpiry(s.now())

	result := &ApprovalResult{Errand: approved, Payouts: []SettlementOutcome{}}
	entry := s.log.WithField("errand_id", errandID)

	outcomes, err := s.escrow.ReleaseForErrand(context.WithoutCancel(ctx), approved)
	if outcomes != nil {
		result.Payouts = outcomes
	}
	if err != nil {
		result.PayoutError = err.Error()
		entry.WithError(err).Warn("errands: выплата исполнителю не выполнена")
	}

	entry.Info("errands: поручение одобрено")
	s.notifier.Notify(*approved.RunnerID, models.EventErrandCompleted, result)

	return result, nil
}

// Cancel закрывает ещё не принятое поручение и возвращает депозиты автору.
// Повторная отмена уже закрытого поручения повторяет неудавшиеся возвраты.
func (s *ErrandService) Cancel(ctx context.Context, actorID, errandID uuid.UUID) (*CancelResult, error) {
	errand, err := s.repo.GetByID(ctx, errandID)
	if err != nil {
		return nil, mapErrandErr(err)
	}
	if !errand.IsCreator(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "отменить поручение может только автор")
	}

	result, err := s.cancel(ctx, errand, models.RefundReasonErrandDeleted)
	if err != nil {
		return nil, err
	}
	result.Errand.RefreshExpiry(s.now())
	return result, nil
}

// Delete удаляет поручение автора. Ещё не принятое поручение сначала
// отменяется с возвратом депозитов; принятое удалить нельзя.
func (s *ErrandService) Delete(ctx context.Context, actorID, errandID uuid.UUID) error {
	errand, err := s.repo.GetByID(ctx, errandID)
	if err != nil {
		return mapErrandErr(err)
	}
	if !errand.IsCreator(actorID) {
		return apperror.New(apperror.ErrCodeForbidden, "удалить поручение может только автор")
	}

	if _, err := s.cancel(ctx, errand, models.RefundReasonErrandDeleted); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, errandID, actorID); err != nil {
		if errors.Is(err, repository.ErrErrandTransition) {
			return apperror.New(apperror.ErrCodeConflict, "поручение уже принято исполнителем")
		}
		return err
	}

	s.log.WithField("errand_id", errandID).Info("errands: поручение удалено")
	return nil
}

func (s *ErrandService) cancel(ctx context.Context, errand *models.Errand, reason string) (*CancelResult, error) {
	entry := s.log.WithField("errand_id", errand.ID)

	switch {
	case errand.Status.Open() && errand.RunnerID == nil:
		cancelled, err := s.repo.Cancel(ctx, errand.ID, errand.CreatorID)
		if err != nil {
			if errors.Is(err, repository.ErrErrandTransition) {
				return nil, apperror.New(apperror.ErrCodeConflict, "поручение уже принято исполнителем")
			}
			return nil, err
		}
		errand = cancelled
		entry.Info("errands: поручение отменено")
		s.notifier.Notify(errand.CreatorID, models.EventErrandCancelled, errand)
	case errand.Status == valueobject.ErrandStatusCancelled, errand.Status == valueobject.ErrandStatusRefunded:
	default:
		return nil, apperror.New(apperror.ErrCodeConflict, "поручение уже принято исполнителем")
	}

	outcomes := s.escrow.RefundForErrand(context.WithoutCancel(ctx), errand, reason)
	if outcomes == nil {
		outcomes = []SettlementOutcome{}
	}

	if errand.Status == valueobject.ErrandStatusCancelled && anyResult(outcomes, SettlementRefunded) {
		refunded, err := s.repo.MarkRefunded(ctx, errand.ID)
		switch {
		case err == nil:
			errand = refunded
		case errors.Is(err, repository.ErrErrandTransition):
		default:
			entry.WithError(err).Warn("errands: не удалось отметить возврат")
		}
	}

	return &CancelResult{Errand: errand, Refunds: outcomes}, nil
}

func anyResult(outcomes []SettlementOutcome, result string) bool {
	for _, o := range outcomes {
		if o.Result == result {
			return true
		}
	}
	return false
}

func errandConflict(errand *models.Errand) error {
	return apperror.New(apperror.ErrCodeConflict,
		fmt.Sprintf("действие недоступно в статусе %s", errand.Status))
}
