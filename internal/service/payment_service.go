package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/logger"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/provider"
	"github.com/ignatzorin/errand-backend/internal/repository"
)

const (
	referencePrefix = "ERD-"
	// TransferReferencePrefix префикс reference перевода исполнителю,
	// после него идёт reference исходного платежа.
	TransferReferencePrefix = "TRF-"

	defaultPaymentsLimit = 20
	maxPaymentsLimit     = 100
)

// PaymentRepository описывает зависимости PaymentService от хранилища платежей.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	ListByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]models.Payment, error)
	ListOutstanding(ctx context.Context, errandID, payerID uuid.UUID) ([]models.Payment, error)
	Reinitialize(ctx context.Context, id uuid.UUID, p *models.Payment) (*models.Payment, error)
	ConfirmDeposit(ctx context.Context, id uuid.UUID, d models.DepositDetails) (*models.Payment, bool, error)
	MarkStatus(ctx context.Context, id uuid.UUID, next valueobject.PaymentStatus) (*models.Payment, bool, error)
	RecordTransfer(ctx context.Context, id uuid.UUID, transferID, status string) (*models.Payment, bool, error)
	UpdateTransferStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkRefunded(ctx context.Context, id uuid.UUID, d models.RefundDetails) (*models.Payment, bool, error)
}

// ErrandReader чтение поручений.
type ErrandReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Errand, error)
}

// PaymentUserStore данные плательщиков и получателей выплат.
type PaymentUserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetPayoutProfile(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error)
	SetRecipientCode(ctx context.Context, userID uuid.UUID, code string) error
}

// DepositObserver получает сигнал о подтверждённом депозите.
type DepositObserver interface {
	DepositConfirmed(ctx context.Context, payment *models.Payment) error
}

// PaymentOptions настройки сервиса платежей.
type PaymentOptions struct {
	Currency    string
	CallbackURL string
	Timeout     time.Duration
	Sandbox     bool
}

// InitializeInput параметры создания платежа.
type InitializeInput struct {
	ErrandID uuid.UUID
	Amount   *decimal.Decimal
	Currency string
}

// InitializeResult ответ на создание платежа.
type InitializeResult struct {
	Payment          *models.Payment `json:"payment"`
	AuthorizationURL string          `json:"authorization_url"`
	Reference        string          `json:"reference"`
}

// ProviderEvent тело webhook-события провайдера.
type ProviderEvent struct {
	Event string            `json:"event"`
	Data  ProviderEventData `json:"data"`
}

// ProviderEventData полезная нагрузка события.
type ProviderEventData struct {
	Reference     string             `json:"reference"`
	Amount        int64              `json:"amount"`
	Status        string             `json:"status"`
	Channel       string             `json:"channel"`
	PaidAt        string             `json:"paid_at"`
	TransferCode  string             `json:"transfer_code"`
	Authorization EventAuthorization `json:"authorization"`
}

// EventAuthorization данные об источнике оплаты.
type EventAuthorization struct {
	Bank  string `json:"bank"`
	Last4 string `json:"last4"`
}

// Результаты обработки webhook.
const (
	EventProcessed = "processed"
	EventDuplicate = "duplicate"
	EventIgnored   = "ignored"
)

// Receipt квитанция об оплате поручения в sandbox-режиме.
type Receipt struct {
	Reference string                    `json:"reference"`
	ErrandID  uuid.UUID                 `json:"errand_id"`
	Amount    decimal.Decimal           `json:"amount"`
	Currency  string                    `json:"currency"`
	Status    valueobject.PaymentStatus `json:"status"`
	Channel   string                    `json:"channel"`
	PaidAt    *time.Time                `json:"paid_at,omitempty"`
}

// PaymentService ведёт жизненный цикл платежей через провайдера.
type PaymentService struct {
	repo     PaymentRepository
	errands  ErrandReader
	users    PaymentUserStore
	provider provider.Provider
	observer DepositObserver
	notifier Notifier
	opts     PaymentOptions
	now      func() time.Time
	log      *logrus.Entry
}

// NewPaymentService создаёт сервис платежей.
func NewPaymentService(repo PaymentRepository, errands ErrandReader, users PaymentUserStore, prov provider.Provider, opts PaymentOptions) *PaymentService {
	if opts.Currency == "" {
		opts.Currency = "NGN"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &PaymentService{
		repo:     repo,
		errands:  errands,
		users:    users,
		provider: prov,
		notifier: nopNotifier{},
		opts:     opts,
		now:      time.Now,
		log:      logger.Component("payments"),
	}
}

// SetDepositObserver подключает получателя сигналов о депозитах.
func (s *PaymentService) SetDepositObserver(o DepositObserver) {
	s.observer = o
}

// SetNotifier подключает доставку событий.
func (s *PaymentService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// Sandbox сообщает, работает ли сервис в sandbox-режиме.
func (s *PaymentService) Sandbox() bool {
	return s.opts.Sandbox
}

// Initialize создаёт платёж заказчика за поручение и возвращает ссылку на оплату.
func (s *PaymentService) Initialize(ctx context.Context, actor Actor, in InitializeInput) (*InitializeResult, error) {
	if in.Amount != nil {
		if _, err := valueobject.NewAmount(*in.Amount); err != nil {
			return nil, err
		}
	}

	errand, err := s.errands.GetByID(ctx, in.ErrandID)
	if err != nil {
		return nil, mapErrandErr(err)
	}
	if !errand.IsCreator(actor.ID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "оплатить поручение может только его автор")
	}

	amount := errand.Price
	if in.Amount != nil {
		amount = *in.Amount
	}
	amount, err = valueobject.NewAmount(amount)
	if err != nil {
		return nil, err
	}

	if errand.RunnerID != nil || !errand.Status.Open() {
		return nil, apperror.New(apperror.ErrCodeValidation, "поручение уже принято или закрыто")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.opts.Currency
	}

	existing, err := s.repo.ListOutstanding(ctx, errand.ID, actor.ID)
	if err != nil {
		return nil, err
	}
	var pending, reusable *models.Payment
	for i := range existing {
		switch existing[i].Status {
		case valueobject.PaymentStatusSuccess:
			return nil, errAlreadyPaid
		case valueobject.PaymentStatusPending:
			if pending == nil {
				pending = &existing[i]
			}
		case valueobject.PaymentStatusFailed:
			if reusable == nil {
				reusable = &existing[i]
			}
		}
	}

	if pending != nil {
		resumed, settled, err := s.resumePending(ctx, pending, amount, currency)
		if err != nil || resumed != nil {
			return resumed, err
		}
		if settled.Status == valueobject.PaymentStatusFailed {
			reusable = settled
		}
	}

	payer, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, err
	}

	reference := newReference()
	pctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	charge, err := s.provider.CreateCharge(pctx, provider.ChargeRequest{
		Email:       payer.Email,
		AmountMinor: valueobject.ToMinorUnits(amount),
		Currency:    currency,
		Reference:   reference,
		CallbackURL: s.callbackURL(reference),
	})
	cancel()
	if err != nil {
		s.log.WithFields(logrus.Fields{"errand_id": errand.ID, "reference": reference}).
			WithError(err).Warn("payments: провайдер не создал платёж")
		return nil, apperror.Provider(err, "не удалось создать платёж у провайдера")
	}

	errandID := errand.ID
	authURL := charge.AuthorizationURL
	payment := &models.Payment{
		Reference:        reference,
		Provider:         s.provider.Name(),
		PayerID:          actor.ID,
		ErrandID:         &errandID,
		AmountExpected:   amount,
		Currency:         currency,
		Status:           valueobject.PaymentStatusPending,
		AuthorizationURL: &authURL,
	}

	if reusable != nil {
		payment, err = s.repo.Reinitialize(ctx, reusable.ID, payment)
	} else {
		err = s.repo.Create(ctx, payment)
	}
	if err != nil {
		if errors.Is(err, repository.ErrActivePaymentExists) {
			s.log.WithFields(logrus.Fields{"errand_id": errand.ID, "reference": reference}).
				Warn("payments: параллельная инициализация, платёж уже создан")
			return nil, apperror.Wrap(err, apperror.ErrCodeConflict, "по поручению уже есть незавершённый платёж")
		}
		return nil, fmt.Errorf("payments: persist: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"errand_id":  errand.ID,
		"payment_id": payment.ID,
		"reference":  reference,
		"amount":     amount.String(),
	}).Info("payments: платёж создан")

	return &InitializeResult{
		Payment:          payment,
		AuthorizationURL: authURL,
		Reference:        reference,
	}, nil
}

var errAlreadyPaid = apperror.New(apperror.ErrCodeConflict, "поручение уже оплачено")

// resumePending возвращает незавершённый платёж вместо создания нового, чтобы
// его reference и ссылка на оплату оставались действительными. Если сумма или
// валюта изменились, платёж сначала сверяется с провайдером: новый создаётся
// только когда старый не состоялся (settled != nil).
func (s *PaymentService) resumePending(ctx context.Context, p *models.Payment, amount decimal.Decimal, currency string) (*InitializeResult, *models.Payment, error) {
	if p.AmountExpected.Equal(amount) && p.Currency == currency && p.AuthorizationURL != nil {
		s.log.WithFields(logrus.Fields{"payment_id": p.ID, "reference": p.Reference}).
			Debug("payments: возвращён незавершённый платёж")
		return &InitializeResult{Payment: p, AuthorizationURL: *p.AuthorizationURL, Reference: p.Reference}, nil, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	verification, err := s.provider.VerifyCharge(pctx, p.Reference)
	cancel()
	if err != nil {
		return nil, nil, apperror.Provider(err, "не удалось проверить предыдущий платёж у провайдера")
	}

	settled, err := s.applyVerification(ctx, p, verification)
	if err != nil {
		return nil, nil, err
	}
	switch settled.Status {
	case valueobject.PaymentStatusSuccess, valueobject.PaymentStatusRefunded:
		return nil, nil, errAlreadyPaid
	case valueobject.PaymentStatusFailed, valueobject.PaymentStatusInvalid:
		return nil, settled, nil
	}
	return nil, nil, apperror.New(apperror.ErrCodeConflict, "предыдущий платёж на другую сумму ещё не завершён")
}

// Verify сверяет статус платежа с провайдером. Для уже оплаченного платежа
// провайдер не вызывается, но сигнал координатору повторяется.
func (s *PaymentService) Verify(ctx context.Context, actor Actor, reference string) (*models.Payment, error) {
	payment, err := s.repo.GetByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, mapPaymentErr(err)
	}
	if err := authorizePayment(actor, payment); err != nil {
		return nil, err
	}

	switch payment.Status {
	case valueobject.PaymentStatusSuccess:
		return payment, s.signalDeposit(ctx, payment)
	case valueobject.PaymentStatusRefunded, valueobject.PaymentStatusInvalid:
		return payment, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	verification, err := s.provider.VerifyCharge(pctx, payment.Reference)
	cancel()
	if err != nil {
		s.log.WithField("reference", payment.Reference).WithError(err).Warn("payments: проверка у провайдера не удалась")
		return nil, apperror.Provider(err, "не удалось проверить платёж у провайдера")
	}

	return s.applyVerification(ctx, payment, verification)
}

// HandleProviderEvent обрабатывает webhook провайдера. Повторная доставка
// события безопасна: статус проверяется перед каждым переходом.
func (s *PaymentService) HandleProviderEvent(ctx context.Context, event ProviderEvent) (string, error) {
	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return "", apperror.New(apperror.ErrCodeValidation, "в событии нет reference")
	}

	kind := strings.ToLower(strings.TrimSpace(event.Event))
	entry := s.log.WithFields(logrus.Fields{"event": kind, "reference": reference})

	switch kind {
	case "charge.success", "payment.success", "charge.failed", "payment.failed":
	case "transfer.success", "transfer.failed", "transfer.reversed":
		reference = strings.TrimPrefix(reference, TransferReferencePrefix)
	default:
		entry.Debug("payments: событие проигнорировано")
		return EventIgnored, nil
	}

	payment, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			entry.Warn("payments: webhook для неизвестного платежа")
		}
		return "", mapPaymentErr(err)
	}

	switch kind {
	case "charge.success", "payment.success":
		if payment.Status.Funded() {
			return EventDuplicate, s.signalDeposit(ctx, payment)
		}
		verification := &provider.Verification{
			Reference:     reference,
			Status:        provider.ChargeSuccess,
			AmountMinor:   event.Data.Amount,
			Channel:       event.Data.Channel,
			PaidAt:        parseEventTime(event.Data.PaidAt),
			Bank:          event.Data.Authorization.Bank,
			AccountNumber: event.Data.Authorization.Last4,
		}
		if _, err := s.applyVerification(ctx, payment, verification); err != nil {
			return "", err
		}
		entry.Info("payments: платёж подтверждён webhook")
		return EventProcessed, nil

	case "charge.failed", "payment.failed":
		if payment.Status != valueobject.PaymentStatusPending {
			return EventDuplicate, nil
		}
		if _, _, err := s.repo.MarkStatus(ctx, payment.ID, valueobject.PaymentStatusFailed); err != nil {
			return "", err
		}
		return EventProcessed, nil

	default:
		status := event.Data.Status
		if status == "" {
			status = strings.TrimPrefix(kind, "transfer.")
		}
		if err := s.repo.UpdateTransferStatus(ctx, payment.ID, status); err != nil {
			return "", err
		}
		entry.WithField("transfer_status", status).Info("payments: статус перевода обновлён")
		return EventProcessed, nil
	}
}

// Release переводит средства платежа исполнителю. Для возвращённого,
// неоплаченного или уже выплаченного платежа ничего не делает.
func (s *PaymentService) Release(ctx context.Context, payment *models.Payment, runnerID uuid.UUID) (*SettlementOutcome, error) {
	if skip := releaseSkipReason(payment); skip != "" {
		return skipped(payment, skip), nil
	}

	profile, err := s.users.GetPayoutProfile(ctx, runnerID)
	if err != nil && !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, err
	}
	if profile == nil || !profile.CanReceivePayouts() {
		return nil, apperror.New(apperror.ErrCodeProvider, "у исполнителя не заполнены банковские реквизиты")
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	recipient := ""
	if profile.RecipientCode != nil {
		recipient = *profile.RecipientCode
	}
	if recipient == "" {
		recipient, err = s.provider.CreateRecipient(pctx, provider.RecipientRequest{
			Name:          profile.FullName(),
			AccountNumber: profile.AccountNumber,
			BankCode:      profile.BankCode,
			Currency:      payment.Currency,
		})
		if err != nil {
			return nil, apperror.Provider(err, "не удалось зарегистрировать получателя выплаты")
		}
		if err := s.users.SetRecipientCode(ctx, runnerID, recipient); err != nil {
			s.log.WithField("runner_id", runnerID).WithError(err).Warn("payments: не удалось сохранить recipient_code")
		}
	}

	transfer, err := s.provider.Transfer(pctx, provider.TransferRequest{
		RecipientCode: recipient,
		AmountMinor:   valueobject.ToMinorUnits(payment.SettledAmount()),
		Reason:        "Payment for errand " + payment.Reference,
		Reference:     TransferReferencePrefix + payment.Reference,
	})
	if err != nil {
		return nil, apperror.Provider(err, "не удалось перевести средства исполнителю")
	}

	updated, applied, err := s.repo.RecordTransfer(ctx, payment.ID, transfer.TransferID, transfer.Status)
	if err != nil {
		return nil, err
	}
	if !applied {
		return skipped(updated, releaseSkipReason(updated)), nil
	}

	s.log.WithFields(logrus.Fields{
		"payment_id":  payment.ID,
		"reference":   payment.Reference,
		"runner_id":   runnerID,
		"transfer_id": transfer.TransferID,
	}).Info("payments: средства переведены исполнителю")

	s.notifier.Notify(runnerID, models.EventPaymentReleased, map[string]interface{}{
		"reference": payment.Reference,
		"errand_id": payment.ErrandID,
		"amount":    payment.SettledAmount().String(),
	})

	return &SettlementOutcome{PaymentID: payment.ID, Reference: payment.Reference, Result: SettlementReleased}, nil
}

// Refund возвращает средства плательщику. Для уже возвращённого или
// неоплаченного платежа ничего не делает, причина возврата не меняется.
func (s *PaymentService) Refund(ctx context.Context, payment *models.Payment, reason string) (*SettlementOutcome, error) {
	if payment.Refunded || payment.Status == valueobject.PaymentStatusRefunded {
		return skipped(payment, "already refunded"), nil
	}
	if payment.Status != valueobject.PaymentStatusSuccess {
		return skipped(payment, "not funded"), nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	refund, err := s.provider.Refund(pctx, payment.Reference, valueobject.ToMinorUnits(payment.SettledAmount()))
	cancel()
	if err != nil {
		return nil, apperror.Provider(err, "не удалось вернуть средства")
	}

	updated, applied, err := s.repo.MarkRefunded(ctx, payment.ID, models.RefundDetails{
		Reason:         reason,
		ProviderID:     refund.RefundID,
		ProviderStatus: refund.Status,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return skipped(updated, "already refunded"), nil
	}

	s.log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"reference":  payment.Reference,
		"refund_id":  refund.RefundID,
		"reason":     reason,
	}).Info("payments: средства возвращены")

	s.notifier.Notify(payment.PayerID, models.EventPaymentRefunded, map[string]interface{}{
		"reference": payment.Reference,
		"errand_id": payment.ErrandID,
		"reason":    reason,
	})

	return &SettlementOutcome{PaymentID: payment.ID, Reference: payment.Reference, Result: SettlementRefunded}, nil
}

// ListForPayer возвращает платежи текущего пользователя.
func (s *PaymentService) ListForPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) (*models.PaymentListResult, error) {
	if limit <= 0 {
		limit = defaultPaymentsLimit
	}
	if limit > maxPaymentsLimit {
		limit = maxPaymentsLimit
	}
	if offset < 0 {
		offset = 0
	}

	payments, err := s.repo.ListByPayer(ctx, payerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &models.PaymentListResult{Payments: payments, Limit: limit, Offset: offset}, nil
}

// GetByReference возвращает платёж плательщику или сотруднику.
func (s *PaymentService) GetByReference(ctx context.Context, actor Actor, reference string) (*models.Payment, error) {
	payment, err := s.repo.GetByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, mapPaymentErr(err)
	}
	if err := authorizePayment(actor, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// SimulateDeposit подтверждает платёж без обращения к провайдеру (только sandbox).
func (s *PaymentService) SimulateDeposit(ctx context.Context, actor Actor, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.sandboxPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status.Funded() {
		return payment, s.signalDeposit(ctx, payment)
	}
	if payment.Status == valueobject.PaymentStatusInvalid {
		return nil, apperror.New(apperror.ErrCodeConflict, "платёж отклонён провайдером")
	}

	paidAt := s.now()
	return s.applyVerification(ctx, payment, &provider.Verification{
		Reference:     payment.Reference,
		Status:        provider.ChargeSuccess,
		AmountMinor:   valueobject.ToMinorUnits(payment.AmountExpected),
		Channel:       provider.SandboxChannel,
		PaidAt:        &paidAt,
		Bank:          provider.SandboxBankName,
		AccountNumber: provider.SandboxAccountNumber,
	})
}

// SimulatePayout выплачивает платёж исполнителю поручения (только sandbox).
func (s *PaymentService) SimulatePayout(ctx context.Context, actor Actor, paymentID uuid.UUID) (*SettlementOutcome, error) {
	payment, err := s.sandboxPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.ErrandID == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "платёж не привязан к поручению")
	}

	errand, err := s.errands.GetByID(ctx, *payment.ErrandID)
	if err != nil {
		return nil, mapErrandErr(err)
	}
	if errand.RunnerID == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "у поручения нет исполнителя")
	}

	return s.Release(ctx, payment, *errand.RunnerID)
}

// SimulateRefund возвращает платёж плательщику (только sandbox).
func (s *PaymentService) SimulateRefund(ctx context.Context, actor Actor, paymentID uuid.UUID, reason string) (*SettlementOutcome, error) {
	payment, err := s.sandboxPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "sandbox refund"
	}
	return s.Refund(ctx, payment, reason)
}

// PayErrand создаёт и сразу подтверждает платёж за поручение (только sandbox).
func (s *PaymentService) PayErrand(ctx context.Context, actor Actor, errandID uuid.UUID) (*Receipt, error) {
	if !s.opts.Sandbox {
		return nil, errSandboxOnly
	}

	initialized, err := s.Initialize(ctx, actor, InitializeInput{ErrandID: errandID})
	if err != nil {
		return nil, err
	}

	payment, err := s.SimulateDeposit(ctx, actor, initialized.Payment.ID)
	if err != nil {
		return nil, err
	}

	channel := provider.SandboxChannel
	if payment.PaymentChannel != nil {
		channel = *payment.PaymentChannel
	}
	return &Receipt{
		Reference: payment.Reference,
		ErrandID:  errandID,
		Amount:    payment.SettledAmount(),
		Currency:  payment.Currency,
		Status:    payment.Status,
		Channel:   channel,
		PaidAt:    payment.PaidAt,
	}, nil
}

var errSandboxOnly = apperror.New(apperror.ErrCodeForbidden, "операция доступна только в sandbox-режиме")

func (s *PaymentService) sandboxPayment(ctx context.Context, actor Actor, paymentID uuid.UUID) (*models.Payment, error) {
	if !s.opts.Sandbox {
		return nil, errSandboxOnly
	}
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, mapPaymentErr(err)
	}
	if err := authorizePayment(actor, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *PaymentService) applyVerification(ctx context.Context, payment *models.Payment, v *provider.Verification) (*models.Payment, error) {
	entry := s.log.WithFields(logrus.Fields{"payment_id": payment.ID, "reference": payment.Reference})

	switch v.Status {
	case provider.ChargeSuccess:
		amount := payment.AmountExpected
		if v.AmountMinor > 0 {
			amount = valueobject.FromMinorUnits(v.AmountMinor)
		}
		paidAt := s.now()
		if v.PaidAt != nil {
			paidAt = *v.PaidAt
		}

		updated, applied, err := s.repo.ConfirmDeposit(ctx, payment.ID, models.DepositDetails{
			AmountPaid:          amount,
			Channel:             v.Channel,
			PaidAt:              paidAt,
			SenderBank:          v.Bank,
			SenderAccountNumber: v.AccountNumber,
		})
		if err != nil {
			return nil, err
		}
		if applied {
			if !amount.Equal(payment.AmountExpected) {
				entry.WithFields(logrus.Fields{
					"expected": payment.AmountExpected.String(),
					"paid":     amount.String(),
				}).Warn("payments: сумма оплаты отличается от ожидаемой")
			}
			entry.Info("payments: депозит подтверждён")
		}
		if updated.Status == valueobject.PaymentStatusSuccess {
			return updated, s.signalDeposit(ctx, updated)
		}
		return updated, nil

	case provider.ChargeFailed, provider.ChargeAbandoned:
		updated, _, err := s.repo.MarkStatus(ctx, payment.ID, valueobject.PaymentStatusFailed)
		return updated, err

	case provider.ChargeReversed:
		updated, applied, err := s.repo.MarkStatus(ctx, payment.ID, valueobject.PaymentStatusInvalid)
		if applied {
			entry.Warn("payments: платёж отменён провайдером")
		}
		return updated, err
	}

	return payment, nil
}

func (s *PaymentService) signalDeposit(ctx context.Context, payment *models.Payment) error {
	if s.observer == nil {
		return nil
	}
	if err := s.observer.DepositConfirmed(ctx, payment); err != nil {
		s.log.WithFields(logrus.Fields{
			"payment_id": payment.ID,
			"errand_id":  payment.ErrandID,
		}).WithError(err).Error("payments: не удалось опубликовать оплаченное поручение")
		return err
	}
	return nil
}

func (s *PaymentService) callbackURL(reference string) string {
	if s.opts.CallbackURL == "" {
		return ""
	}
	return strings.TrimRight(s.opts.CallbackURL, "/") + "/" + reference
}

func releaseSkipReason(payment *models.Payment) string {
	switch {
	case payment.Refunded || payment.Status == valueobject.PaymentStatusRefunded:
		return "already refunded"
	case payment.Status != valueobject.PaymentStatusSuccess:
		return "not funded"
	case payment.Released():
		return "already released"
	}
	return ""
}

func skipped(payment *models.Payment, reason string) *SettlementOutcome {
	return &SettlementOutcome{
		PaymentID: payment.ID,
		Reference: payment.Reference,
		Result:    SettlementSkipped,
		Reason:    reason,
	}
}

func authorizePayment(actor Actor, payment *models.Payment) error {
	if payment.PayerID != actor.ID && !actor.IsStaff() {
		return apperror.ErrForbidden
	}
	return nil
}

func newReference() string {
	return referencePrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:20])
}

func parseEventTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return &t
}

func mapPaymentErr(err error) error {
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return apperror.ErrPaymentNotFound
	}
	return err
}

func mapErrandErr(err error) error {
	if errors.Is(err, repository.ErrErrandNotFound) {
		return apperror.ErrErrandNotFound
	}
	return err
}
