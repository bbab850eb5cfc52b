package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/logger"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/repository"
)

// Результаты расчёта по отдельному платежу.
const (
	SettlementReleased = "released"
	SettlementRefunded = "refunded"
	SettlementSkipped  = "skipped"
	SettlementFailed   = "failed"
)

// SettlementOutcome итог выплаты или возврата по одному платежу.
type SettlementOutcome struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Reference string    `json:"reference"`
	Result    string    `json:"result"`
	Reason    string    `json:"reason,omitempty"`
}

// EscrowErrandStore зависимости координатора от хранилища поручений.
type EscrowErrandStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Errand, error)
	MarkFunded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Errand, error)
}

// EscrowPaymentStore зависимости координатора от хранилища платежей.
type EscrowPaymentStore interface {
	ListOutstanding(ctx context.Context, errandID, payerID uuid.UUID) ([]models.Payment, error)
}

// PaymentSettler выполняет выплату и возврат по одному платежу.
type PaymentSettler interface {
	Release(ctx context.Context, payment *models.Payment, runnerID uuid.UUID) (*SettlementOutcome, error)
	Refund(ctx context.Context, payment *models.Payment, reason string) (*SettlementOutcome, error)
}

// EscrowCoordinator связывает жизненные циклы поручения и его платежей.
// Собственного состояния не хранит: каждый шаг выводится из статусов в БД,
// поэтому повторный вызов безопасен.
type EscrowCoordinator struct {
	errands  EscrowErrandStore
	payments EscrowPaymentStore
	settler  PaymentSettler
	notifier Notifier
	log      *logrus.Entry
}

// NewEscrowCoordinator создаёт координатора. PaymentSettler подключается
// позже через AttachPayments, так как сервис платежей сам зависит от координатора.
func NewEscrowCoordinator(errands EscrowErrandStore, payments EscrowPaymentStore) *EscrowCoordinator {
	return &EscrowCoordinator{
		errands:  errands,
		payments: payments,
		notifier: nopNotifier{},
		log:      logger.Component("escrow"),
	}
}

// AttachPayments подключает исполнителя выплат и возвратов.
func (c *EscrowCoordinator) AttachPayments(settler PaymentSettler) {
	c.settler = settler
}

// SetNotifier подключает доставку событий.
func (c *EscrowCoordinator) SetNotifier(n Notifier) {
	if n != nil {
		c.notifier = n
	}
}

// DepositConfirmed переводит оплаченное поручение из payment_pending в pending.
// Депозит, пришедший после отмены или удаления поручения, возвращается автору.
func (c *EscrowCoordinator) DepositConfirmed(ctx context.Context, payment *models.Payment) error {
	if payment == nil || payment.Status != valueobject.PaymentStatusSuccess || payment.Refunded {
		return nil
	}
	if payment.ErrandID == nil {
		c.refundLateDeposit(ctx, payment, nil)
		return nil
	}

	funded, err := c.errands.MarkFunded(ctx, *payment.ErrandID)
	if err != nil {
		return fmt.Errorf("escrow: mark funded: %w", err)
	}
	if !funded {
		errand, err := c.errands.GetByID(ctx, *payment.ErrandID)
		switch {
		case errors.Is(err, repository.ErrErrandNotFound):
			c.refundLateDeposit(ctx, payment, nil)
		case err != nil:
			return fmt.Errorf("escrow: get errand: %w", err)
		case errand.Status == valueobject.ErrandStatusCancelled, errand.Status == valueobject.ErrandStatusRefunded:
			c.refundLateDeposit(ctx, payment, errand)
		}
		return nil
	}

	c.log.WithFields(logrus.Fields{
		"errand_id":  *payment.ErrandID,
		"payment_id": payment.ID,
		"reference":  payment.Reference,
	}).Info("escrow: поручение оплачено и опубликовано")

	c.notifier.Notify(payment.PayerID, models.EventErrandFunded, map[string]interface{}{
		"errand_id": *payment.ErrandID,
		"reference": payment.Reference,
	})
	return nil
}

// refundLateDeposit возвращает депозит по закрытому или удалённому поручению.
// Ошибка возврата только логируется: повторный webhook или Verify повторит попытку.
func (c *EscrowCoordinator) refundLateDeposit(ctx context.Context, payment *models.Payment, errand *models.Errand) {
	entry := c.log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"reference":  payment.Reference,
	})
	if c.settler == nil {
		entry.Error("escrow: payments are not attached, возврат пропущен")
		return
	}

	outcome, err := c.settler.Refund(ctx, payment, models.RefundReasonErrandDeleted)
	if err != nil {
		entry.WithError(err).Warn("escrow: не удалось вернуть депозит по закрытому поручению")
		return
	}
	entry.WithField("result", outcome.Result).Info("escrow: депозит по закрытому поручению возвращён")

	if errand == nil || errand.Status != valueobject.ErrandStatusCancelled || outcome.Result != SettlementRefunded {
		return
	}
	if _, err := c.errands.MarkRefunded(ctx, errand.ID); err != nil && !errors.Is(err, repository.ErrErrandTransition) {
		entry.WithError(err).Warn("escrow: не удалось отметить возврат поручения")
	}
}

// ReleaseForErrand выплачивает исполнителю все невозвращённые платежи автора.
// Ошибки по отдельным платежам агрегируются и возвращаются вместе с итогами.
func (c *EscrowCoordinator) ReleaseForErrand(ctx context.Context, errand *models.Errand) ([]SettlementOutcome, error) {
	if errand.RunnerID == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "у поручения нет исполнителя")
	}
	if c.settler == nil {
		return nil, fmt.Errorf("escrow: payments are not attached")
	}

	payments, err := c.payments.ListOutstanding(ctx, errand.ID, errand.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("escrow: list payments: %w", err)
	}

	var (
		outcomes = make([]SettlementOutcome, 0, len(payments))
		errs     error
	)
	for i := range payments {
		payment := &payments[i]
		outcome, err := c.settler.Release(ctx, payment, *errand.RunnerID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.Reference, err))
			outcomes = append(outcomes, failedOutcome(payment, err))
			continue
		}
		outcomes = append(outcomes, *outcome)
	}

	return outcomes, errs
}

// RefundForErrand возвращает автору все невозвращённые платежи по поручению.
// Ошибки только логируются: отмена поручения от них не зависит.
func (c *EscrowCoordinator) RefundForErrand(ctx context.Context, errand *models.Errand, reason string) []SettlementOutcome {
	entry := c.log.WithField("errand_id", errand.ID)
	if c.settler == nil {
		entry.Error("escrow: payments are not attached, возврат пропущен")
		return nil
	}

	payments, err := c.payments.ListOutstanding(ctx, errand.ID, errand.CreatorID)
	if err != nil {
		entry.WithError(err).Warn("escrow: не удалось получить платежи для возврата")
		return nil
	}

	outcomes := make([]SettlementOutcome, 0, len(payments))
	for i := range payments {
		payment := &payments[i]
		outcome, err := c.settler.Refund(ctx, payment, reason)
		if err != nil {
			entry.WithFields(logrus.Fields{
				"payment_id": payment.ID,
				"reference":  payment.Reference,
			}).WithError(err).Warn("escrow: возврат не выполнен")
			outcomes = append(outcomes, failedOutcome(payment, err))
			continue
		}
		outcomes = append(outcomes, *outcome)
	}

	return outcomes
}

func failedOutcome(payment *models.Payment, err error) SettlementOutcome {
	reason := err.Error()
	if appErr, ok := apperror.As(err); ok {
		reason = appErr.Message
	}
	return SettlementOutcome{
		PaymentID: payment.ID,
		Reference: payment.Reference,
		Result:    SettlementFailed,
		Reason:    reason,
	}
}
