package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/repository"
)

type mockEscrowErrands struct {
	mock.Mock
}

func (m *mockEscrowErrands) GetByID(ctx context.Context, id uuid.UUID) (*models.Errand, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Errand), args.Error(1)
}

func (m *mockEscrowErrands) MarkFunded(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockEscrowErrands) MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Errand, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Errand), args.Error(1)
}

type mockEscrowPayments struct {
	mock.Mock
}

func (m *mockEscrowPayments) ListOutstanding(ctx context.Context, errandID, payerID uuid.UUID) ([]models.Payment, error) {
	args := m.Called(ctx, errandID, payerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Payment), args.Error(1)
}

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) Release(ctx context.Context, p *models.Payment, runnerID uuid.UUID) (*SettlementOutcome, error) {
	args := m.Called(ctx, p.Reference, runnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SettlementOutcome), args.Error(1)
}

func (m *mockSettler) Refund(ctx context.Context, p *models.Payment, reason string) (*SettlementOutcome, error) {
	args := m.Called(ctx, p.Reference, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SettlementOutcome), args.Error(1)
}

func newEscrowFixture() (*EscrowCoordinator, *mockEscrowErrands, *mockEscrowPayments, *mockSettler) {
	errands := new(mockEscrowErrands)
	payments := new(mockEscrowPayments)
	settler := new(mockSettler)
	c := NewEscrowCoordinator(errands, payments)
	c.AttachPayments(settler)
	return c, errands, payments, settler
}

func TestEscrowCoordinator_DepositConfirmed(t *testing.T) {
	c, errands, _, _ := newEscrowFixture()
	notifier := newRecordingNotifier()
	c.SetNotifier(notifier)
	ctx := context.Background()

	errandID := uuid.New()
	payment := &models.Payment{
		ID: uuid.New(), PayerID: uuid.New(), ErrandID: &errandID,
		Reference: "ERD-1", Status: valueobject.PaymentStatusSuccess,
	}

	errands.On("MarkFunded", ctx, errandID).Return(true, nil).Once()
	require.NoError(t, c.DepositConfirmed(ctx, payment))
	assert.Equal(t, []string{models.EventErrandFunded}, notifier.received(payment.PayerID))

	// Поручение уже опубликовано: повторный сигнал ничего не меняет.
	errands.On("MarkFunded", ctx, errandID).Return(false, nil).Once()
	errands.On("GetByID", ctx, errandID).
		Return(&models.Errand{ID: errandID, Status: valueobject.ErrandStatusPending}, nil).Once()
	require.NoError(t, c.DepositConfirmed(ctx, payment))
	assert.Len(t, notifier.received(payment.PayerID), 1)

	errands.AssertExpectations(t)
}

func TestEscrowCoordinator_DepositConfirmed_IgnoresUnfundedPayment(t *testing.T) {
	c, errands, _, settler := newEscrowFixture()
	errandID := uuid.New()

	for _, p := range []*models.Payment{
		{ID: uuid.New(), ErrandID: &errandID, Status: valueobject.PaymentStatusPending},
		{ID: uuid.New(), Status: valueobject.PaymentStatusFailed},
		{ID: uuid.New(), ErrandID: &errandID, Status: valueobject.PaymentStatusSuccess, Refunded: true},
	} {
		require.NoError(t, c.DepositConfirmed(context.Background(), p))
	}
	errands.AssertNotCalled(t, "MarkFunded", mock.Anything, mock.Anything)
	settler.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowCoordinator_DepositConfirmed_RefundsDetachedPayment(t *testing.T) {
	c, errands, _, settler := newEscrowFixture()
	ctx := context.Background()
	payment := &models.Payment{ID: uuid.New(), Reference: "ERD-2", Status: valueobject.PaymentStatusSuccess}

	settler.On("Refund", ctx, "ERD-2", models.RefundReasonErrandDeleted).
		Return(&SettlementOutcome{Reference: "ERD-2", Result: SettlementRefunded}, nil).Once()

	require.NoError(t, c.DepositConfirmed(ctx, payment))
	settler.AssertExpectations(t)
	errands.AssertNotCalled(t, "MarkFunded", mock.Anything, mock.Anything)
}

func TestEscrowCoordinator_DepositConfirmed_RefundsAfterCancel(t *testing.T) {
	c, errands, _, settler := newEscrowFixture()
	ctx := context.Background()
	errandID := uuid.New()
	payment := &models.Payment{ID: uuid.New(), ErrandID: &errandID, Reference: "ERD-3", Status: valueobject.PaymentStatusSuccess}

	errands.On("MarkFunded", ctx, errandID).Return(false, nil).Once()
	errands.On("GetByID", ctx, errandID).
		Return(&models.Errand{ID: errandID, Status: valueobject.ErrandStatusCancelled}, nil).Once()
	settler.On("Refund", ctx, "ERD-3", models.RefundReasonErrandDeleted).
		Return(&SettlementOutcome{Reference: "ERD-3", Result: SettlementRefunded}, nil).Once()
	errands.On("MarkRefunded", ctx, errandID).
		Return(&models.Errand{ID: errandID, Status: valueobject.ErrandStatusRefunded}, nil).Once()

	require.NoError(t, c.DepositConfirmed(ctx, payment))
	errands.AssertExpectations(t)
	settler.AssertExpectations(t)
}

func TestEscrowCoordinator_DepositConfirmed_RefundFailureIsLogged(t *testing.T) {
	c, errands, _, settler := newEscrowFixture()
	ctx := context.Background()
	errandID := uuid.New()
	payment := &models.Payment{ID: uuid.New(), ErrandID: &errandID, Reference: "ERD-4", Status: valueobject.PaymentStatusSuccess}

	errands.On("MarkFunded", ctx, errandID).Return(false, nil).Once()
	errands.On("GetByID", ctx, errandID).Return(nil, repository.ErrErrandNotFound).Once()
	settler.On("Refund", ctx, "ERD-4", models.RefundReasonErrandDeleted).Return(nil, errors.New("provider down")).Once()

	require.NoError(t, c.DepositConfirmed(ctx, payment))
	settler.AssertExpectations(t)
	errands.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything)
}

func TestEscrowCoordinator_ReleaseForErrand_AggregatesErrors(t *testing.T) {
	c, _, payments, settler := newEscrowFixture()
	ctx := context.Background()

	runnerID := uuid.New()
	errand := &models.Errand{ID: uuid.New(), CreatorID: uuid.New(), RunnerID: &runnerID, Status: valueobject.ErrandStatusCompleted}
	list := []models.Payment{
		{ID: uuid.New(), Reference: "ERD-A"},
		{ID: uuid.New(), Reference: "ERD-B"},
		{ID: uuid.New(), Reference: "ERD-C"},
	}

	payments.On("ListOutstanding", ctx, errand.ID, errand.CreatorID).Return(list, nil)
	settler.On("Release", ctx, "ERD-A", runnerID).Return(&SettlementOutcome{Reference: "ERD-A", Result: SettlementReleased}, nil)
	settler.On("Release", ctx, "ERD-B", runnerID).Return(nil, apperror.New(apperror.ErrCodeProvider, "нет реквизитов"))
	settler.On("Release", ctx, "ERD-C", runnerID).Return(nil, errors.New("timeout"))

	outcomes, err := c.ReleaseForErrand(ctx, errand)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	require.Len(t, outcomes, 3)
	assert.Equal(t, SettlementReleased, outcomes[0].Result)
	assert.Equal(t, SettlementFailed, outcomes[1].Result)
	assert.Equal(t, "нет реквизитов", outcomes[1].Reason)
	assert.Equal(t, SettlementFailed, outcomes[2].Result)
}

func TestEscrowCoordinator_ReleaseForErrand_NoRunner(t *testing.T) {
	c, _, payments, _ := newEscrowFixture()

	_, err := c.ReleaseForErrand(context.Background(), &models.Errand{ID: uuid.New()})
	assert.True(t, apperror.IsConflict(err))
	payments.AssertNotCalled(t, "ListOutstanding", mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowCoordinator_RefundForErrand_SwallowsErrors(t *testing.T) {
	c, _, payments, settler := newEscrowFixture()
	ctx := context.Background()

	errand := &models.Errand{ID: uuid.New(), CreatorID: uuid.New(), Status: valueobject.ErrandStatusCancelled}
	list := []models.Payment{{ID: uuid.New(), Reference: "ERD-A"}, {ID: uuid.New(), Reference: "ERD-B"}}

	payments.On("ListOutstanding", ctx, errand.ID, errand.CreatorID).Return(list, nil)
	settler.On("Refund", ctx, "ERD-A", models.RefundReasonErrandDeleted).Return(nil, errors.New("provider down"))
	settler.On("Refund", ctx, "ERD-B", models.RefundReasonErrandDeleted).
		Return(&SettlementOutcome{Reference: "ERD-B", Result: SettlementRefunded}, nil)

	outcomes := c.RefundForErrand(ctx, errand, models.RefundReasonErrandDeleted)
	require.Len(t, outcomes, 2)
	assert.Equal(t, SettlementFailed, outcomes[0].Result)
	assert.Equal(t, SettlementRefunded, outcomes[1].Result)
}

func TestEscrowCoordinator_RefundForErrand_ListFailure(t *testing.T) {
	c, _, payments, settler := newEscrowFixture()
	ctx := context.Background()
	errand := &models.Errand{ID: uuid.New(), CreatorID: uuid.New()}

	payments.On("ListOutstanding", ctx, errand.ID, errand.CreatorID).Return(nil, errors.New("db down"))

	assert.Empty(t, c.RefundForErrand(ctx, errand, "reason"))
	settler.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}
