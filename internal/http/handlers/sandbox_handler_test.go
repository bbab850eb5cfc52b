package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/service"
)

type mockSandboxUseCase struct {
	mock.Mock
}

func (m *mockSandboxUseCase) SimulateDeposit(ctx context.Context, actor service.Actor, paymentID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, actor, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockSandboxUseCase) SimulatePayout(ctx context.Context, actor service.Actor, paymentID uuid.UUID) (*service.SettlementOutcome, error) {
	args := m.Called(ctx, actor, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SettlementOutcome), args.Error(1)
}

func (m *mockSandboxUseCase) SimulateRefund(ctx context.Context, actor service.Actor, paymentID uuid.UUID, reason string) (*service.SettlementOutcome, error) {
	args := m.Called(ctx, actor, paymentID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SettlementOutcome), args.Error(1)
}

func (m *mockSandboxUseCase) PayErrand(ctx context.Context, actor service.Actor, errandID uuid.UUID) (*service.Receipt, error) {
	args := m.Called(ctx, actor, errandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Receipt), args.Error(1)
}

func TestSandboxHandler_Refund_OptionalBody(t *testing.T) {
	userID, paymentID := uuid.New(), uuid.New()
	actor := service.Actor{ID: userID, Role: models.RoleUser}
	payments := new(mockSandboxUseCase)
	r := newTestRouter(userID, models.RoleUser)
	r.POST("/sandbox/payments/:id/refund", NewSandboxHandler(payments).Refund)

	refunded := &service.SettlementOutcome{PaymentID: paymentID, Result: service.SettlementRefunded}
	payments.On("SimulateRefund", mock.Anything, actor, paymentID, "").Return(refunded, nil).Once()
	payments.On("SimulateRefund", mock.Anything, actor, paymentID, "передумал").Return(refunded, nil).Once()

	w := doJSON(r, http.MethodPost, "/sandbox/payments/"+paymentID.String()+"/refund", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/sandbox/payments/"+paymentID.String()+"/refund", map[string]string{"reason": "передумал"})
	assert.Equal(t, http.StatusOK, w.Code)
	payments.AssertExpectations(t)
}

func TestSandboxHandler_PayErrand(t *testing.T) {
	userID, errandID := uuid.New(), uuid.New()
	payments := new(mockSandboxUseCase)
	r := newTestRouter(userID, models.RoleUser)
	r.POST("/sandbox/errands/:id/pay", NewSandboxHandler(payments).PayErrand)

	payments.On("PayErrand", mock.Anything, service.Actor{ID: userID, Role: models.RoleUser}, errandID).
		Return(&service.Receipt{Reference: "ERD-XYZ", ErrandID: errandID, Status: valueobject.PaymentStatusSuccess}, nil)

	w := doJSON(r, http.MethodPost, "/sandbox/errands/"+errandID.String()+"/pay", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ERD-XYZ")
}
