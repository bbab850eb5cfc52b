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
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/service"
)

type mockPaymentUseCase struct {
	mock.Mock
}

func (m *mockPaymentUseCase) Initialize(ctx context.Context, actor service.Actor, in service.InitializeInput) (*service.InitializeResult, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitializeResult), args.Error(1)
}

func (m *mockPaymentUseCase) Verify(ctx context.Context, actor service.Actor, reference string) (*models.Payment, error) {
	args := m.Called(ctx, actor, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentUseCase) ListForPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) (*models.PaymentListResult, error) {
	args := m.Called(ctx, payerID, limit, offset)
	return args.Get(0).(*models.PaymentListResult), args.Error(1)
}

func (m *mockPaymentUseCase) GetByReference(ctx context.Context, actor service.Actor, reference string) (*models.Payment, error) {
	args := m.Called(ctx, actor, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func TestPaymentHandler_Initialize(t *testing.T) {
	userID, errandID := uuid.New(), uuid.New()
	actor := service.Actor{ID: userID, Role: models.RoleUser}
	payments := new(mockPaymentUseCase)
	r := newTestRouter(userID, models.RoleUser)
	r.POST("/payments/initialize", NewPaymentHandler(payments).Initialize)

	payments.On("Initialize", mock.Anything, actor, service.InitializeInput{ErrandID: errandID}).
		Return(&service.InitializeResult{Reference: "ERD-ABC", AuthorizationURL: "https://checkout.example/ERD-ABC"}, nil)

	w := doJSON(r, http.MethodPost, "/payments/initialize", map[string]string{"errand_id": errandID.String()})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "ERD-ABC")
}

func TestPaymentHandler_Initialize_Errors(t *testing.T) {
	userID := uuid.New()

	t.Run("bad errand id", func(t *testing.T) {
		r := newTestRouter(userID, models.RoleUser)
		r.POST("/payments/initialize", NewPaymentHandler(new(mockPaymentUseCase)).Initialize)

		w := doJSON(r, http.MethodPost, "/payments/initialize", map[string]string{"errand_id": "nope"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("provider timeout", func(t *testing.T) {
		payments := new(mockPaymentUseCase)
		r := newTestRouter(userID, models.RoleUser)
		r.POST("/payments/initialize", NewPaymentHandler(payments).Initialize)

		payments.On("Initialize", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperror.Provider(context.DeadlineExceeded, "провайдер не ответил"))

		w := doJSON(r, http.MethodPost, "/payments/initialize", map[string]string{"errand_id": uuid.NewString()})
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, "PROVIDER_TIMEOUT", errorCode(t, w))
	})

	t.Run("non positive amount", func(t *testing.T) {
		payments := new(mockPaymentUseCase)
		r := newTestRouter(userID, models.RoleUser)
		r.POST("/payments/initialize", NewPaymentHandler(payments).Initialize)

		payments.On("Initialize", mock.Anything, mock.Anything, mock.MatchedBy(func(in service.InitializeInput) bool {
			return in.Amount != nil && in.Amount.IsNegative()
		})).Return(nil, apperror.New(apperror.ErrCodeValidation, "сумма должна быть положительной"))

		w := doJSON(r, http.MethodPost, "/payments/initialize", `{"errand_id":"`+uuid.NewString()+`","amount":-5}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
	})
}

func TestPaymentHandler_VerifyAndGet(t *testing.T) {
	userID := uuid.New()
	actor := service.Actor{ID: userID, Role: models.RoleStaff}
	payments := new(mockPaymentUseCase)
	h := NewPaymentHandler(payments)
	r := newTestRouter(userID, models.RoleStaff)
	r.GET("/payments/verify/:reference", h.Verify)
	r.GET("/payments/:reference", h.Get)

	payments.On("Verify", mock.Anything, actor, "ERD-1").Return(&models.Payment{Reference: "ERD-1", Status: valueobject.PaymentStatusSuccess}, nil)
	payments.On("GetByReference", mock.Anything, actor, "ERD-404").Return(nil, apperror.ErrPaymentNotFound)

	w := doJSON(r, http.MethodGet, "/payments/verify/ERD-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success"`)

	w = doJSON(r, http.MethodGet, "/payments/ERD-404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentHandler_List_Pagination(t *testing.T) {
	userID := uuid.New()
	payments := new(mockPaymentUseCase)
	r := newTestRouter(userID, models.RoleUser)
	r.GET("/payments", NewPaymentHandler(payments).List)

	payments.On("ListForPayer", mock.Anything, userID, 5, 10).Return(&models.PaymentListResult{Payments: []models.Payment{}, Limit: 5, Offset: 10}, nil)

	w := doJSON(r, http.MethodGet, "/payments?limit=5&offset=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	payments.AssertExpectations(t)
}
