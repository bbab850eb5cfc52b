package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/service"
)

type mockProfileUseCase struct {
	mock.Mock
}

func (m *mockProfileUseCase) GetPayoutProfile(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PayoutProfile), args.Error(1)
}

func (m *mockProfileUseCase) UpdatePayoutProfile(ctx context.Context, userID uuid.UUID, in service.PayoutProfileInput) (*models.PayoutProfile, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PayoutProfile), args.Error(1)
}

func (m *mockProfileUseCase) CreateVirtualAccount(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PayoutProfile), args.Error(1)
}

func TestProfileHandler_GetPayout(t *testing.T) {
	userID := uuid.New()
	profiles := new(mockProfileUseCase)
	r := newTestRouter(userID, models.RoleUser)
	r.GET("/profile/payout", NewProfileHandler(profiles).GetPayout)

	profiles.On("GetPayoutProfile", mock.Anything, userID).Return(nil, apperror.ErrProfileNotFound).Once()
	w := doJSON(r, http.MethodGet, "/profile/payout", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	profiles.On("GetPayoutProfile", mock.Anything, userID).
		Return(&models.PayoutProfile{UserID: userID, AccountNumber: "0123456789"}, nil).Once()
	w = doJSON(r, http.MethodGet, "/profile/payout", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.PayoutProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "0123456789", got.AccountNumber)
}

func TestProfileHandler_UpdatePayout(t *testing.T) {
	userID := uuid.New()
	profiles := new(mockProfileUseCase)
	r := newTestRouter(userID, models.RoleUser)
	r.PUT("/profile/payout", NewProfileHandler(profiles).UpdatePayout)

	expected := service.PayoutProfileInput{
		FirstName:     "Ada",
		LastName:      "Obi",
		AccountNumber: "0123456789",
		BankCode:      "058",
	}
	profiles.On("UpdatePayoutProfile", mock.Anything, userID, expected).
		Return(&models.PayoutProfile{UserID: userID}, nil).Once()

	w := doJSON(r, http.MethodPut, "/profile/payout",
		`{"first_name":"Ada","last_name":"Obi","account_number":"0123456789","bank_code":"058"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPut, "/profile/payout", `{"first_name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperror.ErrCodeBadRequest), errorCode(t, w))

	profiles.AssertExpectations(t)
}

func TestProfileHandler_CreateVirtualAccount_ProviderError(t *testing.T) {
	userID := uuid.New()
	profiles := new(mockProfileUseCase)
	r := newTestRouter(userID, models.RoleUser)
	r.POST("/profile/payout/vda", NewProfileHandler(profiles).CreateVirtualAccount)

	profiles.On("CreateVirtualAccount", mock.Anything, userID).
		Return(nil, apperror.New(apperror.ErrCodeProvider, "не удалось создать виртуальный счёт"))

	w := doJSON(r, http.MethodPost, "/profile/payout/vda", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(apperror.ErrCodeProvider), errorCode(t, w))
}
