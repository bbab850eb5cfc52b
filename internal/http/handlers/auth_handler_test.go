package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/service"
)

type mockAuthUseCase struct {
	mock.Mock
}

func (m *mockAuthUseCase) result(args mock.Arguments) (*service.AuthResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

func (m *mockAuthUseCase) Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	return m.result(m.Called(ctx, in))
}

func (m *mockAuthUseCase) Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error) {
	return m.result(m.Called(ctx, in))
}

func (m *mockAuthUseCase) Refresh(ctx context.Context, token string) (*service.AuthResult, error) {
	return m.result(m.Called(ctx, token))
}

func (m *mockAuthUseCase) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func TestAuthHandler_Register(t *testing.T) {
	auth := new(mockAuthUseCase)
	r := newTestRouter(uuid.Nil, "")
	r.POST("/auth/register", NewAuthHandler(auth).Register)

	auth.On("Register", mock.Anything, service.RegisterInput{Email: "a@example.com", Password: "Secret123"}).
		Return(&service.AuthResult{User: &models.User{Email: "a@example.com"}, TokenPair: &service.TokenPair{AccessToken: "acc"}}, nil).Once()
	auth.On("Register", mock.Anything, service.RegisterInput{Email: "a@example.com", Password: "Secret123"}).
		Return(nil, apperror.New(apperror.ErrCodeConflict, "email уже зарегистрирован")).Once()

	w := doJSON(r, http.MethodPost, "/auth/register", map[string]string{"email": "a@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"acc"`)

	w = doJSON(r, http.MethodPost, "/auth/register", map[string]string{"email": "a@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/register", map[string]string{"email": "a@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	auth := new(mockAuthUseCase)
	r := newTestRouter(uuid.Nil, "")
	r.POST("/auth/login", NewAuthHandler(auth).Login)

	auth.On("Login", mock.Anything, mock.Anything).Return(nil, apperror.ErrInvalidCredentials)

	w := doJSON(r, http.MethodPost, "/auth/login", map[string]string{"email": "a@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
}
