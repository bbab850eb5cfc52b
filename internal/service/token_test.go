package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/errand-backend/internal/models"
)

func TestTokenManager_ExpiredAccess(t *testing.T) {
	m := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	pair, err := m.GeneratePair(&models.User{ID: uuid.New(), Role: models.RoleStaff})
	require.NoError(t, err)

	_, _, err = m.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	m := NewTokenManager("access", "refresh", time.Minute, time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessClaims{
		Role:             models.RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	})
	signed, err := token.SignedString([]byte("access"))
	require.NoError(t, err)

	_, _, err = m.ParseAccess(signed)
	assert.Error(t, err)
}
