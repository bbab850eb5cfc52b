package service

import (
	"github.com/google/uuid"

	"github.com/ignatzorin/errand-backend/internal/models"
)

// Actor пользователь, от имени которого выполняется операция.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// IsStaff сообщает, что действие выполняет сотрудник площадки.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleStaff
}
