package models

import (
	"time"

	"github.com/google/uuid"
)

// User описывает учётную запись участника площадки.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsStaff сообщает, является ли пользователь сотрудником площадки.
func (u *User) IsStaff() bool {
	return u.Role == RoleStaff
}

// PayoutProfile хранит банковские реквизиты для выплат исполнителю
// и идентификаторы, выданные платёжным провайдером.
type PayoutProfile struct {
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	FirstName        string    `db:"first_name" json:"first_name"`
	LastName         string    `db:"last_name" json:"last_name"`
	Email            string    `db:"email" json:"email"`
	Phone            string    `db:"phone" json:"phone"`
	AccountNumber    string    `db:"account_number" json:"account_number"`
	BankName         string    `db:"bank_name" json:"bank_name"`
	BankCode         string    `db:"bank_code" json:"bank_code"`
	RecipientCode    *string   `db:"recipient_code" json:"recipient_code,omitempty"`
	VDAAccountNumber *string   `db:"vda_account_number" json:"vda_account_number,omitempty"`
	VDABankName      *string   `db:"vda_bank_name" json:"vda_bank_name,omitempty"`
	VDAReference     *string   `db:"vda_reference" json:"vda_reference,omitempty"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// FullName возвращает имя получателя для банковского перевода.
func (p *PayoutProfile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// CanReceivePayouts сообщает, достаточно ли реквизитов для перевода.
func (p *PayoutProfile) CanReceivePayouts() bool {
	return p.AccountNumber != "" && p.BankCode != ""
}
