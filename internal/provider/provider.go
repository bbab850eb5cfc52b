// Package provider описывает платёжного провайдера, через которого проходят
// депозиты заказчиков, выплаты исполнителям и возвраты. Все суммы на границе
// пакета передаются в минимальных единицах валюты (кобо, копейки).
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Статусы транзакции, которые возвращает провайдер при проверке.
const (
	ChargeSuccess   = "success"
	ChargeFailed    = "failed"
	ChargeAbandoned = "abandoned"
	ChargeReversed  = "reversed"
	ChargePending   = "pending"
	ChargeOngoing   = "ongoing"
)

// ErrUnknownReference возвращается, когда провайдер не знает reference.
var ErrUnknownReference = errors.New("provider: unknown reference")

// Provider набор операций платёжного шлюза.
type Provider interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	VerifyCharge(ctx context.Context, reference string) (*Verification, error)
	CreateRecipient(ctx context.Context, req RecipientRequest) (string, error)
	Transfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	Refund(ctx context.Context, reference string, amountMinor int64) (*Refund, error)
	CreateDedicatedAccount(ctx context.Context, customer Customer) (*DedicatedAccount, error)
}

// ChargeRequest запрос на создание платежа.
type ChargeRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	Reference   string
	CallbackURL string
}

// Charge ответ провайдера на создание платежа.
type Charge struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Verification результат проверки платежа.
type Verification struct {
	Reference     string
	Status        string
	AmountMinor   int64
	Currency      string
	Channel       string
	PaidAt        *time.Time
	Bank          string
	AccountNumber string
}

// RecipientRequest данные получателя выплаты.
type RecipientRequest struct {
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

// TransferRequest запрос на перевод средств получателю.
type TransferRequest struct {
	RecipientCode string
	AmountMinor   int64
	Reason        string
	Reference     string
}

// Transfer результат перевода.
type Transfer struct {
	TransferID string
	Status     string
	Reference  string
}

// Refund результат возврата.
type Refund struct {
	RefundID string
	Status   string
}

// Customer данные клиента для выделенного счёта.
type Customer struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// DedicatedAccount выделенный виртуальный счёт (VDA).
type DedicatedAccount struct {
	AccountNumber string
	AccountName   string
	BankName      string
	Reference     string
}

// Error ошибка ответа провайдера.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("provider: %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("provider: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("provider: %s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
