package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
)

// Payment описывает депозит заказчика, удерживаемый до выплаты или возврата.
type Payment struct {
	ID                     uuid.UUID                 `db:"id" json:"id"`
	Reference              string                    `db:"reference" json:"reference"`
	Provider               string                    `db:"provider" json:"provider"`
	PayerID                uuid.UUID                 `db:"payer_id" json:"payer_id"`
	ErrandID               *uuid.UUID                `db:"errand_id" json:"errand_id,omitempty"`
	AmountExpected         decimal.Decimal           `db:"amount_expected" json:"amount_expected"`
	AmountPaid             decimal.NullDecimal       `db:"amount_paid" json:"amount_paid"`
	Currency               string                    `db:"currency" json:"currency"`
	Status                 valueobject.PaymentStatus `db:"status" json:"status"`
	AuthorizationURL       *string                   `db:"authorization_url" json:"authorization_url,omitempty"`
	PaymentChannel         *string                   `db:"payment_channel" json:"payment_channel,omitempty"`
	SenderBank             *string                   `db:"sender_bank" json:"sender_bank,omitempty"`
	SenderAccountNumber    *string                   `db:"sender_account_number" json:"sender_account_number,omitempty"`
	PaidAt                 *time.Time                `db:"paid_at" json:"paid_at,omitempty"`
	Refunded               bool                      `db:"refunded" json:"refunded"`
	RefundReason           *string                   `db:"refund_reason" json:"refund_reason,omitempty"`
	ProviderTransferID     *string                   `db:"provider_transfer_id" json:"provider_transfer_id,omitempty"`
	ProviderTransferStatus *string                   `db:"provider_transfer_status" json:"provider_transfer_status,omitempty"`
	ProviderRefundID       *string                   `db:"provider_refund_id" json:"provider_refund_id,omitempty"`
	ProviderRefundStatus   *string                   `db:"provider_refund_status" json:"provider_refund_status,omitempty"`
	CreatedAt              time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time                 `db:"updated_at" json:"updated_at"`
}

// SettledAmount сумма, фактически полученная от плательщика.
// Если провайдер не сообщил сумму, используется ожидаемая.
func (p *Payment) SettledAmount() decimal.Decimal {
	if p.AmountPaid.Valid {
		return p.AmountPaid.Decimal
	}
	return p.AmountExpected
}

// Released сообщает, что перевод исполнителю уже создан.
func (p *Payment) Released() bool {
	return p.ProviderTransferID != nil && *p.ProviderTransferID != ""
}

// DepositDetails данные подтверждённого депозита от провайдера.
type DepositDetails struct {
	AmountPaid          decimal.Decimal
	Channel             string
	PaidAt              time.Time
	SenderBank          string
	SenderAccountNumber string
}

// RefundDetails результат возврата средств у провайдера.
type RefundDetails struct {
	Reason         string
	ProviderID     string
	ProviderStatus string
}

// PaymentListResult страница платежей пользователя.
type PaymentListResult struct {
	Payments []Payment `json:"payments"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}
