package provider

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Фиксированные реквизиты sandbox-режима.
const (
	SandboxAccountNumber = "0000000000"
	SandboxBankName      = "TestBank"
	SandboxVDAReference  = "TESTVDA123"
	SandboxChannel       = "sandbox"
)

// Sandbox детерминированный провайдер без сетевых вызовов: любой созданный
// платёж сразу считается оплаченным, выплаты и возвраты проходят успешно.
type Sandbox struct {
	mu       sync.Mutex
	baseURL  string
	charges  map[string]int64
	now      func() time.Time
	refunded map[string]struct{}
}

var _ Provider = (*Sandbox)(nil)

// NewSandbox создаёт sandbox-провайдера. baseURL используется для ссылки на оплату.
func NewSandbox(baseURL string) *Sandbox {
	return &Sandbox{
		baseURL:  strings.TrimRight(baseURL, "/"),
		charges:  make(map[string]int64),
		refunded: make(map[string]struct{}),
		now:      time.Now,
	}
}

func (s *Sandbox) Name() string {
	return "Sandbox"
}

func (s *Sandbox) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "initialize transaction", Err: err}
	}
	if req.AmountMinor <= 0 {
		return nil, &Error{Op: "initialize transaction", Message: "amount must be positive"}
	}

	s.mu.Lock()
	s.charges[req.Reference] = req.AmountMinor
	s.mu.Unlock()

	return &Charge{
		AuthorizationURL: s.baseURL + "/sandbox/checkout/" + req.Reference,
		AccessCode:       "sandbox_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (s *Sandbox) VerifyCharge(ctx context.Context, reference string) (*Verification, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "verify transaction", Err: err}
	}

	// Платежи, созданные до перезапуска процесса, тоже считаются оплаченными;
	// сумма 0 означает, что её нужно взять из локальной записи.
	s.mu.Lock()
	amount := s.charges[reference]
	_, refunded := s.refunded[reference]
	s.mu.Unlock()

	status := ChargeSuccess
	if refunded {
		status = ChargeReversed
	}
	paidAt := s.now()

	return &Verification{
		Reference:     reference,
		Status:        status,
		AmountMinor:   amount,
		Channel:       SandboxChannel,
		PaidAt:        &paidAt,
		Bank:          SandboxBankName,
		AccountNumber: SandboxAccountNumber,
	}, nil
}

func (s *Sandbox) CreateRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Op: "create recipient", Err: err}
	}
	return "RCP_SANDBOX_" + req.AccountNumber, nil
}

func (s *Sandbox) Transfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "transfer", Err: err}
	}
	return &Transfer{TransferID: "TRF_SANDBOX_" + req.Reference, Status: "success", Reference: req.Reference}, nil
}

func (s *Sandbox) Refund(ctx context.Context, reference string, amountMinor int64) (*Refund, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "refund", Err: err}
	}

	s.mu.Lock()
	s.refunded[reference] = struct{}{}
	s.mu.Unlock()

	return &Refund{RefundID: "RFD_SANDBOX_" + reference, Status: "processed"}, nil
}

func (s *Sandbox) CreateDedicatedAccount(ctx context.Context, customer Customer) (*DedicatedAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "create dedicated account", Err: err}
	}
	return &DedicatedAccount{
		AccountNumber: SandboxAccountNumber,
		AccountName:   strings.TrimSpace(customer.FirstName + " " + customer.LastName),
		BankName:      SandboxBankName,
		Reference:     SandboxVDAReference,
	}, nil
}
