package provider

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// PaystackOptions параметры live-клиента.
type PaystackOptions struct {
	BaseURL       string
	SecretKey     string
	Timeout       time.Duration
	RetryCount    int
	PreferredBank string
}

// Paystack клиент REST API Paystack.
type Paystack struct {
	client        *resty.Client
	preferredBank string
}

var _ Provider = (*Paystack)(nil)

// NewPaystack создаёт клиента. Повторы выполняются только для сетевых ошибок,
// 429 и 5xx; переводы и возвраты идемпотентны по reference.
func NewPaystack(opts PaystackOptions) *Paystack {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetAuthToken(opts.SecretKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	bank := opts.PreferredBank
	if bank == "" {
		bank = "wema-bank"
	}

	return &Paystack{client: client, preferredBank: bank}
}

func (p *Paystack) Name() string {
	return "Paystack"
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// call выполняет запрос и разворачивает конверт {status, message, data}.
func call[T any](ctx context.Context, p *Paystack, op, method, path string, body any) (*T, error) {
	var (
		out     envelope[T]
		failure envelope[any]
	)

	req := p.client.R().SetContext(ctx).SetResult(&out).SetError(&failure)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	if resp.IsError() {
		msg := failure.Message
		if msg == "" {
			msg = resp.Status()
		}
		perr := &Error{Op: op, StatusCode: resp.StatusCode(), Message: msg}
		if resp.StatusCode() == http.StatusNotFound {
			perr.Err = ErrUnknownReference
		}
		return nil, perr
	}
	if !out.Status {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode(), Message: out.Message}
	}

	return &out.Data, nil
}

func (p *Paystack) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    req.AmountMinor,
		"reference": req.Reference,
		"currency":  req.Currency,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}

	data, err := call[struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}](ctx, p, "initialize transaction", http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	return &Charge{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (p *Paystack) VerifyCharge(ctx context.Context, reference string) (*Verification, error) {
	data, err := call[struct {
		Status        string     `json:"status"`
		Reference     string     `json:"reference"`
		Amount        int64      `json:"amount"`
		Currency      string     `json:"currency"`
		Channel       string     `json:"channel"`
		PaidAt        *time.Time `json:"paid_at"`
		Authorization struct {
			Bank        string `json:"bank"`
			Last4       string `json:"last4"`
			AccountName string `json:"account_name"`
		} `json:"authorization"`
	}](ctx, p, "verify transaction", http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	return &Verification{
		Reference:     data.Reference,
		Status:        data.Status,
		AmountMinor:   data.Amount,
		Currency:      data.Currency,
		Channel:       data.Channel,
		PaidAt:        data.PaidAt,
		Bank:          data.Authorization.Bank,
		AccountNumber: data.Authorization.Last4,
	}, nil
}

func (p *Paystack) CreateRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	data, err := call[struct {
		RecipientCode string `json:"recipient_code"`
	}](ctx, p, "create recipient", http.MethodPost, "/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       req.Currency,
	})
	if err != nil {
		return "", err
	}
	if data.RecipientCode == "" {
		return "", &Error{Op: "create recipient", Message: "пустой recipient_code"}
	}
	return data.RecipientCode, nil
}

func (p *Paystack) Transfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	data, err := call[struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
		Reference    string `json:"reference"`
	}](ctx, p, "transfer", http.MethodPost, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    req.AmountMinor,
		"recipient": req.RecipientCode,
		"reason":    req.Reason,
		"reference": req.Reference,
	})
	if err != nil {
		return nil, err
	}

	return &Transfer{TransferID: data.TransferCode, Status: data.Status, Reference: data.Reference}, nil
}

func (p *Paystack) Refund(ctx context.Context, reference string, amountMinor int64) (*Refund, error) {
	data, err := call[struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}](ctx, p, "refund", http.MethodPost, "/refund", map[string]any{
		"transaction": reference,
		"amount":      amountMinor,
	})
	if err != nil {
		return nil, err
	}

	return &Refund{RefundID: strconv.FormatInt(data.ID, 10), Status: data.Status}, nil
}

// CreateDedicatedAccount создаёт клиента и выделенный счёт для него.
func (p *Paystack) CreateDedicatedAccount(ctx context.Context, customer Customer) (*DedicatedAccount, error) {
	created, err := call[struct {
		CustomerCode string `json:"customer_code"`
	}](ctx, p, "create customer", http.MethodPost, "/customer", map[string]any{
		"email":      customer.Email,
		"first_name": customer.FirstName,
		"last_name":  customer.LastName,
		"phone":      customer.Phone,
	})
	if err != nil {
		return nil, err
	}

	data, err := call[struct {
		ID            int64  `json:"id"`
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
		Bank          struct {
			Name string `json:"name"`
		} `json:"bank"`
	}](ctx, p, "create dedicated account", http.MethodPost, "/dedicated_account", map[string]any{
		"customer":       created.CustomerCode,
		"preferred_bank": p.preferredBank,
	})
	if err != nil {
		return nil, err
	}

	return &DedicatedAccount{
		AccountNumber: data.AccountNumber,
		AccountName:   data.AccountName,
		BankName:      data.Bank.Name,
		Reference:     created.CustomerCode,
	}, nil
}
