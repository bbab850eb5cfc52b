package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errand-backend/internal/domain/valueobject"
	"github.com/ignatzorin/errand-backend/internal/models"
	"github.com/ignatzorin/errand-backend/internal/repository"
)

// Хранилища в памяти повторяют условные обновления репозиториев PostgreSQL.

type memErrands struct {
	mu    sync.Mutex
	items map[uuid.UUID]models.Errand
}

func newMemErrands() *memErrands {
	return &memErrands{items: make(map[uuid.UUID]models.Errand)}
}

func (m *memErrands) Create(ctx context.Context, errand *models.Errand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errand.ID = uuid.New()
	errand.CreatedAt = time.Now()
	errand.UpdatedAt = errand.CreatedAt
	m.items[errand.ID] = *errand
	return nil
}

func (m *memErrands) GetByID(ctx context.Context, id uuid.UUID) (*models.Errand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	errand, ok := m.items[id]
	if !ok {
		return nil, repository.ErrErrandNotFound
	}
	return &errand, nil
}

func (m *memErrands) List(ctx context.Context, f models.ErrandFilter) (*models.ErrandListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	errands := make([]models.Errand, 0)
	for _, e := range m.items {
		if f.CreatorID != nil && e.CreatorID != *f.CreatorID {
			continue
		}
		if f.RunnerID != nil && (e.RunnerID == nil || *e.RunnerID != *f.RunnerID) {
			continue
		}
		if f.Status != nil && string(e.Status) != *f.Status {
			continue
		}
		errands = append(errands, e)
	}
	sort.Slice(errands, func(i, j int) bool { return errands[i].CreatedAt.Before(errands[j].CreatedAt) })

	total := len(errands)
	end := f.Offset + f.Limit
	if f.Offset > total {
		f.Offset = total
	}
	if end > total {
		end = total
	}
	page := errands[f.Offset:end]
	return &models.ErrandListResult{Errands: page, Total: total, Limit: f.Limit, Offset: f.Offset, HasMore: end < total}, nil
}

func (m *memErrands) update(id uuid.UUID, apply func(e *models.Errand) bool) (*models.Errand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	errand, ok := m.items[id]
	if !ok || !apply(&errand) {
		return nil, repository.ErrErrandTransition
	}
	errand.UpdatedAt = time.Now()
	m.items[id] = errand
	return &errand, nil
}

func (m *memErrands) Accept(ctx context.Context, id, runnerID uuid.UUID) (*models.Errand, error) {
	return m.update(id, func(e *models.Errand) bool {
		if e.Status != valueobject.ErrandStatusPending || e.RunnerID != nil || e.CreatorID == runnerID {
			return false
		}
		runner := runnerID
		e.RunnerID = &runner
		e.Status = valueobject.ErrandStatusActive
		return true
	})
}

func (m *memErrands) MarkAwaitingApproval(ctx context.Context, id, runnerID uuid.UUID) (*models.Errand, error) {
	return m.update(id, func(e *models.Errand) bool {
		if !e.IsRunner(runnerID) || e.Status != valueobject.ErrandStatusActive {
			return false
		}
		e.Status = valueobject.ErrandStatusAwaitingApproval
		return true
	})
}

func (m *memErrands) Approve(ctx context.Context, id, creatorID uuid.UUID) (*models.Errand, error) {
	return m.update(id, func(e *models.Errand) bool {
		if !e.IsCreator(creatorID) || e.Status != valueobject.ErrandStatusAwaitingApproval {
			return false
		}
		e.Status = valueobject.ErrandStatusCompleted
		e.Approved = true
		return true
	})
}

func (m *memErrands) Cancel(ctx context.Context, id, creatorID uuid.UUID) (*models.Errand, error) {
	return m.update(id, func(e *models.Errand) bool {
		if !e.IsCreator(creatorID) || e.RunnerID != nil || !e.Status.Open() {
			return false
		}
		e.Status = valueobject.ErrandStatusCancelled
		return true
	})
}

func (m *memErrands) MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Errand, error) {
	return m.update(id, func(e *models.Errand) bool {
		if e.Status != valueobject.ErrandStatusCancelled {
			return false
		}
		e.Status = valueobject.ErrandStatusRefunded
		return true
	})
}

func (m *memErrands) MarkFunded(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := m.update(id, func(e *models.Errand) bool {
		if e.Status != valueobject.ErrandStatusPaymentPending {
			return false
		}
		e.Status = valueobject.ErrandStatusPending
		return true
	})
	return err == nil, nil
}

func (m *memErrands) Delete(ctx context.Context, id, creatorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok || !e.IsCreator(creatorID) || e.RunnerID != nil ||
		(e.Status != valueobject.ErrandStatusCancelled && e.Status != valueobject.ErrandStatusRefunded) {
		return repository.ErrErrandTransition
	}
	delete(m.items, id)
	return nil
}

type memPayments struct {
	mu    sync.Mutex
	items map[uuid.UUID]models.Payment
}

func newMemPayments() *memPayments {
	return &memPayments{items: make(map[uuid.UUID]models.Payment)}
}

func (m *memPayments) Create(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Reference == p.Reference {
			return repository.ErrDuplicateReference
		}
		if activeFor(existing, p.ErrandID, p.PayerID) && activeStatus(p.Status) {
			return repository.ErrActivePaymentExists
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.items[p.ID] = *p
	return nil
}

func (m *memPayments) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	return &p, nil
}

func (m *memPayments) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.Reference == reference {
			return &p, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (m *memPayments) ListByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Payment, 0)
	for _, p := range m.items {
		if p.PayerID == payerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPayments) ListOutstanding(ctx context.Context, errandID, payerID uuid.UUID) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Payment, 0)
	for _, p := range m.items {
		if p.ErrandID != nil && *p.ErrandID == errandID && p.PayerID == payerID && !p.Refunded {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memPayments) lock(id uuid.UUID, apply func(p *models.Payment) bool) (*models.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, false, repository.ErrPaymentNotFound
	}
	if !apply(&p) {
		current := m.items[id]
		return &current, false, nil
	}
	p.UpdatedAt = time.Now()
	m.items[id] = p
	return &p, true, nil
}

func (m *memPayments) Reinitialize(ctx context.Context, id uuid.UUID, next *models.Payment) (*models.Payment, error) {
	p, applied, err := m.lock(id, func(p *models.Payment) bool {
		if p.Status != valueobject.PaymentStatusFailed {
			return false
		}
		p.Reference = next.Reference
		p.AmountExpected = next.AmountExpected
		p.Currency = next.Currency
		p.Status = valueobject.PaymentStatusPending
		p.AuthorizationURL = next.AuthorizationURL
		return true
	})
	if err == nil && !applied {
		return nil, errors.New("payment is not reusable")
	}
	return p, err
}

func (m *memPayments) ConfirmDeposit(ctx context.Context, id uuid.UUID, d models.DepositDetails) (*models.Payment, bool, error) {
	return m.lock(id, func(p *models.Payment) bool {
		if !p.Status.CanTransitionTo(valueobject.PaymentStatusSuccess) {
			return false
		}
		p.Status = valueobject.PaymentStatusSuccess
		p.AmountPaid = decimal.NewNullDecimal(d.AmountPaid)
		p.PaymentChannel = optional(d.Channel)
		p.SenderBank = optional(d.SenderBank)
		p.SenderAccountNumber = optional(d.SenderAccountNumber)
		paidAt := d.PaidAt
		p.PaidAt = &paidAt
		return true
	})
}

func (m *memPayments) MarkStatus(ctx context.Context, id uuid.UUID, next valueobject.PaymentStatus) (*models.Payment, bool, error) {
	return m.lock(id, func(p *models.Payment) bool {
		if !p.Status.CanTransitionTo(next) || next.Funded() {
			return false
		}
		p.Status = next
		return true
	})
}

func (m *memPayments) RecordTransfer(ctx context.Context, id uuid.UUID, transferID, status string) (*models.Payment, bool, error) {
	return m.lock(id, func(p *models.Payment) bool {
		if p.Status != valueobject.PaymentStatusSuccess || p.Released() {
			return false
		}
		p.ProviderTransferID = &transferID
		p.ProviderTransferStatus = &status
		return true
	})
}

func (m *memPayments) UpdateTransferStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, _, err := m.lock(id, func(p *models.Payment) bool {
		p.ProviderTransferStatus = &status
		return true
	})
	return err
}

func (m *memPayments) MarkRefunded(ctx context.Context, id uuid.UUID, d models.RefundDetails) (*models.Payment, bool, error) {
	return m.lock(id, func(p *models.Payment) bool {
		if p.Refunded || !p.Status.CanTransitionTo(valueobject.PaymentStatusRefunded) {
			return false
		}
		p.Status = valueobject.PaymentStatusRefunded
		p.Refunded = true
		p.RefundReason = &d.Reason
		p.ProviderRefundID = optional(d.ProviderID)
		p.ProviderRefundStatus = optional(d.ProviderStatus)
		return true
	})
}

type memUsers struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	profiles map[uuid.UUID]models.PayoutProfile
}

func newMemUsers() *memUsers {
	return &memUsers{
		users:    make(map[uuid.UUID]models.User),
		profiles: make(map[uuid.UUID]models.PayoutProfile),
	}
}

func (m *memUsers) add(email string) *models.User {
	user := &models.User{Email: email, Username: strings.Split(email, "@")[0], Role: models.RoleUser}
	_ = m.Create(context.Background(), user)
	return user
}

func (m *memUsers) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email || u.Username == user.Username {
			return repository.ErrUserExists
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = *user
	return nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) GetPayoutProfile(ctx context.Context, userID uuid.UUID) (*models.PayoutProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	return &p, nil
}

func (m *memUsers) UpsertPayoutProfile(ctx context.Context, profile *models.PayoutProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[profile.UserID]; ok {
		if existing.AccountNumber == profile.AccountNumber && existing.BankCode == profile.BankCode {
			profile.RecipientCode = existing.RecipientCode
		}
		profile.VDAAccountNumber = existing.VDAAccountNumber
		profile.VDABankName = existing.VDABankName
		profile.VDAReference = existing.VDAReference
	}
	profile.UpdatedAt = time.Now()
	m.profiles[profile.UserID] = *profile
	return nil
}

func (m *memUsers) SetRecipientCode(ctx context.Context, userID uuid.UUID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[userID]
	p.RecipientCode = &code
	m.profiles[userID] = p
	return nil
}

func (m *memUsers) SetVirtualAccount(ctx context.Context, userID uuid.UUID, accountNumber, bankName, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[userID]
	p.VDAAccountNumber = &accountNumber
	p.VDABankName = &bankName
	p.VDAReference = &reference
	m.profiles[userID] = p
	return nil
}

type memReviews struct {
	mu    sync.Mutex
	items []models.Review
}

func (m *memReviews) Create(ctx context.Context, review *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.items {
		if r.ErrandID == review.ErrandID && r.ReviewerID == review.ReviewerID {
			return repository.ErrReviewExists
		}
	}
	review.ID = uuid.New()
	review.CreatedAt = time.Now()
	m.items = append(m.items, *review)
	return nil
}

func (m *memReviews) GetByErrandAndReviewer(ctx context.Context, errandID, reviewerID uuid.UUID) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.items {
		if r.ErrandID == errandID && r.ReviewerID == reviewerID {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memReviews) ListByErrand(ctx context.Context, errandID uuid.UUID) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Review, 0)
	for _, r := range m.items {
		if r.ErrandID == errandID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReviews) ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Review, 0)
	for _, r := range m.items {
		if r.RunnerID == runnerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReviews) GetRunnerRating(ctx context.Context, runnerID uuid.UUID) (*models.RunnerRating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rating models.RunnerRating
	sum := 0
	for _, r := range m.items {
		if r.RunnerID == runnerID {
			sum += r.Rating
			rating.Count++
		}
	}
	if rating.Count > 0 {
		rating.Average = float64(sum) / float64(rating.Count)
	}
	return &rating, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func activeStatus(s valueobject.PaymentStatus) bool {
	return s == valueobject.PaymentStatusPending || s == valueobject.PaymentStatusSuccess
}

// activeFor повторяет частичный уникальный индекс по (errand_id, payer_id).
func activeFor(p models.Payment, errandID *uuid.UUID, payerID uuid.UUID) bool {
	return p.ErrandID != nil && errandID != nil && *p.ErrandID == *errandID &&
		p.PayerID == payerID && activeStatus(p.Status)
}
