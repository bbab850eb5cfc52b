package valueobject

import "github.com/ignatzorin/errand-backend/internal/pkg/apperror"

type ErrandStatus string

const (
	ErrandStatusPaymentPending   ErrandStatus = "payment_pending"
	ErrandStatusPending          ErrandStatus = "pending"
	ErrandStatusActive           ErrandStatus = "active"
	ErrandStatusAwaitingApproval ErrandStatus = "awaiting_approval"
	ErrandStatusCompleted        ErrandStatus = "completed"
	ErrandStatusRefunded         ErrandStatus = "refunded"
	ErrandStatusCancelled        ErrandStatus = "cancelled"
)

var errandTransitions = map[ErrandStatus][]ErrandStatus{
	ErrandStatusPaymentPending:   {ErrandStatusPending, ErrandStatusCancelled},
	ErrandStatusPending:          {ErrandStatusActive, ErrandStatusCancelled},
	ErrandStatusActive:           {ErrandStatusAwaitingApproval},
	ErrandStatusAwaitingApproval: {ErrandStatusCompleted},
	ErrandStatusCancelled:        {ErrandStatusRefunded},
	ErrandStatusCompleted:        {},
	ErrandStatusRefunded:         {},
}

func (s ErrandStatus) IsValid() bool {
	_, ok := errandTransitions[s]
	return ok
}

func (s ErrandStatus) CanTransitionTo(next ErrandStatus) bool {
	for _, status := range errandTransitions[s] {
		if status == next {
			return true
		}
	}
	return false
}

// HasRunner сообщает, должен ли в этом статусе быть назначен исполнитель.
func (s ErrandStatus) HasRunner() bool {
	switch s {
	case ErrandStatusActive, ErrandStatusAwaitingApproval, ErrandStatusCompleted:
		return true
	}
	return false
}

// Open сообщает, что поручение ещё не взято и его можно отменить или оплатить.
func (s ErrandStatus) Open() bool {
	return s == ErrandStatusPaymentPending || s == ErrandStatusPending
}

func NewErrandStatus(status string) (ErrandStatus, error) {
	s := ErrandStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус поручения")
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusInvalid  PaymentStatus = "invalid"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:  {PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusInvalid},
	PaymentStatusFailed:   {PaymentStatusPending, PaymentStatusSuccess},
	PaymentStatusSuccess:  {PaymentStatusRefunded},
	PaymentStatusRefunded: {},
	PaymentStatusInvalid:  {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, status := range paymentTransitions[s] {
		if status == next {
			return true
		}
	}
	return false
}

// Funded сообщает, что деньги по платежу получены (возможно, уже возвращены).
func (s PaymentStatus) Funded() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusRefunded
}
