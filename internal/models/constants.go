package models

// Роли пользователей
const (
	RoleUser  = "user"
	RoleStaff = "staff"
)

// ValidRoles список допустимых ролей
var ValidRoles = map[string]struct{}{
	RoleUser:  {},
	RoleStaff: {},
}

// События, отправляемые участникам через WebSocket
const (
	EventErrandFunded           = "errand.funded"
	EventErrandAccepted         = "errand.accepted"
	EventErrandAwaitingApproval = "errand.awaiting_approval"
	EventErrandCompleted        = "errand.completed"
	EventErrandCancelled        = "errand.cancelled"
	EventPaymentReleased        = "payment.released"
	EventPaymentRefunded        = "payment.refunded"
)

// RefundReasonErrandDeleted причина возврата при удалении поручения до его принятия.
const RefundReasonErrandDeleted = "errand deleted before being taken"

// DefaultProviderName имя провайдера, записываемое в платёж.
const DefaultProviderName = "Paystack"
