package service

import "github.com/google/uuid"

// Notifier доставляет события участникам в реальном времени.
// Доставка best-effort: ошибки не влияют на операцию.
type Notifier interface {
	Notify(userID uuid.UUID, event string, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Notify(uuid.UUID, string, interface{}) {}
