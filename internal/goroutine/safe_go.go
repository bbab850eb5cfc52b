package goroutine

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errand-backend/internal/logger"
)

// RecoveryHandler обрабатывает panic в горутинах
type RecoveryHandler struct {
	log func() *logrus.Entry
}

// NewRecoveryHandler создает обработчик, пишущий в переданный логгер.
func NewRecoveryHandler(entry *logrus.Entry) *RecoveryHandler {
	return &RecoveryHandler{log: func() *logrus.Entry { return entry }}
}

// SafeGo запускает горутину с обработкой panic
func (rh *RecoveryHandler) SafeGo(fn func()) {
	go func() {
		defer rh.recover()
		fn()
	}()
}

func (rh *RecoveryHandler) recover() {
	if r := recover(); r != nil {
		rh.report(r)
	}
}

func (rh *RecoveryHandler) report(r interface{}) {
	rh.log().WithFields(logrus.Fields{
		"panic": r,
		"stack": string(debug.Stack()),
	}).Error("goroutine: panic перехвачен")
}

// DefaultRecoveryHandler пишет в глобальный логгер на момент паники,
// поэтому переинициализация logger.Init подхватывается автоматически.
var DefaultRecoveryHandler = &RecoveryHandler{log: func() *logrus.Entry { return logger.Component("goroutine") }}

// SafeGo - упрощенная функция для запуска безопасной горутины
func SafeGo(fn func()) {
	DefaultRecoveryHandler.SafeGo(fn)
}
