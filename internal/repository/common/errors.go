package common

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// ErrInvalidInput возвращается, когда запись нарушает ограничения таблицы
// или недопустима в текущем состоянии.
var ErrInvalidInput = errors.New("invalid input")

// IsUniqueViolation сообщает, что запрос нарушил уникальный индекс.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}

// IsConstraintViolation сообщает о любом нарушении ограничений целостности (CHECK, FK, UNIQUE).
func IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pgerrcode.IsIntegrityConstraintViolation(string(pqErr.Code))
}

// ConstraintName возвращает имя нарушенного ограничения, если оно известно.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
