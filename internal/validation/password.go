package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	MinPasswordLength = 8
	// bcrypt молча обрезает всё, что длиннее 72 байт.
	MaxPasswordBytes = 72
)

type passwordRule struct {
	match   func(rune) bool
	message string
}

var passwordRules = []passwordRule{
	{unicode.IsUpper, "пароль должен содержать хотя бы одну заглавную букву"},
	{unicode.IsLower, "пароль должен содержать хотя бы одну строчную букву"},
	{unicode.IsDigit, "пароль должен содержать хотя бы одну цифру"},
}

// ValidatePassword проверяет пароль перед хешированием.
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("пароль обязателен")
	}
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Errorf("пароль должен быть не менее %d символов", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("пароль не должен превышать %d байт", MaxPasswordBytes)
	}

	for _, rule := range passwordRules {
		if !strings.ContainsFunc(password, rule.match) {
			return errors.New(rule.message)
		}
	}
	return nil
}
