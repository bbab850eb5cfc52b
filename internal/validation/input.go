package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Константы валидации
const (
	MinUsernameLength    = 3
	MaxUsernameLength    = 30
	MaxErrandTitleLength = 100
	MaxDescriptionLength = 5000
	MaxFeedbackLength    = 2000
	MaxPersonNameLength  = 100
	MinRating            = 1
	MaxRating            = 5
	AccountNumberLength  = 10 // NUBAN
)

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	usernameRegex    = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	digitsRegex      = regexp.MustCompile(`^[0-9]+$`)
	phoneRegex       = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart, domainPart := parts[0], parts[1]
	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}
	if !emailLocalRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}
	if unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateErrandTitle проверяет заголовок поручения.
func ValidateErrandTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("заголовок поручения обязателен")
	}
	return ValidateLength("заголовок поручения", title, 1, MaxErrandTitleLength)
}

// ValidateErrandDescription проверяет описание поручения. Пустое описание допустимо.
func ValidateErrandDescription(description string) error {
	return ValidateLength("описание поручения", strings.TrimSpace(description), 0, MaxDescriptionLength)
}

// ValidateRating проверяет оценку отзыва.
func ValidateRating(rating int) error {
	if rating == 0 {
		return fmt.Errorf("оценка обязательна")
	}
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("оценка должна быть от %d до %d", MinRating, MaxRating)
	}
	return nil
}

// ValidateFeedback проверяет текст отзыва.
func ValidateFeedback(feedback *string) error {
	if feedback == nil {
		return nil
	}
	return ValidateLength("отзыв", strings.TrimSpace(*feedback), 0, MaxFeedbackLength)
}

// ValidatePersonName проверяет имя или фамилию получателя выплат.
func ValidatePersonName(fieldName, name string) error {
	if err := ValidateNonEmpty(fieldName, name); err != nil {
		return err
	}
	return ValidateLength(fieldName, strings.TrimSpace(name), 1, MaxPersonNameLength)
}

// ValidateAccountNumber проверяет номер банковского счёта (10 цифр).
func ValidateAccountNumber(number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return fmt.Errorf("номер счёта обязателен")
	}
	if len(number) != AccountNumberLength || !digitsRegex.MatchString(number) {
		return fmt.Errorf("номер счёта должен состоять из %d цифр", AccountNumberLength)
	}
	return nil
}

// ValidateBankCode проверяет код банка.
func ValidateBankCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("код банка обязателен")
	}
	if len(code) > 10 || !digitsRegex.MatchString(code) {
		return fmt.Errorf("код банка должен состоять из цифр")
	}
	return nil
}

// ValidatePhone проверяет телефон. Пустой телефон допустим.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	if !phoneRegex.MatchString(strings.ReplaceAll(phone, " ", "")) {
		return fmt.Errorf("некорректный номер телефона")
	}
	return nil
}
