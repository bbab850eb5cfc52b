package valueobject

import (
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
)

// minorUnitExp: провайдер принимает суммы в копейках/кобо.
const minorUnitExp = 2

var maxAmount = decimal.NewFromInt(100_000_000)

// NewAmount проверяет сумму в основных единицах валюты.
func NewAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperror.New(apperror.ErrCodeValidation, "сумма должна быть положительной")
	}
	if amount.GreaterThan(maxAmount) {
		return decimal.Zero, apperror.New(apperror.ErrCodeValidation, "сумма превышает допустимый максимум")
	}
	if amount.Exponent() < -minorUnitExp && !amount.Equal(amount.Round(minorUnitExp)) {
		return decimal.Zero, apperror.New(apperror.ErrCodeValidation, "сумма может содержать не более двух знаков после запятой")
	}
	return amount.Round(minorUnitExp), nil
}

// ToMinorUnits переводит сумму в целые минимальные единицы (50.25 -> 5025).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(minorUnitExp).Round(0).IntPart()
}

// FromMinorUnits переводит минимальные единицы обратно в основные.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorUnitExp)
}
