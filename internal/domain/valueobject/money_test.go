package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
)

func TestNewAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "целое", input: "15", want: "15"},
		{name: "копейки", input: "50.25", want: "50.25"},
		{name: "лишние нули", input: "10.500", want: "10.5"},
		{name: "ноль", input: "0", wantErr: true},
		{name: "отрицательная", input: "-1", wantErr: true},
		{name: "три знака", input: "1.001", wantErr: true},
		{name: "больше максимума", input: "100000000.01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAmount(decimal.RequireFromString(tt.input))
			if tt.wantErr {
				assert.True(t, apperror.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(5025), ToMinorUnits(decimal.RequireFromString("50.25")))
	assert.Equal(t, int64(1500), ToMinorUnits(decimal.NewFromInt(15)))
	assert.True(t, decimal.RequireFromString("50.25").Equal(FromMinorUnits(5025)))

	amount := decimal.RequireFromString("1234.56")
	assert.True(t, amount.Equal(FromMinorUnits(ToMinorUnits(amount))))
}
