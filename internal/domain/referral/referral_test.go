package referral

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func intPtr(v int) *int { return &v }

func TestCode_Check(t *testing.T) {
	tests := []struct {
		name    string
		code    Code
		wantErr error
	}{
		{name: "active unlimited", code: Code{IsActive: true}},
		{name: "active with uses left", code: Code{IsActive: true, MaxUses: intPtr(3), CurrentUses: 2}},
		{name: "inactive", code: Code{IsActive: false}, wantErr: ErrCodeInactive},
		{name: "exhausted", code: Code{IsActive: true, MaxUses: intPtr(1), CurrentUses: 1}, wantErr: ErrCodeExhausted},
		{name: "inactive wins over exhausted", code: Code{MaxUses: intPtr(1), CurrentUses: 1}, wantErr: ErrCodeInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.code.Check()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, tt.code.IsAvailable())
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.code.IsAvailable())
		})
	}
}

func TestCode_Discount(t *testing.T) {
	tests := []struct {
		name     string
		pct      string
		subtotal string
		want     string
	}{
		{name: "ten percent", pct: "10", subtotal: "1000000", want: "100000"},
		{name: "rounds to cents", pct: "15", subtotal: "33.33", want: "5"},
		{name: "zero subtotal", pct: "50", subtotal: "0", want: "0"},
		{name: "full discount", pct: "100", subtotal: "250000", want: "250000"},
		{name: "clamped above hundred", pct: "150", subtotal: "250000", want: "250000"},
		{name: "zero percent", pct: "0", subtotal: "250000", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Code{DiscountPercentage: d(tt.pct)}
			got := c.Discount(d(tt.subtotal))
			assert.True(t, d(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestCode_Commission(t *testing.T) {
	c := Code{CommissionPercentage: d("15")}
	assert.True(t, d("150000").Equal(c.Commission(d("1000000"))))
	assert.True(t, d("1.5").Equal(c.Commission(d("10"))))
	assert.True(t, decimal.Zero.Equal(c.Commission(decimal.Zero)))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "SPRING10", Normalize("  spring10 \n"))
	assert.Equal(t, "", Normalize("   "))
}

func TestValidatePercentage(t *testing.T) {
	require.NoError(t, ValidatePercentage(d("0")))
	require.NoError(t, ValidatePercentage(d("100")))
	require.ErrorIs(t, ValidatePercentage(d("-1")), ErrInvalidPercentage)
	require.ErrorIs(t, ValidatePercentage(d("100.01")), ErrInvalidPercentage)
}

func TestReasonError(t *testing.T) {
	assert.Equal(t, ReasonInvalidCode, ReasonError(ErrCodeNotFound))
	assert.Equal(t, ReasonCodeInactive, ReasonError(ErrCodeInactive))
	assert.Equal(t, ReasonCodeExhausted, ReasonError(ErrCodeExhausted))
	assert.Equal(t, ReasonNone, ReasonError(ErrCodeTaken))
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 50 {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, GeneratedCodeLen)
		assert.True(t, ValidFormat(code), code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("ABCD"))
	assert.True(t, ValidFormat("SPRING2025"))
	assert.False(t, ValidFormat("ABC"))
	assert.False(t, ValidFormat("spring"))
	assert.False(t, ValidFormat("SPRING-10"))
}
