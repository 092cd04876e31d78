package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		name           string
		amount         float64
		kind           TransactionKind
		wantPercentage float64
	}{
		{"withdrawal below first threshold", 99999, KindWithdrawal, 10.00},
		{"withdrawal at first threshold", 100000, KindWithdrawal, 7.50},
		{"withdrawal below second threshold", 499999, KindWithdrawal, 7.50},
		{"withdrawal at second threshold", 500000, KindWithdrawal, 5.00},
		{"deposit below first threshold", 99999, KindDeposit, 7.00},
		{"deposit at first threshold", 100000, KindDeposit, 5.00},
		{"deposit at second threshold", 500000, KindDeposit, 3.00},
		{"investment below first threshold", 99999, KindInvestment, 8.00},
		{"investment at first threshold", 100000, KindInvestment, 6.00},
		{"investment at second threshold", 500000, KindInvestment, 5.00},
		{"generic top band", 1000000, KindGeneric, 5.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, err := Calculate(tt.amount, tt.kind, "GNF")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPercentage, calc.FeePercentage)
		})
	}
}

func TestFeeBreakdownConsistency(t *testing.T) {
	calc, err := Calculate(200000, KindWithdrawal, "GNF")
	require.NoError(t, err)

	assert.Equal(t, 200000.0, calc.Amount)
	assert.Equal(t, 15000.0, calc.Fee)
	assert.Equal(t, 7.5, calc.FeePercentage)
	assert.Equal(t, 215000.0, calc.Total)
	assert.Equal(t, "GNF", calc.Currency)
}

func TestMinimumFeeClamping(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		currency string
		minFee   float64
	}{
		// 10% of these amounts is below the currency minimum, so the fee
		// clamps and the displayed percentage is re-derived.
		{"GNF small withdrawal", 2000, "GNF", 500},
		{"USD small withdrawal", 3, "USD", 0.50},
		{"EUR small withdrawal", 4, "EUR", 0.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, err := Calculate(tt.amount, KindWithdrawal, tt.currency)
			require.NoError(t, err)

			assert.Equal(t, tt.minFee, calc.Fee, "fee must clamp to the currency minimum")
			wantPercentage := round2(tt.minFee / tt.amount * 100)
			assert.Equal(t, wantPercentage, calc.FeePercentage,
				"displayed percentage must be re-derived from the clamped fee")
			assert.Equal(t, tt.amount+calc.Fee, calc.Total)
		})
	}
}

func TestClampingOnlyWhenBelowMinimum(t *testing.T) {
	// 10% of 50,000 GNF is 5,000, well above the 500 GNF minimum.
	calc, err := Calculate(50000, KindWithdrawal, "GNF")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, calc.Fee)
	assert.Equal(t, 10.0, calc.FeePercentage)
}

func TestUnknownKindFallsBackToGeneric(t *testing.T) {
	generic, err := Calculate(50000, KindGeneric, "GNF")
	require.NoError(t, err)
	unknown, err := Calculate(50000, TransactionKind("payout"), "GNF")
	require.NoError(t, err)
	assert.Equal(t, generic, unknown)
}

func TestUnknownCurrencyHasNoMinimum(t *testing.T) {
	calc, err := Calculate(1, KindWithdrawal, "XOF")
	require.NoError(t, err)
	assert.Equal(t, 0.10, calc.Fee)
	assert.Equal(t, 10.0, calc.FeePercentage)
}

func TestInvalidAmountRejected(t *testing.T) {
	_, err := Calculate(0, KindDeposit, "GNF")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Calculate(-100, KindDeposit, "GNF")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCurrencyNormalization(t *testing.T) {
	calc, err := Calculate(2000, KindWithdrawal, "gnf")
	require.NoError(t, err)
	assert.Equal(t, "GNF", calc.Currency)
	assert.Equal(t, 500.0, calc.Fee)
}

func TestMinimumFee(t *testing.T) {
	assert.Equal(t, 500.0, MinimumFee("GNF"))
	assert.Equal(t, 0.50, MinimumFee("usd"))
	assert.Equal(t, 0.0, MinimumFee("XOF"))
}
