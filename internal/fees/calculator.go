package fees

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// TransactionKind selects the tier table used for a fee calculation.
type TransactionKind string

const (
	KindGeneric    TransactionKind = "generic"
	KindWithdrawal TransactionKind = "withdrawal"
	KindDeposit    TransactionKind = "deposit"
	KindInvestment TransactionKind = "investment"
)

// ErrInvalidAmount is returned for non-positive amounts. The percentage
// re-derivation after minimum-fee clamping divides by the amount, so zero is
// rejected up front instead of producing NaN downstream.
var ErrInvalidAmount = errors.New("fees: amount must be positive")

// FeeCalculation is the full breakdown returned to callers. FeePercentage is
// always consistent with Fee, including after minimum-fee clamping.
type FeeCalculation struct {
	Amount        float64 `json:"amount"`
	Fee           float64 `json:"fee"`
	FeePercentage float64 `json:"feePercentage"`
	Total         float64 `json:"total"`
	Currency      string  `json:"currency"`
}

// tier maps an exclusive upper amount bound to a percentage. Bounds are in the
// same scale as the transaction amount.
type tier struct {
	upperBound float64
	percentage float64
}

// Tier tables per transaction kind. The zero upper bound marks the open-ended
// top band.
var tierTables = map[TransactionKind][]tier{
	KindGeneric: {
		{upperBound: 100000, percentage: 10},
		{upperBound: 500000, percentage: 7.5},
		{upperBound: 0, percentage: 5},
	},
	KindWithdrawal: {
		{upperBound: 100000, percentage: 10},
		{upperBound: 500000, percentage: 7.5},
		{upperBound: 0, percentage: 5},
	},
	KindDeposit: {
		{upperBound: 100000, percentage: 7},
		{upperBound: 500000, percentage: 5},
		{upperBound: 0, percentage: 3},
	},
	KindInvestment: {
		{upperBound: 100000, percentage: 8},
		{upperBound: 500000, percentage: 6},
		{upperBound: 0, percentage: 5},
	},
}

// Minimum fees per currency, in that currency's own scale.
var minimumFees = map[string]float64{
	"GNF": 500,
	"USD": 0.50,
	"EUR": 0.50,
}

// Calculate returns the fee breakdown for amount of the given kind and
// currency. Unknown kinds fall back to the generic table; unknown currencies
// carry no minimum fee.
func Calculate(amount float64, kind TransactionKind, currency string) (FeeCalculation, error) {
	if amount <= 0 {
		return FeeCalculation{}, fmt.Errorf("%w: got %v", ErrInvalidAmount, amount)
	}

	table, ok := tierTables[kind]
	if !ok {
		table = tierTables[KindGeneric]
	}

	percentage := lookupPercentage(table, amount)
	fee := amount * percentage / 100

	currency = strings.ToUpper(currency)
	if minFee, ok := minimumFees[currency]; ok && fee < minFee {
		fee = minFee
		percentage = fee / amount * 100
	}

	fee = round2(fee)
	return FeeCalculation{
		Amount:        amount,
		Fee:           fee,
		FeePercentage: round2(percentage),
		Total:         amount + fee,
		Currency:      currency,
	}, nil
}

// MinimumFee returns the minimum fee for currency, or zero when the currency
// carries none.
func MinimumFee(currency string) float64 {
	return minimumFees[strings.ToUpper(currency)]
}

func lookupPercentage(table []tier, amount float64) float64 {
	for _, t := range table {
		if t.upperBound == 0 || amount < t.upperBound {
			return t.percentage
		}
	}
	return table[len(table)-1].percentage
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
