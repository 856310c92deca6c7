// Package calc converts a transaction amount and a commission rate into a
// rounded monetary amount. Pure and deterministic so repeated engine runs
// reproduce identical results.
package calc

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveAmount = errors.New("non_positive_amount")
	ErrRateOutOfRange    = errors.New("rate_out_of_range")
)

var one = decimal.NewFromInt(1)

// Calculate returns amount * rate rounded half-to-even to 2 decimal places.
// Banker's rounding keeps results reproducible across platforms. A zero
// result is valid: a qualifying ancestor on a 0% rate still yields an
// auditable zero-amount record.
func Calculate(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, ErrNonPositiveAmount
	}
	if rate.Sign() < 0 || rate.GreaterThan(one) {
		return decimal.Zero, ErrRateOutOfRange
	}
	return amount.Mul(rate).RoundBank(2), nil
}
