package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Commission splits a gross amount into platform commission and provider
// payout. Amounts are integer minor units; the commission is rounded half up.
type Commission struct {
	rate decimal.Decimal
}

func NewCommission(rate string) (Commission, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return Commission{}, fmt.Errorf("parse commission rate %q: %w", rate, err)
	}
	if r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Commission{}, fmt.Errorf("commission rate %s out of range [0, 1)", r)
	}
	return Commission{rate: r}, nil
}

func (c Commission) Rate() decimal.Decimal { return c.rate }

func (c Commission) Split(amount int64) (commission, payout int64) {
	commission = decimal.NewFromInt(amount).Mul(c.rate).Round(0).IntPart()
	return commission, amount - commission
}
