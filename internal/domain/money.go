package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var centsPerShilling = decimal.NewFromInt(100)

// Money is a KES amount held as integer cents.
type Money struct {
	Cents int64
}

// NewMoney creates a Money from cents.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

// ToDecimal converts cents to shillings.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Cents).Div(centsPerShilling)
}

// FromDecimal converts shillings to cents, truncating sub-cent precision.
// Amounts that do not fit in int64 cents are rejected with ErrInvalidAmount.
func FromDecimal(d decimal.Decimal) (int64, error) {
	cents := d.Mul(centsPerShilling).Truncate(0)
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s out of range: %w", d.String(), ErrInvalidAmount)
	}
	return cents.IntPart(), nil
}

// ParseKES parses a shilling amount such as "1000.00" into cents.
func ParseKES(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrInvalidAmount)
	}
	return FromDecimal(d)
}

// WholeShillings reports the amount in shillings when it has no cent part.
func (m Money) WholeShillings() (int64, bool) {
	if m.Cents%100 != 0 {
		return 0, false
	}
	return m.Cents / 100, true
}

// String returns the amount formatted as "KES 1234.50".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", Currency, m.ToDecimal().StringFixed(2))
}
