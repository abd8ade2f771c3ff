// Package money converts between stored minor units (pence) and the decimal
// pounds used at the API boundary.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ErrNegative is returned when an amount below zero is converted.
var ErrNegative = errors.New("amount must not be negative")

// ToCents converts pounds to pence, rejecting sub-penny precision.
func ToCents(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegative
	}
	cents := amount.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", amount.String())
	}
	return cents.IntPart(), nil
}

// FromCents converts pence to pounds.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FromCentsPtr is FromCents for nullable columns.
func FromCentsPtr(cents *int64) *decimal.Decimal {
	if cents == nil {
		return nil
	}
	d := FromCents(*cents)
	return &d
}

// FormatGBP renders pence as "£45" or "£59.99".
func FormatGBP(cents int64) string {
	d := FromCents(cents)
	if d.Equal(d.Truncate(0)) {
		return "£" + d.StringFixed(0)
	}
	return "£" + d.StringFixed(2)
}

// Pounds is a decimal amount that marshals as a bare JSON number (45, 59.99)
// and accepts either a number or a quoted string.
type Pounds struct {
	decimal.Decimal
}

func PoundsFromCents(cents int64) Pounds {
	return Pounds{FromCents(cents)}
}

// PoundsFromCentsPtr returns nil for nil or zero cents.
func PoundsFromCentsPtr(cents *int64) *Pounds {
	if cents == nil || *cents == 0 {
		return nil
	}
	p := PoundsFromCents(*cents)
	return &p
}

func (p Pounds) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal.String()), nil
}

func (p *Pounds) UnmarshalJSON(data []byte) error {
	return p.Decimal.UnmarshalJSON(data)
}

// Cents converts to pence; see ToCents.
func (p Pounds) Cents() (int64, error) {
	return ToCents(p.Decimal)
}
