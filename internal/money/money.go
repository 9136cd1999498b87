// Package money provides a fixed-point currency amount stored as integer cents.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a currency value in minor units (cents).
type Amount int64

// Zero is the empty amount.
const Zero Amount = 0

// Parse reads a decimal string such as "19.99" and rounds it to cents.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// FromDecimal rounds d half away from zero to two places and converts it to cents.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	cents := d.Round(2).Shift(2).BigInt()
	if !cents.IsInt64() {
		return 0, fmt.Errorf("amount %s out of range", d.String())
	}
	return Amount(cents.Int64()), nil
}

// Cents builds an Amount from minor units.
func Cents(c int64) Amount {
	return Amount(c)
}

// Decimal returns the exact decimal representation of a.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// MulRate multiplies a by rate and rounds the product to cents.
func (a Amount) MulRate(rate decimal.Decimal) Amount {
	// the product of an int64 cent value and a rate below one always fits
	out, _ := FromDecimal(a.Decimal().Mul(rate))
	return out
}

// IsPositive reports whether a is greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// String renders a with exactly two decimals.
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// MarshalJSON renders the amount as a quoted fixed-point string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(s)
	}
	parsed, err := Parse(string(raw))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
