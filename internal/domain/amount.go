package domain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExp is the decimal exponent of one minor unit (1 paisa = 0.01).
const MinorUnitExp = -2

var minorUnitsPerMajor = decimal.New(1, -MinorUnitExp)

// Amount is an exact monetary value counted in minor units.
type Amount int64

// ParseAmount parses a decimal string such as "25" or "25.50".
// Anything that is not a positive value with at most two fractional digits is rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidAmount, s)
	}
	return AmountFromDecimal(d)
}

// ParseAmountJSON accepts either a JSON number or a JSON string holding a number.
func ParseAmountJSON(raw []byte) (Amount, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	return ParseAmount(strings.Trim(string(raw), `"`))
}

// AmountFromDecimal converts d to minor units.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %s is not positive", ErrInvalidAmount, d.String())
	}
	minor := d.Mul(minorUnitsPerMajor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, d.String(), -MinorUnitExp)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Amount(minor.IntPart()), nil
}

func (a Amount) IsPositive() bool {
	return a > 0
}

// Decimal returns the value in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), MinorUnitExp)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(-MinorUnitExp)
}

// MarshalJSON renders the amount as a JSON number with two fractional digits.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts the same forms as ParseAmountJSON, plus zero.
func (a *Amount) UnmarshalJSON(raw []byte) error {
	trimmed := strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %q is not numeric", ErrInvalidAmount, trimmed)
	}
	if d.IsZero() {
		*a = 0
		return nil
	}
	if d.IsNegative() {
		// Balances and stored amounts are never negative.
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d.String())
	}
	parsed, err := AmountFromDecimal(d)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
