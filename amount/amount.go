package amount

import (
	"errors"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Errors returned by conversions.
var (
	ErrNegative  = errors.New("amount cannot be negative")
	ErrNotFinite = errors.New("amount must be a finite number")
	ErrMalformed = errors.New("malformed amount")
	ErrOverflow  = errors.New("amount exceeds representable range")
)

var maxUnits = new(big.Int).SetUint64(math.MaxUint64)

// ToSmallestUnits returns d scaled by 10^scale.
// Sub-unit residue is truncated, never rounded.
func ToSmallestUnits(d decimal.Decimal, scale uint8) (uint64, error) {
	if d.Sign() < 0 {
		return 0, ErrNegative
	}

	units := d.Shift(int32(scale)).Truncate(0).BigInt()
	if units.Cmp(maxUnits) > 0 {
		return 0, ErrOverflow
	}

	return units.Uint64(), nil
}

// FromSmallestUnits returns units as a decimal of the given scale.
func FromSmallestUnits(units uint64, scale uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(scale))
}

// Format renders units with exactly scale fractional digits.
func Format(units uint64, scale uint8) string {
	return FromSmallestUnits(units, scale).StringFixed(int32(scale))
}

// Parse returns the decimal value of text.
func Parse(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return decimal.Zero, ErrMalformed
	}

	switch strings.ToLower(strings.TrimLeft(text, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, ErrNotFinite
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, ErrMalformed
	}
	return d, nil
}

// FromFloat converts a float amount, rejecting NaN and infinities.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, ErrNotFinite
	}
	return decimal.NewFromFloat(f), nil
}
