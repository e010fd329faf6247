// Package amount holds exact on-chain quantities: integer base units tagged with the
// precision needed to show them as decimals.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when an input cannot be read as a non-negative number.
var ErrInvalidAmount = errors.New("invalid amount")

// billionthsExponent is the gwei-like scale used for fee quantities.
const billionthsExponent = 9

// Amount is a token quantity held as an exact integer of base units.
// The human-readable value is always derived from it.
type Amount struct {
	base     *big.Int
	decimals int32
}

// FromBaseUnits wraps an integer amount of base units (wei for 18-decimal coins).
func FromBaseUnits(value *big.Int, decimals int32) Amount {
	base := new(big.Int)
	if value != nil {
		base.Set(value)
	}
	return Amount{base: base, decimals: decimals}
}

// FromUint64 is FromBaseUnits for small integers such as gas prices returned by nodes.
func FromUint64(value uint64, decimals int32) Amount {
	return Amount{base: new(big.Int).SetUint64(value), decimals: decimals}
}

// FromDecimal parses a human-readable value ("0.00002", "1", "12.5") and scales it to
// base units, truncating digits beyond the precision.
func FromDecimal(value string, decimals int32) (Amount, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Amount{}, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return FromDecimalValue(d, decimals)
}

// FromDecimalValue scales an already parsed decimal.
func FromDecimalValue(value decimal.Decimal, decimals int32) (Amount, error) {
	if decimals < 0 {
		return Amount{}, fmt.Errorf("%w: negative precision %d", ErrInvalidAmount, decimals)
	}
	if value.IsNegative() {
		return Amount{}, fmt.Errorf("%w: negative value %s", ErrInvalidAmount, value.String())
	}
	base := value.Shift(decimals).Truncate(0).BigInt()
	return Amount{base: base, decimals: decimals}, nil
}

// BaseUnits returns a copy of the integer amount.
func (a Amount) BaseUnits() *big.Int {
	if a.base == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.base)
}

// Decimals returns the precision the amount was built with.
func (a Amount) Decimals() int32 {
	return a.decimals
}

// Decimal returns the human-readable value.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.BaseUnits(), -a.decimals)
}

// Billionths returns the amount expressed in 10^-9 units of the coin, i.e. gwei for
// an 18-decimal coin. Digits below that precision are truncated.
func (a Amount) Billionths() *big.Int {
	base := a.BaseUnits()
	shift := int64(a.decimals) - billionthsExponent
	switch {
	case shift > 0:
		return base.Quo(base, pow10(shift))
	case shift < 0:
		return base.Mul(base, pow10(-shift))
	default:
		return base
	}
}

// Add returns a+b. Both operands must share a precision.
func (a Amount) Add(b Amount) Amount {
	return Amount{base: new(big.Int).Add(a.BaseUnits(), b.BaseUnits()), decimals: a.decimals}
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.base == nil || a.base.Sign() == 0
}

// String renders the decimal form, e.g. "0.00002".
func (a Amount) String() string {
	return a.Decimal().String()
}

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}
