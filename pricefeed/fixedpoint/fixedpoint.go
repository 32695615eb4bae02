package fixedpoint

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned by Div when the divisor has a zero magnitude.
var ErrDivisionByZero = errors.New("fixedpoint: division by zero")

// Amount is an arbitrary-precision value scaled by a power of ten:
// value = magnitude / 10^scale. Amounts are immutable; every operation
// returns a new Amount and never mutates the operands.
type Amount struct {
	mag   *big.Int
	scale uint32
}

// New returns an Amount with the given magnitude and scale. The magnitude
// is copied, so the caller keeps ownership of mag.
func New(mag *big.Int, scale uint32) Amount {
	if mag == nil {
		return Zero(scale)
	}
	return Amount{mag: new(big.Int).Set(mag), scale: scale}
}

// NewFromInt64 returns an Amount holding v at the given scale.
func NewFromInt64(v int64, scale uint32) Amount {
	return Amount{mag: big.NewInt(v), scale: scale}
}

// Zero returns the zero-magnitude sentinel at the given scale.
func Zero(scale uint32) Amount {
	return Amount{mag: new(big.Int), scale: scale}
}

// FromDecimal converts a decimal value to an Amount at the target scale,
// truncating toward zero any digits below 10^-scale.
func FromDecimal(d decimal.Decimal, scale uint32) Amount {
	return Amount{mag: d.Shift(int32(scale)).Truncate(0).BigInt(), scale: scale}
}

// Parse parses a decimal string (e.g. "2.5") into an Amount at the target
// scale. Parsing goes through decimal string arithmetic so the result never
// inherits binary floating-point rounding.
func Parse(s string, scale uint32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, errors.Wrapf(err, "failed to parse decimal %q", s)
	}
	return FromDecimal(d, scale), nil
}

// Magnitude returns a copy of the scaled integer magnitude.
func (a Amount) Magnitude() *big.Int {
	if a.mag == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.mag)
}

// Scale returns the power-of-ten exponent the magnitude is scaled by.
func (a Amount) Scale() uint32 {
	return a.scale
}

// IsZero reports whether the amount is the zero sentinel.
func (a Amount) IsZero() bool {
	return a.mag == nil || a.mag.Sign() == 0
}

// Rescale returns the amount converted to the target scale. Scaling up is
// exact. Scaling down truncates toward zero: the digits below the target
// scale are lost and are NOT recovered by scaling back up.
func (a Amount) Rescale(target uint32) Amount {
	if a.mag == nil {
		return Zero(target)
	}
	if target == a.scale {
		return New(a.mag, a.scale)
	}
	if target > a.scale {
		shift := pow10(int64(target - a.scale))
		return Amount{mag: new(big.Int).Mul(a.mag, shift), scale: target}
	}
	shift := pow10(int64(a.scale - target))
	return Amount{mag: new(big.Int).Quo(a.mag, shift), scale: target}
}

// Mul multiplies two amounts: magnitudes multiply, scales add.
func (a Amount) Mul(b Amount) Amount {
	return Amount{
		mag:   new(big.Int).Mul(a.Magnitude(), b.Magnitude()),
		scale: a.scale + b.scale,
	}
}

// Div divides a by the value of b, keeping the receiver's scale:
// result magnitude = a.mag * 10^b.scale / b.mag, truncated toward zero.
// Returns ErrDivisionByZero when b has a zero magnitude.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.IsZero() {
		return Amount{}, ErrDivisionByZero
	}

	num := new(big.Int).Mul(a.Magnitude(), pow10(int64(b.scale)))
	return Amount{mag: num.Quo(num, b.mag), scale: a.scale}, nil
}

// Equal reports whether two amounts have identical magnitude and scale.
func (a Amount) Equal(b Amount) bool {
	return a.scale == b.scale && a.Magnitude().Cmp(b.Magnitude()) == 0
}

// Decimal returns the amount as a shopspring decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.Magnitude(), -int32(a.scale))
}

// String renders the amount as a plain decimal string, e.g. "2.5".
func (a Amount) String() string {
	return a.Decimal().String()
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
