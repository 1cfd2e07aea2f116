package fixedpoint

import (
	"errors"
	"math/big"
)

// Resolution is the number of fractional bits in a UQ112x112 value.
const Resolution = 112

var (
	// Q112 is 1.0 in UQ112x112.
	Q112 = new(big.Int).Lsh(big.NewInt(1), Resolution)
	// MaxUint112 bounds every encodable numerator and every pool reserve.
	MaxUint112 = new(big.Int).Sub(Q112, big.NewInt(1))
)

var (
	ErrOverflow       = errors.New("overflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Encode scales an unsigned integer into the fractional field (y * 2^112).
func Encode(y *big.Int) (*big.Int, error) {
	if y == nil || y.Sign() < 0 || y.Cmp(MaxUint112) > 0 {
		return nil, ErrOverflow
	}
	return new(big.Int).Lsh(y, Resolution), nil
}

// Div divides an encoded value by an unsigned integer, truncating.
func Div(x, y *big.Int) (*big.Int, error) {
	if y == nil || y.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if x == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Quo(x, y), nil
}

// Decode drops the fractional component. Floor semantics for non-negative input.
func Decode(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Rsh(x, Resolution)
}

// Ratio returns encode(numerator)/denominator, the instantaneous price used by
// the cumulative accumulators.
func Ratio(numerator, denominator *big.Int) (*big.Int, error) {
	encoded, err := Encode(numerator)
	if err != nil {
		return nil, err
	}
	return Div(encoded, denominator)
}
