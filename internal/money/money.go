// Package money holds checked integer-cent arithmetic. Every amount is an
// int64 count of cents; operations fail with model.ErrArithmeticOverflow
// instead of wrapping.
package money

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/budgets/internal/model"
)

// BpsDenominator is the basis-point scale used for every ratio.
const BpsDenominator = 10000

func overflow(op string, a, b int64) error {
	return fmt.Errorf("%s(%d, %d): %w", op, a, b, model.ErrArithmeticOverflow)
}

// Add returns a+b, failing instead of wrapping.
func Add(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, overflow("add", a, b)
	}
	return s, nil
}

// Sub returns a-b, failing instead of wrapping.
func Sub(a, b int64) (int64, error) {
	if b == math.MinInt64 {
		return 0, overflow("sub", a, b)
	}
	return Add(a, -b)
}

// MulDiv returns floor(a*b/c) for non-negative a, b and positive c using a
// 128-bit intermediate product.
func MulDiv(a, b, c int64) (int64, error) {
	if a < 0 || b < 0 || c <= 0 {
		return 0, fmt.Errorf("MulDiv(%d, %d, %d): operands must be non-negative with positive divisor: %w",
			a, b, c, model.ErrInvalidParameter)
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(c) {
		return 0, overflow("mul", a, b)
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return 0, overflow("mul", a, b)
	}
	return int64(q), nil
}

// ApplyBps scales v by bps/10000, rounding down.
func ApplyBps(v, bps int64) (int64, error) {
	return MulDiv(v, bps, BpsDenominator)
}

// DollarsToCents converts a dollar amount entered at the presentation edge
// into integer cents, rounding half away from zero. Negative and non-finite
// amounts are rejected.
func DollarsToCents(name string, dollars float64) (int64, error) {
	if math.IsNaN(dollars) || math.IsInf(dollars, 0) {
		return 0, &model.ParameterError{Name: name, Reason: "must be a finite number"}
	}
	if dollars < 0 {
		return 0, &model.ParameterError{Name: name, Reason: fmt.Sprintf("must be non-negative, got %v", dollars)}
	}
	cents := decimal.NewFromFloat(dollars).Shift(2).Round(0)
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%s: %v dollars: %w", name, dollars, model.ErrArithmeticOverflow)
	}
	return cents.IntPart(), nil
}

// CentsToDollars renders cents as a fixed two-decimal dollar string.
func CentsToDollars(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Mul128 returns the 128-bit product of two non-negative values.
func Mul128(a, b int64) (hi, lo uint64) {
	return bits.Mul64(uint64(a), uint64(b))
}

// DivMod128 divides a 128-bit value by d. The caller guarantees hi < d.
func DivMod128(hi, lo, d uint64) (q, r uint64) {
	return bits.Div64(hi, lo, d)
}
