package money

import (
	"errors"
	"math"
	"testing"

	"github.com/alfredjeanlab/budgets/internal/model"
)

func TestAdd_Overflow(t *testing.T) {
	if _, err := Add(math.MaxInt64, 1); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Add(math.MinInt64, -1); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if got, err := Add(100, -250); err != nil || got != -150 {
		t.Fatalf("Add(100, -250) = %d, %v", got, err)
	}
	if _, err := Sub(0, math.MinInt64); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMulDiv(t *testing.T) {
	// The product exceeds int64 but the quotient fits.
	got, err := MulDiv(math.MaxInt64, 10000, 20000)
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	if got != math.MaxInt64/2 {
		t.Errorf("MulDiv = %d, want %d", got, int64(math.MaxInt64/2))
	}

	if _, err := MulDiv(math.MaxInt64, 3, 1); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	if _, err := MulDiv(1, 1, 0); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("expected invalid parameter for zero divisor, got %v", err)
	}
	if _, err := MulDiv(-1, 1, 1); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("expected invalid parameter for negative operand, got %v", err)
	}
}

func TestDollarsToCents(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want int64
	}{
		{2.22, 222},
		{19.99, 1999},
		{0.005, 1},
		{5000, 500000},
		{0, 0},
	} {
		got, err := DollarsToCents("rpm", tc.in)
		if err != nil {
			t.Errorf("DollarsToCents(%v): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("DollarsToCents(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}

	for _, bad := range []float64{-0.01, math.NaN(), math.Inf(1)} {
		if _, err := DollarsToCents("rpm", bad); !errors.Is(err, model.ErrInvalidParameter) {
			t.Errorf("DollarsToCents(%v): expected invalid parameter, got %v", bad, err)
		}
	}
	if _, err := DollarsToCents("limit", 1e18); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestCentsToDollars(t *testing.T) {
	for _, tc := range []struct {
		in   int64
		want string
	}{
		{12345, "123.45"},
		{5, "0.05"},
		{-150, "-1.50"},
		{0, "0.00"},
	} {
		if got := CentsToDollars(tc.in); got != tc.want {
			t.Errorf("CentsToDollars(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
