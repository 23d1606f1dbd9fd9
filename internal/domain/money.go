package domain

import (
	"fmt"
	"math/big"
)

// Money is a fixed-point decimal with two fractional digits, backed by
// *big.Rat so intermediate sums (e.g. summing account values across a
// record) stay exact until Round2 is applied for storage or comparison.
// This mirrors the teacher's own *big.Rat Amount field on TransactionRow,
// generalized into a named type with explicit rounding.
type Money struct {
	r *big.Rat
}

var hundred = big.NewRat(100, 1)

// ZeroMoney returns the additive identity.
func ZeroMoney() Money { return Money{r: new(big.Rat)} }

// NewMoneyFromFloat builds a Money from a float64, as decoded from JSON.
// The value is not rounded until Round2 is called.
func NewMoneyFromFloat(f float64) Money {
	r := new(big.Rat)
	r.SetFloat64(f)
	if r == nil {
		return ZeroMoney()
	}
	return Money{r: r}
}

// ParseMoney parses a decimal string exactly, avoiding the float64
// round-trip in NewMoneyFromFloat.
func ParseMoney(s string) (Money, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Money{}, fmt.Errorf("apperr: invalid decimal %q", s)
	}
	return Money{r: r}, nil
}

func (m Money) rat() *big.Rat {
	if m.r == nil {
		return new(big.Rat)
	}
	return m.r
}

// Add returns m + other, unrounded.
func (m Money) Add(other Money) Money {
	return Money{r: new(big.Rat).Add(m.rat(), other.rat())}
}

// Sub returns m - other, unrounded.
func (m Money) Sub(other Money) Money {
	return Money{r: new(big.Rat).Sub(m.rat(), other.rat())}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{r: new(big.Rat).Neg(m.rat())}
}

// Abs returns |m|.
func (m Money) Abs() Money {
	if m.Sign() < 0 {
		return m.Neg()
	}
	return m
}

// Cmp compares m to other: -1, 0, or 1.
func (m Money) Cmp(other Money) int {
	return m.rat().Cmp(other.rat())
}

// Sign returns -1, 0, or 1.
func (m Money) Sign() int {
	return m.rat().Sign()
}

// IsZero reports whether m is exactly zero.
func (m Money) IsZero() bool {
	return m.rat().Sign() == 0
}

// Float64 returns the nearest float64, for cases (JSON API responses,
// z-score-style computations) where exactness no longer matters.
func (m Money) Float64() float64 {
	f, _ := m.rat().Float64()
	return f
}

// Round2 rounds to two fractional digits using round-half-to-even, per
// SPEC_FULL.md's ambient-stack decimal requirement.
func (m Money) Round2() Money {
	scaled := new(big.Rat).Mul(m.rat(), hundred)
	num := scaled.Num()
	den := scaled.Denom()
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		twiceRem := new(big.Int).Mul(rem, big.NewInt(2))
		twiceRem.Abs(twiceRem)
		cmp := twiceRem.Cmp(den)
		roundUp := false
		switch {
		case cmp > 0:
			roundUp = true
		case cmp == 0:
			// half-to-even: round up only if q is odd
			roundUp = q.Bit(0) == 1
		}
		if roundUp {
			if num.Sign() < 0 {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
	}
	return Money{r: new(big.Rat).SetFrac(q, big.NewInt(100))}
}

// String renders the rounded value with exactly two fractional digits and
// an explicit sign for negatives, matching the teacher's FloatString(2)/
// "%.2f" convention.
func (m Money) String() string {
	rounded := m.Round2()
	f, _ := rounded.rat().Float64()
	return fmt.Sprintf("%.2f", f)
}

// MarshalJSON renders Money as a JSON number string is avoided in favor of
// a bare numeric literal so API responses match spec.md's examples
// (revenue:30000, not revenue:"30000.00").
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" || s == "" {
		*m = ZeroMoney()
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// AbsDiff returns |m - other|, useful for tolerance checks.
func AbsDiff(a, b Money) Money {
	return a.Sub(b).Abs()
}

// Rat exposes the underlying *big.Rat for storage layers (e.g. BigQuery's
// NUMERIC columns, which the teacher's own TransactionRow.Amount already
// binds to *big.Rat) that need to write it natively.
func (m Money) Rat() *big.Rat {
	return new(big.Rat).Set(m.rat())
}

// MoneyFromRat wraps an already-parsed *big.Rat, e.g. one read back from a
// BigQuery NUMERIC column.
func MoneyFromRat(r *big.Rat) Money {
	if r == nil {
		return ZeroMoney()
	}
	return Money{r: new(big.Rat).Set(r)}
}
