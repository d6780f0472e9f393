// Package fixed holds the decimal arithmetic shared by discovery and the order
// engine. Every quotient is truncated toward zero at Places fractional digits so
// that a computed price never overstates what the pool can pay.
package fixed

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the fractional precision used for prices and amounts.
const Places = 18

// NativeDecimals is the decimals of the native coin and of the counter assets.
const NativeDecimals = 18

var (
	hundred  = decimal.NewFromInt(100)
	tinyPct  = decimal.RequireFromString("0.01")
	negTiny  = tinyPct.Neg()
	weiScale = decimal.New(1, NativeDecimals)
)

// Hundred returns 100.
func Hundred() decimal.Decimal { return hundred }

// Div returns a/b truncated to Places digits. Division by zero returns zero.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	q, _ := a.QuoRem(b, Places)
	return q
}

// Trunc drops digits beyond Places without rounding.
func Trunc(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Places)
}

// FromRaw converts integer base units into a decimal amount.
func FromRaw(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// ToRaw converts a decimal amount into integer base units, truncating any
// remainder below one unit. Negative amounts become zero.
func ToRaw(d decimal.Decimal, decimals int32) *big.Int {
	if d.Sign() <= 0 {
		return new(big.Int)
	}
	return d.Shift(decimals).BigInt()
}

// Wei converts a native-denominated amount into wei.
func Wei(d decimal.Decimal) *big.Int {
	return ToRaw(d, NativeDecimals)
}

// FromWei converts wei into a native-denominated amount.
func FromWei(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, 0).Div(weiScale)
}

// Gwei converts a gas price in gwei into wei.
func Gwei(gwei decimal.Decimal) *big.Int {
	return ToRaw(gwei, 9)
}

// Pct returns amount*pct/100 truncated to places digits.
func Pct(amount, pct decimal.Decimal, places int32) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Truncate(places)
}

// AfterFee deducts a swap fee percentage from amount. The fee itself is
// truncated to places digits so the remainder is never understated.
func AfterFee(amount, feePct decimal.Decimal, places int32) decimal.Decimal {
	return amount.Sub(Pct(amount, feePct, places))
}

// WithSlippage applies the tolerated slippage to a nominal output. A tolerance
// of 100% or more accepts any output and returns zero.
func WithSlippage(nominal, slippagePct decimal.Decimal) decimal.Decimal {
	if slippagePct.GreaterThanOrEqual(hundred) {
		return decimal.Zero
	}
	return nominal.Mul(hundred.Sub(slippagePct)).Div(hundred)
}

// FormatSlippage renders a realized slippage percentage at 2 dp. Nonzero
// values within 0.01 of zero are reported as a bound rather than rounded away.
func FormatSlippage(pct decimal.Decimal) string {
	switch {
	case pct.IsPositive() && pct.LessThan(tinyPct):
		return "< 0.01"
	case pct.IsNegative() && pct.GreaterThan(negTiny):
		return "> -0.01"
	default:
		return pct.Round(2).String()
	}
}

// Readable renders d with at most places fractional digits and no trailing
// zeros.
func Readable(d decimal.Decimal, places int32) string {
	s := d.Truncate(places).StringFixed(places)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MinBig returns the smaller of a and b as a fresh value.
func MinBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
