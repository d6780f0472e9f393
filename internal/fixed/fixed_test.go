package fixed

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDivTruncates(t *testing.T) {
	got := Div(d("2"), d("3"))
	if want := "0.666666666666666666"; got.String() != want {
		t.Fatalf("got %s want %s", got, want)
	}
	got = Div(d("-2"), d("3"))
	if want := "-0.666666666666666666"; got.String() != want {
		t.Fatalf("got %s want %s", got, want)
	}
	if got := Div(d("1"), decimal.Zero); !got.IsZero() {
		t.Fatalf("div by zero got %s", got)
	}
}

func TestRawConversions(t *testing.T) {
	raw := new(big.Int)
	raw.SetString("1234567890000000000", 10)
	if got := FromRaw(raw, 18); got.String() != "1.23456789" {
		t.Fatalf("FromRaw got %s", got)
	}
	if got := ToRaw(d("1.5"), 6); got.String() != "1500000" {
		t.Fatalf("ToRaw got %s", got)
	}
	if got := ToRaw(d("0.0000019"), 6); got.String() != "1" {
		t.Fatalf("ToRaw truncation got %s", got)
	}
	if got := ToRaw(d("-1"), 6); got.Sign() != 0 {
		t.Fatalf("ToRaw negative got %s", got)
	}
	if got := Gwei(d("5")); got.String() != "5000000000" {
		t.Fatalf("Gwei got %s", got)
	}
}

func TestAfterFeeAndSlippage(t *testing.T) {
	if got := AfterFee(d("1"), d("0.25"), Places); got.String() != "0.9975" {
		t.Fatalf("AfterFee got %s", got)
	}
	if got := WithSlippage(d("100"), d("5")); got.String() != "95" {
		t.Fatalf("WithSlippage got %s", got)
	}
	if got := WithSlippage(d("100"), d("100")); !got.IsZero() {
		t.Fatalf("slippage 100 should accept anything, got %s", got)
	}
}

func TestFormatSlippage(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "-0.5", want: "-0.5"},
		{in: "-5.126", want: "-5.13"},
		{in: "-0.01", want: "-0.01"},
		{in: "0.004", want: "< 0.01"},
		{in: "0", want: "0"},
		{in: "-0.004", want: "> -0.01"},
		{in: "1.236", want: "1.24"},
	}
	for _, tc := range cases {
		if got := FormatSlippage(d(tc.in)); got != tc.want {
			t.Fatalf("FormatSlippage(%s) got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestReadable(t *testing.T) {
	if got := Readable(d("1.500000"), 18); got != "1.5" {
		t.Fatalf("got %q", got)
	}
	if got := Readable(d("12"), 4); got != "12" {
		t.Fatalf("got %q", got)
	}
	if got := Readable(d("0.123456789"), 4); got != "0.1234" {
		t.Fatalf("got %q", got)
	}
}
