package discovery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/fixed"
)

// Quote is a token price read from its pool.
type Quote struct {
	USD            decimal.Decimal
	Native         decimal.Decimal
	TokenReserve   decimal.Decimal
	CounterReserve decimal.Decimal
}

// In returns the price in the unit of a pay currency: native for BNB, USD for
// the stable coins.
func (q Quote) In(native bool) decimal.Decimal {
	if native {
		return q.Native
	}
	return q.USD
}

// ratioPlaces is the working precision of the reserve ratio before the final
// truncation.
const ratioPlaces = 36

// Price computes a token's USD and native price from raw pool reserves.
// Counter reserves carry 18 decimals, token reserves tokenDecimals. Both
// prices are truncated to 18 places, never rounded up.
func Price(r chain.Reserves, reversed bool, tokenDecimals uint8, counterNative bool, nativeUSD decimal.Decimal) Quote {
	counterRaw, tokenRaw := r.Reserve1, r.Reserve0
	if reversed {
		counterRaw, tokenRaw = r.Reserve0, r.Reserve1
	}
	q := Quote{
		USD:            decimal.Zero,
		Native:         decimal.Zero,
		TokenReserve:   decimal.NewFromBigInt(orZero(tokenRaw), 0),
		CounterReserve: decimal.NewFromBigInt(orZero(counterRaw), 0),
	}
	counter := fixed.FromRaw(counterRaw, fixed.NativeDecimals)
	token := fixed.FromRaw(tokenRaw, int32(tokenDecimals))
	if token.IsZero() {
		return q
	}
	ratio, _ := counter.QuoRem(token, ratioPlaces)
	if counterNative {
		q.Native = fixed.Trunc(ratio)
		q.USD = fixed.Trunc(nativeUSD.Mul(ratio))
		return q
	}
	q.USD = fixed.Trunc(ratio)
	if nativeUSD.IsPositive() {
		nat, _ := ratio.QuoRem(nativeUSD, ratioPlaces)
		q.Native = fixed.Trunc(nat)
	}
	return q
}

// Quote reads fresh reserves for the discovered pool and prices the token.
func (r *Result) Quote(ctx context.Context, reader chain.Reader) (Quote, error) {
	res, err := reader.Reserves(ctx, r.Pair.Pair)
	if err != nil {
		return Quote{}, fmt.Errorf("price %s: %w", r.Meta.Symbol, err)
	}
	return Price(res, r.Pair.Reversed, r.Meta.Decimals, r.Pair.Counter.Native, r.NativeUSD), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
