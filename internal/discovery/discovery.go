// Package discovery picks the deepest pool for each token among the counter
// assets, builds its buy and sell paths and prices it from pool reserves.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/ethutil"
	"amm-limitbot/internal/fixed"
	"amm-limitbot/internal/model"
)

var (
	ErrNoLiquidity        = errors.New("no liquidity found")
	ErrAmbiguousLiquidity = errors.New("several pairs share the highest liquidity")
)

// PairInfo is the pool a token trades through and the routes built on it.
type PairInfo struct {
	Counter dex.Asset
	Pair    common.Address
	// Reversed is set when the counter asset is token0 of the pool.
	Reversed     bool
	BuyPath      []common.Address
	SellPath     []common.Address
	BuyRoute     string
	SellRoute    string
	LiquidityUSD decimal.Decimal
}

// Result is one token's discovery outcome for an iteration.
type Result struct {
	Token     model.TokenConfig
	Address   common.Address
	Exchange  dex.Profile
	Meta      chain.TokenMeta
	Pair      PairInfo
	Balance   *big.Int
	Allowance *big.Int
	NativeUSD decimal.Decimal
	// Report holds human-readable lines for the run log.
	Report []string
}

// Discoverer runs discovery against one node for one wallet.
type Discoverer struct {
	reader    chain.Reader
	exchanges *dex.Table
	wallet    common.Address
}

func New(reader chain.Reader, exchanges *dex.Table, wallet common.Address) *Discoverer {
	return &Discoverer{reader: reader, exchanges: exchanges, wallet: wallet}
}

// NativePrice reads the USD price of the native coin from the reference
// BUSD/WBNB pool, truncated to 18 places.
func NativePrice(ctx context.Context, r chain.Reader) (decimal.Decimal, error) {
	res, err := r.Reserves(ctx, dex.NativeUSDPair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("native price: %w", err)
	}
	native, usd := res.Reserve0, res.Reserve1
	if res.Token0 != dex.WBNB.Address {
		native, usd = usd, native
	}
	if native == nil || native.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("native price: reference pool %s is empty", dex.NativeUSDPair.Hex())
	}
	return fixed.Div(decimal.NewFromBigInt(usd, 0), decimal.NewFromBigInt(native, 0)), nil
}

type candidate struct {
	asset     dex.Asset
	pair      common.Address
	reversed  bool
	liquidity decimal.Decimal
}

// Discover resolves the token's exchange, selects its pool and reads the
// wallet's balance and router allowance. Any error leaves the token out of
// this iteration without affecting other tokens.
func (d *Discoverer) Discover(ctx context.Context, token model.TokenConfig, nativeUSD decimal.Decimal) (*Result, error) {
	label := token.Name
	addr, err := ethutil.ChecksumAddress(token.Address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	profile, err := d.exchanges.Lookup(token.Exchange)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	pay, err := dex.AssetBySymbol(string(token.Order.PayCurrency))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	res := &Result{Token: token, Address: addr, Exchange: profile, NativeUSD: nativeUSD}
	if res.Meta, err = d.reader.TokenMeta(ctx, addr); err != nil {
		return nil, fmt.Errorf("%s: token data: %w", label, err)
	}
	label = fmt.Sprintf("%s (%s)", token.Name, res.Meta.Symbol)
	if res.Allowance, err = d.reader.Allowance(ctx, addr, d.wallet, profile.Router); err != nil {
		return nil, fmt.Errorf("%s: allowance: %w", label, err)
	}

	best, err := d.selectPair(ctx, profile, addr, nativeUSD)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	res.Pair = buildPaths(best, pay, addr, res.Meta.Symbol)

	if res.Balance, err = d.reader.TokenBalance(ctx, addr, d.wallet); err != nil {
		return nil, fmt.Errorf("%s: balance: %w", label, err)
	}
	res.Report = d.report(res)
	return res, nil
}

func (d *Discoverer) selectPair(ctx context.Context, profile dex.Profile, token common.Address, nativeUSD decimal.Decimal) (candidate, error) {
	var cands []candidate
	for _, asset := range dex.CounterAssets() {
		pair, err := d.reader.GetPair(ctx, profile.Factory, token, asset.Address)
		if err != nil {
			return candidate{}, fmt.Errorf("getPair %s: %w", asset.Symbol, err)
		}
		if pair == (common.Address{}) {
			continue
		}
		r, err := d.reader.Reserves(ctx, pair)
		if err != nil {
			return candidate{}, fmt.Errorf("reserves %s: %w", asset.Symbol, err)
		}
		cands = append(cands, liquidityOf(asset, pair, r, nativeUSD))
	}
	if len(cands) == 0 {
		return candidate{}, ErrNoLiquidity
	}
	return pickDeepest(cands)
}

// liquidityOf values the counter side of a pool in USD. A pool with an empty
// side has no liquidity.
func liquidityOf(asset dex.Asset, pair common.Address, r chain.Reserves, nativeUSD decimal.Decimal) candidate {
	c := candidate{asset: asset, pair: pair, liquidity: decimal.Zero}
	if r.Empty() {
		return c
	}
	c.reversed = r.Token0 == asset.Address
	counter := r.Reserve1
	if c.reversed {
		counter = r.Reserve0
	}
	liq := fixed.FromRaw(counter, fixed.NativeDecimals)
	if asset.Native {
		liq = liq.Mul(nativeUSD)
	}
	c.liquidity = fixed.Trunc(liq)
	return c
}

func pickDeepest(cands []candidate) (candidate, error) {
	best := cands[0]
	tie := false
	for _, c := range cands[1:] {
		switch c.liquidity.Cmp(best.liquidity) {
		case 1:
			best, tie = c, false
		case 0:
			tie = true
		}
	}
	if !best.liquidity.IsPositive() {
		return candidate{}, ErrNoLiquidity
	}
	if tie {
		return candidate{}, fmt.Errorf("%w (%s USD)", ErrAmbiguousLiquidity, best.liquidity.StringFixed(2))
	}
	return best, nil
}

// buildPaths routes pay -> counter -> token, dropping the first hop when the
// pay currency is the counter asset. The sell path is the exact reverse.
func buildPaths(c candidate, pay dex.Asset, token common.Address, symbol string) PairInfo {
	info := PairInfo{
		Counter:      c.asset,
		Pair:         c.pair,
		Reversed:     c.reversed,
		LiquidityUSD: c.liquidity,
	}
	symbols := []string{c.asset.Symbol, symbol}
	info.BuyPath = []common.Address{c.asset.Address, token}
	if pay.Address != c.asset.Address {
		symbols = append([]string{pay.Symbol}, symbols...)
		info.BuyPath = append([]common.Address{pay.Address}, info.BuyPath...)
	}
	info.SellPath = ethutil.Reversed(info.BuyPath)
	info.BuyRoute = ethutil.JoinSymbols(symbols...)
	reversed := make([]string, len(symbols))
	for i, s := range symbols {
		reversed[len(symbols)-1-i] = s
	}
	info.SellRoute = ethutil.JoinSymbols(reversed...)
	return info
}

func (d *Discoverer) report(res *Result) []string {
	sym := res.Meta.Symbol
	liqNative := fixed.Div(res.Pair.LiquidityUSD, res.NativeUSD)
	bal := fixed.FromRaw(res.Balance, int32(res.Meta.Decimals))
	return []string{
		fmt.Sprintf("Trading pair: %s/%s with liquidity = %s USD (%s BNB)",
			sym, res.Pair.Counter.Symbol, fixed.Readable(res.Pair.LiquidityUSD, 2), fixed.Readable(liqNative, 2)),
		"Buy path : " + res.Pair.BuyRoute,
		"Sell path: " + res.Pair.SellRoute,
		fmt.Sprintf("Current %s balance: %s %s", sym, fixed.Readable(bal, fixed.Places), sym),
	}
}

// String renders the report as one block.
func (r *Result) String() string {
	return strings.Join(r.Report, "\n")
}
