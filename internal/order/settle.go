package order

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/fixed"
	"amm-limitbot/internal/model"
)

// settle polls the pending receipt once and applies the result. A lookup that
// errors is treated like a receipt not yet mined: the transaction may still
// land, so it only fails once the deadline grace has passed.
func (e *Engine) settle(ctx context.Context, d *Delta) {
	p := e.pending
	receipt, err := e.deps.Client.Receipt(ctx, p.Hash)
	if err != nil {
		if !errors.Is(err, chain.ErrReceiptNotFound) {
			d.Err = fmt.Errorf("receipt %s: %w", p.Hash.Hex(), err)
		}
		if chain.IsRateLimited(err) || !e.deps.Now().After(p.Deadline.Add(receiptGrace)) {
			d.logf("%s %s transaction waiting confirmation . . .", e.Symbol(), p.Kind)
			return
		}
		d.logf("Warning: confirmation taking too long, revert time + %s passed; taking transaction status as FAIL.", receiptGrace)
		e.fail(d, nil)
		// The nonce was most likely dropped with the transaction.
		e.resyncNonce(ctx, d)
		return
	}

	if !chain.Succeeded(receipt) {
		d.logf("Transaction Status: %s", model.StatusFail)
		e.fail(d, receipt)
		return
	}

	rec := e.record(p, model.StatusSuccessful, receipt)
	switch p.Kind {
	case KindApprove:
		e.allowance = new(big.Int).Set(dex.MaxApproval)
		d.logf("Info: (Token %s) allowance updated.", e.token.Name)
	case KindBuy, KindSell:
		received, err := chain.ReceivedAmount(receipt)
		if err != nil {
			d.logf("Error: %s receipt carries no transfer: %v", p.Kind, err)
			e.fail(d, receipt)
			return
		}
		if p.Kind == KindBuy {
			e.afterBuy(p, received, &rec, d)
		} else {
			e.afterSell(p, received, &rec, d)
		}
	}
	d.logf("Transaction Status: %s", model.StatusSuccessful)
	d.logf("Transaction Hash: %s", p.Hash.Hex())

	d.Settled = true
	d.Changed = true
	d.Record = &rec
	d.Resolved = p
	e.pending = nil
}

func (e *Engine) fail(d *Delta, receipt *types.Receipt) {
	rec := e.record(e.pending, model.StatusFail, receipt)
	d.Record = &rec
	d.Settled = true
	d.Failed = true
	d.Changed = true
	d.Resolved = e.pending
	e.pending = nil
}

func (e *Engine) record(p *Pending, status model.TxStatus, receipt *types.Receipt) model.TransactionRecord {
	rec := model.NewTransactionRecord(e.deps.Now(), p.Position, status)
	rec.TokenName = fmt.Sprintf("%s (%s)", e.token.Name, e.Symbol())
	rec.TokenAddress = e.disc.Address.Hex()
	rec.TxHash = p.Hash.Hex()
	if p.Path != "" {
		rec.Path = p.Path
	}
	if receipt != nil {
		cost := fixed.FromWei(chain.GasCost(receipt, p.GasPrice))
		rec.GasCost = fixed.Readable(cost, fixed.Places) + " BNB"
	}
	return rec
}

func (e *Engine) afterBuy(p *Pending, receivedRaw *big.Int, rec *model.TransactionRecord, d *Delta) {
	order := e.token.Order
	sym, cur := e.Symbol(), string(order.PayCurrency)
	qty := fixed.FromRaw(receivedRaw, int32(e.disc.Meta.Decimals))

	unitPrice := fixed.Div(p.PayAmount, qty)
	unitNoFee := fixed.Div(fixed.AfterFee(p.PayAmount, e.disc.Exchange.FeePct, fixed.Places), qty)
	slippage := decimal.Zero
	if unitNoFee.IsPositive() {
		slippage = fixed.Hundred().Sub(p.Price.Mul(fixed.Hundred()).Div(unitNoFee))
	}

	e.token = e.token.WithOrder(order.WithBuy(decimal.NewFromBigInt(receivedRaw, 0), unitPrice))
	e.balance = new(big.Int).Add(e.balance, receivedRaw)
	e.emptyReads = 0

	rec.Price = fmt.Sprintf("%s %s", fixed.Readable(unitPrice, fixed.Places), cur)
	rec.Amount = fmt.Sprintf("%s %s", p.PayAmount.String(), cur)
	rec.Quantity = fmt.Sprintf("%s %s", fixed.Readable(qty, fixed.Places), sym)
	rec.Slippage = e.slippageText(slippage)

	d.logf("Bought: %s with %s", rec.Quantity, rec.Amount)
	d.logf("Total Slippage (Buy Tax, Slippage): %s = %s%%", taxBreakdown(e.token.BuyTax, slippage), fixed.FormatSlippage(slippage))
	d.logf("Current %s balance: %s %s", sym, fixed.Readable(fixed.FromRaw(e.balance, int32(e.disc.Meta.Decimals)), fixed.Places), sym)
}

func (e *Engine) afterSell(p *Pending, receivedRaw *big.Int, rec *model.TransactionRecord, d *Delta) {
	order := e.token.Order
	decimals := int32(e.disc.Meta.Decimals)
	sym, cur := e.Symbol(), string(order.PayCurrency)

	received := fixed.FromWei(receivedRaw)
	qty := fixed.FromRaw(p.SellRaw, decimals)
	qtyAfterFee := fixed.AfterFee(qty, e.disc.Exchange.FeePct, decimals)
	unitSellNoFee := fixed.Div(received, qtyAfterFee)
	paid := fixed.Trunc(order.UnitBuyPrice.Mul(qty))
	profit := received.Sub(paid)
	profitPct := fixed.Div(received, paid).Mul(fixed.Hundred()).Round(2)
	slippage := decimal.Zero
	if p.Price.IsPositive() {
		slippage = fixed.Hundred().Sub(unitSellNoFee.Mul(fixed.Hundred()).Div(p.Price))
	}

	e.balance = new(big.Int).Sub(e.balance, p.SellRaw)
	if e.balance.Sign() < 0 {
		e.balance.SetInt64(0)
	}

	// What is left of the position once this tier is marked, capped by the
	// wallet balance.
	marked := order
	marked.Tiers[p.Tier].Filled = true
	left := order.QtyBought.Mul(fixed.Hundred().Sub(marked.SoldFraction())).Div(fixed.Hundred()).Truncate(0)
	remaining := fixed.Min(left, decimal.NewFromBigInt(e.balance, 0))

	next, reset := order.WithSell(p.Tier, remaining)
	e.token = e.token.WithOrder(next)

	rec.Price = fmt.Sprintf("%s %s", fixed.Readable(unitSellNoFee, fixed.Places), cur)
	rec.Amount = fmt.Sprintf("%s %s", fixed.Readable(received, fixed.Places), cur)
	rec.Quantity = fmt.Sprintf("%s %s", fixed.Readable(qty, fixed.Places), sym)
	rec.Profit = fmt.Sprintf("%s %s", fixed.Readable(profit, fixed.Places), cur)
	rec.ProfitPercent = profitPct.String() + "%"
	rec.Slippage = e.slippageText(slippage)

	d.logf("Sold: %s (%s) for %s", rec.Quantity, p.Position, rec.Amount)
	d.logf("Total Slippage (Sell Tax, Slippage): %s = %s%%", taxBreakdown(e.token.SellTax, slippage), fixed.FormatSlippage(slippage))
	d.logf("Profit: %s (%s)", rec.Profit, rec.ProfitPercent)
	d.logf("Current %s balance left from buy order: %s %s", sym, fixed.Readable(fixed.FromRaw(remaining.BigInt(), decimals), fixed.Places), sym)
	switch {
	case reset && next.IsTerminal():
		d.logf("Info: all %s positive or negative sell orders are filled, no more repetition left.", sym)
	case reset:
		d.logf("Info: current %s repetition count = %d, repetition left = %d.", sym, next.RepDone, next.RepetitionsLeft())
	}
}

func (e *Engine) slippageText(slippage decimal.Decimal) string {
	return fmt.Sprintf("%s%% + (%s fee %s%%)", fixed.FormatSlippage(slippage), e.token.Exchange, e.disc.Exchange.FeePct.String())
}

// taxBreakdown renders "tax +/- rest" where rest is the slippage beyond the
// configured tax.
func taxBreakdown(tax, slippage decimal.Decimal) string {
	rest := slippage.Sub(tax)
	sign := "+"
	if rest.IsNegative() {
		sign = "-"
		rest = rest.Neg()
	}
	return fmt.Sprintf("%s %s %s", tax.String(), sign, rest.Round(2).String())
}
