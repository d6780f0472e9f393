// Package order runs the per-token limit order: it decides when to approve,
// buy or sell, submits the transaction and reconciles its receipt into the
// order and a transaction record.
package order

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/discovery"
	"amm-limitbot/internal/fixed"
	"amm-limitbot/internal/model"
)

// Kind is the action a pending transaction performs.
type Kind string

const (
	KindApprove Kind = "APPROVE ALLOWANCE"
	KindBuy     Kind = "BUY"
	KindSell    Kind = "SELL"
)

// receiptGrace is how long past its deadline a transaction may stay unmined
// before it is taken as failed.
const receiptGrace = 10 * time.Second

// emptyReadsToClose is how many discovery reads in a row must show a zero
// wallet balance before an open position is closed.
const emptyReadsToClose = 2

// Pending is the single in-flight transaction of a token plus what is needed
// to reconcile it.
type Pending struct {
	Kind     Kind
	Hash     common.Hash
	Nonce    uint64
	Deadline time.Time
	Position string
	GasPrice *big.Int
	Path     string

	Tier      int
	SellRaw   *big.Int
	PayAmount decimal.Decimal
	// Price is the quote in the pay currency's unit at submission.
	Price decimal.Decimal
}

// Deps are the shared collaborators of every engine in a run.
type Deps struct {
	Client    chain.Client
	Contracts *dex.Contracts
	Wallet    common.Address
	Nonces    *Nonces
	// Now defaults to time.Now.
	Now func() time.Time
}

// Delta is the outcome of one evaluation, applied by the supervisor.
type Delta struct {
	Token model.TokenConfig
	// Changed is set when the token list or the transaction log must be
	// written.
	Changed bool
	Record  *model.TransactionRecord
	// Settled reports a receipt resolution; Failed tells which way it went.
	Settled bool
	Failed  bool
	// Resolved is the transaction the settlement resolved.
	Resolved *Pending
	// Submitted is set when a new transaction went out this evaluation.
	Submitted *Pending
	Quote     *discovery.Quote
	// Err is a local failure: an RPC error or a rejected submission.
	Err error
	Log []string
}

func (d *Delta) logf(format string, args ...interface{}) {
	d.Log = append(d.Log, fmt.Sprintf(format, args...))
}

// Engine owns one token's limit order for the duration of a run.
type Engine struct {
	deps Deps

	disc      *discovery.Result
	token     model.TokenConfig
	balance   *big.Int
	allowance *big.Int
	pending   *Pending
	// emptyReads counts consecutive reads of a zero balance while holding.
	emptyReads int
}

// New builds an engine from the token's first discovery result.
func New(deps Deps, res *discovery.Result) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	e := &Engine{deps: deps}
	e.disc = res
	e.token = res.Token
	e.observeBalance(res.Balance)
	e.allowance = copyBig(res.Allowance)
	return e
}

// Refresh installs a newer discovery result. Plan edits in res.Token are
// merged into the running order; progress stays with the engine. While a
// transaction is pending the balance is left alone: the read may already
// include the mined swap, which settlement books itself.
func (e *Engine) Refresh(res *discovery.Result) {
	next := res.Token
	next.Order = e.token.Order.Reconfigure(res.Token.Order)
	e.disc = res
	e.token = next
	if e.pending == nil {
		e.observeBalance(res.Balance)
	}
	if res.Allowance != nil && res.Allowance.Cmp(e.allowance) > 0 {
		e.allowance = copyBig(res.Allowance)
	}
}

func (e *Engine) observeBalance(b *big.Int) {
	e.balance = copyBig(b)
	if e.balance.Sign() == 0 && e.token.Order.Holding() {
		e.emptyReads++
		return
	}
	e.emptyReads = 0
}

func (e *Engine) Token() model.TokenConfig { return e.token }

func (e *Engine) Symbol() string { return e.disc.Meta.Symbol }

// Pending returns the in-flight transaction, or nil.
func (e *Engine) Pending() *Pending { return e.pending }

// Evaluate performs one step: poll a pending receipt, or check allowance,
// sell tiers and the buy trigger in that order. At most one transaction is
// submitted per call and a pending receipt is polled at most once.
func (e *Engine) Evaluate(ctx context.Context, settings model.Settings) Delta {
	d := Delta{Token: e.token}

	if e.pending != nil {
		e.settle(ctx, &d)
		d.Token = e.token
		return d
	}

	order := e.token.Order
	if order.IsTerminal() {
		d.logf("Info: already traded with token '%s', reset it by setting repetition to 0 or more.", e.token.Name)
		return d
	}

	if order.Holding() && e.balance.Sign() == 0 {
		e.closeEmpty(&d)
		return d
	}

	if order.Holding() && e.allowance.Cmp(e.balance) <= 0 {
		d.logf("Token needs approval to sell, sending approve allowance request . . .")
		e.approve(ctx, settings, &d)
		return d
	}

	q, err := e.disc.Quote(ctx, e.deps.Client)
	if err != nil {
		d.Err = err
		return d
	}
	d.Quote = &q
	payNative := order.PayCurrency == model.BNB
	price := q.In(payNative)
	d.Log = append(d.Log, e.priceLine(q, order))

	if order.Holding() && e.balance.Sign() > 0 {
		if order.UnitBuyPrice.IsPositive() {
			multiplier := fixed.Div(price, order.UnitBuyPrice).Mul(fixed.Hundred())
			for i, tier := range order.Tiers {
				if tier.Done() || !tier.Hit(i, multiplier) {
					continue
				}
				e.sell(ctx, settings, i, price, &d)
				break
			}
		}
		return d
	}

	if !order.Holding() && q.USD.LessThan(order.BuyAt) {
		if !price.IsPositive() {
			d.Err = fmt.Errorf("%s: no price available, buy skipped", e.Symbol())
			return d
		}
		e.buy(ctx, settings, price, &d)
	}
	return d
}

// closeEmpty resets an open position whose tokens have left the wallet. A
// single zero read only warns, since a lagging node may not show the buy yet.
func (e *Engine) closeEmpty(d *Delta) {
	sym := e.Symbol()
	if e.emptyReads < emptyReadsToClose {
		d.logf("Warning: %s balance is zero while a buy order is open.", sym)
		return
	}
	next := e.token.Order.Reset()
	e.token = e.token.WithOrder(next)
	e.emptyReads = 0
	d.Token = e.token
	d.Changed = true
	d.logf("Info: %s balance left from buy order is zero, order closed.", sym)
	if next.IsTerminal() {
		d.logf("Info: no more %s repetition left.", sym)
	} else {
		d.logf("Info: current %s repetition count = %d, repetition left = %d.", sym, next.RepDone, next.RepetitionsLeft())
	}
}

func (e *Engine) priceLine(q discovery.Quote, order model.LimitOrder) string {
	line := fmt.Sprintf("%s price: %s USD | %s BNB", e.Symbol(), fixed.Readable(q.USD, fixed.Places), fixed.Readable(q.Native, fixed.Places))
	if order.UnitBuyPrice.IsPositive() {
		m := fixed.Div(q.In(order.PayCurrency == model.BNB), order.UnitBuyPrice).Mul(fixed.Hundred())
		line += fmt.Sprintf(" (%s%%)", m.Round(2).String())
	}
	return line
}

func (e *Engine) deadline(settings model.Settings) time.Time {
	return e.deps.Now().Add(time.Duration(settings.RevertMinutes) * time.Minute)
}

func (e *Engine) approve(ctx context.Context, settings model.Settings, d *Delta) {
	data, err := e.deps.Contracts.ERC20.Pack("approve", e.disc.Exchange.Router, dex.MaxApproval)
	if err != nil {
		d.Err = fmt.Errorf("pack approve: %w", err)
		return
	}
	p := &Pending{
		Kind:     KindApprove,
		Position: "Approve allowance",
		Deadline: e.deadline(settings),
	}
	// Approvals use an estimated gas limit.
	if err := e.submit(ctx, settings, p, e.disc.Address, data, nil, 0, d); err != nil {
		d.Err = fmt.Errorf("approve %s: %w", e.Symbol(), err)
		d.logf("Error (Approve token): %v", err)
		return
	}
	d.Submitted = p
	d.logf("%s Approve Transaction Hash: %s", e.Symbol(), p.Hash.Hex())
}

func (e *Engine) buy(ctx context.Context, settings model.Settings, price decimal.Decimal, d *Delta) {
	order := e.token.Order
	pay := order.PayAmount
	amountIn := fixed.Wei(pay)

	minOut := new(big.Int)
	if e.token.Slippage.LessThan(fixed.Hundred()) {
		afterFee := fixed.AfterFee(pay, e.disc.Exchange.FeePct, fixed.Places)
		nominal := fixed.Div(afterFee, price)
		minOut = fixed.ToRaw(fixed.WithSlippage(nominal, e.token.Slippage), int32(e.disc.Meta.Decimals))
	}

	p := &Pending{
		Kind:      KindBuy,
		Position:  "Limit Buy",
		Deadline:  e.deadline(settings),
		Path:      e.disc.Pair.BuyRoute,
		PayAmount: pay,
		Price:     price,
	}
	deadline := big.NewInt(p.Deadline.Unix())
	path := e.disc.Pair.BuyPath

	var (
		data  []byte
		value *big.Int
		err   error
	)
	if order.PayCurrency == model.BNB {
		data, err = e.deps.Contracts.Router.Pack(dex.MethodSwapNativeForTokens, minOut, path, e.deps.Wallet, deadline)
		value = amountIn
	} else {
		data, err = e.deps.Contracts.Router.Pack(dex.MethodSwapTokensForTokens, amountIn, minOut, path, e.deps.Wallet, deadline)
	}
	if err != nil {
		d.Err = fmt.Errorf("pack buy: %w", err)
		return
	}

	d.logf("Initiating %s buy transaction: %s %s (Path: %s).", e.Symbol(), pay.String(), order.PayCurrency, p.Path)
	if err := e.submit(ctx, settings, p, e.disc.Exchange.Router, data, value, settings.GasLimit, d); err != nil {
		d.Err = fmt.Errorf("buy %s: %w", e.Symbol(), err)
		d.logf("Error (Buy transaction): %v", err)
		return
	}
	d.Submitted = p
	d.logf("%s Buy Transaction Hash: %s", e.Symbol(), p.Hash.Hex())
}

func (e *Engine) sell(ctx context.Context, settings model.Settings, tier int, price decimal.Decimal, d *Delta) {
	order := e.token.Order
	decimals := int32(e.disc.Meta.Decimals)

	frac := order.SellableFraction(tier)
	want := order.QtyBought.Mul(frac).Div(fixed.Hundred()).Truncate(0).BigInt()
	qtyRaw := fixed.MinBig(want, e.balance)
	if qtyRaw.Sign() <= 0 {
		return
	}
	qty := fixed.FromRaw(qtyRaw, decimals)

	minOut := new(big.Int)
	if e.token.Slippage.LessThan(fixed.Hundred()) {
		afterFee := fixed.AfterFee(qty, e.disc.Exchange.FeePct, decimals)
		minOut = fixed.Wei(fixed.WithSlippage(afterFee.Mul(price), e.token.Slippage))
	}

	p := &Pending{
		Kind:     KindSell,
		Position: fmt.Sprintf("Limit Sell -> Order %d", tier+1),
		Deadline: e.deadline(settings),
		Path:     e.disc.Pair.SellRoute,
		Tier:     tier,
		SellRaw:  qtyRaw,
		Price:    price,
	}
	deadline := big.NewInt(p.Deadline.Unix())
	method := dex.MethodSwapTokensForTokens
	if order.PayCurrency == model.BNB {
		method = dex.MethodSwapTokensForNative
	}
	data, err := e.deps.Contracts.Router.Pack(method, qtyRaw, minOut, e.disc.Pair.SellPath, e.deps.Wallet, deadline)
	if err != nil {
		d.Err = fmt.Errorf("pack sell: %w", err)
		return
	}

	d.logf("Initiating %s sell transaction: %s %s, %s (Path: %s).",
		e.Symbol(), fixed.Readable(qty, fixed.Places), e.Symbol(), p.Position, p.Path)
	if err := e.submit(ctx, settings, p, e.disc.Exchange.Router, data, nil, settings.GasLimit, d); err != nil {
		d.Err = fmt.Errorf("sell %s: %w", e.Symbol(), err)
		d.logf("Error (Sell transaction): %v", err)
		return
	}
	d.Submitted = p
	d.logf("%s Sell Transaction Hash: %s", e.Symbol(), p.Hash.Hex())
}

// submit reserves a nonce and sends the transaction. On failure the nonce goes
// back to the allocator and the engine stays idle; a nonce the node reports as
// used makes the allocator follow the node.
func (e *Engine) submit(ctx context.Context, settings model.Settings, p *Pending, to common.Address, data []byte, value *big.Int, gasLimit uint64, d *Delta) error {
	nonce := e.deps.Nonces.Reserve()
	req := chain.TxRequest{
		To:       to,
		Data:     data,
		Value:    value,
		GasLimit: gasLimit,
		GasPrice: fixed.Gwei(settings.GasPriceGwei),
		Nonce:    nonce,
	}
	hash, err := e.deps.Client.Send(ctx, req)
	if err != nil {
		e.deps.Nonces.Rollback(nonce)
		se := chain.ClassifySubmit(err)
		if se.Kind == chain.SubmitNonceTooLow || se.Kind == chain.SubmitAlreadyKnown {
			e.resyncNonce(ctx, d)
		}
		return se
	}
	p.Hash = hash
	p.Nonce = nonce
	p.GasPrice = req.GasPrice
	e.pending = p
	return nil
}

// resyncNonce points the allocator at the node's pending nonce.
func (e *Engine) resyncNonce(ctx context.Context, d *Delta) {
	n, err := e.deps.Client.PendingNonce(ctx, e.deps.Wallet)
	if err != nil {
		d.logf("Warning: wallet nonce not re-read: %v", err)
		return
	}
	if prev := e.deps.Nonces.Resync(n); prev != n {
		d.logf("Info: wallet nonce moved from %d to %d.", prev, n)
	}
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
