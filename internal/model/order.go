package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TierCount is the number of sell tiers on a limit order. Tiers 0 and 1 take
// profit, tiers 2 and 3 cut losses.
const TierCount = 4

// Terminal is the repetition value of an order with no budget left.
const Terminal = -1

// Currency is the asset a token is bought with and sold back into.
type Currency string

const (
	BNB  Currency = "BNB"
	BUSD Currency = "BUSD"
	USDT Currency = "USDT"
)

// ParseCurrency validates a pay currency symbol.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case BNB, BUSD, USDT:
		return c, nil
	case "":
		return BNB, nil
	default:
		return "", fmt.Errorf("pay currency %q not supported (want BNB, BUSD or USDT)", s)
	}
}

var (
	minProfitTrigger = decimal.RequireFromString("100.01")
	maxLossTrigger   = decimal.RequireFromString("99.99")
	hundred          = decimal.NewFromInt(100)
)

// SellTier is one partial sell rule. Trigger is the current/buy price ratio in
// percent; Fraction is the share of the bought quantity to sell, in percent.
type SellTier struct {
	Trigger  decimal.Decimal
	Fraction decimal.Decimal
	Filled   bool
}

// IsProfitTier reports whether tier i is on the profit side.
func IsProfitTier(i int) bool { return i < 2 }

// Done reports whether the tier no longer sells. A zero fraction is trivially
// done.
func (t SellTier) Done() bool {
	return t.Filled || t.Fraction.IsZero()
}

// Hit reports whether a tier fires at the given price multiplier.
func (t SellTier) Hit(i int, multiplier decimal.Decimal) bool {
	if IsProfitTier(i) {
		return multiplier.GreaterThanOrEqual(t.Trigger)
	}
	return multiplier.LessThanOrEqual(t.Trigger)
}

// LimitOrder is the per-token buy/sell plan plus its runtime progress.
// Methods return modified copies; a LimitOrder is never changed in place.
type LimitOrder struct {
	Tiers       [TierCount]SellTier
	BuyAt       decimal.Decimal
	PayCurrency Currency
	PayAmount   decimal.Decimal
	Repetition  int
	RepDone     int
	// UnitBuyPrice is the pay-currency price paid per token on the last buy.
	UnitBuyPrice decimal.Decimal
	// QtyBought is the raw (base unit) quantity received on the last buy.
	QtyBought decimal.Decimal
}

// OrderFields are the primitive values an order is constructed from.
type OrderFields struct {
	Triggers    [TierCount]string
	Fractions   [TierCount]string
	Filled      [TierCount]bool
	BuyAt       string
	PayCurrency string
	PayAmount   string
	Repetition  int
	RepDone     int
	UnitBuy     string
	QtyBought   string
}

// DefaultOrderFields mirrors a freshly added token.
func DefaultOrderFields() OrderFields {
	return OrderFields{
		Triggers:    [TierCount]string{"120.0", "105.0", "90.0", "0.0"},
		Fractions:   [TierCount]string{"80.0", "10.0", "100.0", "0.0"},
		BuyAt:       "0.001",
		PayCurrency: string(BNB),
		PayAmount:   "0.00001",
		UnitBuy:     "0",
		QtyBought:   "0",
	}
}

// NewLimitOrder parses and clamps order fields. Profit triggers are raised to at
// least 100.01, loss triggers lowered to at most 99.99 and fractions kept within
// [0,100]; stored values are not trusted.
func NewLimitOrder(f OrderFields) (LimitOrder, error) {
	var o LimitOrder
	for i := 0; i < TierCount; i++ {
		trig, err := parseDecimal(fmt.Sprintf("sell_multiplier[%d]", i), f.Triggers[i])
		if err != nil {
			return LimitOrder{}, err
		}
		frac, err := parseDecimal(fmt.Sprintf("sell_quantity[%d]", i), f.Fractions[i])
		if err != nil {
			return LimitOrder{}, err
		}
		if IsProfitTier(i) {
			trig = decimal.Max(trig, minProfitTrigger)
		} else {
			trig = decimal.Min(trig, maxLossTrigger)
		}
		o.Tiers[i] = SellTier{
			Trigger:  trig,
			Fraction: clamp(frac, decimal.Zero, hundred),
			Filled:   f.Filled[i],
		}
	}

	if sold := o.filledSum(); sold.GreaterThan(hundred) {
		return LimitOrder{}, fmt.Errorf("filled sell quantities add up to %s%%, more than the whole position", sold.String())
	}

	var err error
	if o.BuyAt, err = parseDecimal("buy_at", f.BuyAt); err != nil {
		return LimitOrder{}, err
	}
	if o.PayAmount, err = parseDecimal("pay_amount", f.PayAmount); err != nil {
		return LimitOrder{}, err
	}
	if o.UnitBuyPrice, err = parseDecimal("unit_buy_price", f.UnitBuy); err != nil {
		return LimitOrder{}, err
	}
	if o.QtyBought, err = parseDecimal("qnt_bought", f.QtyBought); err != nil {
		return LimitOrder{}, err
	}
	if o.PayCurrency, err = ParseCurrency(f.PayCurrency); err != nil {
		return LimitOrder{}, err
	}
	o.BuyAt = decimal.Max(o.BuyAt, decimal.Zero)
	o.PayAmount = decimal.Max(o.PayAmount, decimal.Zero)
	o.UnitBuyPrice = decimal.Max(o.UnitBuyPrice, decimal.Zero)
	o.QtyBought = decimal.Max(o.QtyBought.Truncate(0), decimal.Zero)

	o.Repetition = f.Repetition
	if o.Repetition < Terminal {
		o.Repetition = Terminal
	}
	o.RepDone = f.RepDone
	if o.RepDone < 0 {
		o.RepDone = 0
	}
	return o, nil
}

// Fields converts the order back into its primitive storage form.
func (o LimitOrder) Fields() OrderFields {
	var f OrderFields
	for i, t := range o.Tiers {
		f.Triggers[i] = t.Trigger.String()
		f.Fractions[i] = t.Fraction.String()
		f.Filled[i] = t.Filled
	}
	f.BuyAt = o.BuyAt.String()
	f.PayCurrency = string(o.PayCurrency)
	f.PayAmount = o.PayAmount.String()
	f.Repetition = o.Repetition
	f.RepDone = o.RepDone
	f.UnitBuy = o.UnitBuyPrice.StringFixed(18)
	if o.UnitBuyPrice.IsZero() {
		f.UnitBuy = "0"
	}
	f.QtyBought = o.QtyBought.String()
	return f
}

// IsTerminal reports whether the repetition budget is exhausted.
func (o LimitOrder) IsTerminal() bool { return o.Repetition == Terminal }

// Holding reports whether a buy has been made and not yet fully sold.
func (o LimitOrder) Holding() bool { return o.QtyBought.IsPositive() }

// SoldFraction is the percentage of the bought quantity already sold by filled
// tiers. NewLimitOrder rejects stored orders above 100; a plan edited while
// running is capped here.
func (o LimitOrder) SoldFraction() decimal.Decimal {
	return decimal.Min(o.filledSum(), hundred)
}

func (o LimitOrder) filledSum() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range o.Tiers {
		if t.Filled {
			sum = sum.Add(t.Fraction)
		}
	}
	return sum
}

// SellableFraction is the share tier i may sell now: its own fraction capped by
// what is left of the position.
func (o LimitOrder) SellableFraction(i int) decimal.Decimal {
	return decimal.Min(o.Tiers[i].Fraction, hundred.Sub(o.SoldFraction()))
}

// SideExhausted reports whether both profit tiers or both loss tiers are done.
func (o LimitOrder) SideExhausted() bool {
	profit, loss := 0, 0
	for i, t := range o.Tiers {
		if !t.Done() {
			continue
		}
		if IsProfitTier(i) {
			profit++
		} else {
			loss++
		}
	}
	return profit == 2 || loss == 2
}

// WithBuy records a settled buy.
func (o LimitOrder) WithBuy(qtyRaw, unitPrice decimal.Decimal) LimitOrder {
	o.QtyBought = qtyRaw.Truncate(0)
	o.UnitBuyPrice = unitPrice
	return o
}

// WithSell marks tier i filled after a settled sell. remaining is the quantity
// left from the position (or the wallet balance, whichever is smaller); the
// order resets when it reaches zero or a whole side is exhausted. The second
// return value reports whether a reset happened.
func (o LimitOrder) WithSell(i int, remaining decimal.Decimal) (LimitOrder, bool) {
	o.Tiers[i].Filled = true
	if !remaining.IsPositive() || o.SideExhausted() {
		return o.Reset(), true
	}
	return o, false
}

// Reset clears the position and consumes one repetition. With no repetition
// left the order becomes terminal.
func (o LimitOrder) Reset() LimitOrder {
	o.UnitBuyPrice = decimal.Zero
	o.QtyBought = decimal.Zero
	for i := range o.Tiers {
		o.Tiers[i].Filled = false
	}
	if o.Repetition == 0 || o.Repetition == o.RepDone {
		o.Repetition = Terminal
		o.RepDone = 0
		return o
	}
	o.RepDone++
	return o
}

// RepetitionsLeft is the number of full buy/sell cycles still allowed.
func (o LimitOrder) RepetitionsLeft() int {
	if o.IsTerminal() {
		return 0
	}
	return o.Repetition + 1 - o.RepDone
}

// Reconfigure takes the user-editable plan from next while keeping the runtime
// progress (position, filled tiers, repetitions done) of o.
func (o LimitOrder) Reconfigure(next LimitOrder) LimitOrder {
	out := next
	out.UnitBuyPrice = o.UnitBuyPrice
	out.QtyBought = o.QtyBought
	out.RepDone = o.RepDone
	for i := range out.Tiers {
		out.Tiers[i].Filled = o.Tiers[i].Filled
	}
	if o.Holding() {
		// The position was bought with the old plan.
		out.PayCurrency = o.PayCurrency
		out.PayAmount = o.PayAmount
		out.BuyAt = o.BuyAt
	}
	return out
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return d, nil
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(v, lo), hi)
}
