package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustOrder(t *testing.T, f OrderFields) LimitOrder {
	t.Helper()
	o, err := NewLimitOrder(f)
	if err != nil {
		t.Fatalf("NewLimitOrder: %v", err)
	}
	return o
}

func TestNewLimitOrderClamps(t *testing.T) {
	f := DefaultOrderFields()
	f.Triggers = [TierCount]string{"90", "150", "120", "50"}
	f.Fractions = [TierCount]string{"-5", "150", "40", "10"}
	f.Repetition = -7
	f.RepDone = -1
	o := mustOrder(t, f)

	if got := o.Tiers[0].Trigger.String(); got != "100.01" {
		t.Fatalf("profit trigger got %s want 100.01", got)
	}
	if got := o.Tiers[2].Trigger.String(); got != "99.99" {
		t.Fatalf("loss trigger got %s want 99.99", got)
	}
	if !o.Tiers[0].Fraction.IsZero() || o.Tiers[1].Fraction.String() != "100" {
		t.Fatalf("fractions not clamped: %s %s", o.Tiers[0].Fraction, o.Tiers[1].Fraction)
	}
	if o.Repetition != Terminal || o.RepDone != 0 {
		t.Fatalf("repetition=%d rep_done=%d", o.Repetition, o.RepDone)
	}

	t.Run("bad number", func(t *testing.T) {
		f := DefaultOrderFields()
		f.BuyAt = "1,5"
		if _, err := NewLimitOrder(f); err == nil || !strings.Contains(err.Error(), "buy_at") {
			t.Fatalf("expected buy_at error, got %v", err)
		}
	})
	t.Run("bad currency", func(t *testing.T) {
		f := DefaultOrderFields()
		f.PayCurrency = "ETH"
		if _, err := NewLimitOrder(f); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestSoldFractionNeverExceedsHundred(t *testing.T) {
	fractions := []string{"0", "10", "50", "80", "100"}
	for _, a := range fractions {
		for _, b := range fractions {
			for _, c := range fractions {
				for mask := 0; mask < 16; mask++ {
					f := DefaultOrderFields()
					f.Fractions = [TierCount]string{a, b, c, "100"}
					filled := decimal.Zero
					for i := 0; i < TierCount; i++ {
						f.Filled[i] = mask&(1<<i) != 0
						if f.Filled[i] {
							filled = filled.Add(dec(f.Fractions[i]))
						}
					}
					o, err := NewLimitOrder(f)
					if filled.GreaterThan(dec("100")) {
						if err == nil {
							t.Fatalf("filled %s%% accepted for %v", filled, f)
						}
						continue
					}
					if err != nil {
						t.Fatalf("NewLimitOrder(%v): %v", f, err)
					}
					if o.SoldFraction().GreaterThan(dec("100")) {
						t.Fatalf("sold fraction %s > 100 for %v", o.SoldFraction(), f)
					}
					for i := 0; i < TierCount; i++ {
						if o.SoldFraction().Add(o.SellableFraction(i)).GreaterThan(dec("100")) {
							t.Fatalf("tier %d sellable overshoots for %v", i, f)
						}
					}
				}
			}
		}
	}
}

func TestNewLimitOrderRejectsOversoldState(t *testing.T) {
	f := DefaultOrderFields()
	f.Fractions = [TierCount]string{"80", "10", "80", "0"}
	f.Filled = [TierCount]bool{true, false, true, false}
	if _, err := NewLimitOrder(f); err == nil || !strings.Contains(err.Error(), "160%") {
		t.Fatalf("expected oversold error, got %v", err)
	}

	f.Fractions[2] = "20"
	o := mustOrder(t, f)
	if o.SoldFraction().String() != "100" || !o.SellableFraction(1).IsZero() {
		t.Fatalf("sold %s sellable %s", o.SoldFraction(), o.SellableFraction(1))
	}
}

func TestWithSellResetsExactlyOnExhaustedSide(t *testing.T) {
	base := DefaultOrderFields()
	base.Triggers = [TierCount]string{"120", "150", "90", "70"}
	base.Fractions = [TierCount]string{"30", "30", "20", "20"}
	base.Repetition = 2
	base.QtyBought = "1000"
	base.UnitBuy = "0.5"

	t.Run("one profit tier keeps position", func(t *testing.T) {
		o, reset := mustOrder(t, base).WithSell(0, dec("700"))
		if reset {
			t.Fatalf("unexpected reset")
		}
		if !o.Tiers[0].Filled || o.QtyBought.String() != "1000" {
			t.Fatalf("unexpected order %+v", o)
		}
	})

	t.Run("profit and loss tier mixed keeps position", func(t *testing.T) {
		o, _ := mustOrder(t, base).WithSell(0, dec("700"))
		o, reset := o.WithSell(2, dec("500"))
		if reset {
			t.Fatalf("one tier per side must not reset")
		}
		if o.SoldFraction().String() != "50" {
			t.Fatalf("sold %s", o.SoldFraction())
		}
	})

	t.Run("two profit tiers reset", func(t *testing.T) {
		o, _ := mustOrder(t, base).WithSell(0, dec("700"))
		o, reset := o.WithSell(1, dec("400"))
		if !reset {
			t.Fatalf("expected reset")
		}
		if o.QtyBought.Sign() != 0 || o.UnitBuyPrice.Sign() != 0 || o.RepDone != 1 || o.Repetition != 2 {
			t.Fatalf("unexpected reset order %+v", o)
		}
		for i, tier := range o.Tiers {
			if tier.Filled {
				t.Fatalf("tier %d still filled", i)
			}
		}
	})

	t.Run("zero fraction tier counts as filled", func(t *testing.T) {
		f := base
		f.Fractions = [TierCount]string{"30", "0", "20", "20"}
		_, reset := mustOrder(t, f).WithSell(0, dec("700"))
		if !reset {
			t.Fatalf("expected reset: tier 1 is trivially filled")
		}
	})

	t.Run("balance exhausted resets", func(t *testing.T) {
		_, reset := mustOrder(t, base).WithSell(0, decimal.Zero)
		if !reset {
			t.Fatalf("expected reset when nothing remains")
		}
	})
}

func TestResetConsumesRepetitionBudget(t *testing.T) {
	// Budget 0 with both loss tiers filled becomes terminal.
	f := DefaultOrderFields()
	f.Triggers = [TierCount]string{"120", "150", "90", "70"}
	f.Fractions = [TierCount]string{"30", "30", "20", "20"}
	f.Repetition = 0
	f.QtyBought = "1000"
	o, _ := mustOrder(t, f).WithSell(2, dec("800"))
	o, reset := o.WithSell(3, dec("600"))
	if !reset || !o.IsTerminal() || o.RepDone != 0 {
		t.Fatalf("expected terminal reset, got reset=%v order=%+v", reset, o)
	}

	f.Repetition = 1
	o = mustOrder(t, f).Reset()
	if o.Repetition != 1 || o.RepDone != 1 || o.RepetitionsLeft() != 1 {
		t.Fatalf("first reset %+v", o)
	}
	o = o.Reset()
	if !o.IsTerminal() {
		t.Fatalf("second reset should exhaust budget, got %+v", o)
	}
}

func TestReconfigureKeepsProgress(t *testing.T) {
	f := DefaultOrderFields()
	f.QtyBought = "500"
	f.UnitBuy = "0.2"
	f.Filled[0] = true
	f.RepDone = 1
	f.Repetition = 3
	cur := mustOrder(t, f)

	nf := DefaultOrderFields()
	nf.Triggers[1] = "130"
	nf.PayAmount = "9"
	nf.Repetition = 5
	next := mustOrder(t, nf)

	out := cur.Reconfigure(next)
	if !out.Tiers[0].Filled || out.QtyBought.String() != "500" || out.RepDone != 1 {
		t.Fatalf("progress lost: %+v", out)
	}
	if out.Tiers[1].Trigger.String() != "130" || out.Repetition != 5 {
		t.Fatalf("plan not applied: %+v", out)
	}
	if out.PayAmount.String() != cur.PayAmount.String() {
		t.Fatalf("pay amount of an open position must not change")
	}
}

func TestTokenConfigJSONKeepsDecimalStrings(t *testing.T) {
	raw := `{"name":"Cake","address":"0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82","dex":"PancakeSwap v2","slippage":"0.5","buy_tax":"-1","sell_tax":"2",
	"limit_trade":{"sell_multiplier":["120.0","105.0","90.0","0.0"],"sell_quantity":["80.0","10.0","100.0","0.0"],"order_done":[true,false,false,false],
	"buy_at":"0.000000000000000001","pay_currency":"BUSD","pay_amount":"10","repetition":2,"unit_buy_price":"0.100000000000000001","qnt_bought":"123456789012345678901234","rep_done":1}}`
	var tc TokenConfig
	if err := json.Unmarshal([]byte(raw), &tc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tc.Slippage.String() != "1" {
		t.Fatalf("slippage should clamp to 1, got %s", tc.Slippage)
	}
	if tc.BuyTax.Sign() != 0 {
		t.Fatalf("buy tax should clamp to 0, got %s", tc.BuyTax)
	}

	out, err := json.Marshal(tc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{
		`"buy_at":"0.000000000000000001"`,
		`"unit_buy_price":"0.100000000000000001"`,
		`"qnt_bought":"123456789012345678901234"`,
		`"order_done":[true,false,false,false]`,
		`"pay_currency":"BUSD"`,
	} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestSettingsJSONDefaultsAndClamps(t *testing.T) {
	var s Settings
	if err := json.Unmarshal([]byte(`{"wallet":" 0xabc ","gas_amount":10,"revert_time":0}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Wallet != "0xabc" || s.Node != DefaultNode {
		t.Fatalf("unexpected settings %+v", s)
	}
	if s.GasLimit != 21000 || s.RevertMinutes != 1 || s.MaxFailAttempts != DefaultMaxFailAttempts {
		t.Fatalf("clamps not applied %+v", s)
	}
	if s.GasPriceGwei.String() != "5" {
		t.Fatalf("gas price %s", s.GasPriceGwei)
	}
}

func TestTransactionRecordKeys(t *testing.T) {
	rec := NewTransactionRecord(mustTime(t), "Limit Buy", StatusSuccessful)
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"TIMESTAMP", "TXN_INITIATED_FROM", "TXN_STATUS", "TOKEN_NAME", "TOKEN_ADDRESS", "TOKEN_PRICE",
		"TXN_SLIPPAGE", "PAY/RECEIVED_AMOUNT", "TOKEN_QUANTITY", "PROFIT", "PROFIT_PERCENTAGE", "TXN_PATH", "GAS_PRICE", "TXN_HASH"} {
		if !strings.Contains(string(b), `"`+key+`"`) {
			t.Fatalf("missing key %s in %s", key, b)
		}
	}
	if rec.Timestamp != "2024-03-01 10:20:30" {
		t.Fatalf("timestamp %q", rec.Timestamp)
	}
}

func mustTime(t *testing.T) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339, "2024-03-01T12:20:30+02:00")
	if err != nil {
		t.Fatal(err)
	}
	return at
}
