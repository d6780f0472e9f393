package model

import "encoding/json"

type settingsJSON struct {
	Wallet          string  `json:"wallet"`
	PrivateKey      string  `json:"private_key"`
	Node            string  `json:"bcs_node"`
	GasLimit        int     `json:"gas_amount"`
	GasPrice        float64 `json:"gas_price"`
	RevertTime      int     `json:"revert_time"`
	MaxFailAttempts int     `json:"max_fail_attempts"`
}

// MarshalJSON writes the settings file layout.
func (s Settings) MarshalJSON() ([]byte, error) {
	f := s.Fields()
	return json.Marshal(settingsJSON{
		Wallet:          f.Wallet,
		PrivateKey:      f.PrivateKey,
		Node:            f.Node,
		GasLimit:        f.GasLimit,
		GasPrice:        f.GasPriceGwei,
		RevertTime:      f.RevertMinutes,
		MaxFailAttempts: f.MaxFailAttempts,
	})
}

// UnmarshalJSON reads the settings file layout through NewSettings. Missing
// keys keep their defaults.
func (s *Settings) UnmarshalJSON(b []byte) error {
	d := DefaultSettingsFields()
	raw := settingsJSON{
		Node:            d.Node,
		GasLimit:        d.GasLimit,
		GasPrice:        d.GasPriceGwei,
		RevertTime:      d.RevertMinutes,
		MaxFailAttempts: d.MaxFailAttempts,
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = NewSettings(SettingsFields{
		Wallet:          raw.Wallet,
		PrivateKey:      raw.PrivateKey,
		Node:            raw.Node,
		GasLimit:        raw.GasLimit,
		GasPriceGwei:    raw.GasPrice,
		RevertMinutes:   raw.RevertTime,
		MaxFailAttempts: raw.MaxFailAttempts,
	})
	return nil
}

type limitTradeJSON struct {
	SellMultiplier [TierCount]string `json:"sell_multiplier"`
	SellQuantity   [TierCount]string `json:"sell_quantity"`
	OrderDone      [TierCount]bool   `json:"order_done"`
	BuyAt          string            `json:"buy_at"`
	PayCurrency    string            `json:"pay_currency"`
	PayAmount      string            `json:"pay_amount"`
	Repetition     int               `json:"repetition"`
	UnitBuyPrice   string            `json:"unit_buy_price"`
	QtyBought      string            `json:"qnt_bought"`
	RepDone        int               `json:"rep_done"`
}

type tokenJSON struct {
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	Dex        string         `json:"dex"`
	Slippage   string         `json:"slippage"`
	BuyTax     string         `json:"buy_tax"`
	SellTax    string         `json:"sell_tax"`
	LimitTrade limitTradeJSON `json:"limit_trade"`
}

// MarshalJSON writes the token file layout; numbers are decimal strings.
func (t TokenConfig) MarshalJSON() ([]byte, error) {
	f := t.Fields()
	return json.Marshal(tokenJSON{
		Name:     f.Name,
		Address:  f.Address,
		Dex:      f.Exchange,
		Slippage: f.Slippage,
		BuyTax:   f.BuyTax,
		SellTax:  f.SellTax,
		LimitTrade: limitTradeJSON{
			SellMultiplier: f.Order.Triggers,
			SellQuantity:   f.Order.Fractions,
			OrderDone:      f.Order.Filled,
			BuyAt:          f.Order.BuyAt,
			PayCurrency:    f.Order.PayCurrency,
			PayAmount:      f.Order.PayAmount,
			Repetition:     f.Order.Repetition,
			UnitBuyPrice:   f.Order.UnitBuy,
			QtyBought:      f.Order.QtyBought,
			RepDone:        f.Order.RepDone,
		},
	})
}

// UnmarshalJSON reads the token file layout through NewTokenConfig.
func (t *TokenConfig) UnmarshalJSON(b []byte) error {
	d := DefaultTokenFields()
	raw := tokenJSON{
		Name:     d.Name,
		Dex:      d.Exchange,
		Slippage: d.Slippage,
		BuyTax:   d.BuyTax,
		SellTax:  d.SellTax,
		LimitTrade: limitTradeJSON{
			SellMultiplier: d.Order.Triggers,
			SellQuantity:   d.Order.Fractions,
			BuyAt:          d.Order.BuyAt,
			PayCurrency:    d.Order.PayCurrency,
			PayAmount:      d.Order.PayAmount,
			UnitBuyPrice:   d.Order.UnitBuy,
			QtyBought:      d.Order.QtyBought,
		},
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	cfg, err := NewTokenConfig(TokenFields{
		Name:     raw.Name,
		Address:  raw.Address,
		Exchange: raw.Dex,
		Slippage: raw.Slippage,
		BuyTax:   raw.BuyTax,
		SellTax:  raw.SellTax,
		Order: OrderFields{
			Triggers:    raw.LimitTrade.SellMultiplier,
			Fractions:   raw.LimitTrade.SellQuantity,
			Filled:      raw.LimitTrade.OrderDone,
			BuyAt:       raw.LimitTrade.BuyAt,
			PayCurrency: raw.LimitTrade.PayCurrency,
			PayAmount:   raw.LimitTrade.PayAmount,
			Repetition:  raw.LimitTrade.Repetition,
			RepDone:     raw.LimitTrade.RepDone,
			UnitBuy:     raw.LimitTrade.UnitBuyPrice,
			QtyBought:   raw.LimitTrade.QtyBought,
		},
	})
	if err != nil {
		return err
	}
	*t = cfg
	return nil
}
