// Package model holds the engine's persisted values: settings, token
// configurations with their limit orders, and transaction records. Values are
// built through constructors that clamp out-of-range numbers and are treated
// as immutable once built.
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Settings is the wallet and transaction configuration for one run.
type Settings struct {
	Wallet     string
	PrivateKey string
	Node       string
	GasLimit   uint64
	// GasPriceGwei is the legacy gas price offered for every transaction.
	GasPriceGwei decimal.Decimal
	// RevertMinutes is added to the submit time to form the swap deadline.
	RevertMinutes   int
	MaxFailAttempts int
}

const (
	DefaultNode            = "https://bsc-dataseed1.defibit.io"
	DefaultGasLimit        = 400000
	DefaultGasPriceGwei    = 5.0
	DefaultRevertMinutes   = 5
	DefaultMaxFailAttempts = 3

	minGasLimit = 21000
)

// SettingsFields are the primitive values settings are constructed from.
type SettingsFields struct {
	Wallet          string
	PrivateKey      string
	Node            string
	GasLimit        int
	GasPriceGwei    float64
	RevertMinutes   int
	MaxFailAttempts int
}

// DefaultSettingsFields returns the values of a fresh install.
func DefaultSettingsFields() SettingsFields {
	return SettingsFields{
		Node:            DefaultNode,
		GasLimit:        DefaultGasLimit,
		GasPriceGwei:    DefaultGasPriceGwei,
		RevertMinutes:   DefaultRevertMinutes,
		MaxFailAttempts: DefaultMaxFailAttempts,
	}
}

// NewSettings builds settings, clamping numeric fields into usable ranges.
func NewSettings(f SettingsFields) Settings {
	s := Settings{
		Wallet:          strings.TrimSpace(f.Wallet),
		PrivateKey:      strings.TrimSpace(f.PrivateKey),
		Node:            strings.TrimSpace(f.Node),
		RevertMinutes:   f.RevertMinutes,
		MaxFailAttempts: f.MaxFailAttempts,
	}
	if s.Node == "" {
		s.Node = DefaultNode
	}
	if f.GasLimit < minGasLimit {
		s.GasLimit = minGasLimit
	} else {
		s.GasLimit = uint64(f.GasLimit)
	}
	s.GasPriceGwei = decimal.NewFromFloat(f.GasPriceGwei)
	if !s.GasPriceGwei.IsPositive() {
		s.GasPriceGwei = decimal.NewFromFloat(DefaultGasPriceGwei)
	}
	if s.RevertMinutes < 1 {
		s.RevertMinutes = 1
	}
	if s.MaxFailAttempts < 1 {
		s.MaxFailAttempts = 1
	}
	return s
}

// Fields converts settings back into storage form.
func (s Settings) Fields() SettingsFields {
	gp, _ := s.GasPriceGwei.Float64()
	return SettingsFields{
		Wallet:          s.Wallet,
		PrivateKey:      s.PrivateKey,
		Node:            s.Node,
		GasLimit:        int(s.GasLimit),
		GasPriceGwei:    gp,
		RevertMinutes:   s.RevertMinutes,
		MaxFailAttempts: s.MaxFailAttempts,
	}
}

// TokenConfig is one token the engine trades.
type TokenConfig struct {
	Name     string
	Address  string
	Exchange string
	// Slippage, BuyTax and SellTax are percentages.
	Slippage decimal.Decimal
	BuyTax   decimal.Decimal
	SellTax  decimal.Decimal
	Order    LimitOrder
}

// TokenFields are the primitive values a token is constructed from.
type TokenFields struct {
	Name     string
	Address  string
	Exchange string
	Slippage string
	BuyTax   string
	SellTax  string
	Order    OrderFields
}

// DefaultTokenFields mirrors a freshly added token entry.
func DefaultTokenFields() TokenFields {
	return TokenFields{
		Name:     "Empty",
		Exchange: "PancakeSwap v2",
		Slippage: "5.0",
		BuyTax:   "0.0",
		SellTax:  "0.0",
		Order:    DefaultOrderFields(),
	}
}

var minSlippage = decimal.NewFromInt(1)

// NewTokenConfig parses and clamps token fields. Slippage is kept within
// [1,100] and taxes are non-negative.
func NewTokenConfig(f TokenFields) (TokenConfig, error) {
	t := TokenConfig{
		Name:     strings.TrimSpace(f.Name),
		Address:  strings.TrimSpace(f.Address),
		Exchange: strings.TrimSpace(f.Exchange),
	}
	if t.Name == "" {
		t.Name = "Empty"
	}
	var err error
	if t.Slippage, err = parseDecimal("slippage", f.Slippage); err != nil {
		return TokenConfig{}, err
	}
	if t.BuyTax, err = parseDecimal("buy_tax", f.BuyTax); err != nil {
		return TokenConfig{}, err
	}
	if t.SellTax, err = parseDecimal("sell_tax", f.SellTax); err != nil {
		return TokenConfig{}, err
	}
	t.Slippage = clamp(t.Slippage, minSlippage, hundred)
	t.BuyTax = decimal.Max(t.BuyTax, decimal.Zero)
	t.SellTax = decimal.Max(t.SellTax, decimal.Zero)
	if t.Order, err = NewLimitOrder(f.Order); err != nil {
		return TokenConfig{}, err
	}
	return t, nil
}

// Fields converts the token back into storage form.
func (t TokenConfig) Fields() TokenFields {
	return TokenFields{
		Name:     t.Name,
		Address:  t.Address,
		Exchange: t.Exchange,
		Slippage: t.Slippage.String(),
		BuyTax:   t.BuyTax.String(),
		SellTax:  t.SellTax.String(),
		Order:    t.Order.Fields(),
	}
}

// WithOrder returns a copy of t carrying order.
func (t TokenConfig) WithOrder(order LimitOrder) TokenConfig {
	t.Order = order
	return t
}

// SameToken reports whether two entries refer to the same contract.
func SameToken(a, b TokenConfig) bool {
	return strings.EqualFold(a.Address, b.Address)
}

// CloneTokens copies a token list so callers can replace entries without
// touching the original slice.
func CloneTokens(in []TokenConfig) []TokenConfig {
	return append([]TokenConfig(nil), in...)
}
