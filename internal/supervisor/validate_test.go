package supervisor

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/model"
)

func TestValidate(t *testing.T) {
	good, wallet := testSettings(t)
	tokens := []model.TokenConfig{cakeToken(t, nil)}

	edit := func(fn func(*model.SettingsFields)) model.Settings {
		f := good.Fields()
		fn(&f)
		return model.NewSettings(f)
	}
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	creds, err := Validate(good, tokens, dex.Builtin())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if creds.Wallet != wallet || crypto.PubkeyToAddress(creds.Key.PublicKey) != wallet {
		t.Fatalf("credentials do not match the wallet")
	}

	cases := []struct {
		name     string
		settings model.Settings
		tokens   []model.TokenConfig
		is       error
		contains string
	}{
		{name: "no wallet", settings: edit(func(f *model.SettingsFields) { f.Wallet = " " }), tokens: tokens, is: ErrNoWallet},
		{name: "bad checksum", settings: edit(func(f *model.SettingsFields) { f.Wallet = "0x10ed43C718714eb63d5aA57B78B54704E256024E" }), tokens: tokens, contains: "wallet address"},
		{name: "no key", settings: edit(func(f *model.SettingsFields) { f.PrivateKey = "" }), tokens: tokens, is: ErrNoPrivateKey},
		{name: "bad key", settings: edit(func(f *model.SettingsFields) { f.PrivateKey = "0xzz" }), tokens: tokens, contains: "private key"},
		{name: "foreign key", settings: edit(func(f *model.SettingsFields) {
			f.PrivateKey = hex.EncodeToString(crypto.FromECDSA(other))
		}), tokens: tokens, is: ErrKeyMismatch},
		{name: "bad node", settings: edit(func(f *model.SettingsFields) { f.Node = "bsc-dataseed.example" }), tokens: tokens, contains: "node"},
		{name: "no tokens", settings: good, is: ErrNoTokens},
		{name: "token without address", settings: good, tokens: []model.TokenConfig{cakeToken(t, func(f *model.TokenFields) { f.Address = "" })}, contains: "insert token address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.settings, tc.tokens, dex.Builtin())
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("got %v want %v", err, tc.is)
			}
			if tc.contains != "" && !strings.Contains(err.Error(), tc.contains) {
				t.Fatalf("got %q want it to mention %q", err, tc.contains)
			}
		})
	}
}

