package main

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"amm-limitbot/internal/model"
)

func TestResolveOwnerAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey)
	keyHex := "0x" + hex.EncodeToString(crypto.FromECDSA(key))
	wallet := "0x10ED43C718714eb63d5aA57B78B54704E256024E"

	withWallet := model.NewSettings(model.SettingsFields{Wallet: wallet})
	empty := model.NewSettings(model.DefaultSettingsFields())

	cases := []struct {
		name     string
		flag     string
		settings model.Settings
		key      string
		want     string
		src      string
	}{
		{"flag wins", "0x55d398326f99059fF775485246999027B3197955", withWallet, keyHex, "0x55d398326f99059fF775485246999027B3197955", "--address"},
		{"settings wallet", "", withWallet, keyHex, wallet, "settings"},
		{"derived from key", "", empty, keyHex, signer.Hex(), "private key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, src, err := resolveOwnerAddress(tc.flag, tc.settings, tc.key)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got.Hex() != tc.want || src != tc.src {
				t.Fatalf("got %s (%s) want %s (%s)", got.Hex(), src, tc.want, tc.src)
			}
		})
	}

	if _, _, err := resolveOwnerAddress("", empty, ""); err == nil {
		t.Fatalf("expected error without any wallet source")
	}
	if _, _, err := resolveOwnerAddress("0xnothex", empty, ""); err == nil {
		t.Fatalf("expected error for invalid --address")
	}
}
