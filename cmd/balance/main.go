package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/config"
	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/discovery"
	"amm-limitbot/internal/fixed"
	"amm-limitbot/internal/model"
	"amm-limitbot/internal/state"
	"amm-limitbot/internal/supervisor"
)

func main() {
	log.SetFlags(0)

	if err := config.LoadEnv(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var addrFlag string
	var timeout time.Duration
	flag.StringVar(&addrFlag, "address", "", "Wallet address to check (default: settings wallet or signer from PRIVATE_KEY)")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline for node calls")
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	store := state.NewStore(cfg.Paths())
	settings, err := store.LoadSettings()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	tokens, err := store.LoadTokens()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	node := firstNonEmpty(cfg.Node, settings.Node)

	owner, ownerSrc, err := resolveOwnerAddress(addrFlag, settings, cfg.PrivateKey)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	contracts, err := dex.LoadContracts()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	exchanges, err := dex.Builtin().WithFile(cfg.ExchangesFile)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := chain.Dial(ctx, node, nil, contracts)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()

	fmt.Printf("owner: %s (%s)\n", owner.Hex(), ownerSrc)
	fmt.Printf("node: %s (chain id %s)\n", node, client.ChainID())
	if err := report(ctx, client, exchanges, owner, tokens); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
}

// report prints the counter asset balances and, per listed token, the pool the
// bot would trade on with the wallet's balance and router allowance.
func report(ctx context.Context, client chain.Reader, exchanges *dex.Table, owner common.Address, tokens []model.TokenConfig) error {
	native, err := client.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}
	nativeUSD, err := discovery.NativePrice(ctx, client)
	if err != nil {
		return err
	}
	fmt.Printf("bnb_price: %s USD\n", fixed.Readable(nativeUSD, 2))
	fmt.Printf("bnb_balance: %s (gas ok: %t)\n", fixed.Readable(fixed.FromWei(native), fixed.Places), native.Cmp(supervisor.MinNativeForGas) >= 0)
	for _, a := range []dex.Asset{dex.BUSD, dex.USDT} {
		raw, err := client.TokenBalance(ctx, a.Address, owner)
		if err != nil {
			return err
		}
		fmt.Printf("%s_balance: %s\n", strings.ToLower(a.Symbol), fixed.Readable(fixed.FromRaw(raw, fixed.NativeDecimals), 2))
	}

	d := discovery.New(client, exchanges, owner)
	for _, t := range tokens {
		fmt.Println("----")
		if t.Order.IsTerminal() {
			fmt.Printf("token: %s (no orders left)\n", t.Name)
			continue
		}
		res, err := d.Discover(ctx, t, nativeUSD)
		if err != nil {
			fmt.Printf("token: %s error: %v\n", t.Name, err)
			continue
		}
		fmt.Println(res.String())
		q, err := res.Quote(ctx, client)
		if err != nil {
			fmt.Printf("price error: %v\n", err)
			continue
		}
		fmt.Printf("price: %s USD / %s BNB\n", fixed.Readable(q.USD, fixed.Places), fixed.Readable(q.Native, fixed.Places))
		fmt.Printf("balance: %s %s allowance_ok: %t\n",
			fixed.Readable(fixed.FromRaw(res.Balance, int32(res.Meta.Decimals)), fixed.Places), res.Meta.Symbol,
			res.Allowance.Cmp(res.Balance) > 0)
	}
	return nil
}

func resolveOwnerAddress(addrFlag string, settings model.Settings, keyOverride string) (common.Address, string, error) {
	if raw := strings.TrimSpace(addrFlag); raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, "", fmt.Errorf("invalid --address %q", raw)
		}
		return common.HexToAddress(raw), "--address", nil
	}
	if w := strings.TrimSpace(settings.Wallet); w != "" {
		if !common.IsHexAddress(w) {
			return common.Address{}, "", fmt.Errorf("invalid wallet in settings %q", w)
		}
		return common.HexToAddress(w), "settings", nil
	}
	if pkHex := firstNonEmpty(keyOverride, settings.PrivateKey); pkHex != "" {
		pk, err := chain.ParseKey(pkHex)
		if err != nil {
			return common.Address{}, "", fmt.Errorf("invalid private key: %w", err)
		}
		return crypto.PubkeyToAddress(pk.PublicKey), "private key", nil
	}
	return common.Address{}, "", fmt.Errorf("wallet required: set it in settings, export PRIVATE_KEY, or pass --address")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
