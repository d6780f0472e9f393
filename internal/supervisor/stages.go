package supervisor

import (
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/discovery"
	"amm-limitbot/internal/fixed"
	"amm-limitbot/internal/model"
	"amm-limitbot/internal/order"
)

// MinNativeForGas is the BNB needed to pay one transaction at 400000 gas and
// 5 gwei.
var MinNativeForGas = new(big.Int).Mul(big.NewInt(400000), big.NewInt(5_000_000_000))

func (s *Supervisor) connect(rc *runContext) error {
	rc.settings = s.Settings()
	retry := newStatusTracker("[warn]", minuteInterval)
	for {
		client, err := s.cfg.Dial(rc.ctx, rc.settings, rc.creds)
		if err == nil {
			rc.client = client
			log.Printf("Info: Bsc node connected successfully.")
			return nil
		}
		retry.Set("connect", fmt.Sprintf("Fail: Bsc connection failed (%v). retry in %s . . .", err, s.cfg.ConnectRetry))
		if !s.sleep(rc, s.cfg.ConnectRetry) {
			return rc.ctx.Err()
		}
	}
}

func (s *Supervisor) balances(rc *runContext) error {
	for {
		err := s.readBalances(rc)
		if err == nil || !chain.IsRateLimited(err) {
			return err
		}
		log.Printf("Warning: Too many requests, retry in %s . . .", s.cfg.RateLimitBackoff)
		if !s.sleep(rc, s.cfg.RateLimitBackoff) {
			return nil
		}
	}
}

// readBalances logs the wallet's BNB, BUSD and USDT balances and halts the run
// when BNB cannot cover a transaction.
func (s *Supervisor) readBalances(rc *runContext) error {
	wallet := rc.creds.Wallet
	native, err := rc.client.NativeBalance(rc.ctx, wallet)
	if err != nil {
		return fmt.Errorf("BNB balance: %w", err)
	}
	bnb := fixed.FromWei(native)
	log.Printf("Current BNB balance:  %s BNB", fixed.Readable(bnb, fixed.Places))
	s.metrics.SetWalletBalance(dex.WBNB.Symbol, bnb.InexactFloat64())

	for _, a := range []dex.Asset{dex.BUSD, dex.USDT} {
		raw, err := rc.client.TokenBalance(rc.ctx, a.Address, wallet)
		if err != nil {
			return fmt.Errorf("%s balance: %w", a.Symbol, err)
		}
		bal := fixed.FromRaw(raw, fixed.NativeDecimals)
		log.Printf("Current %-4s balance: %s %s", a.Symbol, fixed.Readable(bal, 2), a.Symbol)
		s.metrics.SetWalletBalance(a.Symbol, bal.InexactFloat64())
	}

	if native.Cmp(MinNativeForGas) < 0 {
		rc.halt("Warning: BNB balance too low for transaction fees.")
	}
	return nil
}

type discoverResult struct {
	token    model.TokenConfig
	res      *discovery.Result
	err      error
	terminal bool
}

// discover prices the native coin and runs discovery for tokens on the worker
// pool. Per-token errors are returned in the results, never as err.
func (s *Supervisor) discover(rc *runContext, tokens []model.TokenConfig) ([]discoverResult, error) {
	nativeUSD, err := discovery.NativePrice(rc.ctx, rc.client)
	if err != nil {
		return nil, err
	}
	rc.nativeUSD = nativeUSD
	s.metrics.SetNativePrice(nativeUSD.InexactFloat64())

	d := discovery.New(rc.client, s.cfg.Exchanges, rc.creds.Wallet)
	out := make([]discoverResult, len(tokens))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, t := range tokens {
		out[i].token = t
		if t.Order.IsTerminal() {
			out[i].terminal = true
			continue
		}
		i, t := i, t
		g.Go(func() error {
			out[i].res, out[i].err = d.Discover(rc.ctx, t, nativeUSD)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func (s *Supervisor) discoverAll(rc *runContext) error {
	var results []discoverResult
	for {
		var err error
		results, err = s.discover(rc, s.Tokens())
		if err == nil {
			break
		}
		if !chain.IsRateLimited(err) {
			return err
		}
		log.Printf("Warning: Too many requests, retry in %s . . .", s.cfg.RateLimitBackoff)
		if !s.sleep(rc, s.cfg.RateLimitBackoff) {
			return nil
		}
	}
	log.Printf("BNB price: %s USD", fixed.Readable(rc.nativeUSD, 2))

	for _, r := range results {
		switch {
		case r.terminal:
			log.Printf("Already traded with token '%s' (No more Buy/Sell orders left).", r.token.Name)
		case r.err != nil:
			log.Printf("Error: %v", r.err)
			log.Printf("Bot will not trade with Token '%s'.", r.token.Name)
			s.metrics.IncDiscoveryError()
			s.emit(rc, Event{Event: EventExcluded, Token: r.token.Name, Err: r.err.Error()})
		default:
			log.Printf("Token: %s", r.res.String())
			rc.discovered = append(rc.discovered, r.res)
		}
	}
	if len(rc.discovered) == 0 {
		rc.halt("After filtering, no token available to trade with.")
	}
	return nil
}

func (s *Supervisor) startEngines(rc *runContext) error {
	nonce, err := rc.client.PendingNonce(rc.ctx, rc.creds.Wallet)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	rc.nonces = order.NewNonces(nonce)
	deps := order.Deps{
		Client:    rc.client,
		Contracts: s.cfg.Contracts,
		Wallet:    rc.creds.Wallet,
		Nonces:    rc.nonces,
		Now:       s.now,
	}
	rc.engines = make(map[common.Address]*order.Engine, len(rc.discovered))
	rc.seen = make(map[common.Address]model.TokenFields, len(rc.discovered))
	for _, res := range rc.discovered {
		if _, dup := rc.engines[res.Address]; dup {
			log.Printf("[warn] token %s listed twice; trading the first entry only", res.Address.Hex())
			continue
		}
		rc.engines[res.Address] = order.New(deps, res)
		rc.seen[res.Address] = res.Token.Fields()
		rc.keys = append(rc.keys, res.Address)
	}
	log.Printf("Info: trading %d token(s), starting nonce %d.", len(rc.keys), nonce)
	s.metrics.SetTokensTrading(len(rc.keys))
	s.updateStatus(func(st *Status) { st.Tokens = len(rc.keys) })
	return nil
}
