package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/config"
	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/jsonl"
	"amm-limitbot/internal/metrics"
	"amm-limitbot/internal/model"
	"amm-limitbot/internal/state"
	"amm-limitbot/internal/supervisor"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := config.LoadEnv(); err != nil {
		log.Printf("[warn] %v", err)
	}
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
}

func run(cfg config.Config) error {
	store := state.NewStore(cfg.Paths())
	settings, tokens, err := load(store, cfg)
	if err != nil {
		return err
	}
	log.Printf("[cfg] settings=%s tokens=%s transactions=%s", store.SettingsPath(), store.TokensPath(), store.TransactionsPath())
	log.Printf("[cfg] node=%s gas_limit=%d gas_price=%s gwei deadline=%dm max_fail=%d tokens=%d",
		settings.Node, settings.GasLimit, settings.GasPriceGwei, settings.RevertMinutes, settings.MaxFailAttempts, len(tokens))

	contracts, err := dex.LoadContracts()
	if err != nil {
		return err
	}
	exchanges, err := dex.Builtin().WithFile(cfg.ExchangesFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("[warn] metrics: %v", err)
			}
		}()
	}

	eventLog := jsonl.New(cfg.EventLog)
	if eventLog != nil {
		log.Printf("[cfg] event log: %s (JSONL)", eventLog.Path())
		defer func() {
			if err := eventLog.Close(); err != nil {
				log.Printf("[warn] event log close: %v", err)
			}
		}()
	}

	sup := supervisor.New(supervisor.Config{
		Dial: func(ctx context.Context, s model.Settings, creds supervisor.Credentials) (chain.Client, error) {
			return chain.Dial(ctx, s.Node, creds.Key, contracts)
		},
		Store:            store,
		Contracts:        contracts,
		Exchanges:        exchanges,
		Metrics:          m,
		EventLog:         eventLog,
		Workers:          cfg.Workers,
		ConnectRetry:     cfg.ConnectRetry,
		RateLimitBackoff: cfg.RateLimitBackoff,
		PollInterval:     cfg.PollInterval,
	}, settings, tokens)

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	go logTrades(ctx, sup.Events())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	stopping := false
	for {
		select {
		case <-sup.Done():
			st := sup.Status()
			log.Printf("[info] run %s finished after %d iteration(s): %s", st.RunID, st.Iteration, st.StopReason)
			return st.Err
		case sig := <-sigCh:
			switch {
			case sig == syscall.SIGHUP:
				reload(store, cfg, sup)
			case !stopping:
				stopping = true
				log.Printf("[info] %s received; stopping after pending transactions settle (repeat to abort)", sig)
				sup.Stop()
			default:
				log.Printf("[warn] %s received again; aborting", sig)
				cancel()
			}
		}
	}
}

func load(store *state.Store, cfg config.Config) (model.Settings, []model.TokenConfig, error) {
	settings, err := store.LoadSettings()
	if err != nil {
		return model.Settings{}, nil, err
	}
	tokens, err := store.LoadTokens()
	if err != nil {
		return model.Settings{}, nil, err
	}
	return applyOverrides(settings, cfg), tokens, nil
}

// applyOverrides layers the process-only key and node over the stored
// settings.
func applyOverrides(s model.Settings, cfg config.Config) model.Settings {
	f := s.Fields()
	if cfg.PrivateKey != "" {
		f.PrivateKey = cfg.PrivateKey
	}
	if cfg.Node != "" {
		f.Node = cfg.Node
	}
	return model.NewSettings(f)
}

func reload(store *state.Store, cfg config.Config, sup *supervisor.Supervisor) {
	settings, tokens, err := load(store, cfg)
	if err != nil {
		log.Printf("[warn] reload: %v", err)
		return
	}
	sup.UpdateSettings(settings)
	sup.UpdateTokens(tokens)
	log.Printf("[cfg] reloaded settings and %d token(s)", len(tokens))
}

func logTrades(ctx context.Context, events <-chan supervisor.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Event {
			case supervisor.EventSubmitted:
				log.Printf("[trade] %s %s submitted nonce=%d tx=%s", ev.Token, ev.Kind, ev.Nonce, ev.TxHash)
			case supervisor.EventSettled:
				log.Printf("[trade] %s %s settled status=%s streak=%d tx=%s", ev.Token, ev.Kind, ev.Status, ev.FailStreak, ev.TxHash)
			}
		}
	}
}
