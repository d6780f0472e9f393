// Package config resolves the process configuration of the limitbot CLI from
// flags, the environment and an optional .env file. Trading settings and the
// token list are not configured here; they live in the data files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"amm-limitbot/internal/state"
	"amm-limitbot/internal/supervisor"
)

// Config is everything the CLI needs besides the data files' contents.
type Config struct {
	DataDir          string
	SettingsFile     string
	TokensFile       string
	TransactionsFile string
	// ExchangesFile optionally extends the built-in exchange table.
	ExchangesFile string

	Workers          int
	PollInterval     time.Duration
	ConnectRetry     time.Duration
	RateLimitBackoff time.Duration

	MetricsAddr string
	EventLog    string

	// PrivateKey and Node override the values from the settings file for this
	// process only; they are never written back.
	PrivateKey string
	Node       string
}

// LoadEnv loads a .env file into the environment. A missing file is not an
// error; variables already set win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

// Parse reads flags from args with defaults taken from getenv.
func Parse(fs *flag.FlagSet, args []string, getenv func(string) string) (Config, error) {
	env := func(keys ...string) string {
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = getenv(k)
		}
		return strings.TrimSpace(firstNonEmpty(vals...))
	}

	workers, err := envInt(env("LIMITBOT_WORKERS"), supervisor.DefaultWorkers)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LIMITBOT_WORKERS: %w", err)
	}
	poll, err := envDuration(env("LIMITBOT_POLL_INTERVAL"), supervisor.DefaultPollInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LIMITBOT_POLL_INTERVAL: %w", err)
	}
	retry, err := envDuration(env("LIMITBOT_CONNECT_RETRY"), supervisor.DefaultConnectRetry)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LIMITBOT_CONNECT_RETRY: %w", err)
	}
	backoff, err := envDuration(env("LIMITBOT_RATE_LIMIT_BACKOFF"), supervisor.DefaultRateLimitBackoff)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LIMITBOT_RATE_LIMIT_BACKOFF: %w", err)
	}

	var c Config
	fs.StringVar(&c.DataDir, "data-dir", firstNonEmpty(env("LIMITBOT_DATA_DIR"), "."), "Directory holding data/settings.json, data/tokens.json and transactions.json")
	fs.StringVar(&c.SettingsFile, "settings", env("LIMITBOT_SETTINGS_FILE"), "Settings file (default <data-dir>/"+state.DefaultSettingsFile+")")
	fs.StringVar(&c.TokensFile, "tokens", env("LIMITBOT_TOKENS_FILE"), "Token list file (default <data-dir>/"+state.DefaultTokensFile+")")
	fs.StringVar(&c.TransactionsFile, "transactions", env("LIMITBOT_TRANSACTIONS_FILE"), "Transaction log (default <data-dir>/"+state.DefaultTransactionsFile+")")
	fs.StringVar(&c.ExchangesFile, "exchanges", env("LIMITBOT_EXCHANGES_FILE"), "Optional JSON file with extra exchange profiles")
	fs.IntVar(&c.Workers, "workers", workers, "Concurrent token discoveries/evaluations")
	fs.DurationVar(&c.PollInterval, "poll-interval", poll, "Shortest time between two trading iterations")
	fs.DurationVar(&c.ConnectRetry, "connect-retry", retry, "Delay between node connection attempts")
	fs.DurationVar(&c.RateLimitBackoff, "rate-limit-backoff", backoff, "Pause after the node answers 'too many requests'")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", env("LIMITBOT_METRICS_ADDR", "METRICS_ADDR"), "Prometheus listen address, e.g. :9108 (empty disables)")
	fs.StringVar(&c.EventLog, "events", env("LIMITBOT_EVENT_LOG"), "Optional JSONL file receiving run events")
	fs.StringVar(&c.PrivateKey, "private-key", env("PRIVATE_KEY"), "Private key hex overriding settings (or PRIVATE_KEY env)")
	fs.StringVar(&c.Node, "node", env("BSC_NODE", "BSC_RPC_URL"), "Node URL overriding settings (or BSC_NODE env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if c.Workers < 1 {
		return Config{}, fmt.Errorf("--workers must be >= 1 (got %d)", c.Workers)
	}
	if c.PollInterval < 0 || c.ConnectRetry <= 0 || c.RateLimitBackoff <= 0 {
		return Config{}, fmt.Errorf("intervals must be positive")
	}
	c.PrivateKey = strings.TrimSpace(c.PrivateKey)
	c.Node = strings.TrimSpace(c.Node)
	return c, nil
}

// Paths locates the data files.
func (c Config) Paths() state.Paths {
	return state.Paths{
		Dir:          c.DataDir,
		Settings:     c.SettingsFile,
		Tokens:       c.TokensFile,
		Transactions: c.TransactionsFile,
	}
}

func envInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func envDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
