// Package state reads and writes the engine's JSON files: the settings
// object, the token list and the append-only transaction log.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"amm-limitbot/internal/model"
)

const (
	DefaultSettingsFile     = "data/settings.json"
	DefaultTokensFile       = "data/tokens.json"
	DefaultTransactionsFile = "transactions.json"
)

// Paths locates the three files. Blank fields take the defaults relative to
// Dir.
type Paths struct {
	Dir          string
	Settings     string
	Tokens       string
	Transactions string
}

func (p Paths) resolve(name, def string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return filepath.Join(p.Dir, def)
}

// Store is safe for concurrent use. Writes go to a temp file first and are
// renamed into place so a crash never leaves a half-written file.
type Store struct {
	mu           sync.Mutex
	settings     string
	tokens       string
	transactions string
}

func NewStore(p Paths) *Store {
	return &Store{
		settings:     p.resolve(p.Settings, DefaultSettingsFile),
		tokens:       p.resolve(p.Tokens, DefaultTokensFile),
		transactions: p.resolve(p.Transactions, DefaultTransactionsFile),
	}
}

func (s *Store) SettingsPath() string     { return s.settings }
func (s *Store) TokensPath() string       { return s.tokens }
func (s *Store) TransactionsPath() string { return s.transactions }

// LoadSettings returns the default settings when the file does not exist.
func (s *Store) LoadSettings() (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := model.NewSettings(model.DefaultSettingsFields())
	ok, err := readJSON(s.settings, &settings)
	if err != nil || !ok {
		return model.NewSettings(model.DefaultSettingsFields()), err
	}
	return settings, nil
}

func (s *Store) SaveSettings(settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.settings, settings)
}

// LoadTokens returns an empty list when the file does not exist.
func (s *Store) LoadTokens() ([]model.TokenConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []model.TokenConfig
	if _, err := readJSON(s.tokens, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// SaveTokens overwrites the whole token list.
func (s *Store) SaveTokens(tokens []model.TokenConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tokens == nil {
		tokens = []model.TokenConfig{}
	}
	return writeJSON(s.tokens, tokens)
}

func (s *Store) LoadTransactions() ([]model.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadTransactionsLocked()
}

func (s *Store) loadTransactionsLocked() ([]model.TransactionRecord, error) {
	var recs []model.TransactionRecord
	if _, err := readJSON(s.transactions, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// AppendTransactions adds recs to the end of the transaction log.
func (s *Store) AppendTransactions(recs []model.TransactionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.loadTransactionsLocked()
	if err != nil {
		return err
	}
	return writeJSON(s.transactions, append(existing, recs...))
}

func readJSON(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
