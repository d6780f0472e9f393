// Package dex describes the exchanges and assets the engine can trade against.
package dex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrUnknownExchange is returned for an exchange identifier outside the table.
var ErrUnknownExchange = errors.New("unknown exchange")

// Profile is one UniswapV2-style exchange deployment.
type Profile struct {
	Name    string
	Factory common.Address
	Router  common.Address
	// FeePct is the swap fee charged by every pool of the exchange, in percent.
	FeePct decimal.Decimal
}

// DefaultExchange is the identifier new token entries start with.
const DefaultExchange = "PancakeSwap v2"

var builtin = map[string]Profile{
	"PancakeSwap v2": {
		Name:    "PancakeSwap v2",
		Factory: common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"),
		Router:  common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E"),
		FeePct:  decimal.RequireFromString("0.25"),
	},
	"BiSwap": {
		Name:    "BiSwap",
		Factory: common.HexToAddress("0x858E3312ed3A876947EA49d572A7C42DE08af7EE"),
		Router:  common.HexToAddress("0x3a6d8cA21D1CF76F653A67577FA0D27453350dD8"),
		FeePct:  decimal.RequireFromString("0.1"),
	},
	"BabySwap": {
		Name:    "BabySwap",
		Factory: common.HexToAddress("0x86407bEa2078ea5f5EB5A52B2caA963bC1F889Da"),
		Router:  common.HexToAddress("0x325E343f1dE602396E256B67eFd1F61C3A6B38Bd"),
		FeePct:  decimal.RequireFromString("0.3"),
	},
	"ApeSwap": {
		Name:    "ApeSwap",
		Factory: common.HexToAddress("0x0841BD0B734E4F5853f0dD8d7Ea041c241fb0Da6"),
		Router:  common.HexToAddress("0xcF0feBd3f17CEf5b47b0cD257aCf6025c5BFf3b7"),
		FeePct:  decimal.RequireFromString("0.2"),
	},
}

// Table is a closed set of exchange profiles keyed by identifier.
type Table struct {
	profiles map[string]Profile
}

// Builtin returns the table of exchanges shipped with the engine.
func Builtin() *Table {
	t := &Table{profiles: make(map[string]Profile, len(builtin))}
	for k, v := range builtin {
		t.profiles[k] = v
	}
	return t
}

// Lookup resolves an exchange identifier. Unknown identifiers are an error;
// there is no fallback exchange.
func (t *Table) Lookup(name string) (Profile, error) {
	p, ok := t.profiles[strings.TrimSpace(name)]
	if !ok {
		return Profile{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownExchange, name, strings.Join(t.Names(), ", "))
	}
	return p, nil
}

// Names returns the known identifiers, sorted.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.profiles))
	for k := range t.profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type profileFile struct {
	Name    string `json:"name"`
	Factory string `json:"factory"`
	Router  string `json:"router"`
	Fee     string `json:"fee"`
}

// WithFile returns a copy of t extended by the profiles in a JSON file
// (`[{"name","factory","router","fee"}]`). Entries are validated here so a bad
// file fails at load time. A missing file leaves the table unchanged.
func (t *Table) WithFile(path string) (*Table, error) {
	out := &Table{profiles: make(map[string]Profile, len(t.profiles))}
	for k, v := range t.profiles {
		out.profiles[k] = v
	}
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, err
	}
	var entries []profileFile
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse exchanges %s: %w", path, err)
	}
	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("exchanges %s entry %d: name required", path, i)
		}
		if !common.IsHexAddress(e.Factory) || !common.IsHexAddress(e.Router) {
			return nil, fmt.Errorf("exchanges %s entry %q: invalid factory/router address", path, name)
		}
		fee, err := decimal.NewFromString(strings.TrimSpace(e.Fee))
		if err != nil || fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("exchanges %s entry %q: invalid fee %q", path, name, e.Fee)
		}
		out.profiles[name] = Profile{
			Name:    name,
			Factory: common.HexToAddress(e.Factory),
			Router:  common.HexToAddress(e.Router),
			FeePct:  fee,
		}
	}
	return out, nil
}
