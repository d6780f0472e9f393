package ethutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEmptyAddress = errors.New("address is empty")
	ErrBadChecksum  = errors.New("address checksum mismatch")
)

// ChecksumAddress validates s as a hex address and returns its EIP-55 form.
//
// All-lowercase and all-uppercase input carry no checksum and are accepted;
// mixed-case input must match its EIP-55 encoding exactly.
func ChecksumAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, ErrEmptyAddress
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid hex address %q", s)
	}
	addr := common.HexToAddress(s)
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if "0x"+body != addr.Hex() {
			return common.Address{}, fmt.Errorf("%w: %q (want %s)", ErrBadChecksum, s, addr.Hex())
		}
	}
	return addr, nil
}

// Reversed returns a copy of path in reverse order.
func Reversed(path []common.Address) []common.Address {
	out := make([]common.Address, len(path))
	for i, a := range path {
		out[len(path)-1-i] = a
	}
	return out
}

// JoinSymbols renders a swap route, e.g. "BNB -> BUSD -> CAKE".
func JoinSymbols(symbols ...string) string {
	parts := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " -> ")
}

// JoinHex renders addresses as a comma-separated hex list.
func JoinHex(addrs []common.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.Hex())
	}
	return strings.Join(parts, ",")
}
