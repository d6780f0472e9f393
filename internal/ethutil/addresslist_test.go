package ethutil

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestChecksumAddress(t *testing.T) {
	const good = "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82"

	t.Run("checksummed", func(t *testing.T) {
		got, err := ChecksumAddress(good)
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if got.Hex() != good {
			t.Fatalf("got %s want %s", got.Hex(), good)
		}
	})

	t.Run("lowercase", func(t *testing.T) {
		got, err := ChecksumAddress("0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if got.Hex() != good {
			t.Fatalf("got %s want %s", got.Hex(), good)
		}
	})

	t.Run("bad checksum", func(t *testing.T) {
		_, err := ChecksumAddress("0x0e09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82")
		if !errors.Is(err, ErrBadChecksum) {
			t.Fatalf("expected ErrBadChecksum, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := ChecksumAddress("  "); !errors.Is(err, ErrEmptyAddress) {
			t.Fatalf("expected ErrEmptyAddress, got %v", err)
		}
	})

	t.Run("not hex", func(t *testing.T) {
		if _, err := ChecksumAddress("0xnotanaddress"); err == nil {
			t.Fatalf("expected err")
		}
	})
}

func TestReversedAndJoin(t *testing.T) {
	a, b, c := common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3")
	got := Reversed([]common.Address{a, b, c})
	if len(got) != 3 || got[0] != c || got[1] != b || got[2] != a {
		t.Fatalf("unexpected order: %#v", got)
	}
	if s := JoinSymbols("BNB", "", "CAKE"); s != "BNB -> CAKE" {
		t.Fatalf("got %q", s)
	}
	if s := JoinHex([]common.Address{a}); s != a.Hex() {
		t.Fatalf("got %q", s)
	}
}
