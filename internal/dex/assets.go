package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Asset is one of the counter assets a token may be paired against.
type Asset struct {
	Symbol  string
	Address common.Address
	// Native marks the wrapped native coin; its reserves are priced through
	// the native/USD reference pair.
	Native bool
}

var (
	WBNB = Asset{Symbol: "BNB", Address: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), Native: true}
	BUSD = Asset{Symbol: "BUSD", Address: common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")}
	USDT = Asset{Symbol: "USDT", Address: common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")}
)

// NativeUSDPair is the BUSD/WBNB pool used to price the native coin.
var NativeUSDPair = common.HexToAddress("0x58F876857a02D6762E0101bb5C46A8c1ED44Dc16")

// MaxApproval is the unlimited ERC-20 allowance (2^256-1).
var MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// CounterAssets returns the three designated counter assets in discovery order.
func CounterAssets() []Asset {
	return []Asset{WBNB, BUSD, USDT}
}

// AssetBySymbol resolves a pay currency symbol.
func AssetBySymbol(symbol string) (Asset, error) {
	for _, a := range CounterAssets() {
		if strings.EqualFold(a.Symbol, strings.TrimSpace(symbol)) {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("unknown pay currency %q (want BNB, BUSD or USDT)", symbol)
}
