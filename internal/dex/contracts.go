package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Router method names used for swaps. All variants support fee-on-transfer
// tokens so taxed tokens settle.
const (
	MethodSwapNativeForTokens = "swapExactETHForTokensSupportingFeeOnTransferTokens"
	MethodSwapTokensForTokens = "swapExactTokensForTokensSupportingFeeOnTransferTokens"
	MethodSwapTokensForNative = "swapExactTokensForETHSupportingFeeOnTransferTokens"
)

const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

const pairABIJSON = `[
  {"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const factoryABIJSON = `[
  {"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"view","type":"function"}
]`

const routerABIJSON = `[
  {"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokensSupportingFeeOnTransferTokens","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokensSupportingFeeOnTransferTokens","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForETHSupportingFeeOnTransferTokens","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Contracts holds the parsed contract interfaces. It is built once at startup
// and passed to the components that pack or unpack calls.
type Contracts struct {
	ERC20   abi.ABI
	Pair    abi.ABI
	Factory abi.ABI
	Router  abi.ABI
}

// LoadContracts parses the embedded contract interfaces.
func LoadContracts() (*Contracts, error) {
	var c Contracts
	for _, item := range []struct {
		name string
		raw  string
		dst  *abi.ABI
	}{
		{name: "erc20", raw: erc20ABIJSON, dst: &c.ERC20},
		{name: "pair", raw: pairABIJSON, dst: &c.Pair},
		{name: "factory", raw: factoryABIJSON, dst: &c.Factory},
		{name: "router", raw: routerABIJSON, dst: &c.Router},
	} {
		parsed, err := abi.JSON(strings.NewReader(item.raw))
		if err != nil {
			return nil, fmt.Errorf("%s abi parse: %w", item.name, err)
		}
		*item.dst = parsed
	}
	return &c, nil
}
