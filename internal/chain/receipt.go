package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Transfer is one decoded ERC-20 Transfer log.
type Transfer struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

var (
	erc20TransferTopic  = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	errNoTransferInLogs = fmt.Errorf("no ERC-20 transfer in receipt logs")
)

// TransferTopic is the Transfer(address,address,uint256) event id.
func TransferTopic() common.Hash { return erc20TransferTopic }

// Transfers decodes every ERC-20 Transfer log in receipt, in log order.
// Malformed logs are skipped.
func Transfers(receipt *types.Receipt) []Transfer {
	if receipt == nil {
		return nil
	}
	out := make([]Transfer, 0, len(receipt.Logs))
	for _, lg := range receipt.Logs {
		if lg == nil || len(lg.Topics) < 3 || lg.Topics[0] != erc20TransferTopic {
			continue
		}
		if len(lg.Data) < 32 {
			continue
		}
		out = append(out, Transfer{
			Token: lg.Address,
			From:  common.BytesToAddress(lg.Topics[1].Bytes()),
			To:    common.BytesToAddress(lg.Topics[2].Bytes()),
			Value: new(big.Int).SetBytes(lg.Data[:32]),
		})
	}
	return out
}

// ReceivedAmount is the value of the last Transfer in a swap receipt: the
// tokens delivered on a buy, or the counter asset released on a sell.
func ReceivedAmount(receipt *types.Receipt) (*big.Int, error) {
	transfers := Transfers(receipt)
	if len(transfers) == 0 {
		return nil, errNoTransferInLogs
	}
	return new(big.Int).Set(transfers[len(transfers)-1].Value), nil
}

// GasCost is gasUsed * gasPrice in wei.
func GasCost(receipt *types.Receipt, gasPrice *big.Int) *big.Int {
	if receipt == nil || gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice)
}

// Succeeded reports whether the receipt carries a success status.
func Succeeded(receipt *types.Receipt) bool {
	return receipt != nil && receipt.Status == types.ReceiptStatusSuccessful
}
