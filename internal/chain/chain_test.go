package chain

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func transferLog(token, from, to common.Address, value int64) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			TransferTopic(),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: big.NewInt(value).FillBytes(make([]byte, 32)),
	}
}

func TestReceivedAmountUsesLastTransfer(t *testing.T) {
	// Mirrors a BNB -> TKN swap through the router:
	// - WBNB moves from the router into the pair
	// - the pair sends tokens to the wallet
	wallet := common.HexToAddress("0x49226C9a8eae5b040f4aa878369C6ab130985B4C")
	pair := common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	router := common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	wbnb := common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	token := common.HexToAddress("0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82")

	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			transferLog(wbnb, router, pair, 1_000_000),
			{Address: pair, Topics: []common.Hash{common.HexToHash("0x1c411e9a")}},
			transferLog(token, pair, wallet, 42_000),
		},
	}

	got, err := ReceivedAmount(receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 42_000 {
		t.Fatalf("amount mismatch: got %s want 42000", got)
	}
	if n := len(Transfers(receipt)); n != 2 {
		t.Fatalf("transfers: got %d want 2", n)
	}
	if !Succeeded(receipt) {
		t.Fatalf("expected success")
	}
}

func TestReceivedAmountWithoutTransfers(t *testing.T) {
	if _, err := ReceivedAmount(&types.Receipt{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ReceivedAmount(nil); err == nil {
		t.Fatalf("expected error for nil receipt")
	}
}

func TestGasCost(t *testing.T) {
	r := &types.Receipt{GasUsed: 150_000}
	got := GasCost(r, big.NewInt(5_000_000_000))
	if got.String() != "750000000000000" {
		t.Fatalf("got %s", got)
	}
	if GasCost(nil, big.NewInt(1)).Sign() != 0 {
		t.Fatalf("nil receipt should cost nothing")
	}
}

func TestClassifySubmit(t *testing.T) {
	cases := []struct {
		msg  string
		want SubmitKind
	}{
		{"already known", SubmitAlreadyKnown},
		{"nonce too low: next nonce 12, tx nonce 10", SubmitNonceTooLow},
		{"replacement transaction underpriced", SubmitUnderpriced},
		{"gas required exceeds allowance (0)", SubmitLowGasBalance},
		{"insufficient funds for gas * price + value", SubmitLowGasBalance},
		{"execution reverted: PancakeRouter: EXPIRED", SubmitReverted},
		{"connection reset by peer", SubmitOther},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			se := ClassifySubmit(errors.New(tc.msg))
			if se.Kind != tc.want {
				t.Fatalf("kind: got %d want %d", se.Kind, tc.want)
			}
			if se.Error() == "" {
				t.Fatalf("empty message")
			}
		})
	}

	wrapped := fmt.Errorf("buy: %w", &SubmitError{Kind: SubmitSigning})
	if got := ClassifySubmit(wrapped); got.Kind != SubmitSigning {
		t.Fatalf("wrapped SubmitError should be kept, got %d", got.Kind)
	}
	if ClassifySubmit(nil) != nil {
		t.Fatalf("nil error should classify to nil")
	}
}

func TestRateLimitDetection(t *testing.T) {
	if !IsRateLimited(errors.New("429 Too Many Requests")) {
		t.Fatalf("expected rate limit")
	}
	err := wrapRPC("getReserves", errors.New("rate limit exceeded"))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("wrapRPC should tag rate limits, got %v", err)
	}
	if IsRateLimited(wrapRPC("getPair", errors.New("EOF"))) {
		t.Fatalf("EOF is not a rate limit")
	}
}

func TestValidateNodeURLAndKey(t *testing.T) {
	if _, err := ValidateNodeURL("bsc-dataseed.binance.org"); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, err := ValidateNodeURL("wss://bsc.example/YOUR_KEY"); err == nil {
		t.Fatalf("expected placeholder error")
	}
	if u, err := ValidateNodeURL(" https://bsc-dataseed1.defibit.io "); err != nil || u != "https://bsc-dataseed1.defibit.io" {
		t.Fatalf("got %q %v", u, err)
	}
	if _, err := ParseKey(""); err == nil {
		t.Fatalf("expected empty key error")
	}
	if _, err := ParseKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"); err != nil {
		t.Fatalf("unexpected key error: %v", err)
	}
}

func TestReservesEmpty(t *testing.T) {
	if !(Reserves{Reserve0: big.NewInt(0), Reserve1: big.NewInt(5)}).Empty() {
		t.Fatalf("zero reserve should be empty")
	}
	if (Reserves{Reserve0: big.NewInt(1), Reserve1: big.NewInt(5)}).Empty() {
		t.Fatalf("non-zero reserves are not empty")
	}
}
