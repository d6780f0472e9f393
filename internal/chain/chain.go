// Package chain is the engine's view of the remote node: typed contract reads,
// nonce queries, legacy transaction submission and receipt lookups.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReceiptNotFound means the transaction is not mined yet (or unknown to
	// the node).
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrRateLimited wraps node responses that ask the caller to slow down.
	ErrRateLimited = errors.New("rpc rate limited")
)

// TokenMeta is the static ERC-20 metadata of a token.
type TokenMeta struct {
	Symbol   string
	Decimals uint8
	Supply   *big.Int
}

// Reserves is a pool snapshot. Token0 tells which reserve slot belongs to which
// asset.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
	Token0   common.Address
}

// Empty reports whether either side of the pool holds nothing.
func (r Reserves) Empty() bool {
	return r.Reserve0 == nil || r.Reserve1 == nil || r.Reserve0.Sign() == 0 || r.Reserve1.Sign() == 0
}

// Reader is the read-only part of the node surface.
type Reader interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	TokenMeta(ctx context.Context, token common.Address) (TokenMeta, error)
	GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
	Reserves(ctx context.Context, pair common.Address) (Reserves, error)
}

// Client adds the write side: nonces, submission and receipts.
type Client interface {
	Reader
	// PendingNonce returns the next nonce to use for owner.
	PendingNonce(ctx context.Context, owner common.Address) (uint64, error)
	// Send signs and broadcasts req. Failures before broadcast are returned as
	// *SubmitError.
	Send(ctx context.Context, req TxRequest) (common.Hash, error)
	// Receipt returns ErrReceiptNotFound while the transaction is pending.
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxRequest is an unsigned legacy transaction.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
}

// SubmitKind classifies a transaction that never reached the mempool.
type SubmitKind int

const (
	SubmitOther SubmitKind = iota
	SubmitSigning
	SubmitAlreadyKnown
	SubmitNonceTooLow
	SubmitUnderpriced
	SubmitLowGasBalance
	SubmitReverted
)

var submitKindNames = [...]string{"other", "signing", "already_known", "nonce_too_low", "underpriced", "low_gas_balance", "reverted"}

func (k SubmitKind) String() string {
	if k < 0 || int(k) >= len(submitKindNames) {
		return "other"
	}
	return submitKindNames[k]
}

// SubmitError is a local submission failure: signing, node rejection or a
// revert found while simulating.
type SubmitError struct {
	Kind SubmitKind
	Err  error
}

func (e *SubmitError) Error() string {
	switch e.Kind {
	case SubmitSigning:
		return "signing transaction: check the private key matches the wallet"
	case SubmitAlreadyKnown:
		return "sending transaction: nonce already used"
	case SubmitNonceTooLow:
		return "sending transaction: nonce too low"
	case SubmitUnderpriced:
		return "sending transaction: cannot reuse a nonce with a lower gas price"
	case SubmitLowGasBalance:
		return "low BNB balance to pay gas fees"
	case SubmitReverted:
		return fmt.Sprintf("transaction would revert: %v", e.Err)
	default:
		return fmt.Sprintf("sending transaction: %v", e.Err)
	}
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ClassifySubmit maps a node rejection to a SubmitError.
func ClassifySubmit(err error) *SubmitError {
	if err == nil {
		return nil
	}
	var se *SubmitError
	if errors.As(err, &se) {
		return se
	}
	msg := strings.ToLower(err.Error())
	kind := SubmitOther
	switch {
	case strings.Contains(msg, "already known"):
		kind = SubmitAlreadyKnown
	case strings.Contains(msg, "nonce too low"):
		kind = SubmitNonceTooLow
	case strings.Contains(msg, "replacement transaction underpriced"):
		kind = SubmitUnderpriced
	case strings.Contains(msg, "gas required exceeds allowance"), strings.Contains(msg, "insufficient funds"):
		kind = SubmitLowGasBalance
	case strings.Contains(msg, "execution reverted"):
		kind = SubmitReverted
	}
	return &SubmitError{Kind: kind, Err: err}
}

// IsRateLimited reports whether err is a throttling response from the node.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}

func wrapRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsRateLimited(err) && !errors.Is(err, ErrRateLimited) {
		return fmt.Errorf("%s: %w: %v", op, ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
