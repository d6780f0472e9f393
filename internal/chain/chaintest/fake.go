// Package chaintest provides an in-memory chain.Client for tests.
package chaintest

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"amm-limitbot/internal/chain"
)

type pairKey struct {
	factory common.Address
	a, b    common.Address
}

func newPairKey(factory, a, b common.Address) pairKey {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return pairKey{factory: factory, a: a, b: b}
}

// Fake is a chain.Client backed by maps. Zero values read as zero balances,
// absent pairs and pending receipts. It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	native     map[common.Address]*big.Int
	balances   map[[2]common.Address]*big.Int
	allowances map[[3]common.Address]*big.Int
	meta       map[common.Address]chain.TokenMeta
	pairs      map[pairKey]common.Address
	pools      map[common.Address]chain.Reserves
	receipts   map[common.Hash]*types.Receipt
	receiptErr map[common.Hash]error

	nonce    uint64
	sendErrs []error
	sent     []chain.TxRequest
	// ReadErr, when set, fails every read.
	ReadErr error
	calls   map[string]int
}

func NewFake() *Fake {
	return &Fake{
		native:     make(map[common.Address]*big.Int),
		balances:   make(map[[2]common.Address]*big.Int),
		allowances: make(map[[3]common.Address]*big.Int),
		meta:       make(map[common.Address]chain.TokenMeta),
		pairs:      make(map[pairKey]common.Address),
		pools:      make(map[common.Address]chain.Reserves),
		receipts:   make(map[common.Hash]*types.Receipt),
		receiptErr: make(map[common.Hash]error),
		calls:      make(map[string]int),
	}
}

func (f *Fake) SetNative(owner common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native[owner] = new(big.Int).Set(wei)
}

func (f *Fake) SetTokenBalance(token, owner common.Address, raw *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[[2]common.Address{token, owner}] = new(big.Int).Set(raw)
}

func (f *Fake) SetAllowance(token, owner, spender common.Address, raw *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[[3]common.Address{token, owner, spender}] = new(big.Int).Set(raw)
}

func (f *Fake) SetMeta(token common.Address, symbol string, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[token] = chain.TokenMeta{Symbol: symbol, Decimals: decimals, Supply: big.NewInt(1_000_000)}
}

// SetPool registers pair as the factory's pool for tokenA/tokenB. reserveA and
// reserveB are ordered like the arguments; the fake sorts them into token0
// order the way a UniswapV2 pair does.
func (f *Fake) SetPool(factory, pair, tokenA, tokenB common.Address, reserveA, reserveB *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs[newPairKey(factory, tokenA, tokenB)] = pair
	r := chain.Reserves{Reserve0: new(big.Int).Set(reserveA), Reserve1: new(big.Int).Set(reserveB), Token0: tokenA}
	if bytes.Compare(tokenA[:], tokenB[:]) > 0 {
		r = chain.Reserves{Reserve0: new(big.Int).Set(reserveB), Reserve1: new(big.Int).Set(reserveA), Token0: tokenB}
	}
	f.pools[pair] = r
}

// SetNonce sets the next pending nonce.
func (f *Fake) SetNonce(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce = n
}

// FailNextSend queues err for the next Send call.
func (f *Fake) FailNextSend(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs = append(f.sendErrs, err)
}

// Mine stores a receipt for hash.
func (f *Fake) Mine(hash common.Hash, r *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = r
	delete(f.receiptErr, hash)
}

// FailReceipt makes Receipt(hash) return err.
func (f *Fake) FailReceipt(hash common.Hash, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptErr[hash] = err
}

// Sent returns the transactions broadcast so far.
func (f *Fake) Sent() []chain.TxRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.TxRequest(nil), f.sent...)
}

// Calls returns how often method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) read(method string) error {
	f.calls[method]++
	return f.ReadErr
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func (f *Fake) NativeBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("NativeBalance"); err != nil {
		return nil, err
	}
	return orZero(f.native[owner]), nil
}

func (f *Fake) TokenBalance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("TokenBalance"); err != nil {
		return nil, err
	}
	return orZero(f.balances[[2]common.Address{token, owner}]), nil
}

func (f *Fake) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("Allowance"); err != nil {
		return nil, err
	}
	return orZero(f.allowances[[3]common.Address{token, owner, spender}]), nil
}

func (f *Fake) TokenMeta(_ context.Context, token common.Address) (chain.TokenMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("TokenMeta"); err != nil {
		return chain.TokenMeta{}, err
	}
	m, ok := f.meta[token]
	if !ok {
		return chain.TokenMeta{}, fmt.Errorf("symbol(%s): execution reverted", token.Hex())
	}
	return m, nil
}

func (f *Fake) GetPair(_ context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("GetPair"); err != nil {
		return common.Address{}, err
	}
	return f.pairs[newPairKey(factory, tokenA, tokenB)], nil
}

func (f *Fake) Reserves(_ context.Context, pair common.Address) (chain.Reserves, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("Reserves"); err != nil {
		return chain.Reserves{}, err
	}
	r, ok := f.pools[pair]
	if !ok {
		return chain.Reserves{}, fmt.Errorf("getReserves(%s): execution reverted", pair.Hex())
	}
	return chain.Reserves{Reserve0: orZero(r.Reserve0), Reserve1: orZero(r.Reserve1), Token0: r.Token0}, nil
}

func (f *Fake) PendingNonce(_ context.Context, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("PendingNonce"); err != nil {
		return 0, err
	}
	return f.nonce, nil
}

// Send records req and returns a hash derived from its nonce, or the next
// queued failure classified as a submit error.
func (f *Fake) Send(_ context.Context, req chain.TxRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Send"]++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return common.Hash{}, chain.ClassifySubmit(err)
	}
	f.sent = append(f.sent, req)
	return HashFor(req.Nonce), nil
}

func (f *Fake) Receipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Receipt"]++
	if err := f.receiptErr[hash]; err != nil {
		return nil, err
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, chain.ErrReceiptNotFound
	}
	return r, nil
}

// HashFor is the transaction hash Send assigns to nonce.
func HashFor(nonce uint64) common.Hash {
	return crypto.Keccak256Hash(new(big.Int).SetUint64(nonce).Bytes(), []byte("fake-tx"))
}

// TransferReceipt builds a successful receipt whose last Transfer log moves
// value to to.
func TransferReceipt(token, to common.Address, value *big.Int, gasUsed uint64) *types.Receipt {
	return &types.Receipt{
		Status:  types.ReceiptStatusSuccessful,
		GasUsed: gasUsed,
		Logs: []*types.Log{{
			Address: token,
			Topics: []common.Hash{
				chain.TransferTopic(),
				common.BytesToHash(common.HexToAddress("0xdead").Bytes()),
				common.BytesToHash(to.Bytes()),
			},
			Data: new(big.Int).Set(value).FillBytes(make([]byte, 32)),
		}},
	}
}

var _ chain.Client = (*Fake)(nil)
