package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"amm-limitbot/internal/dex"
)

// EthClient implements Client over go-ethereum's ethclient.
type EthClient struct {
	ec      *ethclient.Client
	abi     *dex.Contracts
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

// ValidateNodeURL checks that url is a usable http(s) or ws(s) endpoint.
func ValidateNodeURL(url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("node URL required")
	}
	if !strings.HasPrefix(url, "http") && !strings.HasPrefix(url, "ws") {
		return "", fmt.Errorf("node URL must be http(s)://... or ws(s)://..., got %q", url)
	}
	if strings.Contains(url, "YOUR_KEY") {
		return "", fmt.Errorf("node URL still contains placeholder YOUR_KEY")
	}
	return url, nil
}

// ParseKey decodes a hex private key, with or without 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	return crypto.HexToECDSA(hexKey)
}

// Dial connects to url and reads the chain id. key may be nil for a read-only
// client; Send then fails with a signing error.
func Dial(ctx context.Context, url string, key *ecdsa.PrivateKey, contracts *dex.Contracts) (*EthClient, error) {
	if contracts == nil {
		return nil, fmt.Errorf("contracts required")
	}
	url, err := ValidateNodeURL(url)
	if err != nil {
		return nil, err
	}
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, wrapRPC("dial node", err)
	}
	ec := ethclient.NewClient(rc)
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, wrapRPC("chain id", err)
	}
	c := &EthClient{ec: ec, abi: contracts, key: key, chainID: chainID}
	if key != nil {
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

func (c *EthClient) Close() { c.ec.Close() }

// ChainID is the id read at dial time.
func (c *EthClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// From is the address of the signing key.
func (c *EthClient) From() common.Address { return c.from }

func (c *EthClient) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, wrapRPC(method+"("+to.Hex()+")", err)
	}
	res, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s(%s): %w", method, to.Hex(), err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%s(%s) returned empty result", method, to.Hex())
	}
	return res, nil
}

func (c *EthClient) callBig(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	res, err := c.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s(%s): unexpected result type %T", method, to.Hex(), res[0])
	}
	return v, nil
}

func (c *EthClient) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := c.ec.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, wrapRPC("balance "+owner.Hex(), err)
	}
	return bal, nil
}

func (c *EthClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callBig(ctx, c.abi.ERC20, token, "balanceOf", owner)
}

func (c *EthClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callBig(ctx, c.abi.ERC20, token, "allowance", owner, spender)
}

func (c *EthClient) TokenMeta(ctx context.Context, token common.Address) (TokenMeta, error) {
	var meta TokenMeta
	res, err := c.call(ctx, c.abi.ERC20, token, "symbol")
	if err != nil {
		return meta, err
	}
	meta.Symbol, _ = res[0].(string)

	res, err = c.call(ctx, c.abi.ERC20, token, "decimals")
	if err != nil {
		return meta, err
	}
	dec, ok := res[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals(%s): unexpected result type %T", token.Hex(), res[0])
	}
	meta.Decimals = dec

	if meta.Supply, err = c.callBig(ctx, c.abi.ERC20, token, "totalSupply"); err != nil {
		return meta, err
	}
	return meta, nil
}

func (c *EthClient) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	res, err := c.call(ctx, c.abi.Factory, factory, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	pair, ok := res[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("getPair: unexpected result type %T", res[0])
	}
	return pair, nil
}

func (c *EthClient) Reserves(ctx context.Context, pair common.Address) (Reserves, error) {
	res, err := c.call(ctx, c.abi.Pair, pair, "getReserves")
	if err != nil {
		return Reserves{}, err
	}
	if len(res) < 2 {
		return Reserves{}, fmt.Errorf("getReserves(%s): short result", pair.Hex())
	}
	r0, ok0 := res[0].(*big.Int)
	r1, ok1 := res[1].(*big.Int)
	if !ok0 || !ok1 {
		return Reserves{}, fmt.Errorf("getReserves(%s): unexpected result types", pair.Hex())
	}
	res, err = c.call(ctx, c.abi.Pair, pair, "token0")
	if err != nil {
		return Reserves{}, err
	}
	t0, ok := res[0].(common.Address)
	if !ok {
		return Reserves{}, fmt.Errorf("token0(%s): unexpected result type %T", pair.Hex(), res[0])
	}
	return Reserves{Reserve0: r0, Reserve1: r1, Token0: t0}, nil
}

func (c *EthClient) PendingNonce(ctx context.Context, owner common.Address) (uint64, error) {
	n, err := c.ec.PendingNonceAt(ctx, owner)
	if err != nil {
		return 0, wrapRPC("pending nonce "+owner.Hex(), err)
	}
	return n, nil
}

// Send simulates req, signs it as a legacy transaction and broadcasts it. A
// zero GasLimit is estimated by the node.
func (c *EthClient) Send(ctx context.Context, req TxRequest) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, &SubmitError{Kind: SubmitSigning, Err: errors.New("no private key loaded")}
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	msg := ethereum.CallMsg{
		From:     c.from,
		To:       &req.To,
		Gas:      req.GasLimit,
		GasPrice: req.GasPrice,
		Value:    value,
		Data:     req.Data,
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		est, err := c.ec.EstimateGas(ctx, msg)
		if err != nil {
			return common.Hash{}, ClassifySubmit(err)
		}
		gasLimit = est
	} else if _, err := c.ec.CallContract(ctx, msg, nil); err != nil {
		return common.Hash{}, ClassifySubmit(err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    req.Nonce,
		GasPrice: req.GasPrice,
		Gas:      gasLimit,
		To:       &req.To,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, &SubmitError{Kind: SubmitSigning, Err: err}
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, ClassifySubmit(err)
	}
	return signed.Hash(), nil
}

func (c *EthClient) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := c.ec.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, wrapRPC("receipt "+hash.Hex(), err)
	}
	return r, nil
}
