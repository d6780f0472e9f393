package supervisor

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"amm-limitbot/internal/chain"
	"amm-limitbot/internal/dex"
	"amm-limitbot/internal/ethutil"
	"amm-limitbot/internal/model"
)

var (
	ErrNoWallet     = errors.New("you need to insert your wallet in settings")
	ErrNoPrivateKey = errors.New("you need to insert your private key in settings")
	ErrKeyMismatch  = errors.New("private key does not belong to the wallet")
	ErrNoTokens     = errors.New("token list is empty")
)

// Credentials are the parsed wallet and signing key of a run.
type Credentials struct {
	Wallet common.Address
	Key    *ecdsa.PrivateKey
}

// Validate checks the settings and every token before a run starts. The first
// failing field is reported.
func Validate(settings model.Settings, tokens []model.TokenConfig, exchanges *dex.Table) (Credentials, error) {
	var creds Credentials
	if strings.TrimSpace(settings.Wallet) == "" {
		return creds, ErrNoWallet
	}
	wallet, err := ethutil.ChecksumAddress(settings.Wallet)
	if err != nil {
		return creds, fmt.Errorf("please re-check your wallet address: %w", err)
	}
	if strings.TrimSpace(settings.PrivateKey) == "" {
		return creds, ErrNoPrivateKey
	}
	key, err := chain.ParseKey(settings.PrivateKey)
	if err != nil {
		return creds, fmt.Errorf("please re-check your private key: %w", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != wallet {
		return creds, ErrKeyMismatch
	}
	if _, err := chain.ValidateNodeURL(settings.Node); err != nil {
		return creds, fmt.Errorf("please re-check the node: %w", err)
	}

	if len(tokens) == 0 {
		return creds, ErrNoTokens
	}
	for _, t := range tokens {
		if strings.TrimSpace(t.Address) == "" {
			return creds, fmt.Errorf("you need to insert token address for token 'Name: %s'", t.Name)
		}
		if _, err := ethutil.ChecksumAddress(t.Address); err != nil {
			return creds, fmt.Errorf("please re-check token address for token 'Name: %s': %w", t.Name, err)
		}
		if _, err := exchanges.Lookup(t.Exchange); err != nil {
			return creds, fmt.Errorf("token 'Name: %s': %w", t.Name, err)
		}
	}
	return Credentials{Wallet: wallet, Key: key}, nil
}
