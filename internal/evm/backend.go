package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

// Backend is the node API the toolchain needs: everything bind uses to
// deploy a contract and wait for it, plus the chain id for signing.
// *ethclient.Client and simulated.Client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// devBalance funds the throwaway account of the simulated network.
var devBalance = new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil) // 10,000 ether

// automine wraps the simulated client so every accepted transaction is
// sealed into a block immediately, like a development node would.
type automine struct {
	simulated.Client
	chain *simulated.Backend
}

func (a *automine) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := a.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	a.chain.Commit()
	return nil
}

// NewSimulatedBackend starts an in-process chain with one funded account
// and returns a backend for it, that account's key, and a close function.
func NewSimulatedBackend() (Backend, *ecdsa.PrivateKey, func() error, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate development key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	chain := simulated.NewBackend(types.GenesisAlloc{
		addr: {Balance: devBalance},
	})
	return &automine{Client: chain.Client(), chain: chain}, key, chain.Close, nil
}

// DialBackend connects to a JSON-RPC endpoint.
func DialBackend(ctx context.Context, url string) (Backend, func() error, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return c, func() error { c.Close(); return nil }, nil
}
