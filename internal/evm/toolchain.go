// Package evm implements the contract toolchain on top of go-ethereum.
//
// It is the default collaborator of the deployer: contract factories are
// built from compiled artifacts, deployments are signed with a configured
// key and submitted with bind.DeployContract, and confirmation is awaited
// with bind.WaitMined under the network's timeout.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/shinji-kodama/project-deployer/internal/artifact"
	"github.com/shinji-kodama/project-deployer/internal/config"
	"github.com/shinji-kodama/project-deployer/internal/deployer"
	"github.com/shinji-kodama/project-deployer/internal/model"
)

// Options tune a Toolchain built with New.
type Options struct {
	// Network is the name reported in deployment records.
	Network string

	// ChainID, when non-nil, must match the chain id reported by the node.
	ChainID *big.Int

	// Timeout bounds the wait for confirmation. Zero means config.DefaultTimeout.
	Timeout time.Duration

	// GasLimit fixes the creation gas limit. Zero means estimate.
	GasLimit uint64

	Logger *zap.Logger
}

// Toolchain hands out contract factories for artifacts in a store and
// deploys them through a backend, signing with a single key.
type Toolchain struct {
	backend  Backend
	store    *artifact.Store
	key      *ecdsa.PrivateKey
	from     common.Address
	network  string
	timeout  time.Duration
	gasLimit uint64
	logger   *zap.Logger
	closeFn  func() error

	chainOnce sync.Once
	wantChain *big.Int
	chainID   *big.Int
	chainErr  error
}

// New creates a toolchain over an existing backend. The backend is not
// contacted until the first deployment.
func New(backend Backend, key *ecdsa.PrivateKey, store *artifact.Store, opts Options) *Toolchain {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return &Toolchain{
		backend:   backend,
		store:     store,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		network:   opts.Network,
		timeout:   timeout,
		gasLimit:  opts.GasLimit,
		logger:    logger.With(zap.String("network", opts.Network)),
		wantChain: opts.ChainID,
	}
}

// Open builds the toolchain for the resolved network: the in-process
// simulated chain, or a JSON-RPC node signed for with the key from the
// network's private key variable.
func Open(ctx context.Context, cfg *config.Config, network config.Network, logger *zap.Logger) (*Toolchain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := artifact.NewStore(cfg.ArtifactsDir())

	if network.IsSimulated() {
		backend, key, closeFn, err := NewSimulatedBackend()
		if err != nil {
			return nil, model.NewDeployError(model.KindInvalidConfig, "", err)
		}
		tc := New(backend, key, store, Options{Network: network.Name, Logger: logger})
		tc.closeFn = closeFn
		logger.Debug("started simulated network", zap.String("account", tc.from.Hex()))
		return tc, nil
	}

	timeout, err := network.ConfirmationTimeout()
	if err != nil {
		return nil, model.NewDeployError(model.KindInvalidConfig, "", err)
	}

	hexKey := network.PrivateKey()
	if hexKey == "" {
		env := network.PrivateKeyEnv
		if env == "" {
			env = config.EnvPrivateKey
		}
		return nil, model.NewDeployError(model.KindInvalidConfig, "",
			fmt.Errorf("network %q: no signer key, set %s", network.Name, env))
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, model.NewDeployError(model.KindInvalidConfig, "",
			fmt.Errorf("network %q: invalid private key: %w", network.Name, err))
	}

	backend, closeFn, err := DialBackend(ctx, network.URL)
	if err != nil {
		return nil, model.NewDeployError(model.KindInvalidConfig, "", err)
	}

	var chainID *big.Int
	if network.ChainID != 0 {
		chainID = new(big.Int).SetUint64(network.ChainID)
	}
	tc := New(backend, key, store, Options{
		Network:  network.Name,
		ChainID:  chainID,
		Timeout:  timeout,
		GasLimit: network.GasLimit,
		Logger:   logger,
	})
	tc.closeFn = closeFn
	logger.Debug("connected", zap.String("network", network.Name), zap.String("account", tc.from.Hex()))
	return tc, nil
}

// GetContractFactory looks up the compiled artifact for name.
func (t *Toolchain) GetContractFactory(_ context.Context, name string) (deployer.ContractFactory, error) {
	a, err := t.store.Find(name)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("found artifact",
		zap.String("contract", a.FullyQualifiedName()),
		zap.String("path", a.Path),
		zap.Int("bytecodeSize", len(a.Bytecode)))
	return &Factory{toolchain: t, name: name, artifact: a}, nil
}

// From returns the deployer account address.
func (t *Toolchain) From() common.Address {
	return t.from
}

// Close releases the backend connection. It is safe to call more than once.
func (t *Toolchain) Close() error {
	if t.closeFn == nil {
		return nil
	}
	fn := t.closeFn
	t.closeFn = nil
	return fn()
}

// chain fetches the chain id once and checks it against the configured one.
func (t *Toolchain) chain(ctx context.Context) (*big.Int, error) {
	t.chainOnce.Do(func() {
		id, err := t.backend.ChainID(ctx)
		if err != nil {
			t.chainErr = fmt.Errorf("failed to get chain id: %w", err)
			return
		}
		if t.wantChain != nil && t.wantChain.Cmp(id) != 0 {
			t.chainErr = model.NewDeployError(model.KindInvalidConfig, "",
				fmt.Errorf("network %q: node reports chain id %s, configured %s", t.network, id, t.wantChain))
			return
		}
		t.chainID = id
	})
	return t.chainID, t.chainErr
}

// errNoCode mirrors bind.ErrNoCodeAfterDeploy with the address included.
var errNoCode = errors.New("no contract code at the deployed address")
