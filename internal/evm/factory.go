package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/shinji-kodama/project-deployer/internal/artifact"
	"github.com/shinji-kodama/project-deployer/internal/deployer"
	"github.com/shinji-kodama/project-deployer/internal/model"
)

// Factory deploys one compiled contract.
type Factory struct {
	toolchain *Toolchain
	name      string
	artifact  *artifact.Artifact
}

// Artifact returns the compiled contract the factory deploys.
func (f *Factory) Artifact() *artifact.Artifact {
	return f.artifact
}

// Deploy converts args using the constructor ABI, signs the creation
// transaction and submits it. It does not wait for the transaction.
func (f *Factory) Deploy(ctx context.Context, args ...any) (deployer.PendingDeployment, error) {
	t := f.toolchain

	params, err := ConvertArgs(f.artifact.ABI.Constructor.Inputs, args)
	if err != nil {
		return nil, f.fail(err)
	}

	chainID, err := t.chain(ctx)
	if err != nil {
		return nil, f.fail(err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(t.key, chainID)
	if err != nil {
		return nil, f.fail(fmt.Errorf("failed to create transactor: %w", err))
	}
	opts.Context = ctx
	opts.GasLimit = t.gasLimit

	address, tx, _, err := bind.DeployContract(opts, f.artifact.ABI, f.artifact.Bytecode, t.backend, params...)
	if err != nil {
		return nil, f.fail(transactionError(tx, err, "failed to deploy %s", f.name))
	}

	t.logger.Debug("deployment submitted",
		zap.String("contract", f.name),
		zap.String("txHash", tx.Hash().Hex()),
		zap.String("address", address.Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.Uint64("gas", tx.Gas()))

	return &PendingDeployment{
		toolchain: t,
		name:      f.name,
		address:   address,
		tx:        tx,
		chainID:   chainID,
	}, nil
}

func (f *Factory) fail(err error) error {
	var de *model.DeployError
	if errors.As(err, &de) {
		return err
	}
	return model.NewDeployError(model.KindDeployment, f.name, err)
}

// PendingDeployment is a submitted creation transaction.
type PendingDeployment struct {
	toolchain *Toolchain
	name      string
	address   common.Address
	tx        *types.Transaction
	chainID   *big.Int
}

// Transaction returns the creation transaction.
func (p *PendingDeployment) Transaction() *types.Transaction {
	return p.tx
}

// Wait blocks until the creation transaction is mined, then checks that it
// succeeded and left code at the contract address. The wait is bounded by
// the network timeout.
func (p *PendingDeployment) Wait(ctx context.Context) (deployer.DeployedContract, error) {
	t := p.toolchain

	waitCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, t.backend, p.tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("not confirmed within %s: %w", t.timeout, err)
		}
		return nil, p.fail(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, p.fail(fmt.Errorf("transaction reverted in block %s", receipt.BlockNumber))
	}

	address := receipt.ContractAddress
	if address == (common.Address{}) {
		address = p.address
	}
	code, err := t.backend.CodeAt(waitCtx, address, nil)
	if err != nil {
		return nil, p.fail(fmt.Errorf("failed to read code at %s: %w", address.Hex(), err))
	}
	if len(code) == 0 {
		return nil, p.fail(fmt.Errorf("%w %s", errNoCode, address.Hex()))
	}

	t.logger.Debug("deployment confirmed",
		zap.String("contract", p.name),
		zap.String("address", address.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gasUsed", receipt.GasUsed))

	return &Contract{record: model.Deployment{
		Contract:    p.name,
		Address:     address.Hex(),
		Network:     t.network,
		ChainID:     p.chainID.Uint64(),
		TxHash:      p.tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		DeployedAt:  time.Now().UTC(),
	}}, nil
}

func (p *PendingDeployment) fail(err error) error {
	return &model.DeployError{
		Kind:     model.KindConfirmation,
		Contract: p.name,
		TxHash:   p.tx.Hash().Hex(),
		Err:      err,
	}
}

// Contract is a confirmed deployment.
type Contract struct {
	record model.Deployment
}

// Address returns the EIP-55 checksummed contract address.
func (c *Contract) Address() string {
	return c.record.Address
}

// Deployment returns the full deployment record.
func (c *Contract) Deployment() model.Deployment {
	return c.record
}

// transactionError adds the transaction hash, or the fact that nothing was
// submitted, to a transaction failure.
func transactionError(tx *types.Transaction, err error, msg string, args ...any) error {
	suffix := ": %w"
	if tx != nil {
		suffix += fmt.Sprintf(" (txHash=%s)", tx.Hash().String())
	} else {
		suffix += " (tx failed to be submitted)"
	}
	args = append(args, err)
	return fmt.Errorf(msg+suffix, args...)
}
