// Package deployer runs the contract deployment flow against an injected
// contract toolchain.
//
// The flow is strictly linear: request a contract factory, deploy, wait for
// confirmation. Each step either succeeds or ends the run with its error;
// nothing is retried and no step after a failure is attempted. Everything
// the steps actually do (artifact lookup, signing, gas, submission,
// confirmation polling, timeouts) belongs to the Toolchain implementation.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/shinji-kodama/project-deployer/internal/model"
)

// Toolchain hands out deployable handles for compiled contracts.
type Toolchain interface {
	// GetContractFactory returns a handle for the contract called name.
	// It fails with a model.KindArtifactNotFound error when no usable
	// compiled artifact matches.
	GetContractFactory(ctx context.Context, name string) (ContractFactory, error)
}

// ContractFactory deploys new instances of one contract.
type ContractFactory interface {
	// Deploy submits a contract-creation transaction with the given
	// constructor arguments and returns without waiting for it.
	Deploy(ctx context.Context, args ...any) (PendingDeployment, error)
}

// PendingDeployment is a submitted but not yet confirmed deployment.
type PendingDeployment interface {
	// Wait blocks until the network confirms the deployment or the
	// toolchain gives up on it.
	Wait(ctx context.Context) (DeployedContract, error)
}

// DeployedContract is a confirmed on-chain contract.
type DeployedContract interface {
	Address() string
}

// Recorder is implemented by deployed contracts that can describe their
// deployment in more detail than an address.
type Recorder interface {
	Deployment() model.Deployment
}

// errNoContract is returned when a toolchain reports a confirmation but
// hands back nothing usable.
var errNoContract = errors.New("toolchain confirmed the deployment without a contract address")

// Deployer orchestrates a single deployment.
type Deployer struct {
	toolchain Toolchain
	logger    *zap.Logger
}

// New creates a Deployer for the given toolchain. A nil logger disables logging.
func New(toolchain Toolchain, logger *zap.Logger) *Deployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deployer{toolchain: toolchain, logger: logger}
}

// Deploy requests a factory for name, deploys it with args, and waits for
// confirmation. The returned record always has Contract and Address set.
func (d *Deployer) Deploy(ctx context.Context, name string, args ...any) (*model.Deployment, error) {
	log := d.logger.With(zap.String("contract", name))

	log.Debug("requesting contract factory")
	factory, err := d.toolchain.GetContractFactory(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get contract factory for %q: %w", name, err)
	}

	log.Debug("deploying", zap.Int("constructorArgs", len(args)))
	pending, err := factory.Deploy(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("deploy %q: %w", name, err)
	}

	log.Debug("waiting for confirmation")
	contract, err := pending.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for %q deployment: %w", name, err)
	}
	if isNil(contract) {
		return nil, model.NewDeployError(model.KindConfirmation, name, errNoContract)
	}

	record := model.Deployment{Contract: name, Address: contract.Address()}
	if r, ok := contract.(Recorder); ok {
		record = r.Deployment()
		record.Contract = name
		record.Address = contract.Address()
	}
	if err := record.Validate(); err != nil {
		return nil, model.NewDeployError(model.KindConfirmation, name, errNoContract)
	}

	log.Debug("deployment confirmed", zap.String("address", record.Address))
	return &record, nil
}

// isNil reports whether c is nil or an interface holding a nil pointer,
// which a toolchain may return alongside a nil error.
func isNil(c DeployedContract) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
