package evm

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/project-deployer/internal/artifact"
	"github.com/shinji-kodama/project-deployer/internal/config"
	"github.com/shinji-kodama/project-deployer/internal/deployer"
	"github.com/shinji-kodama/project-deployer/internal/model"
)

// Hand-assembled creation code:
//   - okCode:     PUSH1 1 PUSH1 0 RETURN, leaving a one-byte runtime (STOP)
//   - revertCode: PUSH1 0 PUSH1 0 REVERT
//   - emptyCode:  PUSH1 0 PUSH1 0 RETURN, leaving no runtime code
//
// Constructor arguments are appended to the creation code and ignored by it.
const (
	okCode     = "0x60016000f3"
	revertCode = "0x60006000fd"
	emptyCode  = "0x60006000f3"

	greeterABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"greeting","type":"string"},
		{"name":"owner","type":"address"},
		{"name":"supply","type":"uint256"}]}]`
)

// writeArtifacts lays out a Hardhat-style artifacts directory.
func writeArtifacts(t *testing.T, contracts map[string][2]string) string {
	t.Helper()
	root := t.TempDir()
	for name, c := range contracts {
		dir := filepath.Join(root, "contracts", name+".sol")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		body := `{"_format":"hh-sol-artifact-1","contractName":"` + name +
			`","sourceName":"contracts/` + name + `.sol","abi":` + c[1] +
			`,"bytecode":"` + c[0] + `","linkReferences":{}}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644))
	}
	return root
}

func defaultArtifacts(t *testing.T) string {
	return writeArtifacts(t, map[string][2]string{
		"Project": {okCode, `[]`},
		"Greeter": {okCode, greeterABI},
		"Reverts": {revertCode, `[]`},
		"Empty":   {emptyCode, `[]`},
	})
}

// openSimulated opens the toolchain the way the CLI does for the default network.
func openSimulated(t *testing.T, artifacts string) *Toolchain {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Paths.Artifacts = artifacts

	tc, err := Open(context.Background(), cfg, config.Network{Name: config.SimulatedNetwork}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tc.Close() })
	return tc
}

// newSimulated builds a toolchain with explicit options on a fresh simulated chain.
func newSimulated(t *testing.T, artifacts string, opts Options) (*Toolchain, Backend) {
	t.Helper()
	backend, key, closeFn, err := NewSimulatedBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	return New(backend, key, artifact.NewStore(artifacts), opts), backend
}

func TestToolchain_DeployProject(t *testing.T) {
	tc := openSimulated(t, defaultArtifacts(t))
	ctx := context.Background()

	factory, err := tc.GetContractFactory(ctx, "Project")
	require.NoError(t, err)

	pending, err := factory.Deploy(ctx)
	require.NoError(t, err)

	contract, err := pending.Wait(ctx)
	require.NoError(t, err)

	address := contract.Address()
	require.True(t, common.IsHexAddress(address))
	assert.Equal(t, common.HexToAddress(address).Hex(), address, "address is checksummed")

	code, err := tc.backend.CodeAt(ctx, common.HexToAddress(address), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, code)

	rec := contract.(deployer.Recorder).Deployment()
	assert.Equal(t, "Project", rec.Contract)
	assert.Equal(t, config.SimulatedNetwork, rec.Network)
	assert.Equal(t, uint64(1337), rec.ChainID)
	assert.Equal(t, pending.(*PendingDeployment).Transaction().Hash().Hex(), rec.TxHash)
	assert.NotZero(t, rec.BlockNumber)
	assert.NotZero(t, rec.GasUsed)
}

// TestToolchain_TwoDeploymentsDiffer checks that deploying twice yields two
// independent contracts.
func TestToolchain_TwoDeploymentsDiffer(t *testing.T) {
	tc := openSimulated(t, defaultArtifacts(t))
	d := deployer.New(tc, nil)

	first, err := d.Deploy(context.Background(), "Project")
	require.NoError(t, err)
	second, err := d.Deploy(context.Background(), "Project")
	require.NoError(t, err)

	assert.NotEqual(t, first.Address, second.Address)
}

func TestToolchain_ConstructorArgs(t *testing.T) {
	tc := openSimulated(t, defaultArtifacts(t))
	ctx := context.Background()

	factory, err := tc.GetContractFactory(ctx, "Greeter")
	require.NoError(t, err)

	pending, err := factory.Deploy(ctx, "hello", "0x00000000000000000000000000000000000000aa", "1000000000000000000000000")
	require.NoError(t, err)

	// The creation payload is the code followed by the ABI-encoded arguments.
	data := pending.(*PendingDeployment).Transaction().Data()
	require.Greater(t, len(data), 5)
	assert.Equal(t, []byte{0x60, 0x01, 0x60, 0x00, 0xf3}, data[:5])
	assert.Len(t, data[5:], 5*32, "string offset, address, uint256, string length, string data")

	_, err = pending.Wait(ctx)
	require.NoError(t, err)

	t.Run("wrong argument count", func(t *testing.T) {
		_, err := factory.Deploy(ctx, "hello")
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.KindDeployment))
	})

	t.Run("wrong argument type", func(t *testing.T) {
		_, err := factory.Deploy(ctx, "hello", "not-an-address", 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrDeployment)
		assert.Contains(t, err.Error(), "owner")
	})
}

func TestToolchain_ArtifactNotFound(t *testing.T) {
	tc := openSimulated(t, defaultArtifacts(t))

	_, err := tc.GetContractFactory(context.Background(), "Missing")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindArtifactNotFound))
}

func TestToolchain_RevertIsConfirmationError(t *testing.T) {
	// A fixed gas limit skips estimation, so the revert surfaces in the receipt.
	tc, _ := newSimulated(t, defaultArtifacts(t), Options{Network: "test", GasLimit: 100_000})
	ctx := context.Background()

	factory, err := tc.GetContractFactory(ctx, "Reverts")
	require.NoError(t, err)
	pending, err := factory.Deploy(ctx)
	require.NoError(t, err)

	_, err = pending.Wait(ctx)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfirmation))
	assert.Contains(t, err.Error(), "reverted")
	assert.Contains(t, err.Error(), pending.(*PendingDeployment).Transaction().Hash().Hex())
}

func TestToolchain_NoCodeIsConfirmationError(t *testing.T) {
	tc := openSimulated(t, defaultArtifacts(t))
	ctx := context.Background()

	factory, err := tc.GetContractFactory(ctx, "Empty")
	require.NoError(t, err)
	pending, err := factory.Deploy(ctx)
	require.NoError(t, err)

	_, err = pending.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfirmation)
	assert.ErrorIs(t, err, errNoCode)
}

func TestToolchain_ChainIDMismatch(t *testing.T) {
	tc, _ := newSimulated(t, defaultArtifacts(t), Options{Network: "test", ChainID: big.NewInt(1)})
	ctx := context.Background()

	factory, err := tc.GetContractFactory(ctx, "Project")
	require.NoError(t, err)

	_, err = factory.Deploy(ctx)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInvalidConfig))
	assert.Contains(t, err.Error(), "chain id 1337")
}

// unconfirmed never reports a receipt.
type unconfirmed struct {
	Backend
}

func (unconfirmed) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func TestToolchain_ConfirmationTimeout(t *testing.T) {
	backend, key, closeFn, err := NewSimulatedBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	tc := New(unconfirmed{backend}, key, artifact.NewStore(defaultArtifacts(t)), Options{
		Network: "test",
		Timeout: 50 * time.Millisecond,
	})
	ctx := context.Background()

	factory, err := tc.GetContractFactory(ctx, "Project")
	require.NoError(t, err)
	pending, err := factory.Deploy(ctx)
	require.NoError(t, err)

	_, err = pending.Wait(ctx)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfirmation))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "not confirmed within 50ms")
}

func TestOpen_RemoteNetwork(t *testing.T) {
	artifacts := defaultArtifacts(t)
	cfg := config.Default(t.TempDir())
	cfg.Paths.Artifacts = artifacts
	ctx := context.Background()

	// Nothing listens on this port; the toolchain must not contact the
	// node until it deploys.
	remote := config.Network{Name: "remote", URL: "http://127.0.0.1:1", PrivateKeyEnv: "TEST_DEPLOYER_KEY"}

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("TEST_DEPLOYER_KEY", "")
		_, err := Open(ctx, cfg, remote, nil)
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.KindInvalidConfig))
		assert.Contains(t, err.Error(), "TEST_DEPLOYER_KEY")
	})

	t.Run("invalid key", func(t *testing.T) {
		t.Setenv("TEST_DEPLOYER_KEY", "0xnothex")
		_, err := Open(ctx, cfg, remote, nil)
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.KindInvalidConfig))
	})

	t.Run("unreachable node fails at deploy", func(t *testing.T) {
		t.Setenv("TEST_DEPLOYER_KEY", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
		tc, err := Open(ctx, cfg, remote, nil)
		require.NoError(t, err)
		defer tc.Close()

		assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", tc.From().Hex())

		factory, err := tc.GetContractFactory(ctx, "Project")
		require.NoError(t, err, "artifact lookup works offline")

		_, err = factory.Deploy(ctx)
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.KindDeployment))
	})
}
