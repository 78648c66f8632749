package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shinji-kodama/project-deployer/internal/config"
	"github.com/shinji-kodama/project-deployer/internal/deployer"
	"github.com/shinji-kodama/project-deployer/internal/evm"
	"github.com/shinji-kodama/project-deployer/internal/model"
)

// Toolchain is a deployer.Toolchain holding resources that must be
// released when the run ends.
type Toolchain interface {
	deployer.Toolchain
	Close() error
}

// OpenFunc builds the toolchain for the resolved network.
type OpenFunc func(ctx context.Context, cfg *config.Config, network config.Network, logger *zap.Logger) (Toolchain, error)

// openEVM is the default OpenFunc, backed by go-ethereum.
func openEVM(ctx context.Context, cfg *config.Config, network config.Network, logger *zap.Logger) (Toolchain, error) {
	tc, err := evm.Open(ctx, cfg, network, logger)
	if err != nil {
		return nil, err
	}
	return tc, nil
}

// runDeploy performs the whole run: load configuration, open the
// toolchain, deploy the configured contract, and print the result.
func runDeploy(ctx context.Context, cmd *cobra.Command, o *options) error {
	logger := newLogger(cmd.ErrOrStderr(), o.verbose)
	defer func() { _ = logger.Sync() }()

	dir, err := o.dir()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get working directory", err)
	}

	cfg, err := config.Load(o.configPath, dir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}
	if cfg.Source != "" {
		logger.Debug("loaded configuration", zap.String("path", cfg.Source))
	}

	network, err := cfg.ResolveNetwork(o.network)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to resolve network", err)
	}

	toolchain, err := o.open(ctx, cfg, network, logger)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to open toolchain", err)
	}
	defer func() {
		if cerr := toolchain.Close(); cerr != nil {
			logger.Warn("failed to close toolchain", zap.Error(cerr))
		}
	}()

	logger.Debug("deploying",
		zap.String("contract", cfg.Contract),
		zap.String("network", network.Name),
		zap.String("artifacts", cfg.ArtifactsDir()))

	record, err := deployer.New(toolchain, logger).Deploy(ctx, cfg.Contract, cfg.ConstructorArgs...)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "deployment failed", err)
	}

	return printDeployment(cmd.OutOrStdout(), o.jsonOutput, record)
}

// printDeployment writes the success output: the single text line, or the
// full deployment record as JSON.
func printDeployment(w io.Writer, asJSON bool, record *model.Deployment) error {
	if asJSON {
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to encode output", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, record.String())
	return err
}

// newLogger returns a console logger on w. Debug messages are shown only
// in verbose mode; otherwise only warnings and errors are.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}
