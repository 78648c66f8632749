// Package cli implements the cobra-based command line of project-deployer.
//
// There is a single implicit command: running the binary deploys the
// configured contract (Project by default) and prints its address. This
// file defines that root command, its global flags, and the mapping of
// errors to exit codes. The deployment run itself lives in deploy.go.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/project-deployer/internal/model"
)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// options holds the parsed global flags and the injected collaborators of
// one root command.
type options struct {
	// configPath is the --config flag. Empty means search the working directory.
	configPath string

	// network is the --network flag. Empty falls back to DEPLOY_NETWORK,
	// then to the configured default network.
	network string

	// jsonOutput prints the deployment record (and errors) as JSON.
	jsonOutput bool

	// verbose enables debug logging on stderr.
	verbose bool

	open OpenFunc
	dir  func() (string, error)
}

// Option customizes the root command. Tests use it to inject a toolchain.
type Option func(*options)

// WithOpener replaces the go-ethereum toolchain with another implementation.
func WithOpener(open OpenFunc) Option {
	return func(o *options) { o.open = open }
}

// WithWorkingDir sets the directory searched for a configuration file.
func WithWorkingDir(dir string) Option {
	return func(o *options) { o.dir = func() (string, error) { return dir, nil } }
}

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
func NewRootCommand(opts ...Option) *cobra.Command {
	o := &options{open: openEVM, dir: os.Getwd}
	for _, opt := range opts {
		opt(o)
	}

	rootCmd := &cobra.Command{
		Use:   "project-deployer",
		Short: "Deploy the Project contract and print its address",
		Long: `project-deployer deploys a compiled contract (Project by default) to the
selected network, waits for the deployment to be confirmed, and prints

  Project deployed to: <address>

Networks, artifact location, and constructor arguments come from
deploy.config.yaml (or .yml, .jsonc, .json) in the working directory.
Without a configuration file the contract is deployed to an in-process
simulated chain.`,
		Args: cobra.NoArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// Errors are formatted by Run (text or JSON based on --json).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd.Context(), cmd, o)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&o.configPath, "config", "", "Path to the toolchain configuration file")
	flags.StringVar(&o.network, "network", "", "Network to deploy to (overrides DEPLOY_NETWORK and defaultNetwork)")
	flags.BoolVar(&o.jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose output")

	return rootCmd
}

// Run executes the root command and returns the exit code for the process.
// This is the main entry point called from main.go. Errors are printed to
// the command's error stream.
//
// CLIError types carry their own exit codes; other errors map to exit code 1.
func Run(ctx context.Context, rootCmd *cobra.Command) model.ExitCode {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return model.ExitSuccess
	}

	asJSON, _ := rootCmd.Flags().GetBool("json")
	w := rootCmd.ErrOrStderr()

	// Errors cobra raises itself (flag parsing, unexpected arguments) carry
	// no exit code and map to code 1.
	var cliErr *model.CLIError
	if !errors.As(err, &cliErr) {
		cliErr = model.NewCLIError(model.ExitGeneralError, err.Error())
	}

	printError(w, asJSON, cliErr.Message, cliErr.Err)
	if cliErr.Code == model.ExitSuccess {
		return model.ExitGeneralError
	}
	return cliErr.Code
}

// printError outputs an error message in the appropriate format
// (JSON or text). Errors always go to stderr, even in JSON mode, because
// stdout is reserved for the deployment result.
func printError(w io.Writer, asJSON bool, message string, underlying error) {
	if asJSON {
		errObj := map[string]any{
			"error": map[string]any{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]any); ok {
				errMap["detail"] = underlying.Error()
				if kind := errorKind(underlying); kind != "" {
					errMap["kind"] = kind
				}
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

func errorKind(err error) model.ErrorKind {
	var de *model.DeployError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
