// Package model defines the domain types for the project-deployer CLI.
//
// The types here are transient: a deployment run produces at most one
// Deployment record, which is printed and then discarded. Nothing is
// persisted by this tool; the only durable outputs are the printed line
// and the process exit status.
package model

import (
	"fmt"
	"time"
)

// DefaultContract is the contract identifier deployed when the
// configuration does not name another one.
const DefaultContract = "Project"

// Deployment describes a contract that the network has confirmed.
//
// Only Contract and Address are guaranteed to be set. The remaining fields
// are filled in when the toolchain reports them (the go-ethereum toolchain
// always does; test stubs usually do not).
type Deployment struct {
	// Contract is the identifier the deployable handle was requested for
	// (e.g., "Project" or "contracts/Project.sol:Project").
	Contract string `json:"contract"`

	// Address is the on-chain address of the deployed contract, as the
	// toolchain renders it (EIP-55 checksummed hex for EVM networks).
	Address string `json:"address"`

	// Network is the name of the network the contract was deployed to.
	Network string `json:"network,omitempty"`

	// ChainID is the chain identifier reported by the node.
	ChainID uint64 `json:"chainId,omitempty"`

	// TxHash is the hash of the contract-creation transaction.
	TxHash string `json:"txHash,omitempty"`

	// BlockNumber is the block that included the creation transaction.
	BlockNumber uint64 `json:"blockNumber,omitempty"`

	// GasUsed is the gas consumed by the creation transaction.
	GasUsed uint64 `json:"gasUsed,omitempty"`

	// DeployedAt is the time confirmation was observed.
	DeployedAt time.Time `json:"deployedAt,omitzero"`
}

// Validate checks that the record carries the two fields every
// successful deployment must report.
func (d *Deployment) Validate() error {
	if d.Contract == "" {
		return fmt.Errorf("deployment: contract name must not be empty")
	}
	if d.Address == "" {
		return fmt.Errorf("deployment: contract %q reported no address", d.Contract)
	}
	return nil
}

// String returns the human-readable success line printed on stdout.
// Format: "<contract> deployed to: <address>"
func (d *Deployment) String() string {
	return fmt.Sprintf("%s deployed to: %s", d.Contract, d.Address)
}

// ExitCode defines the process exit codes of the CLI.
// A deployment run either succeeds or fails as a whole, so only two
// codes exist.
type ExitCode int

const (
	// ExitSuccess indicates the contract was deployed and confirmed.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates any step of the run failed.
	ExitGeneralError ExitCode = 1
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
