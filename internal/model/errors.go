package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the toolchain failure taxonomy. A DeployError of a
// given kind matches the corresponding sentinel with errors.Is.
var (
	ErrArtifactNotFound = errors.New("contract artifact not found")
	ErrDeployment       = errors.New("contract deployment failed")
	ErrConfirmation     = errors.New("deployment confirmation failed")
	ErrInvalidConfig    = errors.New("invalid toolchain configuration")
)

// ErrorKind classifies toolchain failures. The CLI treats every kind the
// same way (exit status 1); the kind exists so that messages and tests can
// tell the failing step apart.
type ErrorKind string

const (
	// KindArtifactNotFound: no usable compiled artifact matches the
	// requested contract (missing, ambiguous, abstract, or unlinked).
	KindArtifactNotFound ErrorKind = "artifact_not_found"

	// KindDeployment: building, signing, or submitting the creation
	// transaction failed.
	KindDeployment ErrorKind = "deployment"

	// KindConfirmation: the transaction was submitted but the network did
	// not confirm a deployed contract (timeout, revert, dropped tx).
	KindConfirmation ErrorKind = "confirmation"

	// KindInvalidConfig: the toolchain configuration could not be loaded
	// or does not describe a usable network.
	KindInvalidConfig ErrorKind = "invalid_config"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindArtifactNotFound:
		return ErrArtifactNotFound
	case KindDeployment:
		return ErrDeployment
	case KindConfirmation:
		return ErrConfirmation
	case KindInvalidConfig:
		return ErrInvalidConfig
	default:
		return nil
	}
}

// DeployError wraps an underlying toolchain error with the contract it
// concerns and, once a transaction exists, its hash.
type DeployError struct {
	Kind     ErrorKind
	Contract string
	TxHash   string // empty until the creation tx was submitted
	Err      error
}

func (e *DeployError) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := e.Kind.sentinel()
	msg := string(e.Kind)
	if base != nil {
		msg = base.Error()
	}
	if e.Contract != "" {
		msg = fmt.Sprintf("%s (contract=%s)", msg, e.Contract)
	}
	if e.TxHash != "" {
		msg = fmt.Sprintf("%s (txHash=%s)", msg, e.TxHash)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DeployError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *DeployError) Is(target error) bool {
	if e == nil {
		return false
	}
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewDeployError creates a DeployError of the given kind.
func NewDeployError(kind ErrorKind, contract string, err error) *DeployError {
	return &DeployError{Kind: kind, Contract: contract, Err: err}
}

// IsKind helps callers classify errors without depending on toolchain packages.
func IsKind(err error, kind ErrorKind) bool {
	var de *DeployError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
