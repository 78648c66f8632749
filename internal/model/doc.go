// Package model defines the domain types and value objects for the
// project-deployer CLI.
//
// This package contains pure data structures with no external dependencies:
// the Deployment record produced by a successful run, the toolchain error
// taxonomy (DeployError and its kinds), and the exit codes (ExitCode) with
// the CLIError type that carries them to the process exit.
package model
