// Package main is the entry point for the project-deployer CLI.
//
// The binary deploys the configured contract and prints its address. It
// delegates all functionality to the internal/cli package.
//
// Build-time variables (version, commit, date) are injected via ldflags
// during the release process. During development, they default to "dev",
// "none", and "unknown" respectively.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/shinji-kodama/project-deployer/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Ctrl-C abandons the wait for confirmation. A transaction that was
	// already submitted may still be mined.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Run(ctx, cli.NewRootCommand())
	stop()
	os.Exit(int(code))
}
