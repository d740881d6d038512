// Package main is the entry point for the quenchfit CLI.
//
// All functionality lives in internal/cli, which defines the cobra
// commands. This file only injects build-time version information and
// hands control to the root command.
package main

import (
	"github.com/kmarkley/quenchfit/internal/cli"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}
