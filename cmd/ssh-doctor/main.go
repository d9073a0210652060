// Package main is the entry point for the ssh-doctor binary.
//
// ssh-doctor is a terminal application that combines an interactive
// troubleshooting wizard (built with Bubble Tea) and a CLI (built with
// Cobra) for diagnosing and repairing SSH connection problems.
//
// When invoked without a subcommand, it launches the wizard. With
// subcommands it runs the corresponding operation and exits.
//
// Usage:
//
//	ssh-doctor             # launch the interactive wizard
//	ssh-doctor test myhost # probe a host and explain any failure
//	ssh-doctor fix myhost  # apply every auto-fixable remediation
//
// The CLI is constructed in internal/cli and the wizard in internal/ui. This
// file simply wires them together and handles top-level error reporting.
package main

import (
	"fmt"
	"os"

	"github.com/treykane/ssh-doctor/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()

	// Cobra handles argument parsing, subcommand routing, and help output.
	// Any error returned by a RunE handler is printed to stderr and the
	// process exits non-zero.
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
