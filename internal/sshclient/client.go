// Package sshclient launches SSH processes via the system ssh binary.
//
// This package does NOT implement the SSH protocol itself. Shelling out to
// the system's "ssh" means diagnostics observe exactly what the user's own
// client does — same config resolution, same agent, same known_hosts — so a
// probe failure here is the same failure the user sees at their shell.
//
// There are two primary operations:
//
//   - Probe commands: ProbeCommand() builds a non-interactive verbose
//     handshake attempt (ssh -vT with BatchMode) whose merged output feeds
//     the transcript classifier.
//
//   - Interactive sessions: RunInteractive() allocates a PTY and connects
//     the user's terminal to a live SSH session, used by the connect command
//     once a host diagnoses clean.
//
// Security note: all SSH arguments are passed via exec.Command's argv (not
// via shell interpolation), which prevents injection from host aliases that
// contain shell metacharacters.
package sshclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// ptyStart is swappable in tests; interactive sessions are otherwise
// untestable without a real terminal.
var ptyStart = pty.Start

// Client creates and launches SSH processes.
//
// Client is stateless and safe for concurrent use — each method call creates
// an independent exec.Cmd. Multiple probes can run simultaneously.
//
// The zero value is not useful; use New() to create a Client instance.
type Client struct{}

// New creates a new SSH client.
func New() *Client { return &Client{} }

// EnsureSSHBinary checks that the "ssh" binary is available on the system PATH.
//
// This should be called early during startup (before any probe or connect
// operations) to provide a clear error message if SSH is not installed,
// rather than failing later with a confusing exec error.
func EnsureSSHBinary() error {
	if _, err := exec.LookPath("ssh"); err != nil {
		return fmt.Errorf("ssh binary not found in PATH")
	}
	return nil
}

// BuildProbeArgs constructs the argument list for one diagnostic handshake
// without starting a process. Split out so argument composition can be
// tested independently from process execution.
//
// Flags:
//   - -v: verbose, so the transcript carries the markers the classifier
//     keys on (identity files offered, host key state, auth outcomes).
//   - -T: no PTY allocation on the remote side.
//   - BatchMode=yes: never prompt. An interactive prompt would hang a
//     diagnostic run; a missing passphrase must surface as a failure.
//   - ConnectTimeout: bound the TCP phase so dead hosts fail fast.
//
// The alias (not the resolved hostname) is the destination, which lets
// OpenSSH apply every config directive for the host the way a real
// connection would.
func (c *Client) BuildProbeArgs(alias string, connectTimeoutSeconds int) []string {
	return []string{
		"-v",
		"-T",
		"-o", "BatchMode=yes",
		"-o", fmt.Sprintf("ConnectTimeout=%d", connectTimeoutSeconds),
		alias,
	}
}

// ProbeCommand creates the exec.Cmd for one diagnostic handshake against the
// given alias. The command is not started; the caller owns its lifecycle and
// its context.
func (c *Client) ProbeCommand(ctx context.Context, alias string, connectTimeoutSeconds int) *exec.Cmd {
	return exec.CommandContext(ctx, "ssh", c.BuildProbeArgs(alias, connectTimeoutSeconds)...)
}

// ConnectCommand creates an exec.Cmd for an interactive SSH session to the
// given alias. The returned Cmd has no stdin/stdout/stderr configured and is
// not started; see RunInteractive for PTY-based usage.
func (c *Client) ConnectCommand(alias string) *exec.Cmd {
	return exec.Command("ssh", alias)
}

// RunInteractive starts an interactive SSH session in a pseudo-terminal.
//
// A PTY is required for interactive use: SSH expects a terminal for password
// prompts, remote line editing, and resizing. The method blocks until the
// session ends. If ctx is cancelled while the session is active, the SSH
// process is killed.
func (c *Client) RunInteractive(ctx context.Context, alias string) error {
	cmd := c.ConnectCommand(alias)

	f, err := ptyStart(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	// Forward user input into the PTY master. io.Copy blocks until the PTY
	// closes, so this runs in a goroutine that ends with the session.
	go func() {
		_, _ = io.Copy(f, os.Stdin)
	}()

	// Forward PTY output to the terminal until the process exits.
	_, _ = io.Copy(os.Stdout, f)

	if ctx.Err() != nil {
		_ = cmd.Process.Kill()
	}

	return cmd.Wait()
}
