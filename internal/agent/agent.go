// Package agent talks to the running SSH agent through the ssh-add and
// ssh-keygen binaries. It never implements the agent protocol itself; like
// the rest of ssh-doctor it drives the system OpenSSH toolchain, which keeps
// behavior identical to what the user's own shell would see.
//
// Every operation runs in batch mode: nothing in this package may ever block
// on an interactive passphrase prompt. Encrypted keys are detected up front
// by sniffing the private key envelope, and a passphrase, when one is
// needed, is supplied through a one-shot askpass helper.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/treykane/ssh-doctor/internal/util"
)

// KeyInfo describes one identity held by the agent.
type KeyInfo struct {
	BitSize     int    `json:"bit_size"`
	Fingerprint string `json:"fingerprint"`
	Comment     string `json:"comment"`
	Type        string `json:"type"`
}

// AddResult is the outcome of one attempt to load a key into the agent.
// NeedsPassphrase is a distinguished non-error outcome: the caller must
// re-invoke with a secret rather than treat it as failure.
type AddResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	NeedsPassphrase bool   `json:"needs_passphrase"`
}

// RemoveResult is the outcome of unloading a key from the agent.
type RemoveResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client is the agent interface the diagnostic engine consumes. IsRunning
// must distinguish "agent unreachable" from "agent holds zero keys"; both
// zero keys and a loaded agent report true.
type Client interface {
	IsRunning(ctx context.Context) bool
	ListKeys(ctx context.Context) ([]KeyInfo, error)
	IsKeyLoaded(ctx context.Context, keyPath string) (bool, error)
	Add(ctx context.Context, keyPath, passphrase string) AddResult
	Remove(ctx context.Context, keyPath string) RemoveResult
}

// ErrAgentNotRunning reports that no agent could be reached at SSH_AUTH_SOCK.
var ErrAgentNotRunning = errors.New("ssh agent is not running")

// SSHAddClient implements Client by invoking ssh-add.
type SSHAddClient struct{}

// runCmd executes a prepared command. Swapped in tests so agent behavior can
// be exercised without a live agent, the same seam sshclient uses for pty
// sessions.
var runCmd = func(cmd *exec.Cmd) error { return cmd.Run() }

func New() *SSHAddClient { return &SSHAddClient{} }

// IsRunning reports whether an agent is reachable. ssh-add -l exits 0 when
// identities are listed, 1 when the agent is running but empty, and 2 when
// no agent can be contacted; only the last case means "not running".
func (c *SSHAddClient) IsRunning(ctx context.Context) bool {
	if os.Getenv("SSH_AUTH_SOCK") == "" {
		return false
	}
	cmd := exec.CommandContext(ctx, "ssh-add", "-l")
	cmd.Stdin = nil
	err := runCmd(cmd)
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 1
	}
	return false
}

// ListKeys returns the identities currently held by the agent. An agent
// with zero keys yields an empty slice and no error.
func (c *SSHAddClient) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	cmd := exec.CommandContext(ctx, "ssh-add", "-l")
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := runCmd(cmd)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			// "The agent has no identities." — a healthy empty agent.
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAgentNotRunning, strings.TrimSpace(stderr.String()))
	}
	return parseListOutput(stdout.String()), nil
}

// parseListOutput parses ssh-add -l lines of the form
//
//	256 SHA256:b9f4… user@host (ED25519)
func parseListOutput(out string) []KeyInfo {
	var keys []KeyInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		bits, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		k := KeyInfo{BitSize: bits, Fingerprint: fields[1]}
		rest := fields[2:]
		if len(rest) > 0 {
			last := rest[len(rest)-1]
			if strings.HasPrefix(last, "(") && strings.HasSuffix(last, ")") {
				k.Type = strings.Trim(last, "()")
				rest = rest[:len(rest)-1]
			}
		}
		k.Comment = strings.Join(rest, " ")
		keys = append(keys, k)
	}
	return keys
}

// IsKeyLoaded reports whether the key at keyPath is held by the agent,
// matched by public key fingerprint, never by path.
func (c *SSHAddClient) IsKeyLoaded(ctx context.Context, keyPath string) (bool, error) {
	want, err := Fingerprint(ctx, keyPath)
	if err != nil {
		return false, err
	}
	keys, err := c.ListKeys(ctx)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k.Fingerprint == want {
			return true, nil
		}
	}
	return false, nil
}

// Fingerprint returns the SHA256 fingerprint of the key at keyPath, read
// from its public half (falling back to the private file, which ssh-keygen
// resolves itself).
func Fingerprint(ctx context.Context, keyPath string) (string, error) {
	path := keyPath
	if !strings.HasSuffix(path, ".pub") {
		if _, err := os.Stat(path + ".pub"); err == nil {
			path = path + ".pub"
		}
	}
	cmd := exec.CommandContext(ctx, "ssh-keygen", "-lf", path)
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := runCmd(cmd); err != nil {
		return "", fmt.Errorf("fingerprint %s: %s", keyPath, strings.TrimSpace(stderr.String()))
	}
	fields := strings.Fields(stdout.String())
	if len(fields) < 2 {
		return "", fmt.Errorf("fingerprint %s: unexpected ssh-keygen output", keyPath)
	}
	return fields[1], nil
}

// Add loads the key at keyPath into the agent. The contract is strictly
// non-interactive: an encrypted key with no passphrase fails fast with
// NeedsPassphrase=true, and ssh-add is never allowed to sit on a prompt.
// A key the agent already holds reports success without invoking ssh-add.
func (c *SSHAddClient) Add(ctx context.Context, keyPath, passphrase string) AddResult {
	if _, err := os.Stat(keyPath); err != nil {
		return AddResult{Success: false, Message: fmt.Sprintf("key file not found: %s", keyPath)}
	}

	if loaded, err := c.IsKeyLoaded(ctx, keyPath); err == nil && loaded {
		return AddResult{Success: true, Message: "key is already loaded in the agent"}
	}

	encrypted := IsKeyEncrypted(keyPath)
	if encrypted && passphrase == "" {
		return AddResult{
			Success:         false,
			Message:         "this key requires a passphrase",
			NeedsPassphrase: true,
		}
	}
	if passphrase != "" {
		return addWithPassphrase(ctx, keyPath, passphrase)
	}

	ctx, cancel := context.WithTimeout(ctx, util.AddKeyTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ssh-add", keyPath)
	cmd.Stdin = nil
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := runCmd(cmd)
	if err == nil {
		return AddResult{Success: true, Message: "key added to SSH agent"}
	}
	if ctx.Err() == context.DeadlineExceeded {
		// The only way ssh-add stalls is waiting for a passphrase.
		return AddResult{
			Success:         false,
			Message:         "this key requires a passphrase",
			NeedsPassphrase: true,
		}
	}
	msg := strings.TrimSpace(stderr.String())
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "passphrase") || strings.Contains(lower, "password") {
		return AddResult{Success: false, Message: "this key requires a passphrase", NeedsPassphrase: true}
	}
	if msg == "" {
		msg = err.Error()
	}
	return AddResult{Success: false, Message: msg}
}

// addWithPassphrase supplies the secret through a one-shot askpass helper.
// SSH_ASKPASS_REQUIRE=force makes ssh-add use the helper even with a tty
// attached; the helper is removed as soon as the command returns.
func addWithPassphrase(ctx context.Context, keyPath, passphrase string) AddResult {
	script := filepath.Join(os.TempDir(), fmt.Sprintf("ssh-doctor-askpass-%d.sh", os.Getpid()))
	body := "#!/bin/sh\necho '" + strings.ReplaceAll(passphrase, "'", `'"'"'`) + "'\n"
	if err := os.WriteFile(script, []byte(body), 0o700); err != nil {
		return AddResult{Success: false, Message: fmt.Sprintf("askpass helper: %v", err)}
	}
	defer os.Remove(script)

	ctx, cancel := context.WithTimeout(ctx, util.AddKeyTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ssh-add", keyPath)
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(),
		"SSH_ASKPASS="+script,
		"SSH_ASKPASS_REQUIRE=force",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := runCmd(cmd)
	if err == nil {
		return AddResult{Success: true, Message: "key added to SSH agent"}
	}
	msg := strings.TrimSpace(stderr.String())
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "bad passphrase") || strings.Contains(lower, "incorrect passphrase") {
		return AddResult{Success: false, Message: "incorrect passphrase", NeedsPassphrase: true}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return AddResult{Success: false, Message: "ssh-add timed out", NeedsPassphrase: true}
	}
	if msg == "" {
		msg = err.Error()
	}
	return AddResult{Success: false, Message: msg}
}

// Remove unloads the key at keyPath via ssh-add -d.
func (c *SSHAddClient) Remove(ctx context.Context, keyPath string) RemoveResult {
	if _, err := os.Stat(keyPath); err != nil {
		return RemoveResult{Success: false, Message: fmt.Sprintf("key file not found: %s", keyPath)}
	}
	cmd := exec.CommandContext(ctx, "ssh-add", "-d", keyPath)
	cmd.Stdin = nil
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := runCmd(cmd); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return RemoveResult{Success: false, Message: msg}
	}
	return RemoveResult{Success: true, Message: "key removed from SSH agent"}
}
