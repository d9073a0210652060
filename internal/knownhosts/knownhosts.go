// Package knownhosts edits ~/.ssh/known_hosts: removing stale entries after
// a server key change and adding entries for first-time hosts via
// ssh-keyscan. Hashed entries (the |1| format) are never touched — they
// cannot be matched against a plain hostname, so removal keeps them intact.
package knownhosts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/treykane/ssh-doctor/internal/security"
	"github.com/treykane/ssh-doctor/internal/util"
)

// RemoveResult reports the outcome of pruning entries for one hostname.
type RemoveResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	RemovedCount int    `json:"removed_count"`
}

// AddResult reports the outcome of scanning and appending host keys.
type AddResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	KeysAdded int    `json:"keys_added"`
}

// Path returns the known_hosts file location.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

// RemoveHost drops every plain entry matching hostname (including
// [host]:port forms). Comments, blank lines, and hashed entries are kept.
func RemoveHost(hostname string) (RemoveResult, error) {
	path, err := Path()
	if err != nil {
		return RemoveResult{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RemoveResult{Success: true, Message: "known_hosts file does not exist"}, nil
		}
		return RemoveResult{}, fmt.Errorf("read known_hosts: %w", err)
	}

	removed := 0
	var kept []string
	for _, line := range strings.Split(string(raw), "\n") {
		if matchesHostname(line, hostname) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed > 0 {
		if err := os.WriteFile(path, []byte(strings.Join(kept, "\n")), 0o600); err != nil {
			return RemoveResult{}, fmt.Errorf("write known_hosts: %w", err)
		}
	}

	msg := fmt.Sprintf("no entries found for %s", hostname)
	if removed > 0 {
		msg = fmt.Sprintf("removed %d entries for %s", removed, hostname)
	}
	return RemoveResult{Success: true, Message: msg, RemovedCount: removed}, nil
}

// matchesHostname reports whether a known_hosts line names hostname in its
// first field. Hashed entries never match.
func matchesHostname(line, hostname string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	first := strings.Fields(trimmed)[0]
	if strings.HasPrefix(first, "|1|") {
		return false
	}
	target := strings.ToLower(hostname)
	for _, h := range strings.Split(first, ",") {
		h = strings.TrimPrefix(h, "[")
		if i := strings.Index(h, "]"); i >= 0 {
			h = h[:i]
		}
		if strings.ToLower(h) == target {
			return true
		}
	}
	return false
}

// AddHost scans hostname's current keys and appends any that are not yet
// recorded. Non-standard ports produce [host]:port entries, matching what
// OpenSSH itself writes.
func AddHost(ctx context.Context, hostname string, port int) (AddResult, error) {
	if port == 0 {
		port = 22
	}
	if err := util.ValidatePort(port); err != nil {
		return AddResult{}, err
	}
	keys, err := scanHostKeys(ctx, hostname, port)
	if err != nil {
		return AddResult{}, err
	}
	if len(keys) == 0 {
		return AddResult{
			Success: false,
			Message: fmt.Sprintf("could not retrieve host keys from %s:%d", hostname, port),
		}, nil
	}

	path, err := Path()
	if err != nil {
		return AddResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return AddResult{}, err
	}
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return AddResult{}, fmt.Errorf("read known_hosts: %w", err)
	}

	content := string(existing)
	added := 0
	for _, key := range keys {
		entry := fmt.Sprintf("%s %s", hostname, key)
		if port != 22 {
			entry = fmt.Sprintf("[%s]:%d %s", hostname, port, key)
		}
		if strings.Contains(content, entry) {
			continue
		}
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += entry + "\n"
		added++
	}
	if added > 0 {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return AddResult{}, fmt.Errorf("write known_hosts: %w", err)
		}
	}
	return AddResult{
		Success:   true,
		Message:   fmt.Sprintf("added %d key(s) for %s", added, hostname),
		KeysAdded: added,
	}, nil
}

// scanHostKeys runs ssh-keyscan and returns "key-type base64key" strings
// with the hostname prefix stripped.
func scanHostKeys(ctx context.Context, hostname string, port int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, util.KeyscanTimeout+2*time.Second)
	defer cancel()

	args := []string{"-T", strconv.Itoa(int(util.KeyscanTimeout.Seconds()))}
	if port != 22 {
		args = append(args, "-p", strconv.Itoa(port))
	}
	args = append(args, hostname)

	cmd := exec.CommandContext(ctx, "ssh-keyscan", args...)
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil && stdout.Len() == 0 {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, security.NewClassifiedError(
			fmt.Sprintf("could not scan host keys for %s", hostname), detail)
	}

	var keys []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) == 2 {
			keys = append(keys, parts[1])
		}
	}
	return keys, nil
}
