// Package doctor inspects the local SSH environment as a whole: toolchain
// binaries, config health, key hygiene, and agent state. It complements the
// per-host preflight battery with checks that are not tied to one alias.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/treykane/ssh-doctor/internal/agent"
	"github.com/treykane/ssh-doctor/internal/config"
	"github.com/treykane/ssh-doctor/internal/hostgroup"
	"github.com/treykane/ssh-doctor/internal/model"
	"github.com/treykane/ssh-doctor/internal/permissions"
	"github.com/treykane/ssh-doctor/internal/sshclient"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Run executes the local environment diagnostics.
func Run(ctx context.Context) (Report, error) {
	var issues []Issue

	if err := sshclient.EnsureSSHBinary(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "ssh-binary",
			Target:         "PATH",
			Message:        err.Error(),
			Recommendation: "install OpenSSH client and ensure `ssh` is on PATH",
		})
	}
	for _, bin := range []string{"ssh-add", "ssh-keygen", "ssh-keyscan"} {
		if _, err := exec.LookPath(bin); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "ssh-toolchain",
				Target:         bin,
				Message:        fmt.Sprintf("%s not found in PATH", bin),
				Recommendation: "install the full OpenSSH client package",
			})
		}
	}

	oracle := permissions.New()
	if res := oracle.CheckSSHDir(); !res.IsSecure {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "ssh-dir-permissions",
			Target:         "~/.ssh",
			Message:        res.Message,
			Recommendation: "restrict ~/.ssh to mode 700",
		})
	}

	if issue, ok := configModeIssue(); ok {
		issues = append(issues, issue)
	}

	res, err := config.ParseDefault()
	if err == nil {
		for _, w := range res.Warnings {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "config-warning",
				Target:         "~/.ssh/config",
				Message:        w,
				Recommendation: "fix malformed/unsupported SSH config directives",
			})
		}
		issues = append(issues, missingIdentityIssues(res.Hosts)...)
		issues = append(issues, sharedIdentityIssues(res.Hosts)...)
		issues = append(issues, danglingGroupIssues(res.Hosts)...)
	}

	if !agent.New().IsRunning(ctx) {
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "agent",
			Target:         "SSH_AUTH_SOCK",
			Message:        "no SSH agent is reachable",
			Recommendation: "start an agent (eval `ssh-agent`) so encrypted keys work non-interactively",
		})
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}, nil
}

// configModeIssue flags a ~/.ssh/config writable by group or others. ssh
// itself refuses such a file for ProxyCommand evaluation.
func configModeIssue() (Issue, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Issue{}, false
	}
	path := filepath.Join(home, ".ssh", "config")
	st, err := os.Stat(path)
	if err != nil {
		return Issue{}, false
	}
	if st.Mode().Perm()&0o022 == 0 {
		return Issue{}, false
	}
	return Issue{
		Severity:       SeverityMedium,
		Check:          "config-permissions",
		Target:         "~/.ssh/config",
		Message:        fmt.Sprintf("config file permissions are %03o and allow writing by others", st.Mode().Perm()),
		Recommendation: "restrict ~/.ssh/config to mode 600",
	}, true
}

// missingIdentityIssues flags hosts whose configured key is absent on disk.
func missingIdentityIssues(hosts []model.HostEntry) []Issue {
	var issues []Issue
	for _, h := range hosts {
		if h.IdentityFile == "" {
			continue
		}
		path := config.ExpandHome(h.IdentityFile)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "missing-identity",
				Target:         h.Alias,
				Message:        fmt.Sprintf("identity file %s does not exist", h.IdentityFile),
				Recommendation: "fix the IdentityFile path or generate the key with ssh-keygen",
			})
		}
	}
	return issues
}

// sharedIdentityIssues flags a key referenced by many hosts. Not wrong by
// itself, but a frequent cause of "wrong key offered" failures when servers
// limit auth attempts.
func sharedIdentityIssues(hosts []model.HostEntry) []Issue {
	refs := map[string][]string{}
	for _, h := range hosts {
		if h.IdentityFile == "" {
			continue
		}
		key := config.ExpandHome(h.IdentityFile)
		refs[key] = append(refs[key], h.Alias)
	}
	var issues []Issue
	for key, aliases := range refs {
		if len(aliases) < 4 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "shared-identity",
			Target:         key,
			Message:        fmt.Sprintf("identity file is configured for %d hosts", len(aliases)),
			Recommendation: "consider per-host keys, or IdentitiesOnly yes to stop ssh offering every key",
		})
	}
	return issues
}

// danglingGroupIssues flags saved host groups that reference aliases no
// longer present in ~/.ssh/config.
func danglingGroupIssues(hosts []model.HostEntry) []Issue {
	groups, err := hostgroup.LoadAll()
	if err != nil {
		return nil
	}
	known := map[string]bool{}
	for _, h := range hosts {
		known[h.Alias] = true
	}
	var issues []Issue
	for _, g := range groups {
		for _, alias := range g.Aliases {
			if !known[alias] {
				issues = append(issues, Issue{
					Severity:       SeverityLow,
					Check:          "dangling-group-member",
					Target:         g.Name,
					Message:        fmt.Sprintf("group references %s, which is not in ~/.ssh/config", alias),
					Recommendation: "update the group with `ssh-doctor group add` or restore the host entry",
				})
			}
		}
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
