package doctor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/treykane/ssh-doctor/internal/hostgroup"
)

func writeSSHConfig(t *testing.T, content string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SSH_AUTH_SOCK", "")
	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sshDir, "config"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func hasIssue(report Report, check string) bool {
	for _, issue := range report.Issues {
		if issue.Check == check {
			return true
		}
	}
	return false
}

func TestRunFlagsMissingIdentity(t *testing.T) {
	writeSSHConfig(t, strings.Join([]string{
		"Host api",
		"  HostName api.example.com",
		"  IdentityFile ~/.ssh/id_missing",
		"",
	}, "\n"))

	report, err := Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !hasIssue(report, "missing-identity") {
		t.Fatalf("expected missing-identity issue, got %+v", report.Issues)
	}
}

func TestRunFlagsSharedIdentity(t *testing.T) {
	var lines []string
	for _, alias := range []string{"a", "b", "c", "d"} {
		lines = append(lines,
			"Host "+alias,
			"  HostName "+alias+".example.com",
			"  IdentityFile ~/.ssh/id_shared",
		)
	}
	writeSSHConfig(t, strings.Join(lines, "\n")+"\n")

	report, err := Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !hasIssue(report, "shared-identity") {
		t.Fatalf("expected shared-identity issue, got %+v", report.Issues)
	}
}

func TestRunFlagsLooseConfigPermissions(t *testing.T) {
	writeSSHConfig(t, "Host api\n  HostName api.example.com\n")
	home := os.Getenv("HOME")
	if err := os.Chmod(filepath.Join(home, ".ssh", "config"), 0o666); err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !hasIssue(report, "config-permissions") {
		t.Fatalf("expected config-permissions issue, got %+v", report.Issues)
	}
}

func TestRunFlagsDanglingGroupMember(t *testing.T) {
	writeSSHConfig(t, "Host api\n  HostName api.example.com\n")
	if err := hostgroup.Create("prod", []string{"api", "gone"}); err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !hasIssue(report, "dangling-group-member") {
		t.Fatalf("expected dangling-group-member issue, got %+v", report.Issues)
	}
}

func TestRunSortsBySeverity(t *testing.T) {
	writeSSHConfig(t, strings.Join([]string{
		"Host api",
		"  HostName api.example.com",
		"  IdentityFile ~/.ssh/id_missing",
		"",
	}, "\n"))

	report, err := Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	last := 4
	for _, issue := range report.Issues {
		rank := severityRank(issue.Severity)
		if rank > last {
			t.Fatalf("issues not sorted by severity: %+v", report.Issues)
		}
		last = rank
	}
}
