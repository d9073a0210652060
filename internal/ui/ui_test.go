package ui

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, home, content string) {
	t.Helper()
	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sshDir, "config"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRefreshReloadsHostList(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	writeConfig(t, home, "Host one\n  HostName one.example.com\n")

	m := initialModel("")
	if len(m.hosts) != 1 {
		t.Fatalf("hosts = %d, want 1", len(m.hosts))
	}

	writeConfig(t, home, "Host one\n  HostName one.example.com\nHost two\n  HostName two.example.com\n")
	next, cmd := m.Update(refreshMsg(time.Now()))
	got := next.(modelUI)
	if len(got.hosts) != 2 {
		t.Fatalf("hosts after refresh = %d, want 2", len(got.hosts))
	}
	if cmd == nil {
		t.Fatal("refresh must re-arm the tick")
	}
}

func TestRefreshLeavesDiagnosisAlone(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	writeConfig(t, home, "Host one\n  HostName one.example.com\n")

	m := initialModel("")
	m.phase = phaseSteps

	writeConfig(t, home, "Host one\n  HostName one.example.com\nHost two\n  HostName two.example.com\n")
	next, cmd := m.Update(refreshMsg(time.Now()))
	got := next.(modelUI)
	if len(got.hosts) != 1 {
		t.Fatalf("hosts = %d, want 1 (no reload mid-diagnosis)", len(got.hosts))
	}
	if cmd == nil {
		t.Fatal("refresh must re-arm the tick even outside the picker")
	}
}

func TestScheduleRefreshUsesConfiguredCadence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	m := initialModel("")
	m.cfg.UI.RefreshSeconds = 0
	if cmd := m.scheduleRefresh(); cmd == nil {
		t.Fatal("zero cadence must fall back to the default, not disarm")
	}
}
