package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Probe.TimeoutSeconds != 10 {
		t.Fatalf("timeout = %d", cfg.Probe.TimeoutSeconds)
	}
	if !cfg.UI.RedactPaths {
		t.Fatal("redact default = false")
	}
	if _, err := os.Stat(filepath.Join(xdg, "ssh-doctor", "config.yaml")); err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Probe.TimeoutSeconds = 25
	if err := Save(cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Probe.TimeoutSeconds != 25 {
		t.Fatalf("timeout = %d", got.Probe.TimeoutSeconds)
	}
}

func TestLoadClampsNonPositiveValues(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "ssh-doctor")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	raw := "probe:\n  timeout_seconds: 0\nui:\n  refresh_seconds: -1\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Probe.TimeoutSeconds != 10 || cfg.UI.RefreshSeconds <= 0 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestDataFilePaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	j, err := JournalFilePath()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(j, filepath.Join("ssh-doctor", "journal.jsonl")) {
		t.Fatalf("journal path = %q", j)
	}
	g, err := GroupsFilePath()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(g, filepath.Join("ssh-doctor", "groups.yaml")) {
		t.Fatalf("groups path = %q", g)
	}
}
