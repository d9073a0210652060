package sshclient

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildProbeArgs(t *testing.T) {
	args := New().BuildProbeArgs("myhost", 10)
	want := []string{"-v", "-T", "-o", "BatchMode=yes", "-o", "ConnectTimeout=10", "myhost"}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeCommandUsesAliasAsDestination(t *testing.T) {
	cmd := New().ProbeCommand(context.Background(), "prod-db", 5)
	if got := cmd.Args[len(cmd.Args)-1]; got != "prod-db" {
		t.Fatalf("destination = %q", got)
	}
}

func TestConnectCommand(t *testing.T) {
	cmd := New().ConnectCommand("prod-db")
	if len(cmd.Args) != 2 || cmd.Args[1] != "prod-db" {
		t.Fatalf("args = %v", cmd.Args)
	}
}
