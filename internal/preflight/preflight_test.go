package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/treykane/ssh-doctor/internal/agent"
	"github.com/treykane/ssh-doctor/internal/model"
	"github.com/treykane/ssh-doctor/internal/permissions"
)

type fakeAgent struct {
	running   bool
	keyLoaded bool
	loadedErr error
}

func (f *fakeAgent) IsRunning(ctx context.Context) bool { return f.running }
func (f *fakeAgent) ListKeys(ctx context.Context) ([]agent.KeyInfo, error) {
	return nil, nil
}
func (f *fakeAgent) IsKeyLoaded(ctx context.Context, keyPath string) (bool, error) {
	return f.keyLoaded, f.loadedErr
}
func (f *fakeAgent) Add(ctx context.Context, keyPath, passphrase string) agent.AddResult {
	return agent.AddResult{}
}
func (f *fakeAgent) Remove(ctx context.Context, keyPath string) agent.RemoveResult {
	return agent.RemoveResult{}
}

type fakeOracle struct {
	key permissions.CheckResult
}

func (f *fakeOracle) CheckKey(path string) permissions.CheckResult { return f.key }
func (f *fakeOracle) FixKey(path string) permissions.FixResult     { return permissions.FixResult{} }
func (f *fakeOracle) CheckSSHDir() permissions.CheckResult         { return permissions.CheckResult{} }
func (f *fakeOracle) FixSSHDir() permissions.FixResult             { return permissions.FixResult{} }

func writeKeyPair(t *testing.T) model.HostIdentity {
	t.Helper()
	dir := t.TempDir()
	key := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(key, []byte("key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(key+".pub", []byte("pub"), 0o644); err != nil {
		t.Fatal(err)
	}
	return model.HostIdentity{
		Alias:         "api",
		HostName:      "api.example.com",
		IdentityFile:  key,
		PublicKeyFile: key + ".pub",
	}
}

func TestRunAllPassing(t *testing.T) {
	host := writeKeyPair(t)
	r := New(&fakeAgent{running: true, keyLoaded: true}, &fakeOracle{
		key: permissions.CheckResult{IsSecure: true, Message: "key permissions are correct"},
	})

	result := r.Run(context.Background(), host)
	if !result.AllPassed || result.HasErrors || result.HasWarnings {
		t.Fatalf("flags = %+v", result)
	}

	var order []model.CheckID
	for _, c := range result.Checks {
		order = append(order, c.ID)
	}
	want := []model.CheckID{
		model.CheckAgentRunning,
		model.CheckIdentityExists,
		model.CheckPublicKeyExists,
		model.CheckIdentityPerms,
		model.CheckKeyInAgent,
	}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("check order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunNoIdentityFileEmitsTwoChecks(t *testing.T) {
	host := model.HostIdentity{Alias: "bare", HostName: "bare.example.com"}
	r := New(&fakeAgent{running: true}, &fakeOracle{})

	result := r.Run(context.Background(), host)
	if len(result.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d: %+v", len(result.Checks), result.Checks)
	}
	if result.Checks[0].ID != model.CheckAgentRunning {
		t.Fatalf("first check = %s", result.Checks[0].ID)
	}
	if result.Checks[1].ID != model.CheckIdentityExists || result.Checks[1].Status != model.CheckSkipped {
		t.Fatalf("placeholder = %+v", result.Checks[1])
	}
}

func TestRunMissingIdentityFails(t *testing.T) {
	host := model.HostIdentity{
		Alias:         "gone",
		IdentityFile:  filepath.Join(t.TempDir(), "missing"),
		PublicKeyFile: filepath.Join(t.TempDir(), "missing.pub"),
	}
	r := New(&fakeAgent{running: true}, &fakeOracle{
		key: permissions.CheckResult{IsSecure: false, Message: "key file does not exist"},
	})

	result := r.Run(context.Background(), host)
	if !result.HasErrors {
		t.Fatal("expected errors")
	}
	failed, ok := result.FirstFailed()
	if !ok || failed.ID != model.CheckIdentityExists {
		t.Fatalf("first failed = %+v", failed)
	}
	if failed.FixAction == nil || failed.FixAction.Type != model.FixGenerateKey {
		t.Fatalf("fix action = %+v", failed.FixAction)
	}
}

func TestRunAgentDownAndKeyMissingFromAgentAreWarnings(t *testing.T) {
	host := writeKeyPair(t)
	r := New(&fakeAgent{running: false, keyLoaded: false}, &fakeOracle{
		key: permissions.CheckResult{IsSecure: true, Message: "key permissions are correct"},
	})

	result := r.Run(context.Background(), host)
	if result.HasErrors {
		t.Fatalf("agent state must never be an error: %+v", result.Checks)
	}
	if !result.HasWarnings {
		t.Fatal("expected warnings")
	}
	for _, c := range result.Checks {
		if c.ID == model.CheckKeyInAgent {
			if c.Status != model.CheckWarning {
				t.Fatalf("key_in_agent status = %s", c.Status)
			}
			if c.FixAction == nil || c.FixAction.Type != model.FixSSHAdd {
				t.Fatalf("key_in_agent fix = %+v", c.FixAction)
			}
		}
	}
}

func TestRunCollaboratorErrorDegradesToWarning(t *testing.T) {
	host := writeKeyPair(t)
	r := New(&fakeAgent{running: true, loadedErr: agent.ErrAgentNotRunning}, &fakeOracle{
		key: permissions.CheckResult{IsSecure: true, Message: "key permissions are correct"},
	})

	result := r.Run(context.Background(), host)
	if result.HasErrors {
		t.Fatalf("collaborator error must not fail the run: %+v", result.Checks)
	}
	for _, c := range result.Checks {
		if c.ID == model.CheckKeyInAgent && c.Status != model.CheckWarning {
			t.Fatalf("key_in_agent status = %s", c.Status)
		}
	}
}

func TestRunTwiceYieldsIdenticalChecks(t *testing.T) {
	host := writeKeyPair(t)
	r := New(&fakeAgent{running: true, keyLoaded: true}, &fakeOracle{
		key: permissions.CheckResult{IsSecure: true, Message: "key permissions are correct"},
	})

	first := r.Run(context.Background(), host)
	second := r.Run(context.Background(), host)
	if diff := cmp.Diff(first.Checks, second.Checks); diff != "" {
		t.Fatalf("checks differ between runs:\n%s", diff)
	}
}
