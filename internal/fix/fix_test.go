package fix

import (
	"context"
	"strings"
	"testing"

	"github.com/treykane/ssh-doctor/internal/agent"
	"github.com/treykane/ssh-doctor/internal/knownhosts"
	"github.com/treykane/ssh-doctor/internal/model"
	"github.com/treykane/ssh-doctor/internal/permissions"
)

type fakeAgent struct {
	addCalls   []string
	addResults map[string]agent.AddResult
}

func (f *fakeAgent) IsRunning(ctx context.Context) bool { return true }
func (f *fakeAgent) ListKeys(ctx context.Context) ([]agent.KeyInfo, error) {
	return nil, nil
}
func (f *fakeAgent) IsKeyLoaded(ctx context.Context, keyPath string) (bool, error) {
	return false, nil
}
func (f *fakeAgent) Add(ctx context.Context, keyPath, passphrase string) agent.AddResult {
	f.addCalls = append(f.addCalls, keyPath)
	if res, ok := f.addResults[keyPath]; ok {
		return res
	}
	return agent.AddResult{Success: true, Message: "identity added"}
}
func (f *fakeAgent) Remove(ctx context.Context, keyPath string) agent.RemoveResult {
	return agent.RemoveResult{Success: true}
}

type fakeOracle struct {
	fixed []string
}

func (f *fakeOracle) CheckKey(path string) permissions.CheckResult { return permissions.CheckResult{} }
func (f *fakeOracle) FixKey(path string) permissions.FixResult {
	f.fixed = append(f.fixed, path)
	return permissions.FixResult{Success: true, Message: "permissions set to 600", NewMode: "600"}
}
func (f *fakeOracle) CheckSSHDir() permissions.CheckResult { return permissions.CheckResult{} }
func (f *fakeOracle) FixSSHDir() permissions.FixResult     { return permissions.FixResult{} }

type fakeHosts struct {
	removed []string
	added   []string
}

func (f *fakeHosts) Remove(hostname string) (knownhosts.RemoveResult, error) {
	f.removed = append(f.removed, hostname)
	return knownhosts.RemoveResult{Success: true, Message: "removed 1 entry"}, nil
}

func (f *fakeHosts) Add(ctx context.Context, hostname string, port int) (knownhosts.AddResult, error) {
	f.added = append(f.added, hostname)
	return knownhosts.AddResult{Success: true, Message: "added 1 key"}, nil
}

func newTestExecutor() (*Executor, *fakeAgent, *fakeOracle, *fakeHosts) {
	ag := &fakeAgent{addResults: map[string]agent.AddResult{}}
	or := &fakeOracle{}
	kh := &fakeHosts{}
	return NewExecutor(ag, or, kh), ag, or, kh
}

func TestExecuteChmodWithoutKeyPath(t *testing.T) {
	e, _, or, _ := newTestExecutor()
	res := e.Execute(context.Background(), model.FixAction{Type: model.FixChmod}, "")
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Message, "No key path") {
		t.Fatalf("message = %q", res.Message)
	}
	if len(or.fixed) != 0 {
		t.Fatal("oracle must not be called without a key path")
	}
}

func TestExecuteSSHAddWithoutKeyPath(t *testing.T) {
	e, ag, _, _ := newTestExecutor()
	res := e.Execute(context.Background(), model.FixAction{Type: model.FixSSHAdd}, "")
	if res.Success || !strings.Contains(res.Message, "No key path") {
		t.Fatalf("result = %+v", res)
	}
	if len(ag.addCalls) != 0 {
		t.Fatal("agent must not be called without a key path")
	}
}

func TestExecuteChmodDelegatesToOracle(t *testing.T) {
	e, _, or, _ := newTestExecutor()
	res := e.Execute(context.Background(), model.FixAction{
		Type:   model.FixChmod,
		Params: map[string]string{"keyPath": "/home/u/.ssh/id_ed25519"},
	}, "")
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.KeyPath != "/home/u/.ssh/id_ed25519" {
		t.Fatalf("keyPath = %q", res.KeyPath)
	}
	if len(or.fixed) != 1 || or.fixed[0] != "/home/u/.ssh/id_ed25519" {
		t.Fatalf("oracle calls = %v", or.fixed)
	}
}

func TestExecuteSSHAddPropagatesNeedsPassphrase(t *testing.T) {
	e, ag, _, _ := newTestExecutor()
	ag.addResults["/k"] = agent.AddResult{
		Success:         false,
		Message:         "this key requires a passphrase",
		NeedsPassphrase: true,
	}

	res := e.Execute(context.Background(), model.FixAction{
		Type:   model.FixSSHAdd,
		Params: map[string]string{"keyPath": "/k"},
	}, "")
	if res.Success {
		t.Fatal("expected non-success")
	}
	if !res.NeedsPassphrase || res.KeyPath != "/k" {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteKnownHostActions(t *testing.T) {
	e, _, _, kh := newTestExecutor()

	res := e.Execute(context.Background(), model.FixAction{
		Type:   model.FixRemoveKnownHost,
		Params: map[string]string{"hostname": "github.com"},
	}, "")
	if !res.Success {
		t.Fatalf("remove = %+v", res)
	}
	res = e.Execute(context.Background(), model.FixAction{
		Type:   model.FixAddKnownHost,
		Params: map[string]string{"hostname": "gitlab.com", "port": "2222"},
	}, "")
	if !res.Success {
		t.Fatalf("add = %+v", res)
	}
	if len(kh.removed) != 1 || len(kh.added) != 1 {
		t.Fatalf("hosts calls = %+v", kh)
	}

	res = e.Execute(context.Background(), model.FixAction{Type: model.FixRemoveKnownHost}, "")
	if res.Success || !strings.Contains(res.Message, "No hostname") {
		t.Fatalf("missing hostname result = %+v", res)
	}
}

func TestExecuteUnimplementedFixes(t *testing.T) {
	e, _, _, _ := newTestExecutor()
	for _, typ := range []model.FixType{model.FixCopyPubkey, model.FixGenerateKey} {
		res := e.Execute(context.Background(), model.FixAction{Type: typ, Params: map[string]string{"keyPath": "/k"}}, "")
		if res.Success {
			t.Fatalf("%s must not succeed", typ)
		}
		if !strings.Contains(res.Message, "not implemented") {
			t.Fatalf("%s message = %q", typ, res.Message)
		}
	}
}

func TestExecuteAllHaltsAtNeedsPassphrase(t *testing.T) {
	e, ag, or, _ := newTestExecutor()
	ag.addResults["/locked"] = agent.AddResult{NeedsPassphrase: true, Message: "this key requires a passphrase"}

	actions := []model.FixAction{
		{Type: model.FixChmod, Params: map[string]string{"keyPath": "/k1"}},
		{Type: model.FixSSHAdd, Params: map[string]string{"keyPath": "/locked"}},
		{Type: model.FixChmod, Params: map[string]string{"keyPath": "/k2"}},
	}
	applied := e.ExecuteAll(context.Background(), actions)
	if len(applied) != 2 {
		t.Fatalf("expected halt after 2 actions, got %d", len(applied))
	}
	if !applied[1].Result.NeedsPassphrase {
		t.Fatalf("second result = %+v", applied[1].Result)
	}
	if len(or.fixed) != 1 {
		t.Fatalf("chmod calls = %v", or.fixed)
	}
}

func TestExecuteAllContinuesPastPlainFailure(t *testing.T) {
	e, ag, or, _ := newTestExecutor()
	ag.addResults["/bad"] = agent.AddResult{Success: false, Message: "could not read key"}

	actions := []model.FixAction{
		{Type: model.FixSSHAdd, Params: map[string]string{"keyPath": "/bad"}},
		{Type: model.FixChmod, Params: map[string]string{"keyPath": "/k"}},
	}
	applied := e.ExecuteAll(context.Background(), actions)
	if len(applied) != 2 {
		t.Fatalf("expected both actions applied, got %d", len(applied))
	}
	if len(or.fixed) != 1 {
		t.Fatalf("chmod calls = %v", or.fixed)
	}
}
