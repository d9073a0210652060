package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/treykane/ssh-doctor/internal/classify"
	"github.com/treykane/ssh-doctor/internal/model"
)

type fakeRunner struct {
	output string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, alias string) (string, error) {
	return f.output, f.err
}

func testHost() model.HostIdentity {
	return model.HostIdentity{Alias: "gh", HostName: "github.com"}
}

func TestTestSuccessIgnoresExitError(t *testing.T) {
	// GitHub closes the connection with a non-zero exit after a successful
	// handshake; the greeting alone decides success.
	runner := &fakeRunner{
		output: "Hi octocat! You've successfully authenticated, but GitHub does not provide shell access.",
		err:    errors.New("exit status 1"),
	}
	p := New(runner, classify.New())

	result := p.Test(context.Background(), testHost())
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Platform != "github" {
		t.Fatalf("platform = %q", result.Platform)
	}
	if result.ErrorDetails != nil {
		t.Fatalf("unexpected error details: %+v", result.ErrorDetails)
	}
}

func TestTestClassifiesFailure(t *testing.T) {
	runner := &fakeRunner{
		output: "git@github.com: Permission denied (publickey).",
		err:    errors.New("exit status 255"),
	}
	p := New(runner, classify.New())

	result := p.Test(context.Background(), testHost())
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ErrorType != model.ErrPermissionDenied {
		t.Fatalf("error type = %s", result.ErrorType)
	}
	if result.DebugLog == "" {
		t.Fatal("transcript must be preserved")
	}
}

func TestTestHostToRemoveGating(t *testing.T) {
	runner := &fakeRunner{
		output: "WARNING: REMOTE HOST IDENTIFICATION HAS CHANGED!\nHost key for github.com has changed and you have requested strict checking.",
		err:    errors.New("exit status 255"),
	}
	p := New(runner, classify.New())

	result := p.Test(context.Background(), testHost())
	if result.HostToRemove != "github.com" {
		t.Fatalf("hostToRemove = %q", result.HostToRemove)
	}
	if result.HostToAdd != "" {
		t.Fatalf("hostToAdd = %q", result.HostToAdd)
	}
}

func TestTestDeadlineClassifiesAsTimeout(t *testing.T) {
	// A killed probe leaves a transcript that ends mid-handshake; no "timed
	// out" line exists for the classifier, so the deadline itself must decide.
	runner := &fakeRunner{
		output: "debug1: Connecting to stalled.example.com [10.0.0.9] port 22.\n",
		err:    fmt.Errorf("probe timed out after 10s: %w", context.DeadlineExceeded),
	}
	p := New(runner, classify.New())

	result := p.Test(context.Background(), testHost())
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ErrorType != model.ErrTimeout {
		t.Fatalf("error type = %s, want %s", result.ErrorType, model.ErrTimeout)
	}
	if result.ErrorDetails == nil || result.ErrorDetails.Type != model.ErrTimeout {
		t.Fatalf("details = %+v", result.ErrorDetails)
	}
	if result.DebugLog == "" {
		t.Fatal("partial transcript must be preserved")
	}
}

func TestTestDeadlineWithoutTranscript(t *testing.T) {
	runner := &fakeRunner{
		output: "",
		err:    fmt.Errorf("probe timed out after 10s: %w", context.DeadlineExceeded),
	}
	p := New(runner, classify.New())

	result := p.Test(context.Background(), testHost())
	if result.ErrorType != model.ErrTimeout {
		t.Fatalf("error type = %s, want %s", result.ErrorType, model.ErrTimeout)
	}
}

func TestTestNoTranscriptFallsBackToMessage(t *testing.T) {
	runner := &fakeRunner{
		output: "",
		err:    &exec.Error{Name: "ssh", Err: exec.ErrNotFound},
	}
	p := New(runner, classify.New())

	result := p.Test(context.Background(), testHost())
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ErrorType != model.ErrUnknown {
		t.Fatalf("error type = %s", result.ErrorType)
	}
	if result.ErrorDetails == nil || result.ErrorDetails.RawMessage == "" {
		t.Fatalf("details = %+v", result.ErrorDetails)
	}
}

func TestTestExtractsIdentityFile(t *testing.T) {
	runner := &fakeRunner{
		output: "debug1: identity file /home/u/.ssh/id_ed25519 type 3\ngit@github.com: Permission denied (publickey).",
		err:    errors.New("exit status 255"),
	}
	p := New(runner, classify.New())

	result := p.Test(context.Background(), testHost())
	if result.IdentityFile != "/home/u/.ssh/id_ed25519" {
		t.Fatalf("identityFile = %q", result.IdentityFile)
	}
}
