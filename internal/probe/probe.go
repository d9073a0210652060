// Package probe runs one diagnostic SSH handshake against a configured host
// and turns its transcript into a structured ConnectionTestResult.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/treykane/ssh-doctor/internal/classify"
	"github.com/treykane/ssh-doctor/internal/model"
	"github.com/treykane/ssh-doctor/internal/sshclient"
	"github.com/treykane/ssh-doctor/internal/util"
)

// Runner executes one probe command and returns its merged stdout+stderr.
// The exec error is returned alongside the output: ssh exits non-zero on
// most successful probes (remote shell refused), so the error alone means
// nothing without the transcript.
type Runner interface {
	Run(ctx context.Context, alias string) (output string, err error)
}

// ExecRunner runs probes through the system ssh binary.
type ExecRunner struct {
	Client  *sshclient.Client
	Timeout time.Duration
}

func NewRunner(client *sshclient.Client, timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = util.ProbeTimeout
	}
	return &ExecRunner{Client: client, Timeout: timeout}
}

// Run performs the handshake attempt. Stdout and stderr are merged into one
// transcript because ssh splits diagnostic output between them and the
// classifier needs both.
func (r *ExecRunner) Run(ctx context.Context, alias string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	connectSeconds := int(r.Timeout / time.Second)
	if connectSeconds < 1 {
		connectSeconds = 1
	}
	cmd := r.Client.ProbeCommand(ctx, alias, connectSeconds)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		// The deadline killed ssh; cmd.Run reports "signal: killed", which
		// hides the cause. ConnectTimeout only bounds the TCP connect, so a
		// hang after the socket opens (banner, auth) ends up here too.
		err = fmt.Errorf("probe timed out after %s: %w", r.Timeout, context.DeadlineExceeded)
	}
	return buf.String(), err
}

// Prober tests connections and classifies their outcomes.
type Prober struct {
	runner     Runner
	classifier classify.Classifier
}

func New(runner Runner, classifier classify.Classifier) *Prober {
	return &Prober{runner: runner, classifier: classifier}
}

// Test attempts one handshake against the host and classifies the result.
//
// Success is decided exclusively by positive greeting markers in the
// transcript, never by exit code. When the probe produces no transcript at
// all (ssh binary failed to launch), a message-only unknown failure is
// returned instead of an error: a diagnostic tool reports failures, it does
// not fail on them.
func (p *Prober) Test(ctx context.Context, host model.HostIdentity) model.ConnectionTestResult {
	transcript, runErr := p.runner.Run(ctx, host.Alias)

	result := model.ConnectionTestResult{
		Output:   transcript,
		DebugLog: transcript,
		Platform: classify.DetectPlatform(host.HostName),
	}
	if file := classify.ExtractIdentityFile(transcript); file != "" {
		result.IdentityFile = file
	}

	if classify.DetectSuccess(transcript) {
		result.Success = true
		return result
	}

	if errors.Is(runErr, context.DeadlineExceeded) {
		// The deadline fires at or before ssh's own ConnectTimeout, so the
		// transcript usually ends mid-handshake with no "timed out" line for
		// the classifier to match.
		result.ErrorType = model.ErrTimeout
		result.ErrorDetails = &model.ErrorDetails{
			Type:       model.ErrTimeout,
			RawMessage: runErr.Error(),
			Suggestion: "The connection timed out. Check your network connection and firewall settings.",
		}
		return result
	}

	if transcript == "" {
		msg := "connection attempt produced no output"
		if runErr != nil {
			var execErr *exec.Error
			if errors.As(runErr, &execErr) {
				msg = fmt.Sprintf("could not launch ssh: %v", execErr)
			} else {
				msg = fmt.Sprintf("connection attempt failed: %v", runErr)
			}
		}
		result.ErrorType = model.ErrUnknown
		result.ErrorDetails = &model.ErrorDetails{
			Type:       model.ErrUnknown,
			RawMessage: msg,
			Suggestion: "Verify that the ssh binary is installed and on your PATH.",
		}
		return result
	}

	details := p.classifier.Classify(transcript)
	if details == nil {
		details = &model.ErrorDetails{
			Type:       model.ErrUnknown,
			RawMessage: "no failure marker found in transcript",
			Suggestion: "Inspect the debug log for details.",
		}
	}
	result.ErrorType = details.Type
	result.ErrorDetails = details

	// HostToRemove / HostToAdd are convenience fields for the UI, gated on
	// the specific host key error so callers never act on a stale hostname.
	switch details.Type {
	case model.ErrHostKeyChanged:
		if h := details.FixParams["hostname"]; h != "" {
			result.HostToRemove = h
		} else {
			result.HostToRemove = host.HostName
		}
	case model.ErrHostKeyUnknown:
		if h := details.FixParams["hostname"]; h != "" {
			result.HostToAdd = h
		} else {
			result.HostToAdd = host.HostName
		}
	}

	return result
}
