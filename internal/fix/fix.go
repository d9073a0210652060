// Package fix applies remediation actions and reports their outcomes as
// structured results. Nothing here raises an error for a bad action: every
// failure mode, missing parameters included, comes back as a FixResult the
// caller can render inline.
package fix

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/treykane/ssh-doctor/internal/agent"
	"github.com/treykane/ssh-doctor/internal/knownhosts"
	"github.com/treykane/ssh-doctor/internal/model"
	"github.com/treykane/ssh-doctor/internal/permissions"
	"github.com/treykane/ssh-doctor/internal/security"
)

// KnownHostsEditor is the slice of known_hosts editing the executor needs.
type KnownHostsEditor interface {
	Remove(hostname string) (knownhosts.RemoveResult, error)
	Add(ctx context.Context, hostname string, port int) (knownhosts.AddResult, error)
}

// FileEditor edits the real ~/.ssh/known_hosts.
type FileEditor struct{}

func (FileEditor) Remove(hostname string) (knownhosts.RemoveResult, error) {
	return knownhosts.RemoveHost(hostname)
}

func (FileEditor) Add(ctx context.Context, hostname string, port int) (knownhosts.AddResult, error) {
	return knownhosts.AddHost(ctx, hostname, port)
}

// Executor dispatches fix actions to the collaborator that can apply them.
type Executor struct {
	agent agent.Client
	perms permissions.Oracle
	hosts KnownHostsEditor
}

func NewExecutor(agentClient agent.Client, oracle permissions.Oracle, hosts KnownHostsEditor) *Executor {
	return &Executor{agent: agentClient, perms: oracle, hosts: hosts}
}

// Execute applies one fix action. secret carries the key passphrase for
// ssh-add actions and is otherwise ignored; callers that see
// NeedsPassphrase=true re-invoke with the secret filled in.
func (e *Executor) Execute(ctx context.Context, action model.FixAction, secret string) model.FixResult {
	switch action.Type {
	case model.FixChmod:
		return e.fixPermissions(action)
	case model.FixSSHAdd:
		return e.addKeyToAgent(ctx, action, secret)
	case model.FixRemoveKnownHost:
		return e.removeKnownHost(action)
	case model.FixAddKnownHost:
		return e.addKnownHost(ctx, action)
	case model.FixCopyPubkey:
		return model.FixResult{Success: false, Message: "copying the public key to a server is not implemented; use ssh-copy-id"}
	case model.FixGenerateKey:
		return model.FixResult{Success: false, Message: "key generation is not implemented; use ssh-keygen"}
	}
	return model.FixResult{Success: false, Message: fmt.Sprintf("unknown fix type %q", action.Type)}
}

func (e *Executor) fixPermissions(action model.FixAction) model.FixResult {
	keyPath := action.Params["keyPath"]
	if keyPath == "" {
		return model.FixResult{Success: false, Message: "No key path available for this fix"}
	}
	res := e.perms.FixKey(keyPath)
	return model.FixResult{Success: res.Success, Message: res.Message, KeyPath: keyPath}
}

func (e *Executor) addKeyToAgent(ctx context.Context, action model.FixAction, secret string) model.FixResult {
	keyPath := action.Params["keyPath"]
	if keyPath == "" {
		return model.FixResult{Success: false, Message: "No key path available for this fix"}
	}
	res := e.agent.Add(ctx, keyPath, secret)
	return model.FixResult{
		Success:         res.Success,
		Message:         res.Message,
		NeedsPassphrase: res.NeedsPassphrase,
		KeyPath:         keyPath,
	}
}

func (e *Executor) removeKnownHost(action model.FixAction) model.FixResult {
	hostname := action.Params["hostname"]
	if hostname == "" {
		return model.FixResult{Success: false, Message: "No hostname available for this fix"}
	}
	res, err := e.hosts.Remove(hostname)
	if err != nil {
		return model.FixResult{Success: false, Message: fmt.Sprintf("could not edit known_hosts: %v", err)}
	}
	return model.FixResult{Success: res.Success, Message: res.Message}
}

func (e *Executor) addKnownHost(ctx context.Context, action model.FixAction) model.FixResult {
	hostname := action.Params["hostname"]
	if hostname == "" {
		return model.FixResult{Success: false, Message: "No hostname available for this fix"}
	}
	port := 0
	if p := action.Params["port"]; p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return model.FixResult{Success: false, Message: fmt.Sprintf("invalid port %q", p)}
		}
		port = parsed
	}
	res, err := e.hosts.Add(ctx, hostname, port)
	if err != nil {
		slog.Debug("known_hosts update failed", "host", hostname, "detail", security.DebugMessage(err))
		return model.FixResult{Success: false, Message: fmt.Sprintf("could not edit known_hosts: %v", err)}
	}
	return model.FixResult{Success: res.Success, Message: res.Message}
}

// AppliedFix pairs one executed action with its outcome.
type AppliedFix struct {
	Action model.FixAction
	Result model.FixResult
}

// ExecuteAll applies every action strictly in order and halts immediately at
// the first NeedsPassphrase outcome, returning what was applied so far. A
// plain failure does not halt the sequence: remaining fixes touch unrelated
// resources and the caller gets the full picture in one pass.
func (e *Executor) ExecuteAll(ctx context.Context, actions []model.FixAction) []AppliedFix {
	var applied []AppliedFix
	for _, action := range actions {
		res := e.Execute(ctx, action, "")
		applied = append(applied, AppliedFix{Action: action, Result: res})
		if res.NeedsPassphrase {
			slog.Warn("fix sequence halted, key needs a passphrase", "key", res.KeyPath)
			break
		}
	}
	return applied
}
