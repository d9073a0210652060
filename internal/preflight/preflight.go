// Package preflight runs the fixed battery of local readiness checks for one
// host before any network handshake is attempted.
package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/treykane/ssh-doctor/internal/agent"
	"github.com/treykane/ssh-doctor/internal/model"
	"github.com/treykane/ssh-doctor/internal/permissions"
)

// checkOrder is the canonical order checks appear in a PreflightResult,
// regardless of completion order.
var checkOrder = []model.CheckID{
	model.CheckAgentRunning,
	model.CheckIdentityExists,
	model.CheckPublicKeyExists,
	model.CheckIdentityPerms,
	model.CheckKeyInAgent,
}

// Runner executes the preflight battery. Collaborators sit behind interfaces
// so tests can exercise the battery without an agent socket or real keys.
type Runner struct {
	agent agent.Client
	perms permissions.Oracle
	stat  func(string) (os.FileInfo, error)
	now   func() time.Time
}

func New(agentClient agent.Client, oracle permissions.Oracle) *Runner {
	return &Runner{
		agent: agentClient,
		perms: oracle,
		stat:  os.Stat,
		now:   time.Now,
	}
}

// Run executes the battery for one host.
//
// The agent-liveness check always runs. When no identity file is configured
// the battery stops after a single skipped placeholder: permission and
// membership checks are meaningless without a resolved key path. The
// remaining checks touch disjoint resources (filesystem vs agent socket) and
// run concurrently; results are reordered into canonical order before being
// exposed.
//
// A collaborator error never aborts the run. Each check degrades its own
// failure to a warning and the rest of the battery proceeds.
func (r *Runner) Run(ctx context.Context, host model.HostIdentity) model.PreflightResult {
	var checks []model.PreflightCheck

	if !host.HasIdentityFile() {
		checks = []model.PreflightCheck{
			r.checkAgentRunning(ctx),
			{
				ID:          model.CheckIdentityExists,
				Name:        "Identity file",
				Description: "Whether an identity file is configured for this host",
				Status:      model.CheckSkipped,
				Message:     "no IdentityFile configured; key checks skipped",
			},
		}
		return finalize(checks, r.now())
	}

	results := make(map[model.CheckID]model.PreflightCheck, len(checkOrder))
	g, gctx := errgroup.WithContext(ctx)
	resCh := make(chan model.PreflightCheck, len(checkOrder))

	run := func(fn func(context.Context) model.PreflightCheck) {
		g.Go(func() error {
			resCh <- fn(gctx)
			return nil
		})
	}
	run(r.checkAgentRunning)
	run(func(ctx context.Context) model.PreflightCheck { return r.checkIdentityExists(host) })
	run(func(ctx context.Context) model.PreflightCheck { return r.checkPublicKeyExists(host) })
	run(func(ctx context.Context) model.PreflightCheck { return r.checkIdentityPerms(host) })
	run(func(ctx context.Context) model.PreflightCheck { return r.checkKeyInAgent(ctx, host) })

	_ = g.Wait()
	close(resCh)
	for c := range resCh {
		results[c.ID] = c
	}

	for _, id := range checkOrder {
		if c, ok := results[id]; ok {
			checks = append(checks, c)
		}
	}
	return finalize(checks, r.now())
}

func finalize(checks []model.PreflightCheck, ts time.Time) model.PreflightResult {
	result := model.PreflightResult{Checks: checks, Timestamp: ts}
	for _, c := range checks {
		switch c.Status {
		case model.CheckFailed:
			result.HasErrors = true
		case model.CheckWarning:
			result.HasWarnings = true
		}
	}
	result.AllPassed = !result.HasErrors && !result.HasWarnings
	return result
}

// checkAgentRunning is informational: an absent agent does not prevent all
// connections, so the worst outcome here is a warning.
func (r *Runner) checkAgentRunning(ctx context.Context) model.PreflightCheck {
	c := model.PreflightCheck{
		ID:          model.CheckAgentRunning,
		Name:        "SSH agent",
		Description: "Whether an SSH agent is reachable",
	}
	if r.agent.IsRunning(ctx) {
		c.Status = model.CheckPassed
		c.Message = "SSH agent is running"
	} else {
		c.Status = model.CheckWarning
		c.Message = "no SSH agent is running"
	}
	return c
}

func (r *Runner) checkIdentityExists(host model.HostIdentity) model.PreflightCheck {
	c := model.PreflightCheck{
		ID:          model.CheckIdentityExists,
		Name:        "Identity file",
		Description: "Whether the configured private key exists on disk",
	}
	if _, err := r.stat(host.IdentityFile); err != nil {
		if os.IsNotExist(err) {
			c.Status = model.CheckFailed
			c.Message = fmt.Sprintf("identity file %s does not exist", host.IdentityFile)
			c.FixAction = &model.FixAction{
				ID:          "generate-key",
				Label:       "Generate a new key",
				Description: "Create a new SSH key pair at the configured path",
				Type:        model.FixGenerateKey,
				Params:      map[string]string{"keyPath": host.IdentityFile},
			}
			return c
		}
		c.Status = model.CheckWarning
		c.Message = fmt.Sprintf("could not check identity file: %v", err)
		return c
	}
	c.Status = model.CheckPassed
	c.Message = fmt.Sprintf("identity file %s exists", host.IdentityFile)
	return c
}

// checkPublicKeyExists only warns. A detached private key can still
// authenticate; the .pub file matters for copying the key to servers.
func (r *Runner) checkPublicKeyExists(host model.HostIdentity) model.PreflightCheck {
	c := model.PreflightCheck{
		ID:          model.CheckPublicKeyExists,
		Name:        "Public key",
		Description: "Whether the matching .pub file exists on disk",
	}
	if _, err := r.stat(host.PublicKeyFile); err != nil {
		if os.IsNotExist(err) {
			c.Status = model.CheckWarning
			c.Message = fmt.Sprintf("public key %s not found", host.PublicKeyFile)
			return c
		}
		c.Status = model.CheckWarning
		c.Message = fmt.Sprintf("could not check public key: %v", err)
		return c
	}
	c.Status = model.CheckPassed
	c.Message = "public key exists"
	return c
}

func (r *Runner) checkIdentityPerms(host model.HostIdentity) model.PreflightCheck {
	c := model.PreflightCheck{
		ID:          model.CheckIdentityPerms,
		Name:        "Key permissions",
		Description: "Whether the private key is restricted to its owner",
	}
	res := r.perms.CheckKey(host.IdentityFile)
	if res.IsSecure {
		c.Status = model.CheckPassed
		c.Message = res.Message
		return c
	}
	c.Status = model.CheckFailed
	c.Message = res.Message
	if res.CanFix {
		c.FixAction = &model.FixAction{
			ID:          "fix-permissions",
			Label:       "Fix key permissions",
			Description: "Restrict the private key to mode 600",
			Type:        model.FixChmod,
			Params:      map[string]string{"keyPath": host.IdentityFile},
		}
	}
	return c
}

// checkKeyInAgent warns rather than fails: ssh can read the key directly
// when the agent lacks it, as long as no passphrase blocks batch mode.
func (r *Runner) checkKeyInAgent(ctx context.Context, host model.HostIdentity) model.PreflightCheck {
	c := model.PreflightCheck{
		ID:          model.CheckKeyInAgent,
		Name:        "Key in agent",
		Description: "Whether the key is loaded in the SSH agent",
	}
	loaded, err := r.agent.IsKeyLoaded(ctx, host.IdentityFile)
	if err != nil {
		c.Status = model.CheckWarning
		c.Message = fmt.Sprintf("could not check agent keys: %v", err)
		return c
	}
	if loaded {
		c.Status = model.CheckPassed
		c.Message = "key is loaded in the agent"
		return c
	}
	c.Status = model.CheckWarning
	c.Message = "key is not loaded in the agent"
	c.FixAction = &model.FixAction{
		ID:          "add-to-agent",
		Label:       "Add key to agent",
		Description: "Load the key into the SSH agent with ssh-add",
		Type:        model.FixSSHAdd,
		Params:      map[string]string{"keyPath": host.IdentityFile},
	}
	return c
}
