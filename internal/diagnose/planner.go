package diagnose

import (
	"fmt"

	"github.com/treykane/ssh-doctor/internal/model"
)

// PlanRemediation builds the ordered troubleshooting plan for one diagnostic
// pass: steps for failed or warning preflight checks that carry a fix
// action, then a step for the connection error's auto-fixable classification
// (when one exists and preflight did not already cover the same action),
// then the mandatory trailing retest step.
//
// All inputs are optional. With nothing to go on, the plan is just the
// retest step. The plan is recomputed wholesale each pass, never patched.
func PlanRemediation(errType model.ErrorType, details *model.ErrorDetails, pf *model.PreflightResult) []model.TroubleshootingStep {
	var steps []model.TroubleshootingStep
	covered := map[model.FixType]bool{}

	if pf != nil {
		for _, check := range pf.Checks {
			if check.Status != model.CheckFailed && check.Status != model.CheckWarning {
				continue
			}
			if check.FixAction == nil {
				continue
			}
			steps = append(steps, model.TroubleshootingStep{
				ID:          string(check.ID),
				Title:       check.Name,
				Description: check.Message,
				Status:      model.StepPending,
				Actions: []model.TroubleshootingAction{
					{Fix: *check.FixAction},
				},
			})
			covered[check.FixAction.Type] = true
		}
	}

	if details != nil && details.CanAutoFix && !covered[details.FixType] {
		steps = append(steps, model.TroubleshootingStep{
			ID:          fmt.Sprintf("fix-%s", details.FixType),
			Title:       stepTitle(details.FixType),
			Description: details.Suggestion,
			Status:      model.StepPending,
			Actions: []model.TroubleshootingAction{
				{Fix: model.FixAction{
					ID:          fmt.Sprintf("fix-%s", details.FixType),
					Label:       stepTitle(details.FixType),
					Description: details.Suggestion,
					Type:        details.FixType,
					Params:      details.FixParams,
				}},
			},
		})
	}

	steps = append(steps, model.TroubleshootingStep{
		ID:          "retest",
		Title:       "Re-test connection",
		Description: "Run the connection test again to confirm the problem is resolved",
		Status:      model.StepPending,
	})
	return steps
}

func stepTitle(t model.FixType) string {
	switch t {
	case model.FixChmod:
		return "Fix key permissions"
	case model.FixSSHAdd:
		return "Add key to agent"
	case model.FixRemoveKnownHost:
		return "Remove stale host key"
	case model.FixAddKnownHost:
		return "Trust server host key"
	case model.FixCopyPubkey:
		return "Copy public key to server"
	case model.FixGenerateKey:
		return "Generate a new key"
	}
	return "Apply fix"
}
