package diagnose

import (
	"github.com/treykane/ssh-doctor/internal/model"
)

// Session is the top-level aggregate for diagnosing one host. It is owned
// by a single caller (the wizard or a CLI command) driving one host at a
// time; switching hosts means discarding the session and creating a new
// one, never mutating the old one across hosts.
type Session struct {
	Host             model.HostIdentity
	Preflight        *model.PreflightResult
	ConnectionResult *model.ConnectionTestResult
	Steps            []model.TroubleshootingStep
	CurrentStep      int
	Status           model.SessionStatus
}

// NewSession creates an idle session for one host.
func NewSession(host model.HostIdentity) *Session {
	return &Session{Host: host, Status: model.SessionIdle}
}

// BeginPreflight marks the session as running preflight checks.
func (s *Session) BeginPreflight() { s.Status = model.SessionPreflight }

// SetPreflight records a fresh preflight report and replans.
func (s *Session) SetPreflight(pf model.PreflightResult) {
	s.Preflight = &pf
	s.replan()
}

// BeginTesting marks the session as probing the connection.
func (s *Session) BeginTesting() { s.Status = model.SessionTesting }

// SetConnectionResult records a probe outcome. A successful probe completes
// the session; a failure moves it into troubleshooting with a fresh plan.
func (s *Session) SetConnectionResult(result model.ConnectionTestResult) {
	s.ConnectionResult = &result
	if result.Success {
		s.Status = model.SessionComplete
		s.Steps = nil
		s.CurrentStep = 0
		return
	}
	s.Status = model.SessionTroubleshooting
	s.replan()
}

// replan recomputes the step list wholesale from the current preflight
// report and classified error. Step state from the previous plan is
// discarded deliberately: a step that made sense against stale inputs may
// not exist in the new plan at all.
func (s *Session) replan() {
	var errType model.ErrorType
	var details *model.ErrorDetails
	if s.ConnectionResult != nil {
		errType = s.ConnectionResult.ErrorType
		details = s.ConnectionResult.ErrorDetails
	}
	s.Steps = PlanRemediation(errType, details, s.Preflight)
	s.CurrentStep = 0
}

// RootCause derives the current explanation. Returns a zero analysis when
// no connection result exists yet.
func (s *Session) RootCause() model.RootCauseAnalysis {
	if s.ConnectionResult == nil {
		if s.Preflight != nil {
			return AnalyzeRootCause(model.ConnectionTestResult{}, s.Preflight)
		}
		return model.RootCauseAnalysis{}
	}
	return AnalyzeRootCause(*s.ConnectionResult, s.Preflight)
}

// Step returns the active step, if any.
func (s *Session) Step() (*model.TroubleshootingStep, bool) {
	if s.CurrentStep < 0 || s.CurrentStep >= len(s.Steps) {
		return nil, false
	}
	return &s.Steps[s.CurrentStep], true
}

// MarkStep sets the active step's terminal state and advances on completed
// or skipped. A failed step keeps the pointer in place so the caller can
// inspect it; navigation past it is explicit (SkipStep).
func (s *Session) MarkStep(status model.StepStatus) {
	step, ok := s.Step()
	if !ok {
		return
	}
	step.Status = status
	if status == model.StepCompleted || status == model.StepSkipped {
		s.advance()
	}
}

// SkipStep marks the active step skipped and advances.
func (s *Session) SkipStep() { s.MarkStep(model.StepSkipped) }

func (s *Session) advance() {
	if s.CurrentStep < len(s.Steps)-1 {
		s.CurrentStep++
		return
	}
	// Plan exhausted. The session stays in troubleshooting until a retest
	// succeeds; completion is driven by SetConnectionResult.
}
