package model

import "time"

// HostEntry is a normalized host configuration extracted from ssh config.
type HostEntry struct {
	Alias        string `json:"alias"`
	HostName     string `json:"host_name"`
	User         string `json:"user,omitempty"`
	Port         int    `json:"port,omitempty"`
	IdentityFile string `json:"identity_file,omitempty"`
}

func (h HostEntry) DisplayTarget() string {
	if h.HostName != "" {
		return h.HostName
	}
	return h.Alias
}

// HostIdentity is the diagnostics-relevant snapshot of one host: its alias,
// the resolved private key path (may be empty when no IdentityFile is
// configured) and the derived public key path.
type HostIdentity struct {
	Alias         string `json:"alias"`
	HostName      string `json:"host_name"`
	Port          int    `json:"port"`
	User          string `json:"user,omitempty"`
	IdentityFile  string `json:"identity_file,omitempty"`
	PublicKeyFile string `json:"public_key_file,omitempty"`
}

// HasIdentityFile reports whether an IdentityFile is configured for the host.
func (h HostIdentity) HasIdentityFile() bool { return h.IdentityFile != "" }

// ErrorType classifies one failed connection attempt. The identifiers are
// stable: the planner, executor, and UI all switch on them.
type ErrorType string

const (
	ErrHostKeyChanged             ErrorType = "host_key_changed"
	ErrHostKeyUnknown             ErrorType = "host_key_unknown"
	ErrPermissionDenied           ErrorType = "permission_denied"
	ErrPermissionDeniedKeyPerms   ErrorType = "permission_denied_key_permissions"
	ErrPermissionDeniedNotInAgent ErrorType = "permission_denied_key_not_in_agent"
	ErrPermissionDeniedWrongKey   ErrorType = "permission_denied_wrong_key"
	ErrPermissionDeniedPassphrase ErrorType = "permission_denied_passphrase"
	ErrPermissionDeniedAuthMethod ErrorType = "permission_denied_auth_method"
	ErrConnectionRefused          ErrorType = "connection_refused"
	ErrTimeout                    ErrorType = "timeout"
	ErrDNSFailed                  ErrorType = "dns_failed"
	ErrIdentityFileNotFound       ErrorType = "identity_file_not_found"
	ErrPublicKeyMissing           ErrorType = "public_key_missing"
	ErrUnknown                    ErrorType = "unknown"
)

// FixType identifies one kind of remediation action.
type FixType string

const (
	FixChmod           FixType = "chmod"
	FixSSHAdd          FixType = "ssh-add"
	FixCopyPubkey      FixType = "copy-pubkey"
	FixRemoveKnownHost FixType = "remove-known-host"
	FixAddKnownHost    FixType = "add-known-host"
	FixGenerateKey     FixType = "generate-key"
)

// ErrorDetails is the classifier's structured output for one failed attempt.
type ErrorDetails struct {
	Type       ErrorType         `json:"type"`
	RawMessage string            `json:"raw_message"`
	Suggestion string            `json:"suggestion"`
	CanAutoFix bool              `json:"can_auto_fix"`
	FixType    FixType           `json:"fix_type,omitempty"`
	FixParams  map[string]string `json:"fix_params,omitempty"`
}

// ConnectionTestResult is the outcome of one handshake attempt against a
// configured host alias. Success implies all error fields are empty.
type ConnectionTestResult struct {
	Success      bool          `json:"success"`
	Output       string        `json:"output"`
	Platform     string        `json:"platform,omitempty"`
	ErrorType    ErrorType     `json:"error_type,omitempty"`
	ErrorDetails *ErrorDetails `json:"error_details,omitempty"`
	HostToRemove string        `json:"host_to_remove,omitempty"`
	HostToAdd    string        `json:"host_to_add,omitempty"`
	IdentityFile string        `json:"identity_file,omitempty"`
	DebugLog     string        `json:"debug_log,omitempty"`
}

// CheckID identifies one preflight check. The set is closed and
// order-significant: results are always exposed in the order the constants
// are declared here.
type CheckID string

const (
	CheckAgentRunning    CheckID = "agent_running"
	CheckIdentityExists  CheckID = "identity_file_exists"
	CheckPublicKeyExists CheckID = "public_key_exists"
	CheckIdentityPerms   CheckID = "identity_file_permissions"
	CheckKeyInAgent      CheckID = "key_in_agent"
)

// CheckStatus is the outcome of one preflight check.
type CheckStatus string

const (
	CheckPending  CheckStatus = "pending"
	CheckChecking CheckStatus = "checking"
	CheckPassed   CheckStatus = "passed"
	CheckFailed   CheckStatus = "failed"
	CheckWarning  CheckStatus = "warning"
	CheckSkipped  CheckStatus = "skipped"
)

// FixAction is one applicable remediation, carried inside a preflight check
// or a troubleshooting action.
type FixAction struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Description string            `json:"description,omitempty"`
	Type        FixType           `json:"type"`
	Params      map[string]string `json:"params,omitempty"`
}

// PreflightCheck is one check instance within a preflight run.
type PreflightCheck struct {
	ID          CheckID     `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message,omitempty"`
	FixAction   *FixAction  `json:"fix_action,omitempty"`
}

// PreflightResult aggregates one full preflight run. It is immutable once
// produced; a new run produces a new result.
type PreflightResult struct {
	Checks      []PreflightCheck `json:"checks"`
	AllPassed   bool             `json:"all_passed"`
	HasWarnings bool             `json:"has_warnings"`
	HasErrors   bool             `json:"has_errors"`
	Timestamp   time.Time        `json:"timestamp"`
}

// FirstFailed returns the first failed check in canonical order, if any.
func (r *PreflightResult) FirstFailed() (PreflightCheck, bool) {
	if r == nil {
		return PreflightCheck{}, false
	}
	for _, c := range r.Checks {
		if c.Status == CheckFailed {
			return c, true
		}
	}
	return PreflightCheck{}, false
}

// Confidence grades a root cause explanation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RootCauseAnalysis is a derived explanation of the most likely cause of a
// failed connection. Never persisted; recomputed per result.
type RootCauseAnalysis struct {
	LikelyCause   string     `json:"likely_cause"`
	Confidence    Confidence `json:"confidence"`
	Explanation   string     `json:"explanation"`
	RelatedIssues []string   `json:"related_issues,omitempty"`
}

// StepStatus is the lifecycle state of one troubleshooting step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
	StepFailed     StepStatus = "failed"
)

// TroubleshootingAction is one executable action inside a step.
type TroubleshootingAction struct {
	Fix       FixAction `json:"fix"`
	Completed bool      `json:"completed"`
}

// TroubleshootingStep is one entry of the remediation plan.
type TroubleshootingStep struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Status      StepStatus              `json:"status"`
	Actions     []TroubleshootingAction `json:"actions,omitempty"`
}

// FixResult is the uniform outcome of applying one fix action.
type FixResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	NeedsPassphrase bool   `json:"needs_passphrase,omitempty"`
	KeyPath         string `json:"key_path,omitempty"`
}

// SessionStatus is the phase of a diagnostic session.
type SessionStatus string

const (
	SessionIdle            SessionStatus = "idle"
	SessionPreflight       SessionStatus = "preflight"
	SessionTesting         SessionStatus = "testing"
	SessionTroubleshooting SessionStatus = "troubleshooting"
	SessionComplete        SessionStatus = "complete"
)
