// Package ui implements the interactive troubleshooting wizard: pick a
// host, watch preflight and the connection probe run, then walk the
// remediation plan step by step until the connection is healthy.
package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/ssh-doctor/internal/agent"
	"github.com/treykane/ssh-doctor/internal/appconfig"
	"github.com/treykane/ssh-doctor/internal/classify"
	"github.com/treykane/ssh-doctor/internal/config"
	"github.com/treykane/ssh-doctor/internal/diagnose"
	"github.com/treykane/ssh-doctor/internal/fix"
	"github.com/treykane/ssh-doctor/internal/journal"
	"github.com/treykane/ssh-doctor/internal/model"
	"github.com/treykane/ssh-doctor/internal/permissions"
	"github.com/treykane/ssh-doctor/internal/preflight"
	"github.com/treykane/ssh-doctor/internal/probe"
	"github.com/treykane/ssh-doctor/internal/security"
	"github.com/treykane/ssh-doctor/internal/sshclient"
	"github.com/treykane/ssh-doctor/internal/util"
)

type phase int

const (
	phasePick phase = iota
	phaseRunning
	phaseSteps
	phasePassphrase
	phaseDone
)

type preflightMsg model.PreflightResult

type probeMsg model.ConnectionTestResult

type fixAppliedMsg struct {
	action model.FixAction
	result model.FixResult
}

type statusMsg string

type refreshMsg time.Time

type modelUI struct {
	phase    phase
	hosts    []model.HostEntry
	filtered []model.HostEntry
	sel      int
	filter   string
	typing   bool
	status   string
	warnings []string
	showLog  bool
	width    int
	height   int

	cfg      appconfig.Config
	runner   *preflight.Runner
	prober   *probe.Prober
	executor *fix.Executor
	journal  *journal.Store

	session    *diagnose.Session
	spin       spinner.Model
	passphrase textinput.Model
	pendingFix *model.FixAction
}

func initialModel(startAlias string) modelUI {
	cfg, err := appconfig.Load()
	if err != nil {
		cfg = appconfig.Default()
	}
	client := agent.New()
	oracle := permissions.New()
	timeout := time.Duration(cfg.Probe.TimeoutSeconds) * time.Second

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "key passphrase"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '*'

	m := modelUI{
		phase:      phasePick,
		cfg:        cfg,
		runner:     preflight.New(client, oracle),
		prober:     probe.New(probe.NewRunner(sshclient.New(), timeout), classify.New()),
		executor:   fix.NewExecutor(client, oracle, fix.FileEditor{}),
		journal:    journal.NewStore(),
		spin:       sp,
		passphrase: ti,
	}
	m.reloadConfig()
	m.status = "Select a host and press Enter to diagnose it."

	if startAlias != "" {
		for i, h := range m.filtered {
			if h.Alias == startAlias {
				m.sel = i
				break
			}
		}
	}
	return m
}

func (m *modelUI) reloadConfig() {
	res, err := config.ParseDefault()
	if err != nil {
		m.status = "config parse error: " + err.Error()
		return
	}
	sort.Slice(res.Hosts, func(i, j int) bool { return res.Hosts[i].Alias < res.Hosts[j].Alias })
	m.hosts = res.Hosts
	m.warnings = res.Warnings
	m.applyFilter()
}

func (m *modelUI) applyFilter() {
	if strings.TrimSpace(m.filter) == "" {
		m.filtered = append([]model.HostEntry(nil), m.hosts...)
	} else {
		f := strings.ToLower(strings.TrimSpace(m.filter))
		m.filtered = nil
		for _, h := range m.hosts {
			if strings.Contains(strings.ToLower(h.Alias), f) || strings.Contains(strings.ToLower(h.DisplayTarget()), f) {
				m.filtered = append(m.filtered, h)
			}
		}
	}
	if m.sel >= len(m.filtered) {
		m.sel = len(m.filtered) - 1
	}
	if m.sel < 0 {
		m.sel = 0
	}
}

func (m modelUI) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.scheduleRefresh())
}

// scheduleRefresh arms the periodic host-list refresh at the cadence from
// config.yaml (ui.refresh_seconds).
func (m modelUI) scheduleRefresh() tea.Cmd {
	interval := time.Duration(m.cfg.UI.RefreshSeconds) * time.Second
	if interval <= 0 {
		interval = util.DefaultRefreshSeconds * time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// startDiagnosis creates a fresh session for the selected host and kicks off
// preflight and the probe. Both commands run concurrently; results land as
// messages in whichever order they finish.
func (m *modelUI) startDiagnosis() tea.Cmd {
	if len(m.filtered) == 0 {
		return nil
	}
	host := config.IdentityFor(m.filtered[m.sel])
	m.session = diagnose.NewSession(host)
	m.session.BeginPreflight()
	m.phase = phaseRunning
	m.status = "Running checks for " + host.Alias + "..."

	runner, prober := m.runner, m.prober
	return tea.Batch(
		func() tea.Msg {
			return preflightMsg(runner.Run(context.Background(), host))
		},
		func() tea.Msg {
			return probeMsg(prober.Test(context.Background(), host))
		},
		m.spin.Tick,
	)
}

func (m *modelUI) executeCurrentStep() tea.Cmd {
	step, ok := m.session.Step()
	if !ok {
		return nil
	}
	if step.ID == "retest" {
		step.Status = model.StepInProgress
		host := m.session.Host
		prober := m.prober
		m.status = "Re-testing connection..."
		return func() tea.Msg {
			return probeMsg(prober.Test(context.Background(), host))
		}
	}
	if len(step.Actions) == 0 {
		m.session.SkipStep()
		return nil
	}
	step.Status = model.StepInProgress
	action := step.Actions[0].Fix
	return m.runFix(action, "")
}

func (m *modelUI) runFix(action model.FixAction, secret string) tea.Cmd {
	executor := m.executor
	m.status = "Applying: " + action.Label
	return func() tea.Msg {
		res := executor.Execute(context.Background(), action, secret)
		return fixAppliedMsg{action: action, result: res}
	}
}

func (m modelUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case preflightMsg:
		if m.session != nil {
			m.session.SetPreflight(model.PreflightResult(msg))
		}
		return m, nil

	case probeMsg:
		if m.session == nil {
			return m, nil
		}
		result := model.ConnectionTestResult(msg)
		m.session.SetConnectionResult(result)
		if result.Success {
			m.phase = phaseDone
			m.status = "Connection is healthy."
			return m, nil
		}
		m.phase = phaseSteps
		m.status = "Connection failed. Walk the steps below: Enter runs, s skips."
		return m, nil

	case fixAppliedMsg:
		if m.session == nil {
			return m, nil
		}
		if err := m.journal.Record(m.session.Host.Alias, msg.action, msg.result); err != nil {
			m.warnings = append(m.warnings, "journal write failed: "+security.UserMessage(err, m.cfg.UI.RedactPaths))
		}
		if msg.result.NeedsPassphrase {
			m.pendingFix = &msg.action
			m.phase = phasePassphrase
			m.passphrase.SetValue("")
			m.status = "This key needs its passphrase."
			return m, m.passphrase.Focus()
		}
		m.pendingFix = nil
		if msg.result.Success {
			m.session.MarkStep(model.StepCompleted)
			m.status = m.redacted(msg.result.Message)
		} else {
			m.session.MarkStep(model.StepFailed)
			m.status = "Fix failed: " + m.redacted(msg.result.Message)
		}
		m.phase = phaseSteps
		return m, nil

	case refreshMsg:
		// Only the picker tracks the live config; a refresh mid-diagnosis
		// would invalidate the session's host.
		if m.phase == phasePick && !m.typing {
			m.reloadConfig()
		}
		return m, m.scheduleRefresh()

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m modelUI) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.phase == phasePassphrase {
		switch msg.String() {
		case "enter":
			secret := m.passphrase.Value()
			action := *m.pendingFix
			m.phase = phaseSteps
			return m, m.runFix(action, secret)
		case "esc":
			m.phase = phaseSteps
			m.pendingFix = nil
			m.session.SkipStep()
			m.status = "Skipped; the key stays out of the agent."
			return m, nil
		}
		var cmd tea.Cmd
		m.passphrase, cmd = m.passphrase.Update(msg)
		return m, cmd
	}

	if m.typing {
		switch msg.String() {
		case "enter", "esc":
			m.typing = false
			m.applyFilter()
			return m, nil
		case "backspace":
			if len(m.filter) > 0 {
				m.filter = m.filter[:len(m.filter)-1]
			}
			m.applyFilter()
			return m, nil
		default:
			if len(msg.String()) == 1 {
				m.filter += msg.String()
				m.applyFilter()
			}
			return m, nil
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.phase != phasePick {
			m.phase = phasePick
			m.session = nil
			m.showLog = false
			m.status = "Select a host and press Enter to diagnose it."
		}
		return m, nil
	}

	switch m.phase {
	case phasePick:
		switch msg.String() {
		case "j", "down":
			if m.sel < len(m.filtered)-1 {
				m.sel++
			}
		case "k", "up":
			if m.sel > 0 {
				m.sel--
			}
		case "/":
			m.typing = true
			m.status = "Filter mode: type and press Enter"
		case "r":
			m.reloadConfig()
			m.status = "Reloaded ssh config"
		case "enter":
			mm := m
			cmd := mm.startDiagnosis()
			return mm, cmd
		}
	case phaseSteps:
		switch msg.String() {
		case "j", "down":
			if m.session != nil && m.session.CurrentStep < len(m.session.Steps)-1 {
				m.session.CurrentStep++
			}
		case "k", "up":
			if m.session != nil && m.session.CurrentStep > 0 {
				m.session.CurrentStep--
			}
		case "s":
			if m.session != nil {
				m.session.SkipStep()
			}
		case "d":
			m.showLog = !m.showLog
		case "enter":
			mm := m
			cmd := mm.executeCurrentStep()
			return mm, cmd
		}
	case phaseDone:
		switch msg.String() {
		case "d":
			m.showLog = !m.showLog
		case "c":
			alias := m.session.Host.Alias
			cmd := sshclient.New().ConnectCommand(alias)
			return m, tea.ExecProcess(cmd, func(err error) tea.Msg {
				if err != nil {
					return statusMsg("ssh exited: " + err.Error())
				}
				return statusMsg("ssh session closed")
			})
		}
	}
	return m, nil
}

func (m modelUI) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("SSH Doctor")
	var body string
	switch m.phase {
	case phasePick:
		body = m.viewPicker()
	case phaseRunning:
		body = m.viewRunning()
	case phaseSteps, phasePassphrase:
		body = m.viewSteps()
	case phaseDone:
		body = m.viewDone()
	}

	warn := ""
	if len(m.warnings) > 0 {
		warn = "Warnings: " + strings.Join(m.warnings, " | ") + "\n"
	}
	status := m.renderPanel("Status", m.status, m.effectiveWidth(), lipgloss.Color("205"))
	return lipgloss.JoinVertical(lipgloss.Left, head, body, warn, status)
}

func (m modelUI) viewPicker() string {
	left := strings.Builder{}
	left.WriteString("j/k to navigate, / to filter, Enter to diagnose, q to quit.\n")
	for i, h := range m.filtered {
		cursor := " "
		if i == m.sel {
			cursor = ">"
		}
		left.WriteString(fmt.Sprintf("%s %-24s %-28s\n", cursor, h.Alias, h.DisplayTarget()))
	}
	if len(m.filtered) == 0 {
		left.WriteString("  (no hosts matched)\n")
	}
	filterLine := "Filter: " + m.filter
	if m.typing {
		filterLine += " (typing...)"
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		filterLine,
		m.renderPanel("Hosts", left.String(), m.effectiveWidth(), lipgloss.Color("39")),
	)
}

func (m modelUI) viewRunning() string {
	body := fmt.Sprintf("%s running preflight checks and connection probe...\n", m.spin.View())
	body += m.preflightBlock()
	return m.renderPanel("Diagnosing "+m.session.Host.Alias, body, m.effectiveWidth(), lipgloss.Color("69"))
}

func (m modelUI) viewSteps() string {
	analysis := m.session.RootCause()
	cause := fmt.Sprintf("Likely cause: %s (confidence %s)\n%s\n", analysis.LikelyCause, analysis.Confidence, m.redacted(analysis.Explanation))
	for _, rel := range analysis.RelatedIssues {
		cause += "  - " + m.redacted(rel) + "\n"
	}

	steps := strings.Builder{}
	steps.WriteString("Enter runs the highlighted step, s skips it, d toggles the debug log, Esc returns.\n")
	for i, step := range m.session.Steps {
		cursor := " "
		if i == m.session.CurrentStep {
			cursor = ">"
		}
		steps.WriteString(fmt.Sprintf("%s [%-11s] %s — %s\n", cursor, step.Status, step.Title, step.Description))
	}

	blocks := []string{
		m.renderPanel("Root cause", cause, m.effectiveWidth(), lipgloss.Color("167")),
		m.renderPanel("Preflight", m.preflightBlock(), m.effectiveWidth(), lipgloss.Color("69")),
		m.renderPanel("Plan", steps.String(), m.effectiveWidth(), lipgloss.Color("39")),
	}
	if m.phase == phasePassphrase {
		prompt := "Enter the key passphrase (Esc skips this step):\n" + m.passphrase.View()
		blocks = append(blocks, m.renderPanel("Passphrase", prompt, m.effectiveWidth(), lipgloss.Color("205")))
	}
	if m.showLog {
		blocks = append(blocks, m.renderPanel("Debug log", m.debugLog(), m.effectiveWidth(), lipgloss.Color("244")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

func (m modelUI) viewDone() string {
	body := "Connection is healthy.\n"
	if m.session.ConnectionResult != nil && m.session.ConnectionResult.Platform != "" {
		body += "Platform: " + m.session.ConnectionResult.Platform + "\n"
	}
	body += "Press c to connect now, d for the debug log, Esc for the host list.\n"
	blocks := []string{m.renderPanel("Result for "+m.session.Host.Alias, body, m.effectiveWidth(), lipgloss.Color("35"))}
	if m.showLog {
		blocks = append(blocks, m.renderPanel("Debug log", m.debugLog(), m.effectiveWidth(), lipgloss.Color("244")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

func (m modelUI) preflightBlock() string {
	if m.session == nil || m.session.Preflight == nil {
		return "(preflight pending)\n"
	}
	b := strings.Builder{}
	for _, c := range m.session.Preflight.Checks {
		b.WriteString(fmt.Sprintf("  %-10s %-28s %s\n", c.Status, c.ID, m.redacted(c.Message)))
	}
	return b.String()
}

// redacted strips the home directory from user-visible text when the config
// asks for path redaction.
func (m modelUI) redacted(s string) string {
	if m.cfg.UI.RedactPaths {
		return security.RedactMessage(s)
	}
	return s
}

func (m modelUI) debugLog() string {
	if m.session == nil || m.session.ConnectionResult == nil || m.session.ConnectionResult.DebugLog == "" {
		return "(no transcript captured)"
	}
	return m.session.ConnectionResult.DebugLog
}

func (m modelUI) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m modelUI) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}

// Run starts the wizard. startAlias preselects a host when non-empty.
func Run(startAlias string) error {
	if err := sshclient.EnsureSSHBinary(); err != nil {
		return err
	}
	p := tea.NewProgram(initialModel(startAlias), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
