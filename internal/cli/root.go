// Package cli provides the command-line interface for ssh-doctor.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/treykane/ssh-doctor/internal/agent"
	"github.com/treykane/ssh-doctor/internal/appconfig"
	"github.com/treykane/ssh-doctor/internal/classify"
	"github.com/treykane/ssh-doctor/internal/config"
	"github.com/treykane/ssh-doctor/internal/diagnose"
	"github.com/treykane/ssh-doctor/internal/doctor"
	"github.com/treykane/ssh-doctor/internal/fix"
	"github.com/treykane/ssh-doctor/internal/hostgroup"
	"github.com/treykane/ssh-doctor/internal/journal"
	"github.com/treykane/ssh-doctor/internal/model"
	"github.com/treykane/ssh-doctor/internal/permissions"
	"github.com/treykane/ssh-doctor/internal/preflight"
	"github.com/treykane/ssh-doctor/internal/probe"
	"github.com/treykane/ssh-doctor/internal/security"
	"github.com/treykane/ssh-doctor/internal/sshclient"
	"github.com/treykane/ssh-doctor/internal/ui"
	"github.com/treykane/ssh-doctor/internal/util"
)

// engine bundles the collaborators every diagnostic command needs.
type engine struct {
	runner   *preflight.Runner
	prober   *probe.Prober
	executor *fix.Executor
	journal  *journal.Store
	redact   bool
}

func newEngine() *engine {
	cfg, err := appconfig.Load()
	if err != nil {
		slog.Warn("could not load config, using defaults", "error", err)
		cfg = appconfig.Default()
	}
	client := agent.New()
	oracle := permissions.New()
	sshc := sshclient.New()
	timeout := time.Duration(cfg.Probe.TimeoutSeconds) * time.Second
	return &engine{
		runner:   preflight.New(client, oracle),
		prober:   probe.New(probe.NewRunner(sshc, timeout), classify.New()),
		executor: fix.NewExecutor(client, oracle, fix.FileEditor{}),
		journal:  journal.NewStore(),
		redact:   cfg.UI.RedactPaths,
	}
}

// NewRootCommand creates the root cobra command. With no subcommand the
// interactive troubleshooting wizard runs.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ssh-doctor [host]",
		Short: "Diagnose and repair SSH connection problems",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			alias := ""
			if len(args) == 1 {
				alias = args[0]
			}
			return ui.Run(alias)
		},
	}

	root.AddCommand(newListCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newTestCmd())
	root.AddCommand(newFixCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newGroupCmd())
	root.AddCommand(newJournalCmd())
	root.AddCommand(newConnectCmd())
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List parsed hosts from ~/.ssh/config",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := config.ParseDefault()
			if err != nil {
				return err
			}
			fmt.Printf("%-24s %-28s %-8s %-16s %s\n", "ALIAS", "HOSTNAME", "PORT", "USER", "IDENTITY")
			for _, h := range res.Hosts {
				fmt.Printf("%-24s %-28s %-8d %-16s %s\n",
					h.Alias, h.DisplayTarget(), h.Port, util.EmptyDash(h.User), util.EmptyDash(h.IdentityFile))
			}
			if len(res.Warnings) > 0 {
				fmt.Fprintln(os.Stderr, "warnings:")
				for _, w := range res.Warnings {
					fmt.Fprintf(os.Stderr, "  - %s\n", w)
				}
			}
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	var groupName string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "check [host]",
		Short: "Run local readiness checks for a host or group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			aliases, err := targetAliases(args, groupName)
			if err != nil {
				return err
			}
			eng := newEngine()
			exit := 0
			for _, alias := range aliases {
				host, err := config.ResolveIdentity(alias)
				if err != nil {
					return err
				}
				result := eng.runner.Run(cmd.Context(), host)
				if jsonOut {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					if err := enc.Encode(result); err != nil {
						return err
					}
				} else {
					printPreflight(alias, result, eng.redact)
				}
				if result.HasErrors {
					exit = 1
				}
			}
			if exit != 0 {
				os.Exit(exit)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&groupName, "group", "", "run against every host in a named group")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newTestCmd() *cobra.Command {
	var groupName string
	var jsonOut, showDebug bool
	cmd := &cobra.Command{
		Use:   "test [host]",
		Short: "Probe the connection and explain any failure",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			aliases, err := targetAliases(args, groupName)
			if err != nil {
				return err
			}
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			eng := newEngine()
			exit := 0
			for _, alias := range aliases {
				host, err := config.ResolveIdentity(alias)
				if err != nil {
					return err
				}
				pf := eng.runner.Run(cmd.Context(), host)
				result := eng.prober.Test(cmd.Context(), host)
				if jsonOut {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					if err := enc.Encode(result); err != nil {
						return err
					}
				} else {
					printTestResult(alias, result, &pf, showDebug, eng.redact)
				}
				if !result.Success {
					exit = 1
				}
			}
			if exit != 0 {
				os.Exit(exit)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&groupName, "group", "", "run against every host in a named group")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	cmd.Flags().BoolVar(&showDebug, "debug-log", false, "print the raw ssh transcript")
	return cmd
}

func newFixCmd() *cobra.Command {
	var retest bool
	cmd := &cobra.Command{
		Use:   "fix <host>",
		Short: "Diagnose a host and apply every auto-fixable remediation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			alias := args[0]
			host, err := config.ResolveIdentity(alias)
			if err != nil {
				return err
			}
			eng := newEngine()
			ctx := cmd.Context()

			pf := eng.runner.Run(ctx, host)
			result := eng.prober.Test(ctx, host)
			if result.Success {
				fmt.Printf("%s: connection is healthy, nothing to fix\n", alias)
				return nil
			}

			steps := diagnose.PlanRemediation(result.ErrorType, result.ErrorDetails, &pf)
			var actions []model.FixAction
			for _, step := range steps {
				for _, a := range step.Actions {
					actions = append(actions, a.Fix)
				}
			}
			if len(actions) == 0 {
				analysis := diagnose.AnalyzeRootCause(result, &pf)
				fmt.Printf("%s: no auto-fixable actions\n", alias)
				fmt.Printf("likely cause: %s (%s)\n%s\n", analysis.LikelyCause, analysis.Confidence, analysis.Explanation)
				return nil
			}

			applied := eng.executor.ExecuteAll(ctx, actions)
			haltedForSecret := false
			for _, ap := range applied {
				mark := "ok"
				if !ap.Result.Success {
					mark = "failed"
				}
				fmt.Printf("%-8s %-20s %s\n", mark, ap.Action.Type, display(ap.Result.Message, eng.redact))
				if err := eng.journal.Record(alias, ap.Action, ap.Result); err != nil {
					slog.Warn("could not record fix in journal", "error", err)
				}
				if ap.Result.NeedsPassphrase {
					haltedForSecret = true
				}
			}
			if haltedForSecret {
				fmt.Println("stopped: a key needs its passphrase; run `ssh-doctor` for the interactive wizard")
				return nil
			}
			if retest {
				again := eng.prober.Test(ctx, host)
				if again.Success {
					fmt.Printf("%s: connection is healthy after fixes\n", alias)
					return nil
				}
				fmt.Printf("%s: still failing (%s)\n", alias, again.ErrorType)
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&retest, "retest", true, "re-run the connection test after applying fixes")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Inspect the local SSH environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Issues) == 0 {
				fmt.Println("no issues found")
				return nil
			}
			fmt.Printf("%-8s %-22s %-28s %s\n", "SEV", "CHECK", "TARGET", "MESSAGE")
			for _, issue := range report.Issues {
				fmt.Printf("%-8s %-22s %-28s %s\n", issue.Severity, issue.Check, issue.Target, issue.Message)
				if issue.Recommendation != "" {
					fmt.Printf("         -> %s\n", issue.Recommendation)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newGroupCmd() *cobra.Command {
	root := &cobra.Command{Use: "group", Short: "Manage named host groups"}

	add := &cobra.Command{
		Use:   "add <name> <alias>...",
		Short: "Create or replace a group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := hostgroup.Create(args[0], args[1:]); err != nil {
				return err
			}
			fmt.Printf("group %s saved with %d hosts\n", args[0], len(args)-1)
			return nil
		},
	}
	rm := &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := hostgroup.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("group %s deleted\n", args[0])
			return nil
		},
	}
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := hostgroup.LoadAll()
			if err != nil {
				return err
			}
			for _, g := range groups {
				fmt.Printf("%-24s %s\n", g.Name, strings.Join(g.Aliases, ", "))
			}
			return nil
		},
	}
	root.AddCommand(add, rm, ls)
	return root
}

func newJournalCmd() *cobra.Command {
	var hostAlias string
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show previously applied fixes",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := journal.NewStore().Read(journal.Query{HostAlias: hostAlias, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			fmt.Printf("%-22s %-16s %-20s %-8s %s\n", "TIME", "HOST", "FIX", "OK", "MESSAGE")
			for _, e := range entries {
				fmt.Printf("%-22s %-16s %-20s %-8t %s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"), util.EmptyDash(e.HostAlias), e.FixType, e.Success,
					util.TruncateLine(e.Message, 72))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hostAlias, "host", "", "only entries for this host alias")
	cmd.Flags().IntVar(&limit, "limit", 50, "most recent entries to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <host>",
		Short: "Open an interactive SSH session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			if _, err := config.ResolveIdentity(args[0]); err != nil {
				return err
			}
			return ConnectOnce(args[0])
		},
	}
}

// ConnectOnce establishes an interactive SSH session to the given alias.
// Also used by the wizard once a host diagnoses clean.
func ConnectOnce(alias string) error {
	// Interactive sessions can last hours.
	ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
	defer cancel()
	return sshclient.New().RunInteractive(ctx, alias)
}

func targetAliases(args []string, groupName string) ([]string, error) {
	if groupName != "" {
		g, err := hostgroup.Get(groupName)
		if err != nil {
			return nil, err
		}
		return g.Aliases, nil
	}
	if len(args) == 1 {
		return []string{args[0]}, nil
	}
	return nil, fmt.Errorf("name a host alias or pass --group")
}

// display applies home-directory redaction to user-facing text when the
// config asks for it.
func display(msg string, redact bool) string {
	if redact {
		return security.RedactMessage(msg)
	}
	return msg
}

func printPreflight(alias string, result model.PreflightResult, redact bool) {
	fmt.Printf("%s:\n", alias)
	for _, c := range result.Checks {
		fmt.Printf("  %-10s %-28s %s\n", c.Status, c.ID, display(c.Message, redact))
	}
	switch {
	case result.AllPassed:
		fmt.Println("  all checks passed")
	case result.HasErrors:
		fmt.Println("  errors found; run `ssh-doctor fix` or the interactive wizard")
	}
}

func printTestResult(alias string, result model.ConnectionTestResult, pf *model.PreflightResult, showDebug, redact bool) {
	if result.Success {
		if result.Platform != "" {
			fmt.Printf("%s: connection OK (%s)\n", alias, result.Platform)
		} else {
			fmt.Printf("%s: connection OK\n", alias)
		}
		return
	}
	analysis := diagnose.AnalyzeRootCause(result, pf)
	fmt.Printf("%s: connection FAILED (%s)\n", alias, result.ErrorType)
	fmt.Printf("  likely cause: %s (confidence %s)\n", analysis.LikelyCause, analysis.Confidence)
	fmt.Printf("  %s\n", display(analysis.Explanation, redact))
	for _, rel := range analysis.RelatedIssues {
		fmt.Printf("  - %s\n", display(rel, redact))
	}
	if result.ErrorDetails != nil && result.ErrorDetails.Suggestion != "" {
		fmt.Printf("  suggestion: %s\n", display(result.ErrorDetails.Suggestion, redact))
	}
	if showDebug && result.DebugLog != "" {
		fmt.Fprintln(os.Stderr, "--- ssh transcript ---")
		fmt.Fprintln(os.Stderr, result.DebugLog)
	}
}
