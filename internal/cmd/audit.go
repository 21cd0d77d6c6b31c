package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crew/internal/audit"
	"github.com/Iron-Ham/crew/internal/event"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the team audit trail",
	Long: `Show entries from the append-only audit log.

Every coordinator state change (teams, teammates, tasks, messages,
quality gate results) is recorded with a timestamp. Malformed lines are
skipped and counted.

Examples:
  # Last 50 entries across all teams
  crew audit

  # Every quality gate result for one team
  crew audit --team t1 --type quality:result -n 0

  # Task status changes only
  crew audit --type task:updated

  # One task's history as JSON
  crew audit --task 01j9... --json`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

var (
	auditFile     string
	auditTeam     string
	auditTask     string
	auditTeammate string
	auditTypes    []string
	auditSince    string
	auditTail     int
	auditJSON     bool
)

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditFile, "file", "", "Audit log file (default: audit.path from config)")
	auditCmd.Flags().StringVar(&auditTeam, "team", "", "Only entries for this team ID")
	auditCmd.Flags().StringVar(&auditTask, "task", "", "Only entries for this task ID")
	auditCmd.Flags().StringVar(&auditTeammate, "teammate", "", "Only entries for this teammate ID")
	auditCmd.Flags().StringSliceVar(&auditTypes, "type", nil, "Only entries of these types (repeatable, e.g. task:updated)")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "Only entries newer than this duration (e.g., 1h, 30m)")
	auditCmd.Flags().IntVarP(&auditTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Print entries as JSON lines")
}

func runAudit(cmd *cobra.Command, args []string) error {
	path := auditFile
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Audit.File()
	}

	filter := audit.Filter{
		TeamID:     auditTeam,
		TaskID:     auditTask,
		TeammateID: auditTeammate,
		Types:      auditTypes,
		Limit:      auditTail,
	}
	if auditSince != "" {
		d, err := time.ParseDuration(auditSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}

	res, err := audit.Read(path, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if auditJSON {
		enc := json.NewEncoder(out)
		for _, e := range res.Entries {
			if err := enc.Encode(e); err != nil {
				return fmt.Errorf("failed to encode entry: %w", err)
			}
		}
		return nil
	}

	s := newStyles(out)
	if len(res.Entries) == 0 {
		fmt.Fprintln(out, "No matching audit entries found.")
	}
	for _, e := range res.Entries {
		fmt.Fprintln(out, formatAuditEntry(s, e))
	}
	if res.Skipped > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), s.warn.Render(fmt.Sprintf("skipped %d malformed line(s) in %s", res.Skipped, path)))
	}
	return nil
}

// formatAuditEntry formats one entry as a single terminal line.
func formatAuditEntry(s styles, e audit.Entry) string {
	var sb strings.Builder

	sb.WriteString(s.muted.Render("[" + e.Timestamp.Local().Format("2006-01-02 15:04:05") + "]"))
	sb.WriteString(" ")
	sb.WriteString(typeStyle(s, e).Render(fmt.Sprintf("%-22s", e.Type)))
	sb.WriteString(" ")
	sb.WriteString(s.info.Render("team=" + e.TeamID))
	if e.TeammateID != "" {
		sb.WriteString(" " + s.info.Render("teammate="+e.TeammateID))
	}
	if e.TaskID != "" {
		sb.WriteString(" " + s.info.Render("task="+e.TaskID))
	}
	if summary, ok := e.Data["summary"].(string); ok && summary != "" {
		sb.WriteString(" " + summary)
	}

	// Remaining data fields in stable order
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k != "summary" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" " + s.muted.Render(k+"=") + fmt.Sprintf("%v", e.Data[k]))
	}
	return sb.String()
}

// typeStyle colors entries by outcome.
func typeStyle(s styles, e audit.Entry) lipgloss.Style {
	switch {
	case e.Type == event.FileConflict, e.Type == event.ThrottleRejected:
		return s.fail
	case e.Type == event.QualityResult:
		if passed, _ := e.Data["passed"].(bool); passed {
			return s.pass
		}
		return s.fail
	case e.Data["to"] == "completed":
		return s.pass
	case e.Data["to"] == "failed":
		return s.fail
	case e.Type == event.SynthesisRequested:
		return s.accent
	default:
		return s.title
	}
}
