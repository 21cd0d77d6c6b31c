package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crew/internal/localcheck"
	"github.com/Iron-Ham/crew/internal/qualitygate"
	"github.com/Iron-Ham/crew/internal/spec"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run the quality gate once against a diff",
	Long: `Run the quality gate once against a diff and print the report.

Local checks (type check, tests) run only when --work-dir is given. AI
review stages are skipped when no provider credentials are configured.
The command exits non-zero when the gate fails.

Examples:
  # Review the working tree
  git diff HEAD | crew gate --diff - --task "Add cart totals"

  # Review a saved diff against a spec, with local checks
  crew gate --diff change.patch --task "Refunds" --type feature \
    --spec docs/spec.yaml --work-dir .

  # Machine-readable output
  crew gate --diff change.patch --task "Refunds" --json`,
	Args: cobra.NoArgs,
	RunE: runGate,
}

var (
	gateDiff     string
	gateTask     string
	gateType     string
	gateSpec     string
	gateWorkDir  string
	gateTDDPhase string
	gateJSON     bool
)

// errGateFailed makes the command exit non-zero after printing the report.
var errGateFailed = errors.New("quality gate failed")

func init() {
	rootCmd.AddCommand(gateCmd)

	gateCmd.Flags().StringVar(&gateDiff, "diff", "", "Unified diff file to review, or - for stdin")
	gateCmd.Flags().StringVar(&gateTask, "task", "", "Task description the diff implements")
	gateCmd.Flags().StringVar(&gateType, "type", "", "Task type: feature, bugfix, refactor, test, docs, config")
	gateCmd.Flags().StringVar(&gateSpec, "spec", "", "Spec file enabling the spec-driven stages")
	gateCmd.Flags().StringVar(&gateWorkDir, "work-dir", "", "Checkout to run local type checks and tests in")
	gateCmd.Flags().StringVar(&gateTDDPhase, "tdd-phase", "", "TDD phase of the task: test-writing (red), implementation (green) or refactor")
	gateCmd.Flags().BoolVar(&gateJSON, "json", false, "Print the result as JSON")
	_ = gateCmd.MarkFlagRequired("diff")
}

func runGate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	diff, err := readDiff(cmd.InOrStdin(), gateDiff)
	if err != nil {
		return err
	}

	phase, ok := qualitygate.NormalizeTDDPhase(gateTDDPhase)
	if !ok {
		return fmt.Errorf("unknown --tdd-phase %q: use test-writing (red), implementation (green) or refactor", gateTDDPhase)
	}

	in := qualitygate.Input{
		TaskDescription: gateTask,
		TaskType:        gateType,
		TDDPhase:        phase,
		Diff:            diff,
		Cycle:           1,
		WorkDir:         gateWorkDir,
		Config:          cfg.GateConfig(),
	}
	if gateSpec != "" {
		if in.Spec, err = spec.Load(gateSpec); err != nil {
			return fmt.Errorf("failed to load spec: %w", err)
		}
	}

	keys := cfg.KeyProvider()
	opts := []qualitygate.Option{
		qualitygate.WithKeys(keys),
		qualitygate.WithClientFactory(cfg.ClientFactory(keys)),
		qualitygate.WithLogger(logger),
	}
	if gateWorkDir != "" {
		runOpts := []localcheck.Option{localcheck.WithLogger(logger)}
		if cfg.LocalChecks.CacheEnabled {
			cache, err := localcheck.OpenSQLiteCache(cfg.LocalChecks.CacheFile(), cfg.LocalChecks.CacheTTL())
			if err != nil {
				logger.Warn("local check cache disabled", "error", err)
			} else {
				defer func() { _ = cache.Close() }()
				runOpts = append(runOpts, localcheck.WithCache(cache))
			}
		}
		opts = append(opts, qualitygate.WithRunner(localcheck.NewCommandRunner(cfg.LocalCheckConfig(), runOpts...)))
	}

	res := qualitygate.New(opts...).Run(cmd.Context(), in)

	out := cmd.OutOrStdout()
	if gateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		fmt.Fprint(out, renderGateReport(newStyles(out), res))
	}

	if !res.Passed {
		return errGateFailed
	}
	return nil
}

// readDiff reads the diff from path, or from stdin when path is "-".
func readDiff(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read diff: %w", err)
	}
	return string(data), nil
}

// renderGateReport formats a gate result for the terminal.
func renderGateReport(s styles, res qualitygate.Result) string {
	var sb strings.Builder

	header := fmt.Sprintf("%s  %s  score %.1f", s.title.Render("Quality gate"), s.verdict(res.Passed), res.Score)
	if res.ReviewProvider != "" {
		header += s.muted.Render(fmt.Sprintf("  (%s/%s)", res.ReviewProvider, res.ReviewModel))
	}
	sb.WriteString(header)
	sb.WriteString("\n\n")

	for _, st := range res.Stages {
		mark := s.verdict(st.Passed)
		if st.Skipped {
			mark = s.muted.Render("SKIP")
		}
		fmt.Fprintf(&sb, "  %s  %-26s %6.1f", mark, st.Stage, st.Score)
		if st.Kind != "" {
			sb.WriteString(s.warn.Render("  [" + st.Kind.String() + "]"))
		}
		sb.WriteString("\n")
		for _, issue := range st.Issues {
			sb.WriteString("        " + s.muted.Render("- "+issue) + "\n")
		}
	}

	if res.StoppedAt != "" {
		fmt.Fprintf(&sb, "\n%s\n", s.fail.Render(fmt.Sprintf("Stopped at %s", res.StoppedAt)))
	}
	if res.Escalation != "" {
		fmt.Fprintf(&sb, "\n%s %s\n", s.warn.Render("Escalation:"), res.Escalation)
	}

	if feedback := res.Feedback(); len(feedback) > 0 {
		lines := make([]string, 0, len(feedback))
		for _, f := range feedback {
			lines = append(lines, "• "+f)
		}
		sb.WriteString("\n")
		sb.WriteString(s.box.Render(s.accent.Render("Feedback") + "\n" + strings.Join(lines, "\n")))
		sb.WriteString("\n")
	}
	for _, note := range res.Notes {
		sb.WriteString(s.muted.Render("note: "+note) + "\n")
	}
	return sb.String()
}
