package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/spec"
	"github.com/Iron-Ham/crew/internal/team"
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Work with spec-driven-development documents",
}

var specCheckCmd = &cobra.Command{
	Use:   "check <spec-file>",
	Short: "Check DRI coverage of a spec",
	Long: `Load a spec and report which structural sections and requirements lack
a directly responsible individual (DRI).

Owners come from the spec's own dri list and requirement assigned_dri
fields, plus an optional assignments file. Entries in the assignments
file win over the ones embedded in the spec.

The command exits non-zero when coverage is incomplete.

Examples:
  crew spec check docs/spec.yaml
  crew spec check docs/spec.yaml --dri docs/owners.yaml --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSpecCheck,
}

var (
	specDRIFile string
	specJSON    bool
)

func init() {
	rootCmd.AddCommand(specCmd)
	specCmd.AddCommand(specCheckCmd)

	specCheckCmd.Flags().StringVar(&specDRIFile, "dri", "", "DRI assignments file")
	specCheckCmd.Flags().BoolVar(&specJSON, "json", false, "Print the coverage report as JSON")
}

// specReport is the outcome of spec check.
type specReport struct {
	SpecID       string           `json:"specId,omitempty"`
	Title        string           `json:"title,omitempty"`
	Requirements int              `json:"requirements"`
	Coverage     team.DRICoverage `json:"coverage"`
}

func runSpecCheck(cmd *cobra.Command, args []string) error {
	report, err := checkSpec(args[0], specDRIFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if specJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	} else {
		fmt.Fprint(out, renderSpecReport(newStyles(out), report))
	}

	if !report.Coverage.Complete {
		return fmt.Errorf("DRI coverage incomplete: %d section(s) and %d requirement(s) without an owner",
			len(report.Coverage.MissingSections), len(report.Coverage.UnownedRequirements))
	}
	return nil
}

// checkSpec computes DRI coverage through a throwaway coordinator, so the
// rules match what a live team sees.
func checkSpec(specPath, driPath string) (specReport, error) {
	s, err := spec.Load(specPath)
	if err != nil {
		return specReport{}, fmt.Errorf("failed to load spec: %w", err)
	}
	var dri []spec.DRIAssignment
	if driPath != "" {
		if dri, err = spec.LoadDRIAssignments(driPath); err != nil {
			return specReport{}, fmt.Errorf("failed to load DRI assignments: %w", err)
		}
	}

	coord, err := team.NewCoordinator(team.Config{Bus: event.NewBus()})
	if err != nil {
		return specReport{}, err
	}
	const teamID = "spec-check"
	if _, err := coord.CreateTeam(teamID, "spec check", ""); err != nil {
		return specReport{}, err
	}
	if err := coord.SetSpec(teamID, s); err != nil {
		return specReport{}, err
	}
	if len(dri) > 0 {
		if err := coord.SetDRIAssignments(teamID, dri); err != nil {
			return specReport{}, err
		}
	}
	cov, err := coord.ValidateDRICoverage(teamID)
	if err != nil {
		return specReport{}, err
	}
	return specReport{SpecID: s.ID, Title: s.Title, Requirements: len(s.Requirements), Coverage: cov}, nil
}

func renderSpecReport(s styles, r specReport) string {
	var sb strings.Builder

	name := r.Title
	if name == "" {
		name = r.SpecID
	}
	fmt.Fprintf(&sb, "%s  %s  %s\n\n", s.title.Render("DRI coverage"), s.verdict(r.Coverage.Complete),
		s.muted.Render(fmt.Sprintf("%s, %d requirement(s)", name, r.Requirements)))

	for _, sec := range spec.StructuralSections {
		owner, ok := r.Coverage.Owners[string(sec)]
		if ok {
			fmt.Fprintf(&sb, "  %-20s %s\n", sec, s.pass.Render(owner))
		} else {
			fmt.Fprintf(&sb, "  %-20s %s\n", sec, s.fail.Render("(no DRI)"))
		}
	}

	if len(r.Coverage.UnownedRequirements) > 0 {
		sb.WriteString("\n" + s.warn.Render("Requirements without a DRI:") + "\n")
		for _, id := range r.Coverage.UnownedRequirements {
			sb.WriteString("  - " + id + "\n")
		}
	}
	return sb.String()
}
