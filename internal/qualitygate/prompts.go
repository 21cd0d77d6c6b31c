package qualitygate

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/crew/internal/spec"
)

const maxPromptDiff = 60_000

const reviewSystemPrompt = `You are a strict senior code reviewer gating work produced by an autonomous coding agent.
Respond with a single JSON object and nothing else. No prose, no markdown.`

var stageFocus = map[StageName]string{
	StageArchitecture: "Architecture: module boundaries, coupling, layering, and whether the change fits the existing structure.",
	StageSimplicity:   "Simplicity: unnecessary abstraction, duplication, dead code, and whether a simpler change would do.",
	StageErrors:       "Error handling: unchecked failures, swallowed errors, missing validation, and unsafe edge cases.",
	StageCompleteness: "Completeness: whether the change fully implements the task and whether new code is actually wired into the application (imported, registered, routed or called).",
}

func truncateDiff(diff string) string {
	if len(diff) <= maxPromptDiff {
		return diff
	}
	return diff[:maxPromptDiff] + fmt.Sprintf("\n... diff truncated (%d bytes omitted)", len(diff)-maxPromptDiff)
}

// reviewPrompt builds the user prompt for an AI review stage.
func reviewPrompt(stage StageName, in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review focus: %s\n\n", stageFocus[stage])
	if in.TaskDescription != "" {
		fmt.Fprintf(&sb, "Task (%s):\n%s\n\n", taskTypeLabel(in.TaskType), in.TaskDescription)
	}
	sb.WriteString("Diff:\n```diff\n")
	sb.WriteString(truncateDiff(in.Diff))
	sb.WriteString("\n```\n\n")
	sb.WriteString(`Answer with JSON: {"score": <0-100>, "issues": [string], "suggestions": [string]`)
	if stage == StageCompleteness {
		sb.WriteString(`, "integrationVerified": <true if every new module, function or component is reachable from the running application>`)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// sddPrompt builds the user prompt for a spec-driven stage.
func sddPrompt(stage StageName, in Input, items []string) string {
	var sb strings.Builder
	s := in.Spec
	switch stage {
	case StageSpecCompliance:
		sb.WriteString("Check whether the diff implements each requirement and honors its acceptance criteria.\n")
		sb.WriteString(`Status per requirement: "addressed", "partial" or "missing".` + "\n\n")
	case StageTraceability:
		sb.WriteString("Check whether each requirement can be traced to code or tests in the diff (names, comments, test titles).\n")
		sb.WriteString(`Status per requirement: "linked", "partial" or "missing".` + "\n\n")
	case StageRolloutSafety:
		sb.WriteString("Check whether the diff honors the rollout, rollback and observability plans below.\n")
		sb.WriteString(`Status per plan: "addressed", "partial" or "missing".` + "\n\n")
	}

	if stage == StageRolloutSafety {
		writePlan(&sb, "rollout_plan", s.RolloutPlan)
		writePlan(&sb, "rollback_plan", s.RollbackPlan)
		writePlan(&sb, "observability_plan", s.ObservabilityPlan)
	} else {
		sb.WriteString("Requirements:\n")
		for _, r := range s.Requirements {
			fmt.Fprintf(&sb, "- %s: %s", r.ID, r.Title)
			if r.Description != "" {
				fmt.Fprintf(&sb, " (%s)", r.Description)
			}
			sb.WriteString("\n")
			for _, ac := range r.AcceptanceCriteria {
				fmt.Fprintf(&sb, "  - accept: %s\n", ac)
			}
		}
	}

	sb.WriteString("\nDiff:\n```diff\n")
	sb.WriteString(truncateDiff(in.Diff))
	sb.WriteString("\n```\n\n")
	fmt.Fprintf(&sb, `Answer with JSON: {"score": <0-100>, "issues": [string], "suggestions": [string], "requirements": [{"id": string, "status": string, "note": string}]} covering ids: %s`+"\n",
		strings.Join(items, ", "))
	return sb.String()
}

func writePlan(sb *strings.Builder, id, plan string) {
	if strings.TrimSpace(plan) == "" {
		return
	}
	fmt.Fprintf(sb, "%s:\n%s\n\n", id, strings.TrimSpace(plan))
}

// planItems lists the rollout-safety items a spec declares.
func planItems(s *spec.Spec) []string {
	var items []string
	for _, p := range []struct {
		id   spec.Section
		text string
	}{
		{spec.SectionRolloutPlan, s.RolloutPlan},
		{spec.SectionRollbackPlan, s.RollbackPlan},
		{spec.SectionObservabilityPlan, s.ObservabilityPlan},
	} {
		if strings.TrimSpace(p.text) != "" {
			items = append(items, string(p.id))
		}
	}
	return items
}

const escalationSystemPrompt = `You diagnose why an autonomous coding agent keeps failing review.
Be concrete and brief. Plain text.`

func escalationPrompt(in Input, stages []StageResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The task below failed review %d times.\n\n", in.Cycle)
	if in.TaskDescription != "" {
		fmt.Fprintf(&sb, "Task:\n%s\n\n", in.TaskDescription)
	}
	sb.WriteString("Failing stages:\n")
	for _, s := range stages {
		if s.Passed {
			continue
		}
		fmt.Fprintf(&sb, "- %s (score %.0f)\n", s.Stage, s.Score)
		for _, issue := range s.Issues {
			fmt.Fprintf(&sb, "  - %s\n", issue)
		}
	}
	sb.WriteString("\nIdentify the root cause and the single most useful next step.\n")
	return sb.String()
}
