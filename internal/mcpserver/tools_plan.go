package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Iron-Ham/crew/internal/team"
)

// PlanStatusTool handles the crew_plan_status MCP tool.
type PlanStatusTool struct {
	coord *team.Coordinator
}

// NewPlanStatusTool creates a PlanStatusTool.
func NewPlanStatusTool(coord *team.Coordinator) *PlanStatusTool {
	return &PlanStatusTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_plan_status.
func (t *PlanStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_plan_status",
		mcp.WithDescription("Check whether the team's plan can close: every spec section and requirement has a DRI "+
			"and every requirement is covered by a task. Optionally request synthesis from the lead."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithBoolean("synthesize",
			mcp.Description("Request synthesis if every assigned task is completed (default: false)"),
		),
	)
}

// planStatus is the crew_plan_status payload.
type planStatus struct {
	CanClose    bool                     `json:"canClose"`
	Blockers    []string                 `json:"blockers,omitempty"`
	Coverage    team.RequirementCoverage `json:"coverage"`
	DRICoverage *team.DRICoverage        `json:"driCoverage,omitempty"`
	Synthesis   *team.SynthesisRequest   `json:"synthesis,omitempty"`
}

// Handle processes the crew_plan_status tool call.
func (t *PlanStatusTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id"); r != nil {
		return r, nil
	}
	teamID := req.GetString("team_id", "")

	blockers, err := t.coord.CanClosePlan(teamID)
	if err != nil {
		return errorResult(err), nil
	}
	cov, err := t.coord.RequirementCoverage(teamID)
	if err != nil {
		return errorResult(err), nil
	}
	out := planStatus{CanClose: len(blockers) == 0, Blockers: blockers, Coverage: cov}

	// No spec is not an error here; the blockers already say so.
	if dri, err := t.coord.ValidateDRICoverage(teamID); err == nil {
		out.DRICoverage = &dri
	}

	if boolArg(req, "synthesize", false) {
		sr, fired, err := t.coord.AutoSynthesize(teamID)
		if err != nil {
			return errorResult(err), nil
		}
		if fired {
			out.Synthesis = &sr
		}
	}
	return jsonResult(out)
}
