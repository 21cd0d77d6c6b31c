package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Iron-Ham/crew/internal/team"
)

// RecordUsageTool handles the crew_record_usage MCP tool.
type RecordUsageTool struct {
	coord *team.Coordinator
}

// NewRecordUsageTool creates a RecordUsageTool.
func NewRecordUsageTool(coord *team.Coordinator) *RecordUsageTool {
	return &RecordUsageTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_record_usage.
func (t *RecordUsageTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_record_usage",
		mcp.WithDescription("Record token usage and cost for a teammate. Returns the team's updated cost summary."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("teammate_id", mcp.Required(), mcp.Description("Teammate ID")),
		mcp.WithNumber("input_tokens", mcp.Description("Input tokens consumed")),
		mcp.WithNumber("output_tokens", mcp.Description("Output tokens produced")),
		mcp.WithNumber("cost_usd", mcp.Description("Cost in US dollars")),
	)
}

// Handle processes the crew_record_usage tool call.
func (t *RecordUsageTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "teammate_id"); r != nil {
		return r, nil
	}
	u := team.Usage{
		InputTokens:  intArg(req, "input_tokens", 0),
		OutputTokens: intArg(req, "output_tokens", 0),
		CostUSD:      floatArg(req, "cost_usd", 0),
	}
	if u.InputTokens < 0 || u.OutputTokens < 0 || u.CostUSD < 0 {
		return mcp.NewToolResultError("usage values must not be negative"), nil
	}
	sum, err := t.coord.RecordUsage(req.GetString("team_id", ""), req.GetString("teammate_id", ""), u)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sum)
}

// CostSummaryTool handles the crew_cost_summary MCP tool.
type CostSummaryTool struct {
	coord *team.Coordinator
}

// NewCostSummaryTool creates a CostSummaryTool.
func NewCostSummaryTool(coord *team.Coordinator) *CostSummaryTool {
	return &CostSummaryTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_cost_summary.
func (t *CostSummaryTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_cost_summary",
		mcp.WithDescription("Show a team's token usage and cost, in total and per teammate and model."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
	)
}

// Handle processes the crew_cost_summary tool call.
func (t *CostSummaryTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id"); r != nil {
		return r, nil
	}
	sum, err := t.coord.CostSummary(req.GetString("team_id", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sum)
}
