package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Iron-Ham/crew/internal/heartbeat"
	"github.com/Iron-Ham/crew/internal/ownership"
	"github.com/Iron-Ham/crew/internal/qualitygate"
	"github.com/Iron-Ham/crew/internal/toolguard"
)

// callArg builds a guarded call from the shared hook arguments.
func callArg(req mcp.CallToolRequest) toolguard.Call {
	return toolguard.Call{
		TeamID:       req.GetString("team_id", ""),
		TeammateID:   req.GetString("teammate_id", ""),
		TeammateName: req.GetString("teammate_name", ""),
		Tool:         req.GetString("tool", ""),
		Input:        inputArg(req),
		FilePath:     req.GetString("file_path", ""),
	}
}

// inputArg returns the raw tool input. Hooks that cannot send an object
// may send it JSON-encoded.
func inputArg(req mcp.CallToolRequest) any {
	raw := req.GetArguments()["input"]
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return s
	}
	return decoded
}

// -----------------------------------------------------------------------------
// crew_tool_before
// -----------------------------------------------------------------------------

// ToolBeforeTool handles the crew_tool_before MCP tool.
type ToolBeforeTool struct {
	guard *toolguard.Guard
}

// NewToolBeforeTool creates a ToolBeforeTool.
func NewToolBeforeTool(guard *toolguard.Guard) *ToolBeforeTool {
	return &ToolBeforeTool{guard: guard}
}

// Definition returns the MCP tool definition for crew_tool_before.
func (t *ToolBeforeTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_tool_before",
		mcp.WithDescription("Pre-tool hook. Ask whether a teammate's tool call may run. "+
			"A rejected call carries the reason and, for throttled calls, how long to wait."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("teammate_id", mcp.Required(), mcp.Description("Teammate making the call")),
		mcp.WithString("teammate_name", mcp.Description("Display name used in conflict messages")),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name, e.g. Edit, Bash, Read")),
		mcp.WithObject("input", mcp.Description("Tool input as sent to the tool")),
		mcp.WithString("file_path", mcp.Description("Modified file, when it is not in the input")),
		mcp.WithBoolean("new_turn", mcp.Description("Reset the teammate's throttle before checking")),
	)
}

// verdict is the crew_tool_before payload.
type verdict struct {
	Allowed      bool                `json:"allowed"`
	Kind         string              `json:"kind,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	RetryAfterMs int64               `json:"retryAfterMs,omitempty"`
	Conflict     *ownership.Conflict `json:"conflict,omitempty"`
}

// Handle processes the crew_tool_before tool call.
func (t *ToolBeforeTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "teammate_id", "tool"); r != nil {
		return r, nil
	}
	c := callArg(req)
	if boolArg(req, "new_turn", false) {
		t.guard.ResetTurn(c.TeamID, c.TeammateID)
	}

	v := t.guard.Before(c)
	out := verdict{
		Allowed:      v.Allowed,
		Reason:       v.Reason,
		RetryAfterMs: v.RetryAfter.Milliseconds(),
		Conflict:     v.Conflict,
	}
	if !v.Allowed {
		out.Kind = v.Kind.String()
	}
	return jsonResult(out)
}

// -----------------------------------------------------------------------------
// crew_block_tool
// -----------------------------------------------------------------------------

// BlockToolTool handles the crew_block_tool MCP tool.
type BlockToolTool struct {
	guard *toolguard.Guard
}

// NewBlockToolTool creates a BlockToolTool.
func NewBlockToolTool(guard *toolguard.Guard) *BlockToolTool {
	return &BlockToolTool{guard: guard}
}

// Definition returns the MCP tool definition for crew_block_tool.
func (t *BlockToolTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_block_tool",
		mcp.WithDescription("Block one tool for a teammate stuck in a retry loop. "+
			"The block lifts after one throttle window or when the teammate starts a new turn."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("teammate_id", mcp.Required(), mcp.Description("Teammate to block")),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name, e.g. Bash")),
		mcp.WithString("reason", mcp.Description("Shown to the teammate on every rejected call")),
	)
}

// Handle processes the crew_block_tool tool call.
func (t *BlockToolTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "teammate_id", "tool"); r != nil {
		return r, nil
	}
	teamID := req.GetString("team_id", "")
	teammateID := req.GetString("teammate_id", "")
	tool := req.GetString("tool", "")
	t.guard.HardBlock(teamID, teammateID, tool, req.GetString("reason", ""))
	snap := t.guard.Snapshot(teamID, teammateID, tool)
	return jsonResult(blockResult{Tool: tool, Blocked: snap.Blocked})
}

// blockResult is the crew_block_tool payload.
type blockResult struct {
	Tool    string `json:"tool"`
	Blocked bool   `json:"blocked"`
}

// -----------------------------------------------------------------------------
// crew_tool_after
// -----------------------------------------------------------------------------

// ToolAfterTool handles the crew_tool_after MCP tool.
type ToolAfterTool struct {
	guard     *toolguard.Guard
	collector *qualitygate.Collector
}

// NewToolAfterTool creates a ToolAfterTool.
func NewToolAfterTool(guard *toolguard.Guard, collector *qualitygate.Collector) *ToolAfterTool {
	return &ToolAfterTool{guard: guard, collector: collector}
}

// Definition returns the MCP tool definition for crew_tool_after.
func (t *ToolAfterTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_tool_after",
		mcp.WithDescription("Post-tool hook. Report the outcome of a call admitted by crew_tool_before. "+
			"Successful file writes take ownership of the file."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("teammate_id", mcp.Required(), mcp.Description("Teammate that made the call")),
		mcp.WithString("teammate_name", mcp.Description("Display name recorded as the file owner")),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name")),
		mcp.WithObject("input", mcp.Description("Tool input as sent to the tool")),
		mcp.WithString("file_path", mcp.Description("Modified file, when it is not in the input")),
		mcp.WithBoolean("success", mcp.Description("Whether the call succeeded (default: true)")),
		mcp.WithString("diff", mcp.Description("Working diff captured after the call, reused at review time")),
	)
}

// afterResult is the crew_tool_after payload.
type afterResult struct {
	Recorded bool                `json:"recorded"`
	Conflict *ownership.Conflict `json:"conflict,omitempty"`
}

// Handle processes the crew_tool_after tool call.
func (t *ToolAfterTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "teammate_id", "tool"); r != nil {
		return r, nil
	}
	c := callArg(req)
	ok := boolArg(req, "success", true)
	conflict := t.guard.After(c, ok)

	key := diffKey(c.TeamID, c.TeammateID)
	if diff := req.GetString("diff", ""); diff != "" {
		t.collector.StoreSpeculative(key, diff)
	} else if ok && t.guard.IsFileTool(c.Tool) {
		// The working tree moved on; a stored diff no longer matches it.
		t.collector.Invalidate(key)
	}
	return jsonResult(afterResult{Recorded: true, Conflict: conflict})
}

// -----------------------------------------------------------------------------
// crew_report_progress
// -----------------------------------------------------------------------------

// ReportProgressTool handles the crew_report_progress MCP tool.
type ReportProgressTool struct {
	heartbeat *heartbeat.Aggregator
}

// NewReportProgressTool creates a ReportProgressTool.
func NewReportProgressTool(hb *heartbeat.Aggregator) *ReportProgressTool {
	return &ReportProgressTool{heartbeat: hb}
}

// Definition returns the MCP tool definition for crew_report_progress.
func (t *ReportProgressTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_report_progress",
		mcp.WithDescription("Report what a teammate is doing, how far along it is and how full its context window is."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("teammate_id", mcp.Required(), mcp.Description("Teammate ID")),
		mcp.WithString("hint", mcp.Description("One-line description of the current step")),
		mcp.WithNumber("estimate", mcp.Description("Estimated completion between 0 and 1")),
		mcp.WithNumber("context_usage", mcp.Description("Fraction of the context window in use, between 0 and 1")),
	)
}

// Handle processes the crew_report_progress tool call.
func (t *ReportProgressTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "teammate_id"); r != nil {
		return r, nil
	}
	teamID := req.GetString("team_id", "")
	teammateID := req.GetString("teammate_id", "")

	estimate := floatArg(req, "estimate", -1)
	if estimate > 1 {
		return mcp.NewToolResultError("'estimate' must be between 0 and 1"), nil
	}
	hint := req.GetString("hint", "")
	if hint != "" || estimate >= 0 {
		t.heartbeat.UpdateProgress(teamID, teammateID, hint, max(estimate, 0))
	}

	if usage := floatArg(req, "context_usage", -1); usage >= 0 {
		if usage > 1 {
			return mcp.NewToolResultError("'context_usage' must be between 0 and 1"), nil
		}
		t.heartbeat.UpdateContextUsage(teamID, teammateID, usage)
	}

	st, ok := t.heartbeat.Status(teamID, teammateID)
	if !ok {
		return mcp.NewToolResultError("teammate " + teammateID + " is not tracked in team " + teamID), nil
	}
	return jsonResult(st)
}
