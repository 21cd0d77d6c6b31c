package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Iron-Ham/crew/internal/heartbeat"
	"github.com/Iron-Ham/crew/internal/provider"
	"github.com/Iron-Ham/crew/internal/team"
)

// tool is the shape every crew MCP tool follows.
type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// registerTools adds every crew tool to s.
func registerTools(s *server.MCPServer, d *Deps) {
	for _, t := range crewTools(d) {
		s.AddTool(t.Definition(), t.Handle)
	}
}

// crewTools lists every tool the server exposes.
func crewTools(d *Deps) []tool {
	return []tool{
		// --- Teams and teammates ---
		NewSpawnTeammateTool(d.Coordinator),
		NewUpdateTeammateTool(d.Coordinator),
		NewRequestShutdownTool(d.Coordinator),
		NewTeamStatusTool(d.Coordinator, d.Heartbeat),
		NewCleanupTeamTool(d.Coordinator),

		// --- Tasks ---
		NewCreateTaskTool(d.Coordinator),
		NewAssignTaskTool(d.Coordinator),
		NewUpdateTaskTool(d.Coordinator),
		NewCompleteTaskTool(d.Coordinator, d.Collector),

		// --- Messaging ---
		NewSendMessageTool(d.Coordinator),
		NewReadMessagesTool(d.Coordinator),

		// --- Tool-call hooks ---
		NewToolBeforeTool(d.Guard),
		NewToolAfterTool(d.Guard, d.Collector),
		NewBlockToolTool(d.Guard),
		NewReportProgressTool(d.Heartbeat),

		// --- Cost and planning ---
		NewRecordUsageTool(d.Coordinator),
		NewCostSummaryTool(d.Coordinator),
		NewPlanStatusTool(d.Coordinator),
	}
}

// -----------------------------------------------------------------------------
// crew_spawn_teammate
// -----------------------------------------------------------------------------

// SpawnTeammateTool handles the crew_spawn_teammate MCP tool.
type SpawnTeammateTool struct {
	coord *team.Coordinator
}

// NewSpawnTeammateTool creates a SpawnTeammateTool.
func NewSpawnTeammateTool(coord *team.Coordinator) *SpawnTeammateTool {
	return &SpawnTeammateTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_spawn_teammate.
func (t *SpawnTeammateTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_spawn_teammate",
		mcp.WithDescription("Add a teammate to a team. The team is created on first spawn. "+
			"Spawn the lead itself with role 'lead' so messages and synthesis can reach it."),
		mcp.WithString("team_id",
			mcp.Description("Team ID. Omit to create a new team with a generated ID."),
		),
		mcp.WithString("team_name",
			mcp.Description("Display name of a newly created team"),
		),
		mcp.WithString("lead_session_id",
			mcp.Description("Session ID of the lead, recorded on a newly created team"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Teammate name, unique among the team's live teammates"),
		),
		mcp.WithString("role",
			mcp.Description("Role: lead, worker (default), reviewer, ..."),
		),
		mcp.WithString("model",
			mcp.Description("Model the teammate runs on, e.g. claude-sonnet-4-5 or kimi-k2"),
		),
		mcp.WithString("provider",
			mcp.Description("Provider: anthropic, openai or moonshot"),
		),
	)
}

// Handle processes the crew_spawn_teammate tool call.
func (t *SpawnTeammateTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "name"); r != nil {
		return r, nil
	}
	tm, err := t.coord.SpawnTeammate(team.SpawnRequest{
		TeamID:        req.GetString("team_id", ""),
		TeamName:      req.GetString("team_name", ""),
		LeadSessionID: req.GetString("lead_session_id", ""),
		Name:          req.GetString("name", ""),
		Role:          req.GetString("role", ""),
		Model:         req.GetString("model", ""),
		Provider:      provider.Name(req.GetString("provider", "")),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(tm)
}

// -----------------------------------------------------------------------------
// crew_update_teammate
// -----------------------------------------------------------------------------

// UpdateTeammateTool handles the crew_update_teammate MCP tool.
type UpdateTeammateTool struct {
	coord *team.Coordinator
}

// NewUpdateTeammateTool creates an UpdateTeammateTool.
func NewUpdateTeammateTool(coord *team.Coordinator) *UpdateTeammateTool {
	return &UpdateTeammateTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_update_teammate.
func (t *UpdateTeammateTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_update_teammate",
		mcp.WithDescription("Move a teammate to a new status. Shutting a teammate down releases the files it owns."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("teammate_id", mcp.Required(), mcp.Description("Teammate ID")),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("One of: active, idle, shutdown-requested, shutdown"),
		),
	)
}

// Handle processes the crew_update_teammate tool call.
func (t *UpdateTeammateTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "teammate_id", "status"); r != nil {
		return r, nil
	}
	status := team.TeammateStatus(req.GetString("status", ""))
	if !status.IsValid() {
		return mcp.NewToolResultError("'status' must be one of: spawning, active, idle, shutdown-requested, shutdown"), nil
	}
	tm, err := t.coord.UpdateTeammateStatus(req.GetString("team_id", ""), req.GetString("teammate_id", ""), status)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(tm)
}

// -----------------------------------------------------------------------------
// crew_request_shutdown
// -----------------------------------------------------------------------------

// RequestShutdownTool handles the crew_request_shutdown MCP tool.
type RequestShutdownTool struct {
	coord *team.Coordinator
}

// NewRequestShutdownTool creates a RequestShutdownTool.
func NewRequestShutdownTool(coord *team.Coordinator) *RequestShutdownTool {
	return &RequestShutdownTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_request_shutdown.
func (t *RequestShutdownTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_request_shutdown",
		mcp.WithDescription("Ask a teammate to wrap up. The teammate receives a shutdown_request message "+
			"and should confirm with crew_update_teammate status=shutdown."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("from", mcp.Required(), mcp.Description("Teammate ID of the requester, usually the lead")),
		mcp.WithString("teammate_id", mcp.Required(), mcp.Description("Teammate to shut down")),
		mcp.WithString("reason", mcp.Description("Why the teammate is being shut down")),
	)
}

// Handle processes the crew_request_shutdown tool call.
func (t *RequestShutdownTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "from", "teammate_id"); r != nil {
		return r, nil
	}
	msg, err := t.coord.RequestShutdown(
		req.GetString("team_id", ""),
		req.GetString("from", ""),
		req.GetString("teammate_id", ""),
		req.GetString("reason", ""),
	)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(msg)
}

// -----------------------------------------------------------------------------
// crew_team_status
// -----------------------------------------------------------------------------

// TeamStatusTool handles the crew_team_status MCP tool.
type TeamStatusTool struct {
	coord     *team.Coordinator
	heartbeat *heartbeat.Aggregator
}

// NewTeamStatusTool creates a TeamStatusTool.
func NewTeamStatusTool(coord *team.Coordinator, hb *heartbeat.Aggregator) *TeamStatusTool {
	return &TeamStatusTool{coord: coord, heartbeat: hb}
}

// Definition returns the MCP tool definition for crew_team_status.
func (t *TeamStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_team_status",
		mcp.WithDescription("Show a team: teammates, tasks, inferred teammate activity and recent activity log. "+
			"Teammates silent past their soft-probe threshold are listed once under softProbes; check in with them. "+
			"Omit team_id to list every team."),
		mcp.WithString("team_id", mcp.Description("Team ID")),
		mcp.WithNumber("activity_limit", mcp.Description("Recent activity entries to include (default: 20)")),
	)
}

// teamStatus is the crew_team_status payload.
type teamStatus struct {
	Team     team.Team            `json:"team"`
	Tasks    []team.Task          `json:"tasks"`
	Liveness []heartbeat.Status   `json:"liveness,omitempty"`
	Activity []team.ActivityEntry `json:"activity,omitempty"`
	// SoftProbes names teammates due a check-in. Each is reported once
	// until it shows new activity.
	SoftProbes []string `json:"softProbes,omitempty"`
}

// Handle processes the crew_team_status tool call.
func (t *TeamStatusTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	teamID := req.GetString("team_id", "")
	if teamID == "" {
		return jsonResult(t.coord.Teams())
	}

	tm, err := t.coord.Team(teamID)
	if err != nil {
		return errorResult(err), nil
	}
	tasks, err := t.coord.Tasks(teamID)
	if err != nil {
		return errorResult(err), nil
	}
	activity, err := t.coord.Activity(teamID, int(intArg(req, "activity_limit", 20)))
	if err != nil {
		return errorResult(err), nil
	}
	liveness := t.heartbeat.TeamStatus(teamID)
	var probes []string
	for _, st := range liveness {
		if t.heartbeat.NeedsSoftProbe(teamID, st.TeammateID) {
			t.heartbeat.MarkSoftProbeSent(teamID, st.TeammateID)
			probes = append(probes, st.TeammateID)
		}
	}
	return jsonResult(teamStatus{
		Team:       tm,
		Tasks:      tasks,
		Liveness:   liveness,
		Activity:   activity,
		SoftProbes: probes,
	})
}

// -----------------------------------------------------------------------------
// crew_cleanup_team
// -----------------------------------------------------------------------------

// CleanupTeamTool handles the crew_cleanup_team MCP tool.
type CleanupTeamTool struct {
	coord *team.Coordinator
}

// NewCleanupTeamTool creates a CleanupTeamTool.
func NewCleanupTeamTool(coord *team.Coordinator) *CleanupTeamTool {
	return &CleanupTeamTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_cleanup_team.
func (t *CleanupTeamTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_cleanup_team",
		mcp.WithDescription("Shut down every non-lead teammate and close the team. Idempotent."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
	)
}

// Handle processes the crew_cleanup_team tool call.
func (t *CleanupTeamTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id"); r != nil {
		return r, nil
	}
	tm, err := t.coord.CleanupTeam(req.GetString("team_id", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(tm)
}
