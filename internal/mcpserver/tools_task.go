package mcpserver

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Iron-Ham/crew/internal/qualitygate"
	"github.com/Iron-Ham/crew/internal/team"
)

// -----------------------------------------------------------------------------
// crew_create_task
// -----------------------------------------------------------------------------

// CreateTaskTool handles the crew_create_task MCP tool.
type CreateTaskTool struct {
	coord *team.Coordinator
}

// NewCreateTaskTool creates a CreateTaskTool.
func NewCreateTaskTool(coord *team.Coordinator) *CreateTaskTool {
	return &CreateTaskTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_create_task.
func (t *CreateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_create_task",
		mcp.WithDescription("Create a pending task. Link it to spec requirements so the quality gate can check traceability."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short task title")),
		mcp.WithString("description", mcp.Description("What done looks like")),
		mcp.WithString("type",
			mcp.Description("Task type: feature, bugfix, refactor, test, docs, config"),
		),
		mcp.WithString("assignee_id", mcp.Description("Teammate ID to assign immediately")),
		mcp.WithString("requirement_ids",
			mcp.Description("Comma-separated spec requirement IDs the task implements (e.g. REQ-1,REQ-4)"),
		),
		mcp.WithString("dri_owner", mcp.Description("Teammate accountable for the linked requirements")),
		mcp.WithString("tdd_phase", mcp.Description("TDD phase: test-writing (or red), implementation (or green), refactor. Feature tasks in test-writing must add tests when TDD is enforced")),
	)
}

// Handle processes the crew_create_task tool call.
func (t *CreateTaskTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "title"); r != nil {
		return r, nil
	}
	task, err := t.coord.CreateTask(req.GetString("team_id", ""), team.TaskInput{
		Title:          req.GetString("title", ""),
		Description:    req.GetString("description", ""),
		Type:           req.GetString("type", ""),
		AssigneeID:     req.GetString("assignee_id", ""),
		RequirementIDs: listArg(req, "requirement_ids"),
		DRIOwner:       req.GetString("dri_owner", ""),
		TDDPhase:       req.GetString("tdd_phase", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(task)
}

// -----------------------------------------------------------------------------
// crew_assign_task
// -----------------------------------------------------------------------------

// AssignTaskTool handles the crew_assign_task MCP tool.
type AssignTaskTool struct {
	coord *team.Coordinator
}

// NewAssignTaskTool creates an AssignTaskTool.
func NewAssignTaskTool(coord *team.Coordinator) *AssignTaskTool {
	return &AssignTaskTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_assign_task.
func (t *AssignTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_assign_task",
		mcp.WithDescription("Assign a task to a teammate. Reassigning an unfinished or failed task resets it to pending."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("teammate_id", mcp.Required(), mcp.Description("Assignee teammate ID")),
	)
}

// Handle processes the crew_assign_task tool call.
func (t *AssignTaskTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "task_id", "teammate_id"); r != nil {
		return r, nil
	}
	task, err := t.coord.AssignTask(req.GetString("team_id", ""), req.GetString("task_id", ""), req.GetString("teammate_id", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(task)
}

// -----------------------------------------------------------------------------
// crew_update_task
// -----------------------------------------------------------------------------

// UpdateTaskTool handles the crew_update_task MCP tool.
type UpdateTaskTool struct {
	coord *team.Coordinator
}

// NewUpdateTaskTool creates an UpdateTaskTool.
func NewUpdateTaskTool(coord *team.Coordinator) *UpdateTaskTool {
	return &UpdateTaskTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_update_task.
func (t *UpdateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_update_task",
		mcp.WithDescription("Move a task to a new status without review. Use crew_complete_task to submit work for review."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("One of: pending, in_progress, blocked, completed, failed"),
		),
	)
}

// Handle processes the crew_update_task tool call.
func (t *UpdateTaskTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "task_id", "status"); r != nil {
		return r, nil
	}
	task, err := t.coord.UpdateTaskStatus(req.GetString("team_id", ""), req.GetString("task_id", ""),
		team.TaskStatus(req.GetString("status", "")))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(task)
}

// -----------------------------------------------------------------------------
// crew_complete_task
// -----------------------------------------------------------------------------

// CompleteTaskTool handles the crew_complete_task MCP tool.
type CompleteTaskTool struct {
	coord     *team.Coordinator
	collector *qualitygate.Collector
}

// NewCompleteTaskTool creates a CompleteTaskTool.
func NewCompleteTaskTool(coord *team.Coordinator, collector *qualitygate.Collector) *CompleteTaskTool {
	return &CompleteTaskTool{coord: coord, collector: collector}
}

// Definition returns the MCP tool definition for crew_complete_task.
func (t *CompleteTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_complete_task",
		mcp.WithDescription("Submit a task for completion. The quality gate reviews the diff: a pass completes the task, "+
			"a failure returns feedback and keeps the task open until review cycles run out."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("diff", mcp.Description("Unified diff of the work. Omit to collect the working diff from work_dir.")),
		mcp.WithString("work_dir", mcp.Description("Checkout where local type checks and tests run")),
	)
}

// completion is the crew_complete_task payload.
type completion struct {
	Task team.Task           `json:"task"`
	Gate *qualitygate.Result `json:"gate,omitempty"`
}

// Handle processes the crew_complete_task tool call.
func (t *CompleteTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "task_id"); r != nil {
		return r, nil
	}
	teamID := req.GetString("team_id", "")
	taskID := req.GetString("task_id", "")
	in := team.CompletionInput{
		Diff:    req.GetString("diff", ""),
		WorkDir: req.GetString("work_dir", ""),
	}

	if strings.TrimSpace(in.Diff) == "" {
		if in.WorkDir == "" {
			return mcp.NewToolResultError("either 'diff' or 'work_dir' is required"), nil
		}
		task, err := t.coord.Task(teamID, taskID)
		if err != nil {
			return errorResult(err), nil
		}
		prep := t.collector.Prepare(ctx, diffKey(teamID, task.AssigneeID), in.WorkDir)
		if !prep.OK() {
			return mcp.NewToolResultError(prep.FailureReason), nil
		}
		in.Diff = prep.ReviewInput
	}

	res, err := t.coord.CompleteTask(ctx, teamID, taskID, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(completion{Task: res.Task, Gate: res.Gate})
}
