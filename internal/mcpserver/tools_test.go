package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/crew/internal/config"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/heartbeat"
	"github.com/Iron-Ham/crew/internal/team"
	"github.com/Iron-Ham/crew/internal/toolguard"
)

const sampleDiff = `diff --git a/src/cart.ts b/src/cart.ts
--- a/src/cart.ts
+++ b/src/cart.ts
@@ -1,3 +1,4 @@
+export function total(items: number[]) { return items.reduce((a, b) => a + b, 0) }
`

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func toolCall(teamID, teammateID, tool, path string) toolguard.Call {
	return toolguard.Call{
		TeamID:     teamID,
		TeammateID: teammateID,
		Tool:       tool,
		Input:      map[string]any{"file_path": path},
	}
}

// call runs h and decodes a successful JSON result into out.
func call(t *testing.T, h tool, args map[string]any, out any) {
	t.Helper()
	r, err := h.Handle(context.Background(), makeReq(args))
	require.NoError(t, err)
	require.False(t, r.IsError, resultText(r))
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(resultText(r)), out))
	}
}

// callError runs h and returns the text of its error result.
func callError(t *testing.T, h tool, args map[string]any) string {
	t.Helper()
	r, err := h.Handle(context.Background(), makeReq(args))
	require.NoError(t, err)
	require.True(t, r.IsError, "expected error result, got %s", resultText(r))
	return resultText(r)
}

func spawn(t *testing.T, d *Deps, teamID, name, role string) team.Teammate {
	t.Helper()
	var tm team.Teammate
	call(t, NewSpawnTeammateTool(d.Coordinator), map[string]any{"team_id": teamID, "name": name, "role": role}, &tm)
	return tm
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestToolDefinitions(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	tests := map[string]tool{
		"crew_spawn_teammate":   NewSpawnTeammateTool(d.Coordinator),
		"crew_update_teammate":  NewUpdateTeammateTool(d.Coordinator),
		"crew_request_shutdown": NewRequestShutdownTool(d.Coordinator),
		"crew_team_status":      NewTeamStatusTool(d.Coordinator, d.Heartbeat),
		"crew_cleanup_team":     NewCleanupTeamTool(d.Coordinator),
		"crew_create_task":      NewCreateTaskTool(d.Coordinator),
		"crew_assign_task":      NewAssignTaskTool(d.Coordinator),
		"crew_update_task":      NewUpdateTaskTool(d.Coordinator),
		"crew_complete_task":    NewCompleteTaskTool(d.Coordinator, d.Collector),
		"crew_send_message":     NewSendMessageTool(d.Coordinator),
		"crew_read_messages":    NewReadMessagesTool(d.Coordinator),
		"crew_tool_before":      NewToolBeforeTool(d.Guard),
		"crew_tool_after":       NewToolAfterTool(d.Guard, d.Collector),
		"crew_block_tool":       NewBlockToolTool(d.Guard),
		"crew_report_progress":  NewReportProgressTool(d.Heartbeat),
		"crew_record_usage":     NewRecordUsageTool(d.Coordinator),
		"crew_cost_summary":     NewCostSummaryTool(d.Coordinator),
		"crew_plan_status":      NewPlanStatusTool(d.Coordinator),
	}
	for name, tl := range tests {
		t.Run(name, func(t *testing.T) {
			def := tl.Definition()
			assert.Equal(t, name, def.Name)
			assert.NotEmpty(t, def.Description)
		})
	}
}

func TestTools_MissingRequiredArgs(t *testing.T) {
	d := newTestDeps(t, testConfig(t))

	msg := callError(t, NewSpawnTeammateTool(d.Coordinator), map[string]any{"team_id": "t1"})
	assert.Contains(t, msg, "'name' is required")

	msg = callError(t, NewCreateTaskTool(d.Coordinator), map[string]any{"team_id": "t1", "title": "  "})
	assert.Contains(t, msg, "'title' is required")

	msg = callError(t, NewToolBeforeTool(d.Guard), map[string]any{"team_id": "t1", "teammate_id": "a"})
	assert.Contains(t, msg, "'tool' is required")
}

// ─── Teams and tasks ─────────────────────────────────────────────────────────

func TestSpawnTeammate_CreatesTeam(t *testing.T) {
	d := newTestDeps(t, testConfig(t))

	tm := spawn(t, d, "t1", "alice", "")
	assert.Equal(t, "t1", tm.TeamID)
	assert.Equal(t, "worker", tm.Role)
	assert.Equal(t, team.TeammateSpawning, tm.Status)

	var teams []team.Team
	call(t, NewTeamStatusTool(d.Coordinator, d.Heartbeat), map[string]any{}, &teams)
	require.Len(t, teams, 1)
	assert.Equal(t, "t1", teams[0].ID)
}

func TestSpawnTeammate_DuplicateNameSuggests(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	spawn(t, d, "t1", "alice", "")

	msg := callError(t, NewSpawnTeammateTool(d.Coordinator), map[string]any{"team_id": "t1", "name": "alice"})
	assert.Contains(t, msg, "already exists")
	assert.Contains(t, msg, "Suggestion:")
}

func TestUpdateTeammate_RejectsUnknownStatus(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	tm := spawn(t, d, "t1", "alice", "")

	msg := callError(t, NewUpdateTeammateTool(d.Coordinator), map[string]any{
		"team_id": "t1", "teammate_id": tm.ID, "status": "asleep",
	})
	assert.Contains(t, msg, "'status' must be one of")

	var got team.Teammate
	call(t, NewUpdateTeammateTool(d.Coordinator), map[string]any{
		"team_id": "t1", "teammate_id": tm.ID, "status": "active",
	}, &got)
	assert.Equal(t, team.TeammateActive, got.Status)
}

func TestTaskLifecycle(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	spawn(t, d, "t1", "lead", team.RoleLead)
	alice := spawn(t, d, "t1", "alice", "")

	var task team.Task
	call(t, NewCreateTaskTool(d.Coordinator), map[string]any{
		"team_id": "t1", "title": "Cart totals", "type": "feature",
		"requirement_ids": "REQ-1, REQ-2",
	}, &task)
	assert.Equal(t, team.TaskPending, task.Status)
	assert.Equal(t, []string{"REQ-1", "REQ-2"}, task.RequirementIDs)

	call(t, NewAssignTaskTool(d.Coordinator), map[string]any{
		"team_id": "t1", "task_id": task.ID, "teammate_id": alice.ID,
	}, &task)
	assert.Equal(t, alice.ID, task.AssigneeID)

	call(t, NewUpdateTaskTool(d.Coordinator), map[string]any{
		"team_id": "t1", "task_id": task.ID, "status": "in_progress",
	}, &task)
	assert.Equal(t, team.TaskInProgress, task.Status)

	var done completion
	call(t, NewCompleteTaskTool(d.Coordinator, d.Collector), map[string]any{
		"team_id": "t1", "task_id": task.ID, "diff": sampleDiff,
	}, &done)
	assert.Equal(t, team.TaskCompleted, done.Task.Status)
	require.NotNil(t, done.Gate)
	assert.True(t, done.Gate.Passed)

	msg := callError(t, NewUpdateTaskTool(d.Coordinator), map[string]any{
		"team_id": "t1", "task_id": task.ID, "status": "pending",
	})
	assert.Contains(t, msg, "completed")
}

func TestCompleteTask_UsesSpeculativeDiff(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	alice := spawn(t, d, "t1", "alice", "")

	var task team.Task
	call(t, NewCreateTaskTool(d.Coordinator), map[string]any{
		"team_id": "t1", "title": "Cart totals", "assignee_id": alice.ID,
	}, &task)

	call(t, NewToolAfterTool(d.Guard, d.Collector), map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "tool": "Bash", "diff": sampleDiff,
	}, nil)

	var done completion
	call(t, NewCompleteTaskTool(d.Coordinator, d.Collector), map[string]any{
		"team_id": "t1", "task_id": task.ID, "work_dir": t.TempDir(),
	}, &done)
	assert.Equal(t, team.TaskCompleted, done.Task.Status)
}

func TestCompleteTask_RedPhaseEnforcesTDD(t *testing.T) {
	cfg := testConfig(t)
	cfg.QualityGate.EnforceTDD = true
	d := newTestDeps(t, cfg)
	alice := spawn(t, d, "t1", "alice", "")

	var task team.Task
	call(t, NewCreateTaskTool(d.Coordinator), map[string]any{
		"team_id": "t1", "title": "Cart totals", "type": "feature",
		"assignee_id": alice.ID, "tdd_phase": "red",
	}, &task)
	assert.Equal(t, "test-writing", task.TDDPhase)

	var done completion
	call(t, NewCompleteTaskTool(d.Coordinator, d.Collector), map[string]any{
		"team_id": "t1", "task_id": task.ID, "diff": sampleDiff,
	}, &done)
	require.NotNil(t, done.Gate)
	assert.False(t, done.Gate.Passed)
	assert.Equal(t, "completeness", string(done.Gate.StoppedAt))
	assert.NotEqual(t, team.TaskCompleted, done.Task.Status)
}

func TestCreateTask_RejectsUnknownTDDPhase(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	spawn(t, d, "t1", "alice", "")

	msg := callError(t, NewCreateTaskTool(d.Coordinator), map[string]any{
		"team_id": "t1", "title": "x", "tdd_phase": "purple",
	})
	assert.Contains(t, msg, "tdd_phase")
}

func TestCompleteTask_RequiresDiffOrWorkDir(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	spawn(t, d, "t1", "alice", "")

	var task team.Task
	call(t, NewCreateTaskTool(d.Coordinator), map[string]any{"team_id": "t1", "title": "x"}, &task)

	msg := callError(t, NewCompleteTaskTool(d.Coordinator, d.Collector), map[string]any{
		"team_id": "t1", "task_id": task.ID, "diff": "   ",
	})
	assert.Contains(t, msg, "'diff' or 'work_dir'")
}

func TestTeamStatus_IncludesTasksAndLiveness(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	alice := spawn(t, d, "t1", "alice", "")
	call(t, NewCreateTaskTool(d.Coordinator), map[string]any{"team_id": "t1", "title": "x"}, nil)

	var st teamStatus
	call(t, NewTeamStatusTool(d.Coordinator, d.Heartbeat), map[string]any{"team_id": "t1", "activity_limit": float64(5)}, &st)

	assert.Equal(t, "t1", st.Team.ID)
	assert.Len(t, st.Tasks, 1)
	require.Len(t, st.Liveness, 1)
	assert.Equal(t, alice.ID, st.Liveness[0].TeammateID)
	assert.NotEmpty(t, st.Activity)
	assert.LessOrEqual(t, len(st.Activity), 5)
}

func TestTeamStatus_ReportsSoftProbesOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Heartbeat.Profiles = map[string]config.ProfileConfig{
		"quiet-model": {SoftProbeMs: 1, ExpectedSilenceMs: 1},
	}
	d := newTestDeps(t, cfg)
	alice, err := d.Coordinator.SpawnTeammate(team.SpawnRequest{TeamID: "t1", Name: "alice", Model: "quiet-model"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	status := NewTeamStatusTool(d.Coordinator, d.Heartbeat)
	var first, second teamStatus
	call(t, status, map[string]any{"team_id": "t1"}, &first)
	assert.Equal(t, []string{alice.ID}, first.SoftProbes)

	call(t, status, map[string]any{"team_id": "t1"}, &second)
	assert.Empty(t, second.SoftProbes)
}

func TestTeamStatus_UnknownTeam(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	msg := callError(t, NewTeamStatusTool(d.Coordinator, d.Heartbeat), map[string]any{"team_id": "nope"})
	assert.Contains(t, msg, "nope")
}

func TestCleanupTeam_Idempotent(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	spawn(t, d, "t1", "alice", "")

	var first, second team.Team
	call(t, NewCleanupTeamTool(d.Coordinator), map[string]any{"team_id": "t1"}, &first)
	call(t, NewCleanupTeamTool(d.Coordinator), map[string]any{"team_id": "t1"}, &second)
	assert.Equal(t, first.Status, second.Status)
	for _, tm := range second.Teammates {
		assert.Equal(t, team.TeammateShutdown, tm.Status)
	}
}

// ─── Messaging ───────────────────────────────────────────────────────────────

func TestMessaging(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	lead := spawn(t, d, "t1", "lead", team.RoleLead)
	alice := spawn(t, d, "t1", "alice", "")
	bob := spawn(t, d, "t1", "bob", "")

	send := NewSendMessageTool(d.Coordinator)
	call(t, send, map[string]any{"team_id": "t1", "from": lead.ID, "to": alice.ID, "content": "take the cart"}, nil)
	call(t, send, map[string]any{"team_id": "t1", "from": lead.ID, "to": "*", "content": "standup"}, nil)

	var forBob []team.Message
	call(t, NewReadMessagesTool(d.Coordinator), map[string]any{"team_id": "t1", "to": bob.ID}, &forBob)
	require.Len(t, forBob, 1)
	assert.True(t, forBob[0].IsBroadcast())

	var forAlice []team.Message
	call(t, NewReadMessagesTool(d.Coordinator), map[string]any{"team_id": "t1", "to": alice.ID}, &forAlice)
	require.Len(t, forAlice, 2)
	assert.Equal(t, "take the cart", forAlice[0].Content)

	var later []team.Message
	call(t, NewReadMessagesTool(d.Coordinator), map[string]any{
		"team_id": "t1", "since": time.Now().Add(time.Hour).Format(time.RFC3339),
	}, &later)
	assert.Empty(t, later)
}

func TestReadMessages_BadSince(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	spawn(t, d, "t1", "alice", "")

	msg := callError(t, NewReadMessagesTool(d.Coordinator), map[string]any{"team_id": "t1", "since": "yesterday"})
	assert.Contains(t, msg, "RFC 3339")
}

func TestRequestShutdown(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	lead := spawn(t, d, "t1", "lead", team.RoleLead)
	alice := spawn(t, d, "t1", "alice", "")

	var msg team.Message
	call(t, NewRequestShutdownTool(d.Coordinator), map[string]any{
		"team_id": "t1", "from": lead.ID, "teammate_id": alice.ID, "reason": "done",
	}, &msg)
	assert.Equal(t, team.MessageShutdownRequest, msg.Type)
	assert.Equal(t, alice.ID, msg.To)
}

// ─── Tool hooks ──────────────────────────────────────────────────────────────

func TestToolBefore_Allows(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	alice := spawn(t, d, "t1", "alice", "")

	var v verdict
	call(t, NewToolBeforeTool(d.Guard), map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "tool": "Read",
		"input": map[string]any{"file_path": "src/cart.ts"},
	}, &v)
	assert.True(t, v.Allowed)
	assert.Empty(t, v.Kind)
}

func TestToolBefore_StrictOwnershipBlocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ownership.Mode = "strict"
	d := newTestDeps(t, cfg)
	alice := spawn(t, d, "t1", "alice", "")
	bob := spawn(t, d, "t1", "bob", "")

	call(t, NewToolAfterTool(d.Guard, d.Collector), map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "teammate_name": "alice",
		"tool": "Edit", "input": `{"file_path": "src/cart.ts"}`,
	}, nil)

	var v verdict
	call(t, NewToolBeforeTool(d.Guard), map[string]any{
		"team_id": "t1", "teammate_id": bob.ID, "teammate_name": "bob",
		"tool": "Edit", "input": map[string]any{"file_path": "src/cart.ts"},
	}, &v)
	assert.False(t, v.Allowed)
	assert.Equal(t, "conflict", v.Kind)
	require.NotNil(t, v.Conflict)
	assert.Equal(t, alice.ID, v.Conflict.CurrentOwnerID)
	assert.Contains(t, v.Reason, "alice")
}

func TestBlockTool(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	alice := spawn(t, d, "t1", "alice", "")

	var loops []event.SignificantEvent
	d.Bus.Subscribe(event.HeartbeatSignificant, func(e event.Event) {
		if se, ok := e.(event.SignificantEvent); ok && se.Kind == heartbeat.EventErrorLoopDetected {
			loops = append(loops, se)
		}
	})

	var res blockResult
	call(t, NewBlockToolTool(d.Guard), map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "tool": "Bash", "reason": "stop re-running the flaky suite",
	}, &res)
	assert.True(t, res.Blocked)
	require.Len(t, loops, 1)
	assert.Equal(t, alice.ID, loops[0].TeammateID)

	var v verdict
	call(t, NewToolBeforeTool(d.Guard), map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "tool": "Bash",
		"input": map[string]any{"command": "npm test"},
	}, &v)
	assert.False(t, v.Allowed)
	assert.Equal(t, "hard-block", v.Kind)
	assert.Equal(t, "stop re-running the flaky suite", v.Reason)

	msg := callError(t, NewBlockToolTool(d.Guard), map[string]any{"team_id": "t1", "teammate_id": alice.ID})
	assert.Contains(t, msg, "tool")
}

func TestToolAfter_FileWriteInvalidatesSpeculativeDiff(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	alice := spawn(t, d, "t1", "alice", "")
	key := diffKey("t1", alice.ID)
	d.Collector.StoreSpeculative(key, sampleDiff)

	call(t, NewToolAfterTool(d.Guard, d.Collector), map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "tool": "Edit",
		"input": map[string]any{"file_path": "src/cart.ts"},
	}, nil)

	prep := d.Collector.Prepare(context.Background(), key, t.TempDir())
	assert.False(t, prep.FromSpeculative)
}

func TestReportProgress(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	alice := spawn(t, d, "t1", "alice", "")

	var st struct {
		ProgressHint     string  `json:"progressHint"`
		ProgressEstimate float64 `json:"progressEstimate"`
		ContextUsage     float64 `json:"contextUsage"`
	}
	call(t, NewReportProgressTool(d.Heartbeat), map[string]any{
		"team_id": "t1", "teammate_id": alice.ID,
		"hint": "writing tests", "estimate": 0.5, "context_usage": 0.3,
	}, &st)
	assert.Equal(t, "writing tests", st.ProgressHint)
	assert.InDelta(t, 0.5, st.ProgressEstimate, 1e-9)
	assert.InDelta(t, 0.3, st.ContextUsage, 1e-9)

	msg := callError(t, NewReportProgressTool(d.Heartbeat), map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "estimate": 1.5,
	})
	assert.Contains(t, msg, "between 0 and 1")

	callError(t, NewReportProgressTool(d.Heartbeat), map[string]any{"team_id": "t1", "teammate_id": "ghost"})
}

// ─── Cost and planning ───────────────────────────────────────────────────────

func TestUsageAndCostSummary(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	alice := spawn(t, d, "t1", "alice", "")

	record := NewRecordUsageTool(d.Coordinator)
	call(t, record, map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "input_tokens": float64(1000), "output_tokens": float64(200), "cost_usd": 0.25,
	}, nil)
	call(t, record, map[string]any{
		"team_id": "t1", "teammate_id": alice.ID, "input_tokens": float64(500), "cost_usd": 0.05,
	}, nil)

	var sum team.CostSummary
	call(t, NewCostSummaryTool(d.Coordinator), map[string]any{"team_id": "t1"}, &sum)
	assert.Equal(t, int64(1500), sum.Total.InputTokens)
	assert.Equal(t, int64(200), sum.Total.OutputTokens)
	assert.InDelta(t, 0.30, sum.Total.CostUSD, 1e-9)
	assert.Equal(t, int64(1500), sum.ByTeammate[alice.ID].InputTokens)

	msg := callError(t, record, map[string]any{"team_id": "t1", "teammate_id": alice.ID, "cost_usd": -1.0})
	assert.Contains(t, msg, "negative")
}

func TestPlanStatus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Spec.Path = writeSpec(t)
	cfg.Spec.Watch = false
	d := newTestDeps(t, cfg)
	spawn(t, d, "t1", "lead", team.RoleLead)
	alice := spawn(t, d, "t1", "alice", "")

	var ps planStatus
	call(t, NewPlanStatusTool(d.Coordinator), map[string]any{"team_id": "t1"}, &ps)
	assert.False(t, ps.CanClose)
	assert.NotEmpty(t, ps.Blockers)
	assert.Equal(t, 2, ps.Coverage.Total)
	require.NotNil(t, ps.DRICoverage)
	assert.False(t, ps.DRICoverage.Complete)

	var task team.Task
	call(t, NewCreateTaskTool(d.Coordinator), map[string]any{
		"team_id": "t1", "title": "payments", "assignee_id": alice.ID,
		"requirement_ids": []any{"REQ-1", "REQ-2"},
	}, &task)
	call(t, NewPlanStatusTool(d.Coordinator), map[string]any{"team_id": "t1"}, &ps)
	assert.Equal(t, 2, ps.Coverage.Covered)
	assert.Nil(t, ps.Synthesis)
}

func TestPlanStatus_NoSpec(t *testing.T) {
	d := newTestDeps(t, testConfig(t))
	spawn(t, d, "t1", "alice", "")

	var ps planStatus
	call(t, NewPlanStatusTool(d.Coordinator), map[string]any{"team_id": "t1", "synthesize": true}, &ps)
	assert.False(t, ps.CanClose)
	assert.Contains(t, ps.Blockers, "no spec attached to the team")
	assert.Nil(t, ps.DRICoverage)
	assert.Nil(t, ps.Synthesis)
}
