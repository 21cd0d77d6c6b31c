package team

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/qualitygate"
)

// Reviewer runs the quality gate. *qualitygate.Pipeline satisfies it.
type Reviewer interface {
	Run(ctx context.Context, in qualitygate.Input) qualitygate.Result
}

// reviewerName is the sender of quality gate feedback messages.
const reviewerName = "quality-gate"

// TaskInput describes a task to create.
type TaskInput struct {
	Title          string
	Description    string
	Type           string
	AssigneeID     string
	RequirementIDs []string
	DRIOwner       string
	TDDPhase       string
}

// CreateTask adds a pending task to an active team.
func (c *Coordinator) CreateTask(teamID string, in TaskInput) (Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Task{}, errors.NewValidationError("title", "task title is required")
	}
	phase, ok := qualitygate.NormalizeTDDPhase(in.TDDPhase)
	if !ok {
		return Task{}, errors.NewValidationError("tdd_phase",
			fmt.Sprintf("unknown TDD phase %q: use test-writing (red), implementation (green) or refactor", in.TDDPhase))
	}

	var n notices
	c.mu.Lock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return Task{}, err
	}
	if in.AssigneeID != "" {
		if _, err := c.teammateLocked(ts, in.AssigneeID); err != nil {
			c.mu.Unlock()
			return Task{}, err
		}
	}

	now := c.now()
	t := &Task{
		ID:             c.newID(),
		TeamID:         teamID,
		Title:          in.Title,
		Description:    in.Description,
		Type:           in.Type,
		Status:         TaskPending,
		AssigneeID:     in.AssigneeID,
		RequirementIDs: slices.Clone(in.RequirementIDs),
		DRIOwner:       in.DRIOwner,
		TDDPhase:       phase,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ts.tasks[t.ID] = t
	ts.taskOrder = append(ts.taskOrder, t.ID)
	ts.touch(now)

	snap := copyTask(t)
	n.publish(event.TaskCreated, teamID, snap)
	c.record(&n, ts, event.TaskCreated, t.AssigneeID, t.ID, fmt.Sprintf("task %q created", t.Title),
		map[string]any{"title": t.Title, "requirementIds": snap.RequirementIDs})
	c.mu.Unlock()

	c.deliver(n)
	return snap, nil
}

// Task returns a snapshot of one task.
func (c *Coordinator) Task(teamID, taskID string) (Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return Task{}, err
	}
	t, ok := ts.tasks[taskID]
	if !ok {
		return Task{}, errors.NewNotFoundError("task", taskID)
	}
	return copyTask(t), nil
}

// Tasks returns the team's tasks in creation order.
func (c *Coordinator) Tasks(teamID string) ([]Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(ts.taskOrder))
	for _, t := range ts.orderedTasks() {
		out = append(out, copyTask(t))
	}
	return out, nil
}

// AssignTask assigns a task. Giving an unfinished task to someone else
// resets it to pending; a failed task may be reassigned and starts over.
// Completed tasks cannot be reassigned.
func (c *Coordinator) AssignTask(teamID, taskID, teammateID string) (Task, error) {
	var n notices
	c.mu.Lock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return Task{}, err
	}
	t, ok := ts.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return Task{}, errors.NewNotFoundError("task", taskID)
	}
	tm, err := c.teammateLocked(ts, teammateID)
	if err != nil {
		c.mu.Unlock()
		return Task{}, err
	}
	if tm.Status == TeammateShutdown {
		c.mu.Unlock()
		return Task{}, errors.NewValidationError("assignee", fmt.Sprintf("teammate %q is shut down", tm.Name))
	}
	if t.Status == TaskCompleted {
		c.mu.Unlock()
		return Task{}, errors.NewTransitionError("task", taskID, string(t.Status), "reassigned")
	}
	if t.AssigneeID == teammateID && t.Status != TaskFailed {
		snap := copyTask(t)
		c.mu.Unlock()
		return snap, nil
	}

	prev := t.AssigneeID
	now := c.now()
	t.AssigneeID = teammateID
	if t.Status != TaskPending {
		t.Status = TaskPending
		t.ReviewCycles = 0
	}
	t.UpdatedAt = now
	ts.touch(now)

	snap := copyTask(t)
	n.publish(event.TaskUpdated, teamID, snap)
	c.record(&n, ts, event.TaskUpdated, teammateID, taskID, fmt.Sprintf("task %q assigned to %s", t.Title, tm.Name),
		map[string]any{"previousAssignee": prev, "assignee": teammateID})
	c.mu.Unlock()

	c.deliver(n)
	return snap, nil
}

// UpdateTaskStatus moves a task to status. Setting the current status is a
// no-op. Completing the last assigned task triggers AutoSynthesize.
func (c *Coordinator) UpdateTaskStatus(teamID, taskID string, status TaskStatus) (Task, error) {
	if !status.IsValid() {
		return Task{}, errors.NewValidationError("status", fmt.Sprintf("unknown task status %q", status))
	}

	var n notices
	c.mu.Lock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return Task{}, err
	}
	t, ok := ts.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return Task{}, errors.NewNotFoundError("task", taskID)
	}
	if err := c.setTaskStatusLocked(&n, ts, t, status, ""); err != nil {
		c.mu.Unlock()
		return Task{}, err
	}
	snap := copyTask(t)
	c.mu.Unlock()

	c.deliver(n)
	if status == TaskCompleted {
		c.maybeSynthesize(teamID)
	}
	return snap, nil
}

func (c *Coordinator) setTaskStatusLocked(n *notices, ts *teamState, t *Task, status TaskStatus, reason string) error {
	if t.Status == status {
		return nil
	}
	if !t.Status.CanTransitionTo(status) {
		return errors.NewTransitionError("task", t.ID, string(t.Status), string(status))
	}
	prev := t.Status
	now := c.now()
	t.Status = status
	t.UpdatedAt = now
	if status == TaskCompleted && t.CompletedAt == nil {
		completed := now
		t.CompletedAt = &completed
	}
	ts.touch(now)

	summary := fmt.Sprintf("task %q: %s -> %s", t.Title, prev, status)
	if reason != "" {
		summary += " (" + reason + ")"
	}
	n.publish(event.TaskUpdated, ts.team.ID, copyTask(t))
	c.record(n, ts, event.TaskUpdated, t.AssigneeID, t.ID, summary, map[string]any{"from": string(prev), "to": string(status)})
	return nil
}

// CompletionInput is the work a teammate submits for review.
type CompletionInput struct {
	Diff    string
	WorkDir string
}

// CompletionResult is the outcome of CompleteTask.
type CompletionResult struct {
	Task Task
	// Gate is nil when no reviewer is configured.
	Gate *qualitygate.Result
}

// CompleteTask submits a task for completion. With a reviewer configured
// the quality gate decides: a pass completes the task, a failure with
// cycles left keeps it in progress and messages the feedback to the
// assignee, and a failure on the last cycle fails the task.
func (c *Coordinator) CompleteTask(ctx context.Context, teamID, taskID string, in CompletionInput) (CompletionResult, error) {
	if c.reviewer == nil {
		t, err := c.UpdateTaskStatus(teamID, taskID, TaskCompleted)
		return CompletionResult{Task: t}, err
	}

	c.mu.RLock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.RUnlock()
		return CompletionResult{}, err
	}
	t, ok := ts.tasks[taskID]
	if !ok {
		c.mu.RUnlock()
		return CompletionResult{}, errors.NewNotFoundError("task", taskID)
	}
	if t.Status.IsTerminal() {
		from := t.Status
		c.mu.RUnlock()
		return CompletionResult{}, errors.NewTransitionError("task", taskID, string(from), string(TaskCompleted))
	}
	gateIn := qualitygate.Input{
		TaskID:          t.ID,
		TeammateID:      t.AssigneeID,
		TaskType:        t.Type,
		TaskDescription: strings.TrimSpace(t.Title + "\n\n" + t.Description),
		TDDPhase:        t.TDDPhase,
		Diff:            in.Diff,
		Spec:            c.specs[teamID],
		Cycle:           t.ReviewCycles + 1,
		WorkDir:         in.WorkDir,
		Config:          c.gate,
	}
	c.mu.RUnlock()

	res := c.reviewer.Run(ctx, gateIn)

	var n notices
	c.mu.Lock()
	ts, err = c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return CompletionResult{Gate: &res}, err
	}
	t = ts.tasks[taskID]
	if t.Status.IsTerminal() {
		// Completed or failed concurrently; keep the first outcome.
		snap := copyTask(t)
		c.mu.Unlock()
		return CompletionResult{Task: snap, Gate: &res}, nil
	}

	feedback := res.Feedback()
	t.ReviewCycles = res.Cycle
	t.LastReview = &ReviewSummary{
		RunID:      res.RunID,
		Score:      res.Score,
		Passed:     res.Passed,
		Cycle:      res.Cycle,
		MaxCycles:  res.MaxCycles,
		Feedback:   feedback,
		Escalation: res.Escalation,
		ReviewedAt: c.now(),
	}
	n.add(event.NewQualityResultEvent(teamID, taskID, t.AssigneeID, res.Passed, res.Score, res.Cycle, res.MaxCycles))
	c.record(&n, ts, event.QualityResult, t.AssigneeID, taskID,
		fmt.Sprintf("quality gate %s: score %.1f (cycle %d/%d)", verdictWord(res.Passed), res.Score, res.Cycle, res.MaxCycles),
		map[string]any{"cycle": res.Cycle, "score": res.Score, "passed": res.Passed, "runId": res.RunID, "stoppedAt": string(res.StoppedAt)})

	switch {
	case res.Passed:
		err = c.setTaskStatusLocked(&n, ts, t, TaskCompleted, "quality gate passed")
	case res.Exhausted():
		err = c.setTaskStatusLocked(&n, ts, t, TaskFailed, "review cycles exhausted")
	default:
		if t.Status == TaskPending || t.Status == TaskBlocked {
			err = c.setTaskStatusLocked(&n, ts, t, TaskInProgress, "quality gate feedback")
		}
		if t.AssigneeID != "" {
			c.appendMessageLocked(&n, ts, reviewerName, t.AssigneeID, MessageDirect, formatFeedback(t.Title, res, feedback))
		}
	}
	snap := copyTask(t)
	c.mu.Unlock()

	c.deliver(n)
	if err != nil {
		return CompletionResult{Task: snap, Gate: &res}, err
	}
	if snap.Status == TaskCompleted {
		c.maybeSynthesize(teamID)
	}
	return CompletionResult{Task: snap, Gate: &res}, nil
}

func verdictWord(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func formatFeedback(title string, res qualitygate.Result, feedback []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Quality gate failed for %q: score %.1f, cycle %d of %d.\n", title, res.Score, res.Cycle, res.MaxCycles)
	for _, line := range feedback {
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("Address the issues above and submit again.")
	return sb.String()
}
