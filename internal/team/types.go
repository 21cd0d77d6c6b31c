package team

import (
	"time"

	"github.com/Iron-Ham/crew/internal/provider"
	"github.com/Iron-Ham/crew/internal/spec"
)

// TeamStatus is the lifecycle state of a team.
type TeamStatus string

const (
	TeamActive     TeamStatus = "active"
	TeamCleaningUp TeamStatus = "cleaning-up"
	TeamCompleted  TeamStatus = "completed"
)

// TeammateStatus is the lifecycle state of a teammate.
type TeammateStatus string

const (
	TeammateSpawning          TeammateStatus = "spawning"
	TeammateActive            TeammateStatus = "active"
	TeammateIdle              TeammateStatus = "idle"
	TeammateShutdownRequested TeammateStatus = "shutdown-requested"
	TeammateShutdown          TeammateStatus = "shutdown"
)

var teammateTransitions = map[TeammateStatus][]TeammateStatus{
	TeammateSpawning:          {TeammateActive, TeammateIdle, TeammateShutdownRequested, TeammateShutdown},
	TeammateActive:            {TeammateIdle, TeammateShutdownRequested, TeammateShutdown},
	TeammateIdle:              {TeammateActive, TeammateShutdownRequested, TeammateShutdown},
	TeammateShutdownRequested: {TeammateShutdown},
}

// IsValid reports whether s is a known status.
func (s TeammateStatus) IsValid() bool {
	switch s {
	case TeammateSpawning, TeammateActive, TeammateIdle, TeammateShutdownRequested, TeammateShutdown:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a teammate may move from s to next.
func (s TeammateStatus) CanTransitionTo(next TeammateStatus) bool {
	for _, allowed := range teammateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress, TaskBlocked, TaskCompleted, TaskFailed},
	TaskInProgress: {TaskBlocked, TaskCompleted, TaskFailed},
	TaskBlocked:    {TaskInProgress, TaskCompleted, TaskFailed},
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskBlocked, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further status change is allowed.
// Reassignment of a failed task is the only way back to pending.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransitionTo reports whether a task may move from s to next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MessageType categorizes team messages.
type MessageType string

const (
	MessageDirect          MessageType = "message"
	MessageBroadcast       MessageType = "broadcast"
	MessageShutdownRequest MessageType = "shutdown_request"
)

// BroadcastRecipient is the To value of broadcast messages.
const BroadcastRecipient = "*"

// RoleLead marks the team lead's own membership.
const RoleLead = "lead"

// Usage is cumulative token usage and cost.
type Usage struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		CostUSD:      u.CostUSD + o.CostUSD,
	}
}

// Team is a snapshot of a team and its members.
type Team struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	LeadSessionID string     `json:"leadSessionId,omitempty"`
	Status        TeamStatus `json:"status"`
	Teammates     []Teammate `json:"teammates"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Teammate is a snapshot of one worker agent.
type Teammate struct {
	ID        string         `json:"id"`
	TeamID    string         `json:"teamId"`
	Name      string         `json:"name"`
	Role      string         `json:"role"`
	Status    TeammateStatus `json:"status"`
	Model     string         `json:"model,omitempty"`
	Provider  provider.Name  `json:"provider,omitempty"`
	Usage     Usage          `json:"usage"`
	SpawnedAt time.Time      `json:"spawnedAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// IsLead reports whether the teammate is the lead's own membership.
func (t Teammate) IsLead() bool { return t.Role == RoleLead }

// ReviewSummary is the outcome of the latest quality gate run on a task.
type ReviewSummary struct {
	RunID      string    `json:"runId"`
	Score      float64   `json:"score"`
	Passed     bool      `json:"passed"`
	Cycle      int       `json:"cycle"`
	MaxCycles  int       `json:"maxCycles"`
	Feedback   []string  `json:"feedback,omitempty"`
	Escalation string    `json:"escalation,omitempty"`
	ReviewedAt time.Time `json:"reviewedAt"`
}

// Task is a snapshot of a unit of work.
type Task struct {
	ID             string         `json:"id"`
	TeamID         string         `json:"teamId"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Type           string         `json:"type,omitempty"`
	Status         TaskStatus     `json:"status"`
	AssigneeID     string         `json:"assigneeId,omitempty"`
	RequirementIDs []string       `json:"requirementIds,omitempty"`
	DRIOwner       string         `json:"driOwner,omitempty"`
	TDDPhase       string         `json:"tddPhase,omitempty"`
	ReviewCycles   int            `json:"reviewCycles,omitempty"`
	LastReview     *ReviewSummary `json:"lastReview,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// Message is an immutable team message.
type Message struct {
	ID        string      `json:"id"`
	TeamID    string      `json:"teamId"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// IsBroadcast reports whether the message is addressed to the whole team.
func (m Message) IsBroadcast() bool { return m.To == BroadcastRecipient }

// ActivityEntry is one line of the team activity log.
type ActivityEntry struct {
	ID         string    `json:"id"`
	TeamID     string    `json:"teamId"`
	Type       string    `json:"type"`
	TeammateID string    `json:"teammateId,omitempty"`
	TaskID     string    `json:"taskId,omitempty"`
	Summary    string    `json:"summary"`
	Timestamp  time.Time `json:"timestamp"`
}

// CostSummary is derived on demand from teammate usage.
type CostSummary struct {
	TeamID     string           `json:"teamId"`
	Total      Usage            `json:"total"`
	ByTeammate map[string]Usage `json:"byTeammate"`
	ByModel    map[string]Usage `json:"byModel"`
}

// DRICoverage reports which sections and requirements lack an owner.
type DRICoverage struct {
	Complete            bool              `json:"complete"`
	MissingSections     []spec.Section    `json:"missingSections,omitempty"`
	UnownedRequirements []string          `json:"unownedRequirements,omitempty"`
	Owners              map[string]string `json:"owners"`
}

// RequirementCoverage reports how many requirements are referenced by tasks.
type RequirementCoverage struct {
	Total     int      `json:"total"`
	Covered   int      `json:"covered"`
	Percent   float64  `json:"percent"`
	Uncovered []string `json:"uncovered,omitempty"`
}

// SynthesisRequest asks the lead to combine the team's results.
type SynthesisRequest struct {
	TeamID         string              `json:"teamId"`
	CompletedTasks []Task              `json:"completedTasks"`
	Outstanding    []string            `json:"outstanding,omitempty"`
	Coverage       RequirementCoverage `json:"coverage"`
	DRICoverage    *DRICoverage        `json:"driCoverage,omitempty"`
	PlanBlockers   []string            `json:"planBlockers,omitempty"`
	RequestedAt    time.Time           `json:"requestedAt"`
}
