// Package event defines the events exchanged between crew components and
// the synchronous [Bus] that delivers them.
//
// Coordinator events use colon-separated names ("team:created",
// "task:updated", ...) so the session layer can relay them to its UI
// unchanged. Core components publish their own signals on the same bus:
// heartbeat batches and summaries, file ownership conflicts, throttle
// rejections and quality gate results.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns the event name, e.g. "task:updated".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// Coordinator event names relayed to the session layer.
const (
	TeamCreated        = "team:created"
	TeamUpdated        = "team:updated"
	TeamCleanup        = "team:cleanup"
	TeammateSpawned    = "teammate:spawned"
	TeammateUpdated    = "teammate:updated"
	TeammateShutdown   = "teammate:shutdown"
	TaskCreated        = "task:created"
	TaskUpdated        = "task:updated"
	MessageSent        = "message:sent"
	Activity           = "activity"
	CostUpdated        = "cost:updated"
	SynthesisRequested = "synthesis:requested"
)

// Core component event names.
const (
	HeartbeatUIBatch     = "heartbeat:ui_batch"
	HeartbeatLLMSummary  = "heartbeat:llm_summary"
	HeartbeatSignificant = "heartbeat:significant"
	FileConflict         = "file:conflict"
	ThrottleRejected     = "throttle:rejected"
	QualityResult        = "quality:result"
)

// -----------------------------------------------------------------------------
// Coordinator Events
// -----------------------------------------------------------------------------

// CoordinatorEvent carries a coordinator state change. Payload holds a
// snapshot of the affected entity (team, teammate, task, message, activity,
// cost summary or synthesis request).
type CoordinatorEvent struct {
	baseEvent
	TeamID  string
	Payload any
}

// NewCoordinatorEvent creates a CoordinatorEvent with the given name.
func NewCoordinatorEvent(eventType, teamID string, payload any) CoordinatorEvent {
	return CoordinatorEvent{
		baseEvent: newBaseEvent(eventType),
		TeamID:    teamID,
		Payload:   payload,
	}
}

// -----------------------------------------------------------------------------
// Heartbeat Events
// -----------------------------------------------------------------------------

// ActivitySnapshot is the inferred state of one teammate at flush time.
type ActivitySnapshot struct {
	TeammateID       string        `json:"teammateId"`
	Name             string        `json:"name"`
	Model            string        `json:"model"`
	Activity         string        `json:"activity"`
	LastTool         string        `json:"lastTool,omitempty"`
	RecentTools      []string      `json:"recentTools,omitempty"`
	CallsSinceFlush  int           `json:"callsSinceFlush"`
	Silence          time.Duration `json:"silence"`
	AppearsStalled   bool          `json:"appearsStalled"`
	ProgressHint     string        `json:"progressHint,omitempty"`
	ProgressEstimate float64       `json:"progressEstimate,omitempty"`
	ContextUsage     float64       `json:"contextUsage,omitempty"`
}

// HeartbeatBatchEvent is the frequent, zero-cost UI batch for a team.
type HeartbeatBatchEvent struct {
	baseEvent
	TeamID    string
	Reason    string // "interval", "threshold" or a significant event kind
	Teammates []ActivitySnapshot
}

// NewHeartbeatBatchEvent creates a HeartbeatBatchEvent.
func NewHeartbeatBatchEvent(teamID, reason string, teammates []ActivitySnapshot) HeartbeatBatchEvent {
	return HeartbeatBatchEvent{
		baseEvent: newBaseEvent(HeartbeatUIBatch),
		TeamID:    teamID,
		Reason:    reason,
		Teammates: teammates,
	}
}

// HeartbeatSummaryEvent is the infrequent summary intended for the lead model.
type HeartbeatSummaryEvent struct {
	baseEvent
	TeamID  string
	Summary string
}

// NewHeartbeatSummaryEvent creates a HeartbeatSummaryEvent.
func NewHeartbeatSummaryEvent(teamID, summary string) HeartbeatSummaryEvent {
	return HeartbeatSummaryEvent{
		baseEvent: newBaseEvent(HeartbeatLLMSummary),
		TeamID:    teamID,
		Summary:   summary,
	}
}

// SignificantEvent is emitted for out-of-band heartbeat signals such as
// agent_completed or context_threshold_crossed.
type SignificantEvent struct {
	baseEvent
	TeamID     string
	TeammateID string
	Kind       string
	Detail     string
}

// NewSignificantEvent creates a SignificantEvent.
func NewSignificantEvent(teamID, teammateID, kind, detail string) SignificantEvent {
	return SignificantEvent{
		baseEvent:  newBaseEvent(HeartbeatSignificant),
		TeamID:     teamID,
		TeammateID: teammateID,
		Kind:       kind,
		Detail:     detail,
	}
}

// -----------------------------------------------------------------------------
// Guard Events
// -----------------------------------------------------------------------------

// FileConflictEvent is emitted when a teammate modifies a file owned by
// another teammate of the same team.
type FileConflictEvent struct {
	baseEvent
	TeamID          string
	Path            string
	OwnerID         string
	OwnerName       string
	AttemptedByID   string
	AttemptedByName string
	Blocked         bool
}

// NewFileConflictEvent creates a FileConflictEvent.
func NewFileConflictEvent(teamID, path, ownerID, ownerName, attemptedByID, attemptedByName string, blocked bool) FileConflictEvent {
	return FileConflictEvent{
		baseEvent:       newBaseEvent(FileConflict),
		TeamID:          teamID,
		Path:            path,
		OwnerID:         ownerID,
		OwnerName:       ownerName,
		AttemptedByID:   attemptedByID,
		AttemptedByName: attemptedByName,
		Blocked:         blocked,
	}
}

// ThrottleRejectedEvent is emitted when a tool call is refused admission.
type ThrottleRejectedEvent struct {
	baseEvent
	TeamID     string
	TeammateID string
	Tool       string
	Kind       string
	Reason     string
}

// NewThrottleRejectedEvent creates a ThrottleRejectedEvent.
func NewThrottleRejectedEvent(teamID, teammateID, tool, kind, reason string) ThrottleRejectedEvent {
	return ThrottleRejectedEvent{
		baseEvent:  newBaseEvent(ThrottleRejected),
		TeamID:     teamID,
		TeammateID: teammateID,
		Tool:       tool,
		Kind:       kind,
		Reason:     reason,
	}
}

// QualityResultEvent is emitted after a quality gate run for a task.
type QualityResultEvent struct {
	baseEvent
	TeamID     string
	TaskID     string
	TeammateID string
	Passed     bool
	Score      float64
	Cycle      int
	MaxCycles  int
}

// NewQualityResultEvent creates a QualityResultEvent.
func NewQualityResultEvent(teamID, taskID, teammateID string, passed bool, score float64, cycle, maxCycles int) QualityResultEvent {
	return QualityResultEvent{
		baseEvent:  newBaseEvent(QualityResult),
		TeamID:     teamID,
		TaskID:     taskID,
		TeammateID: teammateID,
		Passed:     passed,
		Score:      score,
		Cycle:      cycle,
		MaxCycles:  maxCycles,
	}
}
