// Package heartbeat infers teammate liveness from observed tool activity.
//
// The Aggregator never asks a teammate to report its own status. It watches
// the tool calls the session layer reports and derives, per teammate, what
// it is doing and whether it looks stalled. Two tiers of output are
// published on the event bus for every running team:
//
//   - UI batches (default every 30s, or early once enough calls pile up)
//     that cost no tokens and feed the session UI.
//   - LLM summaries (default every 120s) short enough to hand to the lead.
//
// Stall thresholds depend on the teammate's model; see [ResolveProfile].
package heartbeat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
)

// Significant event kinds that force an out-of-band UI flush.
const (
	EventAgentCompleted          = "agent_completed"
	EventErrorLoopDetected       = "error_loop_detected"
	EventContextThresholdCrossed = "context_threshold_crossed"
)

// Flush reasons reported on UI batches.
const (
	ReasonInterval  = "interval"
	ReasonThreshold = "threshold"
	ReasonManual    = "manual"
)

const recentToolLimit = 5

// Config holds heartbeat parameters.
type Config struct {
	UIFlushInterval           time.Duration
	LLMSummaryInterval        time.Duration
	SignificantEventThreshold int
	ContextThreshold          float64
	ProfileOverrides          map[string]Profile
}

// DefaultConfig returns the default heartbeat parameters.
func DefaultConfig() Config {
	return Config{
		UIFlushInterval:           30 * time.Second,
		LLMSummaryInterval:        120 * time.Second,
		SignificantEventThreshold: 5,
		ContextThreshold:          0.7,
	}
}

// Status is the inferred state of one teammate.
type Status = event.ActivitySnapshot

type tracker struct {
	id              string
	name            string
	model           string
	profile         Profile
	lastActivity    time.Time
	callsSinceFlush int
	lastTool        string
	lastInput       string
	recent          []string
	progressHint    string
	progressEst     float64
	contextUsage    float64
	contextAbove    bool
	softProbeSent   bool
}

type teamState struct {
	trackers        map[string]*tracker
	order           []string
	callsSinceFlush int
	cancel          context.CancelFunc
	done            chan struct{}
}

// Aggregator tracks teammate activity for any number of teams.
// It is safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	cfg    Config
	bus    *event.Bus
	teams  map[string]*teamState
	now    func() time.Time
	logger *logging.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Aggregator publishing to bus. Zero config fields take
// their defaults; a negative interval disables that timer.
func New(bus *event.Bus, cfg Config, opts ...Option) *Aggregator {
	d := DefaultConfig()
	if cfg.UIFlushInterval == 0 {
		cfg.UIFlushInterval = d.UIFlushInterval
	}
	if cfg.LLMSummaryInterval == 0 {
		cfg.LLMSummaryInterval = d.LLMSummaryInterval
	}
	if cfg.SignificantEventThreshold <= 0 {
		cfg.SignificantEventThreshold = d.SignificantEventThreshold
	}
	if cfg.ContextThreshold <= 0 || cfg.ContextThreshold > 1 {
		cfg.ContextThreshold = d.ContextThreshold
	}
	a := &Aggregator{
		cfg:    cfg,
		bus:    bus,
		teams:  make(map[string]*teamState),
		now:    time.Now,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) teamLocked(teamID string) *teamState {
	ts, ok := a.teams[teamID]
	if !ok {
		ts = &teamState{trackers: make(map[string]*tracker)}
		a.teams[teamID] = ts
	}
	return ts
}

func (a *Aggregator) trackerLocked(teamID, teammateID string) *tracker {
	ts, ok := a.teams[teamID]
	if !ok {
		return nil
	}
	return ts.trackers[teammateID]
}

// RegisterTeammate starts tracking a teammate. Registering an existing
// teammate refreshes its name and model.
func (a *Aggregator) RegisterTeammate(teamID, teammateID, name, model string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.teamLocked(teamID)
	tr, ok := ts.trackers[teammateID]
	if !ok {
		tr = &tracker{id: teammateID, lastActivity: a.now()}
		ts.trackers[teammateID] = tr
		ts.order = append(ts.order, teammateID)
	}
	tr.name = name
	tr.model = model
	tr.profile = ResolveProfile(model, a.cfg.ProfileOverrides)
}

// RemoveTeammate stops tracking a teammate.
func (a *Aggregator) RemoveTeammate(teamID, teammateID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts, ok := a.teams[teamID]
	if !ok {
		return
	}
	delete(ts.trackers, teammateID)
	ts.order = slices.DeleteFunc(ts.order, func(id string) bool { return id == teammateID })
}

// RecordToolCall records a tool invocation. New activity cancels any
// pending soft probe. Reaching the team-wide call threshold flushes a UI
// batch immediately.
func (a *Aggregator) RecordToolCall(teamID, teammateID, tool, inputSummary string) {
	a.mu.Lock()
	tr := a.trackerLocked(teamID, teammateID)
	if tr == nil {
		a.mu.Unlock()
		return
	}
	tr.lastActivity = a.now()
	tr.callsSinceFlush++
	tr.lastTool = tool
	tr.lastInput = inputSummary
	tr.softProbeSent = false
	if len(tr.recent) == 0 || tr.recent[0] != tool {
		tr.recent = slices.DeleteFunc(tr.recent, func(t string) bool { return t == tool })
		tr.recent = append([]string{tool}, tr.recent...)
		if len(tr.recent) > recentToolLimit {
			tr.recent = tr.recent[:recentToolLimit]
		}
	}

	ts := a.teams[teamID]
	ts.callsSinceFlush++
	flush := ts.callsSinceFlush >= a.cfg.SignificantEventThreshold
	a.mu.Unlock()

	if flush {
		a.flush(teamID, ReasonThreshold)
	}
}

// UpdateProgress records a self-reported progress hint and estimate (0..1).
func (a *Aggregator) UpdateProgress(teamID, teammateID, hint string, estimate float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if tr := a.trackerLocked(teamID, teammateID); tr != nil {
		tr.progressHint = hint
		tr.progressEst = estimate
	}
}

// UpdateContextUsage records the fraction of the context window in use.
// Crossing the context threshold upward fires a significant event once;
// dropping back below re-arms it.
func (a *Aggregator) UpdateContextUsage(teamID, teammateID string, fraction float64) {
	a.mu.Lock()
	tr := a.trackerLocked(teamID, teammateID)
	if tr == nil {
		a.mu.Unlock()
		return
	}
	tr.contextUsage = fraction
	above := fraction >= a.cfg.ContextThreshold
	crossed := above && !tr.contextAbove
	tr.contextAbove = above
	a.mu.Unlock()

	if crossed {
		a.RecordSignificantEvent(teamID, teammateID, EventContextThresholdCrossed,
			fmt.Sprintf("context usage at %.0f%%", fraction*100))
	}
}

// RecordSignificantEvent publishes the event and flushes a UI batch
// without waiting for the timer.
func (a *Aggregator) RecordSignificantEvent(teamID, teammateID, kind, detail string) {
	a.mu.Lock()
	_, known := a.teams[teamID]
	a.mu.Unlock()
	if !known {
		return
	}

	a.logger.WithTeam(teamID).WithTeammate(teammateID).Info("significant heartbeat event", "kind", kind, "detail", detail)
	a.bus.Publish(event.NewSignificantEvent(teamID, teammateID, kind, detail))
	a.flush(teamID, kind)
}

func (a *Aggregator) statusLocked(tr *tracker, now time.Time) Status {
	silence := now.Sub(tr.lastActivity)
	stalled := silence > tr.profile.SoftProbe

	var activity string
	switch {
	case stalled:
		activity = fmt.Sprintf("No activity for %s", silence.Round(time.Second))
	case tr.callsSinceFlush == 0 && silence <= tr.profile.ExpectedSilence:
		activity = ActivityThinking
	default:
		activity = ClassifyActivity(tr.recent)
	}

	return Status{
		TeammateID:       tr.id,
		Name:             tr.name,
		Model:            tr.model,
		Activity:         activity,
		LastTool:         tr.lastTool,
		RecentTools:      slices.Clone(tr.recent),
		CallsSinceFlush:  tr.callsSinceFlush,
		Silence:          silence,
		AppearsStalled:   stalled,
		ProgressHint:     tr.progressHint,
		ProgressEstimate: tr.progressEst,
		ContextUsage:     tr.contextUsage,
	}
}

// Status returns the inferred status of one teammate.
func (a *Aggregator) Status(teamID, teammateID string) (Status, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tr := a.trackerLocked(teamID, teammateID)
	if tr == nil {
		return Status{}, false
	}
	return a.statusLocked(tr, a.now()), true
}

// TeamStatus returns the status of every teammate in registration order.
// Unknown teams yield an empty slice.
func (a *Aggregator) TeamStatus(teamID string) []Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.teamStatusLocked(teamID)
}

func (a *Aggregator) teamStatusLocked(teamID string) []Status {
	ts, ok := a.teams[teamID]
	if !ok {
		return []Status{}
	}
	now := a.now()
	out := make([]Status, 0, len(ts.order))
	for _, id := range ts.order {
		out = append(out, a.statusLocked(ts.trackers[id], now))
	}
	return out
}

// NeedsSoftProbe reports whether a liveness probe is due: the teammate has
// been silent past its soft-probe threshold and no probe has been sent
// since its last activity.
func (a *Aggregator) NeedsSoftProbe(teamID, teammateID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	tr := a.trackerLocked(teamID, teammateID)
	if tr == nil || tr.softProbeSent {
		return false
	}
	return a.now().Sub(tr.lastActivity) > tr.profile.SoftProbe
}

// MarkSoftProbeSent closes the probe gate until new activity is recorded.
func (a *Aggregator) MarkSoftProbeSent(teamID, teammateID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if tr := a.trackerLocked(teamID, teammateID); tr != nil {
		tr.softProbeSent = true
	}
}

// FlushUI publishes a UI batch for the team now.
func (a *Aggregator) FlushUI(teamID string) {
	a.flush(teamID, ReasonManual)
}

func (a *Aggregator) flush(teamID, reason string) {
	a.mu.Lock()
	ts, ok := a.teams[teamID]
	if !ok {
		a.mu.Unlock()
		return
	}
	statuses := a.teamStatusLocked(teamID)
	ts.callsSinceFlush = 0
	for _, tr := range ts.trackers {
		tr.callsSinceFlush = 0
	}
	a.mu.Unlock()

	a.bus.Publish(event.NewHeartbeatBatchEvent(teamID, reason, statuses))
}

// BuildLLMSummary renders a compact plain-text summary of the team for the
// lead. It returns an empty string for unknown or empty teams.
func (a *Aggregator) BuildLLMSummary(teamID string) string {
	statuses := a.TeamStatus(teamID)
	if len(statuses) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Team heartbeat (%d teammates):\n", len(statuses))
	for _, s := range statuses {
		fmt.Fprintf(&sb, "- %s: %s", s.Name, s.Activity)
		if s.LastTool != "" {
			fmt.Fprintf(&sb, " (last tool: %s)", s.LastTool)
		}
		if s.ProgressHint != "" {
			fmt.Fprintf(&sb, "; progress: %s", s.ProgressHint)
			if s.ProgressEstimate > 0 {
				fmt.Fprintf(&sb, " ~%.0f%%", s.ProgressEstimate*100)
			}
		}
		if s.ContextUsage > 0 {
			fmt.Fprintf(&sb, "; context %.0f%%", s.ContextUsage*100)
		}
		if s.AppearsStalled {
			sb.WriteString("; APPEARS STALLED")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (a *Aggregator) publishSummary(teamID string) {
	if summary := a.BuildLLMSummary(teamID); summary != "" {
		a.bus.Publish(event.NewHeartbeatSummaryEvent(teamID, summary))
	}
}

// StartTeam starts the UI and LLM-summary timers for a team. The timers stop
// when ctx is cancelled or StopTeam is called. Starting a running team is a
// no-op.
func (a *Aggregator) StartTeam(ctx context.Context, teamID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.teamLocked(teamID)
	if ts.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	ts.cancel = cancel
	ts.done = make(chan struct{})
	go a.timerLoop(loopCtx, teamID, ts.done)
}

func (a *Aggregator) timerLoop(ctx context.Context, teamID string, done chan struct{}) {
	defer close(done)

	var uiC, llmC <-chan time.Time
	if a.cfg.UIFlushInterval > 0 {
		t := time.NewTicker(a.cfg.UIFlushInterval)
		defer t.Stop()
		uiC = t.C
	}
	if a.cfg.LLMSummaryInterval > 0 {
		t := time.NewTicker(a.cfg.LLMSummaryInterval)
		defer t.Stop()
		llmC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-uiC:
			a.flush(teamID, ReasonInterval)
		case <-llmC:
			a.publishSummary(teamID)
		}
	}
}

// StopTeam stops a team's timers. It is safe to call repeatedly or for a
// team that was never started.
func (a *Aggregator) StopTeam(teamID string) {
	a.mu.Lock()
	ts, ok := a.teams[teamID]
	if !ok || ts.cancel == nil {
		a.mu.Unlock()
		return
	}
	cancel, done := ts.cancel, ts.done
	ts.cancel, ts.done = nil, nil
	a.mu.Unlock()

	cancel()
	<-done
}

// RemoveTeam stops a team's timers and drops all of its trackers.
func (a *Aggregator) RemoveTeam(teamID string) {
	a.StopTeam(teamID)

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.teams, teamID)
}

// Dispose stops every timer and clears all trackers. Safe to call more
// than once.
func (a *Aggregator) Dispose() {
	a.mu.Lock()
	ids := make([]string, 0, len(a.teams))
	for id := range a.teams {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.RemoveTeam(id)
	}
}
