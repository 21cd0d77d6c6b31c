package team

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Iron-Ham/crew/internal/audit"
	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/provider"
	"github.com/Iron-Ham/crew/internal/qualitygate"
	"github.com/Iron-Ham/crew/internal/spec"
)

const defaultMaxActivity = 1000

// Config holds required dependencies for creating a Coordinator.
type Config struct {
	Bus *event.Bus // Shared event bus
	// Gate is the quality gate configuration used by CompleteTask.
	Gate qualitygate.Config
	// MaxActivity caps the in-memory activity log per team. The audit log
	// keeps everything. 0 = default.
	MaxActivity int
}

// Coordinator owns team, teammate and task state.
type Coordinator struct {
	mu       sync.RWMutex
	bus      *event.Bus
	gate     qualitygate.Config
	maxLog   int
	audit    audit.Recorder
	reviewer Reviewer
	logger   *logging.Logger
	now      func() time.Time

	teams map[string]*teamState
	order []string // insertion order for deterministic iteration

	// Per-team derived state, discarded on cleanup.
	specs       map[string]*spec.Spec
	dri         map[string][]spec.DRIAssignment
	synthesized map[string]bool
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.Bus == nil {
		return nil, errors.New("team: Bus is required")
	}
	c := &Coordinator{
		bus:         cfg.Bus,
		gate:        cfg.Gate,
		maxLog:      cfg.MaxActivity,
		audit:       audit.Nop{},
		logger:      logging.NopLogger(),
		now:         time.Now,
		teams:       make(map[string]*teamState),
		specs:       make(map[string]*spec.Spec),
		dri:         make(map[string][]spec.DRIAssignment),
		synthesized: make(map[string]bool),
	}
	if c.maxLog <= 0 {
		c.maxLog = defaultMaxActivity
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) newID() string {
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(c.now()), ulid.DefaultEntropy()).String())
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// notice is an event and audit entry collected under the lock and
// delivered after it is released.
type notice struct {
	ev    event.Event
	entry *audit.Entry
}

// notices accumulates the side effects of one operation.
type notices []notice

func (n *notices) publish(eventType, teamID string, payload any) {
	*n = append(*n, notice{ev: event.NewCoordinatorEvent(eventType, teamID, payload)})
}

func (n *notices) add(ev event.Event) {
	*n = append(*n, notice{ev: ev})
}

// record appends an activity entry to the team log and queues the
// activity event and its audit mirror. Caller holds c.mu.
func (c *Coordinator) record(n *notices, ts *teamState, typ, teammateID, taskID, summary string, data map[string]any) {
	entry := ActivityEntry{
		ID:         c.newID(),
		TeamID:     ts.team.ID,
		Type:       typ,
		TeammateID: teammateID,
		TaskID:     taskID,
		Summary:    summary,
		Timestamp:  c.now(),
	}
	ts.activity = append(ts.activity, entry)
	if over := len(ts.activity) - c.maxLog; over > 0 {
		ts.activity = ts.activity[over:]
	}

	if data == nil {
		data = map[string]any{}
	}
	data["summary"] = summary
	ae := &audit.Entry{
		ID:         entry.ID,
		Timestamp:  entry.Timestamp,
		TeamID:     entry.TeamID,
		Type:       typ,
		TaskID:     taskID,
		TeammateID: teammateID,
		Data:       data,
	}
	if cycle, ok := data["cycle"].(int); ok {
		ae.CycleNumber = cycle
	}
	*n = append(*n, notice{ev: event.NewCoordinatorEvent(event.Activity, ts.team.ID, entry), entry: ae})
}

// deliver publishes queued events and writes audit entries. Must be called
// without c.mu held.
func (c *Coordinator) deliver(n notices) {
	for _, item := range n {
		if item.entry != nil {
			if err := c.audit.Record(*item.entry); err != nil {
				c.logger.Warn("audit write failed", "type", item.entry.Type, "error", err)
			}
		}
		c.bus.Publish(item.ev)
	}
}

// -----------------------------------------------------------------------------
// Lookup helpers (caller holds c.mu)
// -----------------------------------------------------------------------------

func (c *Coordinator) teamLocked(teamID string) (*teamState, error) {
	ts, ok := c.teams[teamID]
	if !ok {
		return nil, errors.NewNotFoundError("team", teamID)
	}
	return ts, nil
}

func (c *Coordinator) activeTeamLocked(teamID string) (*teamState, error) {
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return nil, err
	}
	if ts.team.Status != TeamActive {
		return nil, fmt.Errorf("team %q is %s: %w", teamID, ts.team.Status, errors.ErrTeamClosed)
	}
	return ts, nil
}

func (c *Coordinator) teammateLocked(ts *teamState, teammateID string) (*Teammate, error) {
	tm := ts.teammate(teammateID)
	if tm == nil {
		return nil, errors.NewNotFoundError("teammate", teammateID)
	}
	return tm, nil
}

// -----------------------------------------------------------------------------
// Teams
// -----------------------------------------------------------------------------

// CreateTeam creates an active team. An empty id is generated.
func (c *Coordinator) CreateTeam(id, name, leadSessionID string) (Team, error) {
	var n notices
	c.mu.Lock()
	ts, err := c.createTeamLocked(&n, id, name, leadSessionID)
	var snap Team
	if err == nil {
		snap = ts.snapshot()
	}
	c.mu.Unlock()
	c.deliver(n)
	return snap, err
}

func (c *Coordinator) createTeamLocked(n *notices, id, name, leadSessionID string) (*teamState, error) {
	if id == "" {
		id = c.newID()
	}
	if _, exists := c.teams[id]; exists {
		return nil, errors.NewValidationError("id", fmt.Sprintf("team %q already exists", id))
	}
	if strings.TrimSpace(name) == "" {
		name = "team-" + id
	}
	now := c.now()
	ts := newTeamState(Team{
		ID:            id,
		Name:          name,
		LeadSessionID: leadSessionID,
		Status:        TeamActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	c.teams[id] = ts
	c.order = append(c.order, id)

	n.publish(event.TeamCreated, id, ts.snapshot())
	c.record(n, ts, event.TeamCreated, "", "", fmt.Sprintf("team %s created", name), map[string]any{"name": name})
	c.logger.WithTeam(id).Info("team created", "name", name)
	return ts, nil
}

// Team returns a snapshot of the team.
func (c *Coordinator) Team(teamID string) (Team, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return Team{}, err
	}
	return ts.snapshot(), nil
}

// Teams returns snapshots of all teams in creation order.
func (c *Coordinator) Teams() []Team {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Team, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.teams[id].snapshot())
	}
	return out
}

// CleanupTeam shuts down every non-lead teammate, marks the team completed
// and discards its spec, DRI assignments and synthesis flag. Cleaning up a
// completed team is a no-op.
func (c *Coordinator) CleanupTeam(teamID string) (Team, error) {
	var n notices
	c.mu.Lock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return Team{}, err
	}
	if ts.team.Status == TeamCompleted {
		snap := ts.snapshot()
		c.mu.Unlock()
		return snap, nil
	}

	now := c.now()
	ts.team.Status = TeamCleaningUp
	ts.touch(now)
	n.publish(event.TeamUpdated, teamID, ts.snapshot())

	for _, tm := range ts.teammates {
		if tm.IsLead() || tm.Status == TeammateShutdown {
			continue
		}
		tm.Status = TeammateShutdown
		tm.UpdatedAt = now
		n.publish(event.TeammateShutdown, teamID, *tm)
		c.record(&n, ts, event.TeammateShutdown, tm.ID, "", fmt.Sprintf("%s shut down during cleanup", tm.Name), nil)
	}

	ts.team.Status = TeamCompleted
	ts.touch(now)
	delete(c.specs, teamID)
	delete(c.dri, teamID)
	delete(c.synthesized, teamID)

	snap := ts.snapshot()
	n.publish(event.TeamCleanup, teamID, snap)
	c.record(&n, ts, event.TeamCleanup, "", "", "team cleaned up", nil)
	c.mu.Unlock()

	c.deliver(n)
	c.logger.WithTeam(teamID).Info("team cleaned up", "teammates", len(snap.Teammates))
	return snap, nil
}

// -----------------------------------------------------------------------------
// Teammates
// -----------------------------------------------------------------------------

// SpawnRequest describes a teammate to add.
type SpawnRequest struct {
	// TeamID selects the team. An unknown or empty ID creates the team.
	TeamID        string
	TeamName      string
	LeadSessionID string

	Name     string
	Role     string
	Model    string
	Provider provider.Name
}

// SpawnTeammate adds a teammate in spawning status, creating the team on
// first use.
func (c *Coordinator) SpawnTeammate(req SpawnRequest) (Teammate, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Teammate{}, errors.NewValidationError("name", "teammate name is required")
	}
	if req.Provider != "" && !req.Provider.IsValid() {
		return Teammate{}, errors.NewValidationError("provider", fmt.Sprintf("unknown provider %q", req.Provider))
	}

	var n notices
	c.mu.Lock()
	ts, ok := c.teams[req.TeamID]
	if !ok {
		var err error
		if ts, err = c.createTeamLocked(&n, req.TeamID, req.TeamName, req.LeadSessionID); err != nil {
			c.mu.Unlock()
			return Teammate{}, err
		}
	}
	if ts.team.Status != TeamActive {
		c.mu.Unlock()
		return Teammate{}, fmt.Errorf("spawn %q in team %q: %w", req.Name, ts.team.ID, errors.ErrTeamClosed)
	}
	if existing := ts.teammateByName(req.Name); existing != nil && existing.Status != TeammateShutdown {
		c.mu.Unlock()
		return Teammate{}, errors.NewValidationError("name", fmt.Sprintf("teammate %q already exists", req.Name))
	}

	role := req.Role
	if role == "" {
		role = "worker"
	}
	now := c.now()
	tm := &Teammate{
		ID:        c.newID(),
		TeamID:    ts.team.ID,
		Name:      req.Name,
		Role:      role,
		Status:    TeammateSpawning,
		Model:     req.Model,
		Provider:  req.Provider,
		SpawnedAt: now,
		UpdatedAt: now,
	}
	ts.teammates = append(ts.teammates, tm)
	ts.touch(now)

	snap := *tm
	n.publish(event.TeammateSpawned, ts.team.ID, snap)
	c.record(&n, ts, event.TeammateSpawned, tm.ID, "", fmt.Sprintf("%s spawned as %s", tm.Name, role),
		map[string]any{"name": tm.Name, "role": role, "model": tm.Model})
	c.mu.Unlock()

	c.deliver(n)
	return snap, nil
}

// UpdateTeammateStatus moves a teammate to status.
func (c *Coordinator) UpdateTeammateStatus(teamID, teammateID string, status TeammateStatus) (Teammate, error) {
	if !status.IsValid() {
		return Teammate{}, errors.NewValidationError("status", fmt.Sprintf("unknown teammate status %q", status))
	}

	var n notices
	c.mu.Lock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return Teammate{}, err
	}
	tm, err := c.teammateLocked(ts, teammateID)
	if err != nil {
		c.mu.Unlock()
		return Teammate{}, err
	}
	if err := c.setTeammateStatusLocked(&n, ts, tm, status, ""); err != nil {
		c.mu.Unlock()
		return Teammate{}, err
	}
	snap := *tm
	c.mu.Unlock()

	c.deliver(n)
	return snap, nil
}

func (c *Coordinator) setTeammateStatusLocked(n *notices, ts *teamState, tm *Teammate, status TeammateStatus, reason string) error {
	if tm.Status == status {
		return nil
	}
	if !tm.Status.CanTransitionTo(status) {
		return errors.NewTransitionError("teammate", tm.ID, string(tm.Status), string(status))
	}
	prev := tm.Status
	now := c.now()
	tm.Status = status
	tm.UpdatedAt = now
	ts.touch(now)

	typ := event.TeammateUpdated
	if status == TeammateShutdown {
		typ = event.TeammateShutdown
	}
	summary := fmt.Sprintf("%s: %s -> %s", tm.Name, prev, status)
	if reason != "" {
		summary += " (" + reason + ")"
	}
	n.publish(typ, ts.team.ID, *tm)
	c.record(n, ts, typ, tm.ID, "", summary, map[string]any{"from": string(prev), "to": string(status)})
	return nil
}

// ShutdownTeammate marks a teammate shut down.
func (c *Coordinator) ShutdownTeammate(teamID, teammateID string) (Teammate, error) {
	return c.UpdateTeammateStatus(teamID, teammateID, TeammateShutdown)
}
