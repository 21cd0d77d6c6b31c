package toolguard

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/heartbeat"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/ownership"
	"github.com/Iron-Ham/crew/internal/throttle"
)

// DefaultFileTools are the tools treated as file modifications.
var DefaultFileTools = []string{"Edit", "Write", "MultiEdit", "NotebookEdit"}

// pathKeys are the input fields searched for the modified file.
var pathKeys = []string{"file_path", "notebook_path", "path"}

const summaryLimit = 120

// Config holds guard parameters.
type Config struct {
	Throttle throttle.Config
	// FileTools names the file-modifying tools, matched case-insensitively.
	FileTools []string
}

// DefaultConfig returns the default throttle parameters and file tools.
func DefaultConfig() Config {
	return Config{Throttle: throttle.DefaultConfig(), FileTools: DefaultFileTools}
}

// Call is one tool invocation by a teammate.
type Call struct {
	TeamID       string
	TeammateID   string
	TeammateName string
	Tool         string
	// Input is the raw tool input, typically a decoded JSON object.
	Input any
	// FilePath overrides the path found in Input.
	FilePath string
}

// Verdict is the outcome of Before.
type Verdict struct {
	Allowed    bool
	Kind       errors.Kind
	Reason     string
	RetryAfter time.Duration
	// Conflict is set when a file tool touches a file another teammate
	// owns. In warn mode the call is still allowed.
	Conflict *ownership.Conflict
}

type teammateKey struct {
	teamID     string
	teammateID string
}

// Guard holds a throttle per teammate and shares the heartbeat aggregator
// and ownership tracker across teams.
type Guard struct {
	mu        sync.Mutex
	cfg       Config
	fileTools map[string]bool
	throttles map[teammateKey]*throttle.Throttle

	heartbeat *heartbeat.Aggregator
	ownership *ownership.Tracker
	bus       *event.Bus
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithHeartbeat records admitted and rejected calls as teammate activity.
func WithHeartbeat(a *heartbeat.Aggregator) Option {
	return func(g *Guard) { g.heartbeat = a }
}

// WithOwnership checks and records file ownership for file tools.
func WithOwnership(t *ownership.Tracker) Option {
	return func(g *Guard) { g.ownership = t }
}

// WithBus publishes throttle rejections and blocked writes.
func WithBus(bus *event.Bus) Option {
	return func(g *Guard) { g.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock overrides the clock handed to each throttle.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates a Guard.
func New(cfg Config, opts ...Option) *Guard {
	if len(cfg.FileTools) == 0 {
		cfg.FileTools = DefaultFileTools
	}
	g := &Guard{
		cfg:       cfg,
		fileTools: make(map[string]bool, len(cfg.FileTools)),
		throttles: make(map[teammateKey]*throttle.Throttle),
		logger:    logging.NopLogger(),
		now:       time.Now,
	}
	for _, name := range cfg.FileTools {
		g.fileTools[strings.ToLower(name)] = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsFileTool reports whether tool modifies files.
func (g *Guard) IsFileTool(tool string) bool {
	return g.fileTools[strings.ToLower(tool)]
}

func (g *Guard) throttleFor(teamID, teammateID string) *throttle.Throttle {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := teammateKey{teamID, teammateID}
	th, ok := g.throttles[k]
	if !ok {
		th = throttle.New(g.cfg.Throttle,
			throttle.WithClock(g.now),
			throttle.WithLogger(g.logger.WithTeam(teamID).WithTeammate(teammateID)))
		g.throttles[k] = th
	}
	return th
}

// Before decides whether a call may run.
func (g *Guard) Before(c Call) Verdict {
	fp := throttle.Fingerprint(c.Input)
	th := g.throttleFor(c.TeamID, c.TeammateID)
	wasBlocked := th.Snapshot(c.Tool).Blocked
	d := th.Check(c.Tool, fp)

	if g.heartbeat != nil {
		g.heartbeat.RecordToolCall(c.TeamID, c.TeammateID, c.Tool, summarize(c))
	}

	if !d.Allowed {
		g.logger.WithTeam(c.TeamID).WithTeammate(c.TeammateID).Info("tool call throttled",
			"tool", c.Tool, "kind", d.Kind.String(), "retry_after", d.RetryAfter)
		g.publish(event.NewThrottleRejectedEvent(c.TeamID, c.TeammateID, c.Tool, d.Kind.String(), d.Reason))
		if !wasBlocked && th.Snapshot(c.Tool).Blocked {
			g.reportErrorLoop(c.TeamID, c.TeammateID, c.Tool, d.Reason)
		}
		return Verdict{Kind: d.Kind, Reason: d.Reason, RetryAfter: d.RetryAfter}
	}

	v := Verdict{Allowed: true}
	path := g.filePath(c)
	if path == "" || g.ownership == nil {
		return v
	}
	conflict := g.ownership.CheckConflict(c.TeamID, path, c.TeammateID)
	if conflict == nil {
		return v
	}
	conflict.AttemptedByName = c.TeammateName
	v.Conflict = conflict
	if conflict.Blocked {
		v.Allowed = false
		v.Kind = errors.KindConflict
		v.Reason = fmt.Sprintf("%s is owned by %s. Coordinate with them or ask the lead to release it before editing.",
			conflict.Path, conflict.CurrentOwnerName)
		g.publish(event.NewFileConflictEvent(c.TeamID, conflict.Path, conflict.CurrentOwnerID, conflict.CurrentOwnerName,
			c.TeammateID, c.TeammateName, true))
	}
	return v
}

// After reports the outcome of a call admitted by Before. Successful file
// writes are recorded with the ownership tracker; the returned conflict is
// non-nil when the write touched another teammate's file.
func (g *Guard) After(c Call, ok bool) *ownership.Conflict {
	th := g.throttleFor(c.TeamID, c.TeammateID)
	if !ok {
		th.RecordFailure(c.Tool)
		return nil
	}
	th.RecordSuccess(c.Tool, throttle.Fingerprint(c.Input))

	path := g.filePath(c)
	if path == "" || g.ownership == nil {
		return nil
	}
	return g.ownership.RecordModification(c.TeamID, c.TeammateID, c.TeammateName, path)
}

// HardBlock blocks a tool for one teammate, e.g. when a monitor detects a
// retry storm. The block lasts one throttle window.
func (g *Guard) HardBlock(teamID, teammateID, tool, reason string) {
	g.throttleFor(teamID, teammateID).HardBlockTool(tool, reason)
	g.reportErrorLoop(teamID, teammateID, tool, reason)
}

// reportErrorLoop flags a newly blocked tool as a significant heartbeat
// event so the lead sees it without waiting for the next UI batch.
func (g *Guard) reportErrorLoop(teamID, teammateID, tool, reason string) {
	if g.heartbeat == nil {
		return
	}
	detail := tool + " blocked"
	if reason != "" {
		detail += ": " + truncate(reason)
	}
	g.heartbeat.RecordSignificantEvent(teamID, teammateID, heartbeat.EventErrorLoopDetected, detail)
}

// Snapshot returns a teammate's throttle state for tool.
func (g *Guard) Snapshot(teamID, teammateID, tool string) throttle.Snapshot {
	return g.throttleFor(teamID, teammateID).Snapshot(tool)
}

// ResetTurn clears a teammate's throttle state at the start of a new turn.
func (g *Guard) ResetTurn(teamID, teammateID string) {
	g.throttleFor(teamID, teammateID).Reset()
}

// ReleaseTeammate drops a teammate's throttle, stops tracking its activity
// and releases the files it owns. It returns the released paths.
func (g *Guard) ReleaseTeammate(teamID, teammateID string) []string {
	g.mu.Lock()
	delete(g.throttles, teammateKey{teamID, teammateID})
	g.mu.Unlock()

	if g.heartbeat != nil {
		g.heartbeat.RemoveTeammate(teamID, teammateID)
	}
	if g.ownership == nil {
		return nil
	}
	return g.ownership.ReleaseTeammateFiles(teamID, teammateID)
}

// ReleaseTeam drops every throttle and ownership record of a team.
func (g *Guard) ReleaseTeam(teamID string) {
	g.mu.Lock()
	for k := range g.throttles {
		if k.teamID == teamID {
			delete(g.throttles, k)
		}
	}
	g.mu.Unlock()

	if g.heartbeat != nil {
		g.heartbeat.RemoveTeam(teamID)
	}
	if g.ownership != nil {
		g.ownership.ClearTeam(teamID)
	}
}

func (g *Guard) publish(e event.Event) {
	if g.bus != nil {
		g.bus.Publish(e)
	}
}

func (g *Guard) filePath(c Call) string {
	if !g.IsFileTool(c.Tool) {
		return ""
	}
	if c.FilePath != "" {
		return c.FilePath
	}
	return inputPath(c.Input)
}

func inputPath(input any) string {
	m, ok := input.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range pathKeys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// summarize renders a short description of the call input for the
// heartbeat aggregator.
func summarize(c Call) string {
	if p := c.FilePath; p != "" {
		return p
	}
	if p := inputPath(c.Input); p != "" {
		return p
	}
	if m, ok := c.Input.(map[string]any); ok {
		for _, k := range []string{"command", "pattern", "query", "url"} {
			if s, ok := m[k].(string); ok && s != "" {
				return truncate(s)
			}
		}
	}
	if c.Input == nil {
		return ""
	}
	data, err := json.Marshal(c.Input)
	if err != nil {
		return ""
	}
	return truncate(string(data))
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= summaryLimit {
		return s
	}
	return string(r[:summaryLimit-3]) + "..."
}

// FileTools returns the configured file tools, sorted.
func (g *Guard) FileTools() []string {
	out := slices.Clone(g.cfg.FileTools)
	slices.Sort(out)
	return out
}
