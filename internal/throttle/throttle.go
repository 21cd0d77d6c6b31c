// Package throttle implements per-tool admission control for teammate tool
// calls, modeled on TCP slow-start and AIMD congestion control.
//
// Each tool name owns a call budget. A budget starts small, doubles after
// every diverse successful call until it reaches a slow-start threshold,
// then grows by one per diverse success up to a ceiling. Repeating the same
// input faster than the budget allows triggers a multiplicative backoff
// with a cooldown; repeated backoffs hard-block the tool until a full window
// has passed.
//
// Rejections are reported as a [Decision], never as an error: callers relay
// the reason to the agent as feedback.
package throttle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/logging"
)

// Config holds throttle tuning parameters.
type Config struct {
	// InitialWidth is the budget a tool starts with and the floor for
	// failure-driven shrinking.
	InitialWidth int
	// SSThresh is the budget at which exponential growth stops.
	SSThresh int
	// MaxWindow caps linear growth.
	MaxWindow int
	// Window is the sliding window over which calls are counted.
	Window time.Duration
	// BackoffCooldown is how long a tool is refused after a backoff.
	BackoffCooldown time.Duration
	// MaxBackoffs is the number of backoffs that hard-blocks a tool.
	MaxBackoffs int
}

// DefaultConfig returns the default throttle parameters.
func DefaultConfig() Config {
	return Config{
		InitialWidth:    2,
		SSThresh:        8,
		MaxWindow:       16,
		Window:          60 * time.Second,
		BackoffCooldown: 5 * time.Second,
		MaxBackoffs:     3,
	}
}

// normalized fills zero fields with defaults.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.InitialWidth < 1 {
		c.InitialWidth = d.InitialWidth
	}
	if c.SSThresh < c.InitialWidth {
		c.SSThresh = max(d.SSThresh, c.InitialWidth)
	}
	if c.MaxWindow < c.SSThresh {
		c.MaxWindow = max(d.MaxWindow, c.SSThresh)
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.BackoffCooldown <= 0 {
		c.BackoffCooldown = d.BackoffCooldown
	}
	if c.MaxBackoffs < 1 {
		c.MaxBackoffs = d.MaxBackoffs
	}
	return c
}

// recentCompare is how many earlier calls a completed call is compared
// against when deciding whether it was diverse.
const recentCompare = 3

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Kind       errors.Kind // KindBudgetExhausted, KindBackoff or KindHardBlock when rejected
	Reason     string
	RetryAfter time.Duration
}

// Snapshot is a read-only view of a tool's state.
type Snapshot struct {
	Tool         string
	Budget       int
	InWindow     int
	BackoffCount int
	InSlowStart  bool
	Blocked      bool
	CooldownLeft time.Duration
}

type call struct {
	at          time.Time
	fingerprint string
}

type toolState struct {
	budget         int
	window         []call
	backoffCount   int
	firstBackoffAt time.Time
	cooldownUntil  time.Time
	inSlowStart    bool
	blocked        bool
	blockReason    string
}

// Throttle tracks per-tool admission state. It is safe for concurrent use.
type Throttle struct {
	mu     sync.Mutex
	cfg    Config
	tools  map[string]*toolState
	now    func() time.Time
	logger *logging.Logger
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(t *Throttle) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a Throttle. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Throttle {
	t := &Throttle{
		cfg:    cfg.normalized(),
		tools:  make(map[string]*toolState),
		now:    time.Now,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the effective configuration.
func (t *Throttle) Config() Config { return t.cfg }

func (t *Throttle) stateLocked(tool string) *toolState {
	st, ok := t.tools[tool]
	if !ok {
		st = &toolState{budget: t.cfg.InitialWidth, inSlowStart: true}
		t.tools[tool] = st
	}
	return st
}

// pruneLocked drops calls older than the window and lifts backoff state
// once a full window has passed since the first backoff.
func (t *Throttle) pruneLocked(st *toolState, now time.Time) {
	cutoff := now.Add(-t.cfg.Window)
	keep := st.window[:0]
	for _, c := range st.window {
		if c.at.After(cutoff) {
			keep = append(keep, c)
		}
	}
	st.window = keep

	if !st.firstBackoffAt.IsZero() && now.Sub(st.firstBackoffAt) >= t.cfg.Window {
		st.backoffCount = 0
		st.firstBackoffAt = time.Time{}
		st.blocked = false
		st.blockReason = ""
		if st.budget < 1 {
			st.budget = t.cfg.InitialWidth
		}
	}
}

// Check decides whether a call to tool with the given input fingerprint may
// proceed. An admitted call is recorded in the window immediately, so
// concurrent checks observe each other before any of the calls finish.
func (t *Throttle) Check(tool, fingerprint string) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st := t.stateLocked(tool)
	t.pruneLocked(st, now)

	if st.blocked {
		reason := st.blockReason
		if reason == "" {
			reason = fmt.Sprintf("Tool %q is blocked after %d backoffs for repeating the same call. Change approach instead of retrying.", tool, st.backoffCount)
		}
		var retry time.Duration
		if !st.firstBackoffAt.IsZero() {
			retry = st.firstBackoffAt.Add(t.cfg.Window).Sub(now)
		}
		return Decision{Kind: errors.KindHardBlock, Reason: reason, RetryAfter: retry}
	}

	if now.Before(st.cooldownUntil) {
		wait := st.cooldownUntil.Sub(now)
		return Decision{
			Kind:       errors.KindBackoff,
			Reason:     fmt.Sprintf("Tool %q is cooling down after repeated identical calls; wait %s before retrying.", tool, wait.Round(time.Millisecond)),
			RetryAfter: wait,
		}
	}

	similar := 0
	for _, c := range st.window {
		if c.fingerprint == fingerprint {
			similar++
		}
	}
	if similar >= st.budget {
		t.backoffLocked(tool, st, now)
		return Decision{
			Kind:       errors.KindBackoff,
			Reason:     fmt.Sprintf("Tool %q was called %d times with the same input within %s. Budget reduced to %d; vary the input or try a different approach.", tool, similar, t.cfg.Window, st.budget),
			RetryAfter: t.cfg.BackoffCooldown,
		}
	}

	if len(st.window) >= st.budget {
		retry := st.window[0].at.Add(t.cfg.Window).Sub(now)
		return Decision{
			Kind:       errors.KindBudgetExhausted,
			Reason:     fmt.Sprintf("Tool %q budget exhausted (%d calls in %s).", tool, st.budget, t.cfg.Window),
			RetryAfter: retry,
		}
	}

	st.window = append(st.window, call{at: now, fingerprint: fingerprint})
	return Decision{Allowed: true}
}

func (t *Throttle) backoffLocked(tool string, st *toolState, now time.Time) {
	st.budget = max(1, st.budget/2)
	st.cooldownUntil = now.Add(t.cfg.BackoffCooldown)
	st.inSlowStart = false
	st.backoffCount++
	if st.firstBackoffAt.IsZero() {
		st.firstBackoffAt = now
	}
	if st.backoffCount >= t.cfg.MaxBackoffs {
		st.blocked = true
	}
	t.logger.Warn("tool call backoff",
		"tool", tool,
		"budget", st.budget,
		"backoff_count", st.backoffCount,
		"blocked", st.blocked)
}

// RecordSuccess grows the tool's budget if the completed call differed from
// the calls made just before it.
func (t *Throttle) RecordSuccess(tool, fingerprint string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.tools[tool]
	if !ok || st.blocked {
		return
	}

	idx := -1
	for i := len(st.window) - 1; i >= 0; i-- {
		if st.window[i].fingerprint == fingerprint {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = len(st.window)
	}
	for i := max(0, idx-recentCompare); i < idx; i++ {
		if st.window[i].fingerprint == fingerprint {
			return
		}
	}

	if st.inSlowStart {
		st.budget = min(st.budget*2, t.cfg.SSThresh)
		if st.budget >= t.cfg.SSThresh {
			st.inSlowStart = false
		}
		return
	}
	if st.budget < t.cfg.MaxWindow {
		st.budget++
	}
}

// RecordFailure halves the tool's budget, never below InitialWidth, and
// ends slow-start.
func (t *Throttle) RecordFailure(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.stateLocked(tool)
	if st.blocked {
		return
	}
	st.budget = max(t.cfg.InitialWidth, st.budget/2)
	st.inSlowStart = false
}

// HardBlockTool blocks a tool immediately, e.g. when a health monitor
// detects a retry storm. The block lifts a full window after it is applied.
func (t *Throttle) HardBlockTool(tool, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.stateLocked(tool)
	st.budget = 0
	st.blocked = true
	st.blockReason = reason
	st.backoffCount = t.cfg.MaxBackoffs
	st.inSlowStart = false
	// The block window restarts here even if an earlier backoff opened one.
	st.firstBackoffAt = t.now()
	t.logger.Warn("tool hard-blocked", "tool", tool, "reason", reason)
}

// Snapshot returns the state of a tool. Unknown tools report the initial state.
func (t *Throttle) Snapshot(tool string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.tools[tool]
	if !ok {
		return Snapshot{Tool: tool, Budget: t.cfg.InitialWidth, InSlowStart: true}
	}
	now := t.now()
	t.pruneLocked(st, now)
	var left time.Duration
	if now.Before(st.cooldownUntil) {
		left = st.cooldownUntil.Sub(now)
	}
	return Snapshot{
		Tool:         tool,
		Budget:       st.budget,
		InWindow:     len(st.window),
		BackoffCount: st.backoffCount,
		InSlowStart:  st.inSlowStart,
		Blocked:      st.blocked,
		CooldownLeft: left,
	}
}

// Reset discards all tool state, e.g. at the start of a new turn.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools = make(map[string]*toolState)
}

// Fingerprint returns a short stable hash of a tool input. Map keys are
// ordered by encoding/json, so equal inputs hash equally.
func Fingerprint(input any) string {
	data, err := json.Marshal(input)
	if err != nil {
		data = fmt.Appendf(nil, "%v", input)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
