package team

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/crew/internal/audit"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/qualitygate"
)

// stepClock advances one second per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type memRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *memRecorder) Record(e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) ofType(typ string) []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Entry
	for _, e := range r.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// scriptedReviewer returns results in order, repeating the last one.
type scriptedReviewer struct {
	mu      sync.Mutex
	results []qualitygate.Result
	inputs  []qualitygate.Input
}

func (r *scriptedReviewer) Run(_ context.Context, in qualitygate.Input) qualitygate.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
	res := r.results[min(len(r.inputs), len(r.results))-1]
	res.Cycle = in.Cycle
	res.MaxCycles = in.Config.MaxReviewCycles
	return res
}

// eventLog collects every event published on a bus.
type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

func recordEvents(bus *event.Bus) *eventLog {
	l := &eventLog{}
	bus.SubscribeAll(func(e event.Event) {
		l.mu.Lock()
		l.events = append(l.events, e)
		l.mu.Unlock()
	})
	return l
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		if e.EventType() == event.Activity {
			continue
		}
		out = append(out, e.EventType())
	}
	return out
}

func (l *eventLog) count(typ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.EventType() == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

type testEnv struct {
	c      *Coordinator
	bus    *event.Bus
	events *eventLog
	audit  *memRecorder
}

func newTestCoordinator(t *testing.T, opts ...Option) testEnv {
	t.Helper()
	bus := event.NewBus()
	rec := &memRecorder{}
	gate := qualitygate.DefaultConfig()
	gate.MaxReviewCycles = 2
	all := append([]Option{WithAudit(rec), WithClock(newStepClock().Now)}, opts...)
	c, err := NewCoordinator(Config{Bus: bus, Gate: gate}, all...)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return testEnv{c: c, bus: bus, events: recordEvents(bus), audit: rec}
}

// spawnTeam creates team "t1" with a lead and the named workers.
func spawnTeam(t *testing.T, c *Coordinator, workers ...string) (Teammate, []Teammate) {
	t.Helper()
	lead, err := c.SpawnTeammate(SpawnRequest{TeamID: "t1", TeamName: "alpha", Name: "lead", Role: RoleLead})
	if err != nil {
		t.Fatalf("spawn lead: %v", err)
	}
	var out []Teammate
	for _, name := range workers {
		tm, err := c.SpawnTeammate(SpawnRequest{TeamID: "t1", Name: name, Model: "claude-sonnet-4-5"})
		if err != nil {
			t.Fatalf("spawn %s: %v", name, err)
		}
		out = append(out, tm)
	}
	return lead, out
}
