package team

import (
	"math"
	"testing"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
)

func TestRecordUsage_AccumulatesAndGroups(t *testing.T) {
	env := newTestCoordinator(t)
	lead, workers := spawnTeam(t, env.c, "alice", "bob")
	alice, bob := workers[0], workers[1]

	usage := []struct {
		id string
		u  Usage
	}{
		{alice.ID, Usage{InputTokens: 1000, OutputTokens: 200, CostUSD: 0.01}},
		{alice.ID, Usage{InputTokens: 500, OutputTokens: 100, CostUSD: 0.005}},
		{bob.ID, Usage{InputTokens: 300, OutputTokens: 50, CostUSD: 0.002}},
		{lead.ID, Usage{InputTokens: 10, OutputTokens: 5, CostUSD: 0.001}},
	}
	for _, u := range usage {
		if _, err := env.c.RecordUsage("t1", u.id, u.u); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}

	s, err := env.c.CostSummary("t1")
	if err != nil {
		t.Fatalf("CostSummary: %v", err)
	}
	if s.Total.InputTokens != 1810 || s.Total.OutputTokens != 355 {
		t.Errorf("Total = %+v", s.Total)
	}
	if math.Abs(s.Total.CostUSD-0.018) > 1e-9 {
		t.Errorf("Total.CostUSD = %v, want 0.018", s.Total.CostUSD)
	}
	if got := s.ByTeammate[alice.ID].InputTokens; got != 1500 {
		t.Errorf("alice input = %d, want 1500", got)
	}
	if got := s.ByModel["claude-sonnet-4-5"].InputTokens; got != 1800 {
		t.Errorf("sonnet input = %d, want 1800", got)
	}
	if got := s.ByModel[unknownModel].InputTokens; got != 10 {
		t.Errorf("unknown model input = %d, want 10", got)
	}
	if got := env.events.count(event.CostUpdated); got != len(usage) {
		t.Errorf("cost:updated events = %d, want %d", got, len(usage))
	}
}

func TestRecordUsage_Validation(t *testing.T) {
	env := newTestCoordinator(t)
	_, workers := spawnTeam(t, env.c, "alice")

	if _, err := env.c.RecordUsage("t1", workers[0].ID, Usage{InputTokens: -1}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("negative usage error = %v, want ErrInvalidInput", err)
	}
	if _, err := env.c.RecordUsage("t1", "ghost", Usage{InputTokens: 1}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown teammate error = %v, want ErrNotFound", err)
	}
}
