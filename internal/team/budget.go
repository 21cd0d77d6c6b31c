package team

import (
	"fmt"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
)

// unknownModel groups usage of teammates spawned without a model.
const unknownModel = "unknown"

// RecordUsage adds usage to a teammate's running total and publishes the
// recomputed team cost summary.
func (c *Coordinator) RecordUsage(teamID, teammateID string, u Usage) (CostSummary, error) {
	if u.InputTokens < 0 || u.OutputTokens < 0 || u.CostUSD < 0 {
		return CostSummary{}, errors.NewValidationError("usage", "usage must not be negative")
	}

	var n notices
	c.mu.Lock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return CostSummary{}, err
	}
	tm, err := c.teammateLocked(ts, teammateID)
	if err != nil {
		c.mu.Unlock()
		return CostSummary{}, err
	}
	tm.Usage = tm.Usage.Add(u)
	tm.UpdatedAt = c.now()
	summary := costSummaryLocked(ts)

	n.publish(event.CostUpdated, teamID, summary)
	c.record(&n, ts, event.CostUpdated, teammateID, "",
		fmt.Sprintf("%s used %d input / %d output tokens ($%.4f)", tm.Name, u.InputTokens, u.OutputTokens, u.CostUSD),
		map[string]any{"inputTokens": u.InputTokens, "outputTokens": u.OutputTokens, "costUsd": u.CostUSD})
	c.mu.Unlock()

	c.deliver(n)
	return summary, nil
}

// CostSummary derives the team's cost from current teammate usage.
func (c *Coordinator) CostSummary(teamID string) (CostSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return CostSummary{}, err
	}
	return costSummaryLocked(ts), nil
}

func costSummaryLocked(ts *teamState) CostSummary {
	s := CostSummary{
		TeamID:     ts.team.ID,
		ByTeammate: make(map[string]Usage, len(ts.teammates)),
		ByModel:    make(map[string]Usage),
	}
	for _, tm := range ts.teammates {
		s.Total = s.Total.Add(tm.Usage)
		s.ByTeammate[tm.ID] = s.ByTeammate[tm.ID].Add(tm.Usage)
		model := tm.Model
		if model == "" {
			model = unknownModel
		}
		s.ByModel[model] = s.ByModel[model].Add(tm.Usage)
	}
	return s
}
