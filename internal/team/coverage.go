package team

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/spec"
)

// SetSpec attaches the spec the team is working against. A nil spec
// detaches it.
func (c *Coordinator) SetSpec(teamID string, s *spec.Spec) error {
	var n notices
	c.mu.Lock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if s == nil {
		delete(c.specs, teamID)
		c.record(&n, ts, "spec:cleared", "", "", "spec detached", nil)
	} else {
		c.specs[teamID] = s
		c.record(&n, ts, "spec:set", "", "", fmt.Sprintf("spec %q attached (%d requirements)", s.Title, len(s.Requirements)),
			map[string]any{"specId": s.ID, "requirements": len(s.Requirements)})
	}
	c.mu.Unlock()

	c.deliver(n)
	return nil
}

// SetDRIAssignments replaces the team's explicit DRI assignments. They add
// to the assignments embedded in the spec.
func (c *Coordinator) SetDRIAssignments(teamID string, assignments []spec.DRIAssignment) error {
	for i, a := range assignments {
		if strings.TrimSpace(a.Section) == "" || strings.TrimSpace(a.Owner) == "" {
			return errors.NewValidationError(fmt.Sprintf("assignments[%d]", i), "section and owner are required")
		}
	}

	var n notices
	c.mu.Lock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.dri[teamID] = slices.Clone(assignments)
	c.record(&n, ts, "dri:assigned", "", "", fmt.Sprintf("%d DRI assignments set", len(assignments)),
		map[string]any{"count": len(assignments)})
	c.mu.Unlock()

	c.deliver(n)
	return nil
}

// ValidateDRICoverage reports which structural sections and requirements
// of the team's spec lack an owner. A requirement is owned through the
// spec's assigned_dri, an assignment naming its ID as the section, or a
// task that references it with a DRI owner.
func (c *Coordinator) ValidateDRICoverage(teamID string) (DRICoverage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return DRICoverage{}, err
	}
	s, ok := c.specs[teamID]
	if !ok {
		return DRICoverage{}, errors.NewNotFoundError("spec", teamID)
	}
	return driCoverageLocked(s, c.dri[teamID], ts.orderedTasks()), nil
}

func driCoverageLocked(s *spec.Spec, extra []spec.DRIAssignment, tasks []*Task) DRICoverage {
	owners := make(map[string]string)
	for _, a := range s.DRI {
		owners[a.Section] = a.Owner
	}
	// Explicit assignments win over the ones embedded in the spec.
	for _, a := range extra {
		owners[a.Section] = a.Owner
	}

	cov := DRICoverage{Owners: make(map[string]string)}
	for _, sec := range spec.StructuralSections {
		if owner := owners[string(sec)]; owner != "" {
			cov.Owners[string(sec)] = owner
			continue
		}
		cov.MissingSections = append(cov.MissingSections, sec)
	}

	for _, r := range s.Requirements {
		owner := r.AssignedDRI
		if owner == "" {
			owner = owners[r.ID]
		}
		if owner == "" {
			for _, t := range tasks {
				if t.DRIOwner != "" && slices.Contains(t.RequirementIDs, r.ID) {
					owner = t.DRIOwner
					break
				}
			}
		}
		if owner == "" {
			cov.UnownedRequirements = append(cov.UnownedRequirements, r.ID)
			continue
		}
		cov.Owners[r.ID] = owner
	}

	cov.Complete = len(cov.MissingSections) == 0 && len(cov.UnownedRequirements) == 0
	return cov
}

// RequirementCoverage reports how many spec requirements are referenced
// by at least one task. Without a spec or requirements coverage is 100%.
func (c *Coordinator) RequirementCoverage(teamID string) (RequirementCoverage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return RequirementCoverage{}, err
	}
	return requirementCoverageLocked(c.specs[teamID], ts.orderedTasks()), nil
}

func requirementCoverageLocked(s *spec.Spec, tasks []*Task) RequirementCoverage {
	ids := s.RequirementIDs()
	cov := RequirementCoverage{Total: len(ids), Percent: 100}
	if len(ids) == 0 {
		return cov
	}
	referenced := make(map[string]bool)
	for _, t := range tasks {
		for _, id := range t.RequirementIDs {
			referenced[id] = true
		}
	}
	for _, id := range ids {
		if referenced[id] {
			cov.Covered++
		} else {
			cov.Uncovered = append(cov.Uncovered, id)
		}
	}
	cov.Percent = float64(cov.Covered) / float64(cov.Total) * 100
	return cov
}

// CanClosePlan returns the reasons the team's plan cannot be closed. An
// empty list means it can: every section and requirement has a DRI and
// every requirement is referenced by a task.
func (c *Coordinator) CanClosePlan(teamID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return nil, err
	}
	return c.planBlockersLocked(ts), nil
}

func (c *Coordinator) planBlockersLocked(ts *teamState) []string {
	s, ok := c.specs[ts.team.ID]
	if !ok {
		return []string{"no spec attached to the team"}
	}
	tasks := ts.orderedTasks()
	dri := driCoverageLocked(s, c.dri[ts.team.ID], tasks)
	req := requirementCoverageLocked(s, tasks)

	var blockers []string
	for _, sec := range dri.MissingSections {
		blockers = append(blockers, fmt.Sprintf("section %s has no DRI", sec))
	}
	for _, id := range dri.UnownedRequirements {
		blockers = append(blockers, fmt.Sprintf("requirement %s has no DRI", id))
	}
	for _, id := range req.Uncovered {
		blockers = append(blockers, fmt.Sprintf("requirement %s is not covered by any task", id))
	}
	return blockers
}

// AutoSynthesize requests synthesis from the lead once every task assigned
// to a non-lead teammate is completed. It fires at most once per team; the
// bool reports whether this call fired it.
func (c *Coordinator) AutoSynthesize(teamID string) (SynthesisRequest, bool, error) {
	var n notices
	c.mu.Lock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return SynthesisRequest{}, false, err
	}
	if c.synthesized[teamID] {
		c.mu.Unlock()
		return SynthesisRequest{}, false, nil
	}

	var completed []Task
	var outstanding []string
	assigned := 0
	for _, t := range ts.orderedTasks() {
		tm := ts.teammate(t.AssigneeID)
		if tm == nil || tm.IsLead() {
			if t.Status != TaskCompleted {
				outstanding = append(outstanding, fmt.Sprintf("%s (%s, unassigned)", t.Title, t.Status))
			}
			continue
		}
		assigned++
		if t.Status != TaskCompleted {
			c.mu.Unlock()
			return SynthesisRequest{}, false, nil
		}
		completed = append(completed, copyTask(t))
	}
	if assigned == 0 {
		c.mu.Unlock()
		return SynthesisRequest{}, false, nil
	}

	req := SynthesisRequest{
		TeamID:         teamID,
		CompletedTasks: completed,
		Outstanding:    outstanding,
		Coverage:       requirementCoverageLocked(c.specs[teamID], ts.orderedTasks()),
		RequestedAt:    c.now(),
	}
	if s, ok := c.specs[teamID]; ok {
		dri := driCoverageLocked(s, c.dri[teamID], ts.orderedTasks())
		req.DRICoverage = &dri
		req.PlanBlockers = c.planBlockersLocked(ts)
	}
	c.synthesized[teamID] = true

	n.publish(event.SynthesisRequested, teamID, req)
	c.record(&n, ts, event.SynthesisRequested, "", "",
		fmt.Sprintf("synthesis requested: %d tasks completed, requirement coverage %.0f%%", len(completed), req.Coverage.Percent),
		map[string]any{"completed": len(completed), "coverage": req.Coverage.Percent, "outstanding": len(outstanding)})
	c.mu.Unlock()

	c.deliver(n)
	c.logger.WithTeam(teamID).Info("synthesis requested", "completed", len(completed))
	return req, true, nil
}

func (c *Coordinator) maybeSynthesize(teamID string) {
	if _, _, err := c.AutoSynthesize(teamID); err != nil {
		c.logger.WithTeam(teamID).Debug("auto-synthesis skipped", "error", err)
	}
}
