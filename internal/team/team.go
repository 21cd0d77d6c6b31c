package team

import (
	"slices"
	"time"
)

// teamState is the mutable record behind a Team snapshot. Guarded by the
// coordinator's lock.
type teamState struct {
	team      Team
	teammates []*Teammate
	tasks     map[string]*Task
	taskOrder []string
	messages  []Message
	activity  []ActivityEntry
}

func newTeamState(t Team) *teamState {
	return &teamState{team: t, tasks: make(map[string]*Task)}
}

func (s *teamState) snapshot() Team {
	t := s.team
	t.Teammates = make([]Teammate, 0, len(s.teammates))
	for _, tm := range s.teammates {
		t.Teammates = append(t.Teammates, *tm)
	}
	return t
}

func (s *teamState) teammate(id string) *Teammate {
	for _, tm := range s.teammates {
		if tm.ID == id {
			return tm
		}
	}
	return nil
}

func (s *teamState) teammateByName(name string) *Teammate {
	for _, tm := range s.teammates {
		if tm.Name == name {
			return tm
		}
	}
	return nil
}

func (s *teamState) orderedTasks() []*Task {
	out := make([]*Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		out = append(out, s.tasks[id])
	}
	return out
}

func (s *teamState) touch(now time.Time) {
	s.team.UpdatedAt = now
}

func copyTask(t *Task) Task {
	out := *t
	out.RequirementIDs = slices.Clone(t.RequirementIDs)
	if t.LastReview != nil {
		r := *t.LastReview
		r.Feedback = slices.Clone(t.LastReview.Feedback)
		out.LastReview = &r
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}
