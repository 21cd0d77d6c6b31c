package mcpserver

import (
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/heartbeat"
	"github.com/Iron-Ham/crew/internal/team"
)

// subscribe connects coordinator lifecycle events to the components that
// track per-team and per-teammate state. Handlers run synchronously on the
// publishing goroutine after the coordinator has released its lock.
func (d *Deps) subscribe() {
	d.Bus.Subscribe(event.TeamCreated, func(e event.Event) {
		ce, ok := e.(event.CoordinatorEvent)
		if !ok {
			return
		}
		d.attachSpec(ce.TeamID)
		d.Heartbeat.StartTeam(d.ctx, ce.TeamID)
	})

	d.Bus.Subscribe(event.TeammateSpawned, func(e event.Event) {
		tm, ok := teammatePayload(e)
		if !ok {
			return
		}
		d.Heartbeat.RegisterTeammate(tm.TeamID, tm.ID, tm.Name, tm.Model)
	})

	d.Bus.Subscribe(event.TeammateShutdown, func(e event.Event) {
		tm, ok := teammatePayload(e)
		if !ok {
			return
		}
		d.Heartbeat.RecordSignificantEvent(tm.TeamID, tm.ID, heartbeat.EventAgentCompleted, tm.Name+" shut down")
		released := d.Guard.ReleaseTeammate(tm.TeamID, tm.ID)
		d.Collector.Invalidate(diffKey(tm.TeamID, tm.ID))
		if len(released) > 0 {
			d.Logger.WithTeam(tm.TeamID).WithTeammate(tm.ID).Info("released file ownership", "files", len(released))
		}
	})

	d.Bus.Subscribe(event.TeamCleanup, func(e event.Event) {
		ce, ok := e.(event.CoordinatorEvent)
		if !ok {
			return
		}
		d.Guard.ReleaseTeam(ce.TeamID)
	})

	d.Bus.Subscribe(event.SynthesisRequested, func(e event.Event) {
		ce, ok := e.(event.CoordinatorEvent)
		if !ok {
			return
		}
		d.Logger.WithTeam(ce.TeamID).Info("synthesis requested")
	})
}

// attachSpec gives a new team the loaded spec and DRI assignments.
func (d *Deps) attachSpec(teamID string) {
	s, dri := d.currentSpec()
	if s == nil {
		return
	}
	log := d.Logger.WithTeam(teamID)
	if err := d.Coordinator.SetSpec(teamID, s); err != nil {
		log.Warn("attaching spec failed", "error", err)
		return
	}
	if len(dri) == 0 {
		return
	}
	if err := d.Coordinator.SetDRIAssignments(teamID, dri); err != nil {
		log.Warn("attaching DRI assignments failed", "error", err)
	}
}

func teammatePayload(e event.Event) (team.Teammate, bool) {
	ce, ok := e.(event.CoordinatorEvent)
	if !ok {
		return team.Teammate{}, false
	}
	tm, ok := ce.Payload.(team.Teammate)
	return tm, ok
}

// diffKey identifies a teammate's speculative diff in the collector.
func diffKey(teamID, teammateID string) string {
	return teamID + "/" + teammateID
}
