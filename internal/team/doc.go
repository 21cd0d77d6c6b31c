// Package team is the authoritative owner of teams, teammates, tasks,
// messages and the activity log.
//
// # Architecture
//
// The central type is [Coordinator]. It is constructed once by the
// composition root and passed to whatever serves the session layer; there
// is no package-level instance.
//
//   - A team is created explicitly with [Coordinator.CreateTeam] or on the
//     first [Coordinator.SpawnTeammate] for an unknown team.
//   - Teammate and task status changes are validated against explicit
//     transition tables; illegal changes return an error wrapping
//     errors.ErrInvalidTransition.
//   - [Coordinator.CompleteTask] runs the quality gate through a [Reviewer].
//     A pass completes the task, a failure with cycles left keeps it in
//     progress and sends the feedback to the assignee, and an exhausted
//     failure fails it.
//   - When every assigned task of a team is completed the lead is asked to
//     synthesize, at most once per team.
//
// # Event Integration
//
// Every change publishes a coordinator event (team:created, task:updated,
// ...) on the shared [event.Bus] and appends an activity entry that is
// mirrored to the audit log. Events are published after the coordinator's
// lock is released, so handlers may call back into the coordinator.
package team
