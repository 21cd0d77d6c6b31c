package team

import (
	"testing"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
)

func TestSendMessage(t *testing.T) {
	env := newTestCoordinator(t)
	lead, workers := spawnTeam(t, env.c, "alice", "bob")
	alice, bob := workers[0], workers[1]

	if _, err := env.c.SendMessage("t1", lead.ID, alice.ID, "start on auth"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := env.c.Broadcast("t1", lead.ID, "standup in 5"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if _, err := env.c.SendMessage("t1", alice.ID, bob.ID, "need your schema"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	tests := []struct {
		name   string
		filter MessageFilter
		want   int
	}{
		{"all", MessageFilter{}, 3},
		{"alice inbox", MessageFilter{To: alice.ID}, 2},
		{"bob inbox", MessageFilter{To: bob.ID}, 2},
		{"lead inbox", MessageFilter{To: lead.ID}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := env.c.Messages("t1", tt.filter)
			if err != nil {
				t.Fatalf("Messages: %v", err)
			}
			if len(msgs) != tt.want {
				t.Errorf("len = %d, want %d", len(msgs), tt.want)
			}
		})
	}

	all, _ := env.c.Messages("t1", MessageFilter{})
	since, _ := env.c.Messages("t1", MessageFilter{Since: all[0].Timestamp})
	if len(since) != 2 {
		t.Errorf("messages since first = %d, want 2", len(since))
	}
	if !all[1].IsBroadcast() || all[1].Type != MessageBroadcast {
		t.Errorf("second message = %+v, want broadcast", all[1])
	}
	if got := env.events.count(event.MessageSent); got != 3 {
		t.Errorf("message:sent events = %d, want 3", got)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestCoordinator(t)
	lead, workers := spawnTeam(t, env.c, "alice")
	if _, err := env.c.ShutdownTeammate("t1", workers[0].ID); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	tests := []struct {
		name    string
		from    string
		to      string
		content string
		wantErr error
	}{
		{"empty content", lead.ID, workers[0].ID, " ", errors.ErrInvalidInput},
		{"empty sender", "", workers[0].ID, "hi", errors.ErrInvalidInput},
		{"empty recipient", lead.ID, "", "hi", errors.ErrInvalidInput},
		{"unknown recipient", lead.ID, "ghost", "hi", errors.ErrNotFound},
		{"shut down recipient", lead.ID, workers[0].ID, "hi", errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.c.SendMessage("t1", tt.from, tt.to, tt.content); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSendMessage_StarIsBroadcast(t *testing.T) {
	env := newTestCoordinator(t)
	lead, _ := spawnTeam(t, env.c, "alice")

	msg, err := env.c.SendMessage("t1", lead.ID, BroadcastRecipient, "all hands")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Type != MessageBroadcast {
		t.Errorf("Type = %q, want broadcast", msg.Type)
	}
}

func TestRequestShutdown(t *testing.T) {
	env := newTestCoordinator(t)
	lead, workers := spawnTeam(t, env.c, "alice")

	msg, err := env.c.RequestShutdown("t1", lead.ID, workers[0].ID, "")
	if err != nil {
		t.Fatalf("RequestShutdown: %v", err)
	}
	if msg.Type != MessageShutdownRequest || msg.To != workers[0].ID || msg.Content == "" {
		t.Errorf("message = %+v", msg)
	}

	team, _ := env.c.Team("t1")
	for _, tm := range team.Teammates {
		if tm.ID == workers[0].ID && tm.Status != TeammateShutdownRequested {
			t.Errorf("status = %q, want shutdown-requested", tm.Status)
		}
	}

	if _, err := env.c.ShutdownTeammate("t1", workers[0].ID); err != nil {
		t.Fatalf("ShutdownTeammate: %v", err)
	}
	if _, err := env.c.RequestShutdown("t1", lead.ID, workers[0].ID, ""); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("request shutdown of stopped teammate error = %v, want ErrInvalidTransition", err)
	}
}
