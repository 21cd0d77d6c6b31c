package team

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
)

// SendMessage delivers a direct message from one teammate to another.
// From and To are teammate IDs; From may also be the lead session ID.
func (c *Coordinator) SendMessage(teamID, from, to, content string) (Message, error) {
	if to == "" {
		return Message{}, errors.NewValidationError("to", "recipient is required")
	}
	if to == BroadcastRecipient {
		return c.Broadcast(teamID, from, content)
	}
	return c.route(teamID, from, to, MessageDirect, content)
}

// Broadcast delivers a message to every teammate in the team.
func (c *Coordinator) Broadcast(teamID, from, content string) (Message, error) {
	return c.route(teamID, from, BroadcastRecipient, MessageBroadcast, content)
}

// RequestShutdown asks a teammate to stop. The teammate moves to
// shutdown-requested and receives a shutdown_request message.
func (c *Coordinator) RequestShutdown(teamID, from, teammateID, reason string) (Message, error) {
	var n notices
	c.mu.Lock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	tm, err := c.teammateLocked(ts, teammateID)
	if err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	if err := c.setTeammateStatusLocked(&n, ts, tm, TeammateShutdownRequested, "shutdown requested"); err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	content := reason
	if content == "" {
		content = "Please finish your current step and shut down."
	}
	msg := c.appendMessageLocked(&n, ts, from, teammateID, MessageShutdownRequest, content)
	c.mu.Unlock()

	c.deliver(n)
	return msg, nil
}

func (c *Coordinator) route(teamID, from, to string, typ MessageType, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, errors.NewValidationError("content", "message content is required")
	}
	if from == "" {
		return Message{}, errors.NewValidationError("from", "sender is required")
	}

	var n notices
	c.mu.Lock()
	ts, err := c.activeTeamLocked(teamID)
	if err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	if typ != MessageBroadcast {
		tm, err := c.teammateLocked(ts, to)
		if err != nil {
			c.mu.Unlock()
			return Message{}, err
		}
		if tm.Status == TeammateShutdown {
			c.mu.Unlock()
			return Message{}, errors.NewValidationError("to", fmt.Sprintf("teammate %q is shut down", tm.Name))
		}
	}
	msg := c.appendMessageLocked(&n, ts, from, to, typ, content)
	c.mu.Unlock()

	c.deliver(n)
	return msg, nil
}

// appendMessageLocked stores a message and queues its notifications.
// Caller holds c.mu.
func (c *Coordinator) appendMessageLocked(n *notices, ts *teamState, from, to string, typ MessageType, content string) Message {
	msg := Message{
		ID:        c.newID(),
		TeamID:    ts.team.ID,
		From:      from,
		To:        to,
		Type:      typ,
		Content:   content,
		Timestamp: c.now(),
	}
	ts.messages = append(ts.messages, msg)
	ts.touch(msg.Timestamp)

	n.publish(event.MessageSent, ts.team.ID, msg)
	c.record(n, ts, event.MessageSent, from, "", fmt.Sprintf("%s from %s to %s", typ, c.displayName(ts, from), c.displayName(ts, to)),
		map[string]any{"messageId": msg.ID, "to": to, "messageType": string(typ)})
	return msg
}

func (c *Coordinator) displayName(ts *teamState, id string) string {
	if id == BroadcastRecipient {
		return "team"
	}
	if tm := ts.teammate(id); tm != nil {
		return tm.Name
	}
	return id
}

// MessageFilter narrows Messages. Zero values match everything.
type MessageFilter struct {
	// To selects messages addressed to this teammate, including broadcasts.
	To    string
	Since time.Time
}

// Messages returns the team's messages in send order.
func (c *Coordinator) Messages(teamID string, f MessageFilter) ([]Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, m := range ts.messages {
		if f.To != "" && m.To != f.To && !m.IsBroadcast() {
			continue
		}
		if !f.Since.IsZero() && !m.Timestamp.After(f.Since) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Activity returns the most recent limit activity entries, oldest first.
// A limit of 0 returns the whole in-memory log.
func (c *Coordinator) Activity(teamID string, limit int) ([]ActivityEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, err := c.teamLocked(teamID)
	if err != nil {
		return nil, err
	}
	entries := ts.activity
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]ActivityEntry, len(entries))
	copy(out, entries)
	return out, nil
}
