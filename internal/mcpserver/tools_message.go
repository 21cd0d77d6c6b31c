package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Iron-Ham/crew/internal/team"
)

// SendMessageTool handles the crew_send_message MCP tool.
type SendMessageTool struct {
	coord *team.Coordinator
}

// NewSendMessageTool creates a SendMessageTool.
func NewSendMessageTool(coord *team.Coordinator) *SendMessageTool {
	return &SendMessageTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_send_message.
func (t *SendMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_send_message",
		mcp.WithDescription("Send a message to a teammate, or to the whole team with to='*'."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("from", mcp.Required(), mcp.Description("Sender teammate ID")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Recipient teammate ID, or * to broadcast")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message body")),
	)
}

// Handle processes the crew_send_message tool call.
func (t *SendMessageTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id", "from", "to", "content"); r != nil {
		return r, nil
	}
	msg, err := t.coord.SendMessage(
		req.GetString("team_id", ""),
		req.GetString("from", ""),
		req.GetString("to", ""),
		req.GetString("content", ""),
	)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(msg)
}

// ReadMessagesTool handles the crew_read_messages MCP tool.
type ReadMessagesTool struct {
	coord *team.Coordinator
}

// NewReadMessagesTool creates a ReadMessagesTool.
func NewReadMessagesTool(coord *team.Coordinator) *ReadMessagesTool {
	return &ReadMessagesTool{coord: coord}
}

// Definition returns the MCP tool definition for crew_read_messages.
func (t *ReadMessagesTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_read_messages",
		mcp.WithDescription("Read team messages in send order. Filter by recipient (broadcasts included) and time."),
		mcp.WithString("team_id", mcp.Required(), mcp.Description("Team ID")),
		mcp.WithString("to", mcp.Description("Only messages addressed to this teammate ID, plus broadcasts")),
		mcp.WithString("since", mcp.Description("Only messages sent after this RFC 3339 timestamp")),
	)
}

// Handle processes the crew_read_messages tool call.
func (t *ReadMessagesTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r := requireArgs(req, "team_id"); r != nil {
		return r, nil
	}
	since, err := timeArg(req, "since")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := t.coord.Messages(req.GetString("team_id", ""), team.MessageFilter{
		To:    req.GetString("to", ""),
		Since: since,
	})
	if err != nil {
		return errorResult(err), nil
	}
	if msgs == nil {
		msgs = []team.Message{}
	}
	return jsonResult(msgs)
}
