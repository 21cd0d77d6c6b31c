package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Iron-Ham/crew/internal/errors"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int64) int64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int64(v)
}

// floatArg extracts a float argument, returning defaultVal when absent.
func floatArg(req mcp.CallToolRequest, key string, defaultVal float64) float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return v
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// listArg accepts either a JSON array of strings or a comma-separated string.
func listArg(req mcp.CallToolRequest, key string) []string {
	var raw []string
	switch v := req.GetArguments()[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// timeArg parses an RFC 3339 timestamp argument. Missing values yield the
// zero time.
func timeArg(req mcp.CallToolRequest, key string) (time.Time, error) {
	s := req.GetString(key, "")
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("'%s' must be an RFC 3339 timestamp: %w", key, err)
	}
	return t, nil
}

// requireArgs returns an error result naming the first missing argument.
func requireArgs(req mcp.CallToolRequest, keys ...string) *mcp.CallToolResult {
	for _, k := range keys {
		if strings.TrimSpace(req.GetString(k, "")) == "" {
			return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", k))
		}
	}
	return nil
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult converts a core error into a tool error the model can act on.
func errorResult(err error) *mcp.CallToolResult {
	msg := err.Error()
	if hint := suggestion(err); hint != "" {
		msg += "\n\nSuggestion: " + hint
	}
	return mcp.NewToolResultError(msg)
}

func suggestion(err error) string {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return "Check the ID; crew_team_status lists teams, teammates and tasks"
	case errors.Is(err, errors.ErrTeamClosed):
		return "The team was cleaned up; spawn a teammate with a new team_id to start again"
	case errors.Is(err, errors.ErrInvalidTransition):
		return "Read the current status with crew_team_status before changing it"
	case errors.Is(err, errors.ErrInvalidInput):
		return "Fix the named field and call the tool again"
	case errors.KindOf(err) != errors.KindUnknown:
		return errors.SuggestionFor(err)
	default:
		return ""
	}
}
