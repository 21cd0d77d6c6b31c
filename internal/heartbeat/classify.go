package heartbeat

import "strings"

// Activity labels.
const (
	ActivityThinking     = "Thinking / generating response"
	ActivityImplementing = "Implementing changes"
	ActivityExploring    = "Exploring codebase"
	ActivityResearching  = "Researching"
	ActivityTodo         = "Updating task progress"
	ActivityDelegating   = "Delegating to sub-agent"
	ActivityCommands     = "Running commands"
	ActivityWorking      = "Working"
)

type activityPattern struct {
	label string
	tools map[string]bool
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Checked in order; shell tools only decide when nothing else matched.
var activityPatterns = []activityPattern{
	{ActivityImplementing, set("edit", "write", "multiedit", "notebookedit", "strreplace", "createfile", "applypatch")},
	{ActivityExploring, set("read", "grep", "glob", "ls", "listdir", "view", "search")},
	{ActivityResearching, set("websearch", "webfetch", "fetch")},
	{ActivityTodo, set("todowrite", "todoread")},
	{ActivityDelegating, set("task", "agent", "dispatchagent")},
	{ActivityCommands, set("bash", "shell", "exec", "runcommand", "terminal", "killshell", "bashoutput")},
}

// normalizeTool lowercases a tool name, strips an MCP server prefix
// ("mcp__server__tool") and drops separators.
func normalizeTool(name string) string {
	if i := strings.LastIndex(name, "__"); i >= 0 {
		name = name[i+2:]
	}
	name = strings.ToLower(name)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}

// ClassifyActivity labels a teammate's activity from its most recent
// distinct tool names (most recent first). Only the first three are used.
func ClassifyActivity(recent []string) string {
	if len(recent) > 3 {
		recent = recent[:3]
	}
	for _, p := range activityPatterns {
		for _, tool := range recent {
			if p.tools[normalizeTool(tool)] {
				return p.label
			}
		}
	}
	return ActivityWorking
}
