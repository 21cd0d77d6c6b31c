package heartbeat

import (
	"testing"
	"time"
)

func TestResolveProfile(t *testing.T) {
	tests := []struct {
		model string
		want  Profile
	}{
		{"claude-opus-4-1", Profile{180 * time.Second, 90 * time.Second}},
		{"claude-haiku-4-5", Profile{60 * time.Second, 30 * time.Second}},
		{"o3-mini", Profile{240 * time.Second, 120 * time.Second}},
		{"kimi-k2-turbo", Profile{150 * time.Second, 75 * time.Second}},
		{"gpt-4o", Profile{150 * time.Second, 75 * time.Second}},
		{"mystery", DefaultProfile},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := ResolveProfile(tt.model, nil); got != tt.want {
				t.Errorf("ResolveProfile(%q) = %+v, want %+v", tt.model, got, tt.want)
			}
		})
	}
}

func TestResolveProfile_Overrides(t *testing.T) {
	overrides := map[string]Profile{
		"sonnet":     {SoftProbe: 200 * time.Second},
		"sonnet-4-5": {SoftProbe: 40 * time.Second, ExpectedSilence: 90 * time.Second},
	}

	got := ResolveProfile("claude-sonnet-4", overrides)
	if got.SoftProbe != 200*time.Second || got.ExpectedSilence != 60*time.Second {
		t.Errorf("partial override = %+v", got)
	}

	got = ResolveProfile("claude-sonnet-4-5", overrides)
	if got.SoftProbe != 40*time.Second {
		t.Errorf("longest key should win, got %+v", got)
	}
	if got.ExpectedSilence >= got.SoftProbe {
		t.Errorf("ExpectedSilence %v must stay below SoftProbe %v", got.ExpectedSilence, got.SoftProbe)
	}
}

func TestClassifyActivity(t *testing.T) {
	tests := []struct {
		recent []string
		want   string
	}{
		{nil, ActivityWorking},
		{[]string{"Read", "Edit"}, ActivityImplementing},
		{[]string{"Grep", "Glob"}, ActivityExploring},
		{[]string{"WebSearch"}, ActivityResearching},
		{[]string{"TodoWrite"}, ActivityTodo},
		{[]string{"Task"}, ActivityDelegating},
		{[]string{"Bash", "Read"}, ActivityExploring},
		{[]string{"Bash"}, ActivityCommands},
		{[]string{"mcp__github__create_issue"}, ActivityWorking},
		{[]string{"Bash", "Bash2", "Bash3", "Edit"}, ActivityCommands},
		{[]string{"multi_edit"}, ActivityImplementing},
	}
	for _, tt := range tests {
		if got := ClassifyActivity(tt.recent); got != tt.want {
			t.Errorf("ClassifyActivity(%v) = %q, want %q", tt.recent, got, tt.want)
		}
	}
}
