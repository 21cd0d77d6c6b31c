package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		keys         StaticKeys
		preferred    Name
		model        string
		wantOK       bool
		wantProvider Name
		wantModel    string
		wantFellBack bool
	}{
		{
			name:         "preferred available keeps model",
			keys:         StaticKeys{Anthropic: "a"},
			preferred:    Anthropic,
			model:        "claude-opus-4-1",
			wantOK:       true,
			wantProvider: Anthropic,
			wantModel:    "claude-opus-4-1",
		},
		{
			name:         "openai missing falls back to moonshot",
			keys:         StaticKeys{Moonshot: "m", Anthropic: "a"},
			preferred:    OpenAI,
			model:        "gpt-4.1",
			wantOK:       true,
			wantProvider: Moonshot,
			wantModel:    DefaultModel(Moonshot),
			wantFellBack: true,
		},
		{
			name:         "fallback keeps compatible model",
			keys:         StaticKeys{Anthropic: "a"},
			preferred:    Moonshot,
			model:        "claude-haiku-4-5",
			wantOK:       true,
			wantProvider: Anthropic,
			wantModel:    "claude-haiku-4-5",
			wantFellBack: true,
		},
		{
			name:         "empty model uses default",
			keys:         StaticKeys{OpenAI: "o"},
			preferred:    OpenAI,
			wantOK:       true,
			wantProvider: OpenAI,
			wantModel:    DefaultModel(OpenAI),
		},
		{
			name:      "no credentials",
			preferred: Anthropic,
			model:     "claude-sonnet-4-5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.keys, tt.preferred, tt.model)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantProvider, got.Provider)
			assert.Equal(t, tt.wantModel, got.Model)
			assert.Equal(t, tt.wantFellBack, got.FellBack)
			if tt.wantFellBack {
				assert.NotEmpty(t, got.Note)
			}
		})
	}
}

func TestCompatibleModel(t *testing.T) {
	assert.True(t, CompatibleModel(Moonshot, "kimi-k2-turbo-preview"))
	assert.True(t, CompatibleModel(Moonshot, "moonshot-v1-32k"))
	assert.True(t, CompatibleModel(OpenAI, "o3-mini"))
	assert.False(t, CompatibleModel(Anthropic, "gpt-4o"))
	assert.False(t, CompatibleModel(OpenAI, ""))
}
