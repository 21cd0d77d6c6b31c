package provider

import (
	"fmt"
	"strings"
)

var defaultModels = map[Name]string{
	Moonshot:  "kimi-k2-turbo-preview",
	Anthropic: "claude-sonnet-4-5",
	OpenAI:    "gpt-4.1",
}

var modelPrefixes = map[Name][]string{
	Moonshot:  {"kimi", "moonshot"},
	Anthropic: {"claude"},
	OpenAI:    {"gpt", "o1", "o3", "o4", "chatgpt"},
}

// DefaultModel returns the model used when none is configured for a provider.
func DefaultModel(name Name) string {
	return defaultModels[name]
}

// CompatibleModel reports whether model can be served by the provider,
// judged by its name prefix.
func CompatibleModel(name Name, model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range modelPrefixes[name] {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

// Resolution is the provider and model a call will actually use.
type Resolution struct {
	Provider Name
	Model    string
	// FellBack is true when the preferred provider had no credentials.
	FellBack bool
	// Note explains a fallback or model substitution.
	Note string
}

// Resolve picks the provider for a call. The preferred provider is used
// when it has credentials; otherwise the first provider in FallbackOrder
// that does. A model whose name does not fit the chosen provider is
// replaced by that provider's default. Returns false when no provider has
// credentials.
func Resolve(keys KeyProvider, preferred Name, model string) (Resolution, bool) {
	pick := func(name Name, fellBack bool) Resolution {
		r := Resolution{Provider: name, Model: model, FellBack: fellBack}
		if fellBack {
			r.Note = fmt.Sprintf("%s credentials not configured; using %s", preferred, name)
		}
		if model == "" || !CompatibleModel(name, model) {
			r.Model = DefaultModel(name)
			if model != "" {
				r.Note = strings.TrimPrefix(r.Note+fmt.Sprintf("; model %s replaced by %s", model, r.Model), "; ")
			}
		}
		return r
	}

	if preferred.IsValid() && HasCredentials(keys, preferred) {
		return pick(preferred, false), true
	}
	for _, name := range FallbackOrder {
		if HasCredentials(keys, name) {
			return pick(name, true), true
		}
	}
	return Resolution{}, false
}
