package provider

import (
	"os"
	"strings"
)

// Name identifies a model provider.
type Name string

const (
	Moonshot  Name = "moonshot"
	Anthropic Name = "anthropic"
	OpenAI    Name = "openai"
)

// IsValid reports whether n is a known provider.
func (n Name) IsValid() bool {
	return n == Moonshot || n == Anthropic || n == OpenAI
}

// FallbackOrder is the order in which providers are tried when the
// configured provider has no credentials.
var FallbackOrder = []Name{Moonshot, Anthropic, OpenAI}

// OpenAIConfig holds credentials for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// KeyProvider supplies provider credentials. Empty values mean "not configured".
type KeyProvider interface {
	MoonshotAPIKey() string
	AnthropicAPIKey() string
	OpenAIConfig() OpenAIConfig
}

// EnvKeyProvider reads credentials from environment variables. Empty
// variable names fall back to the conventional ones.
type EnvKeyProvider struct {
	MoonshotEnv      string
	AnthropicEnv     string
	OpenAIEnv        string
	OpenAIBaseURLEnv string
}

func envOr(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	return strings.TrimSpace(os.Getenv(name))
}

// MoonshotAPIKey implements KeyProvider.
func (e EnvKeyProvider) MoonshotAPIKey() string { return envOr(e.MoonshotEnv, "MOONSHOT_API_KEY") }

// AnthropicAPIKey implements KeyProvider.
func (e EnvKeyProvider) AnthropicAPIKey() string { return envOr(e.AnthropicEnv, "ANTHROPIC_API_KEY") }

// OpenAIConfig implements KeyProvider.
func (e EnvKeyProvider) OpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:  envOr(e.OpenAIEnv, "OPENAI_API_KEY"),
		BaseURL: envOr(e.OpenAIBaseURLEnv, "OPENAI_BASE_URL"),
	}
}

// StaticKeys is a fixed KeyProvider.
type StaticKeys struct {
	Moonshot      string
	Anthropic     string
	OpenAI        string
	OpenAIBaseURL string
}

// MoonshotAPIKey implements KeyProvider.
func (s StaticKeys) MoonshotAPIKey() string { return s.Moonshot }

// AnthropicAPIKey implements KeyProvider.
func (s StaticKeys) AnthropicAPIKey() string { return s.Anthropic }

// OpenAIConfig implements KeyProvider.
func (s StaticKeys) OpenAIConfig() OpenAIConfig {
	return OpenAIConfig{APIKey: s.OpenAI, BaseURL: s.OpenAIBaseURL}
}

// APIKey returns the credential for a provider, or "".
func APIKey(keys KeyProvider, name Name) string {
	if keys == nil {
		return ""
	}
	switch name {
	case Moonshot:
		return keys.MoonshotAPIKey()
	case Anthropic:
		return keys.AnthropicAPIKey()
	case OpenAI:
		return keys.OpenAIConfig().APIKey
	default:
		return ""
	}
}

// HasCredentials reports whether a provider is usable.
func HasCredentials(keys KeyProvider, name Name) bool {
	return APIKey(keys, name) != ""
}

// AnyCredentials reports whether at least one provider is usable.
func AnyCredentials(keys KeyProvider) bool {
	for _, n := range FallbackOrder {
		if HasCredentials(keys, n) {
			return true
		}
	}
	return false
}
