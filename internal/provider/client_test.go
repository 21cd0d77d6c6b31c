package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/crew/internal/errors"
)

func TestAnthropicClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-sonnet-4-5", req.Model)
		assert.Equal(t, "be strict", req.System)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)

		_, _ = w.Write([]byte(`{"model":"claude-sonnet-4-5","content":[{"type":"thinking","text":"hmm"},{"type":"text","text":"{\"score\":90}"},{"type":"text","text":"ignored"}],"usage":{"input_tokens":12,"output_tokens":5}}`))
	}))
	defer server.Close()

	c := NewAnthropicClient("test-key", WithBaseURL(server.URL))
	resp, err := c.Complete(context.Background(), Request{Model: "claude-sonnet-4-5", System: "be strict", Prompt: "review"})
	require.NoError(t, err)
	assert.Equal(t, `{"score":90}`, resp.Text)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)
	assert.Equal(t, Anthropic, c.Provider())
}

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-moon", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, 512, req.MaxTokens)

		_, _ = w.Write([]byte(`{"model":"kimi-k2","choices":[{"message":{"role":"assistant","content":"first"}},{"message":{"role":"assistant","content":"second"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`))
	}))
	defer server.Close()

	c := NewOpenAIClient(Moonshot, "sk-moon", WithBaseURL(server.URL))
	resp, err := c.Complete(context.Background(), Request{Model: "kimi-k2", System: "sys", Prompt: "p", MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)
	assert.Equal(t, Moonshot, c.Provider())
}

func TestClient_HTTPErrorBecomesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	c := NewOpenAIClient(OpenAI, "k", WithBaseURL(server.URL))
	_, err := c.Complete(context.Background(), Request{Model: "gpt-4.1", Prompt: "p"})
	require.Error(t, err)

	var pe *errors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Equal(t, errors.KindProviderHTTP, errors.KindOf(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestClient_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	_, err := NewAnthropicClient("k", WithBaseURL(server.URL)).Complete(context.Background(), Request{Prompt: "p"})
	assert.ErrorContains(t, err, "empty response")
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewAnthropicClient("k", WithBaseURL(server.URL)).Complete(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, errors.KindTimeout, errors.KindOf(err))
}

func TestNewClient(t *testing.T) {
	keys := StaticKeys{Anthropic: "a", OpenAI: "o", OpenAIBaseURL: "https://proxy.example/v1/"}

	_, err := NewClient(Moonshot, keys)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoCredentials))

	c, err := NewClient(OpenAI, keys)
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example/v1/chat/completions", c.(*OpenAIClient).cfg.baseURL)

	c, err = Factory{Keys: keys}.Client(Anthropic)
	require.NoError(t, err)
	assert.Equal(t, Anthropic, c.Provider())

	_, err = NewClient(Name("bedrock"), StaticKeys{})
	assert.Error(t, err)
}

func TestEnvKeyProvider(t *testing.T) {
	t.Setenv("MOONSHOT_API_KEY", " moon ")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CUSTOM_OPENAI", "sk-custom")

	keys := EnvKeyProvider{OpenAIEnv: "CUSTOM_OPENAI"}
	assert.Equal(t, "moon", keys.MoonshotAPIKey())
	assert.Empty(t, keys.AnthropicAPIKey())
	assert.Equal(t, "sk-custom", keys.OpenAIConfig().APIKey)
	assert.True(t, AnyCredentials(keys))
	assert.False(t, AnyCredentials(StaticKeys{}))
	assert.False(t, HasCredentials(nil, Anthropic))
}
