// Package provider issues completion requests to the model providers used
// for AI review: Moonshot and OpenAI through the chat-completions API, and
// Anthropic through the Messages API.
//
// Credentials come from a [KeyProvider]; [Resolve] decides which provider a
// call uses when the configured one has no credentials.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Iron-Ham/crew/internal/errors"
)

const (
	anthropicAPIURL = "https://api.anthropic.com/v1/messages"
	openAIAPIURL    = "https://api.openai.com/v1/chat/completions"
	moonshotAPIURL  = "https://api.moonshot.ai/v1/chat/completions"

	anthropicVersion = "2023-06-01"

	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)

// Request is a single-turn completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is the first text block of a completion.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client completes prompts against one provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Provider() Name
}

type clientConfig struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a client.
type ClientOption func(*clientConfig)

// WithBaseURL overrides the endpoint URL (tests, proxies).
func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func newClientConfig(baseURL string, opts []ClientOption) clientConfig {
	cfg := clientConfig{baseURL: baseURL, httpClient: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewClient builds a client for the named provider using credentials from
// keys. It fails with ErrNoCredentials when the provider is not configured.
func NewClient(name Name, keys KeyProvider, opts ...ClientOption) (Client, error) {
	key := APIKey(keys, name)
	if key == "" {
		return nil, errors.Wrapf(errors.ErrNoCredentials, "provider %s", name)
	}
	switch name {
	case Anthropic:
		return NewAnthropicClient(key, opts...), nil
	case Moonshot:
		return NewOpenAIClient(Moonshot, key, append([]ClientOption{WithBaseURL(moonshotAPIURL)}, opts...)...), nil
	case OpenAI:
		base := keys.OpenAIConfig().BaseURL
		if base != "" && !strings.HasSuffix(base, "/chat/completions") {
			base = strings.TrimSuffix(base, "/") + "/chat/completions"
		}
		return NewOpenAIClient(OpenAI, key, append([]ClientOption{WithBaseURL(base)}, opts...)...), nil
	default:
		return nil, errors.NewValidationError("provider", fmt.Sprintf("unknown provider %q", name))
	}
}

// post sends a JSON body and returns the response body, mapping non-2xx
// statuses to ProviderError.
func post(ctx context.Context, cfg clientConfig, name Name, headers map[string]string, payload any) ([]byte, error) {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := cfg.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewStageError(errors.KindTimeout, "", fmt.Sprintf("%s request timed out", name)).WithCause(err)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewProviderError(string(name), resp.StatusCode, string(body))
	}
	return body, nil
}

// -----------------------------------------------------------------------------
// Anthropic Messages API
// -----------------------------------------------------------------------------

// AnthropicClient implements Client using the Anthropic Messages API.
type AnthropicClient struct {
	apiKey string
	cfg    clientConfig
}

// NewAnthropicClient creates an Anthropic client with the given key.
func NewAnthropicClient(apiKey string, opts ...ClientOption) *AnthropicClient {
	return &AnthropicClient{apiKey: apiKey, cfg: newClientConfig(anthropicAPIURL, opts)}
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string         `json:"model"`
	Content []contentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Provider implements Client.
func (c *AnthropicClient) Provider() Name { return Anthropic }

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, r Request) (Response, error) {
	payload := messagesRequest{
		Model:       r.Model,
		MaxTokens:   maxTokens(r),
		System:      r.System,
		Temperature: r.Temperature,
		Messages:    []message{{Role: "user", Content: r.Prompt}},
	}
	body, err := post(ctx, c.cfg, Anthropic, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, payload)
	if err != nil {
		return Response{}, err
	}

	var data messagesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if data.Error != nil {
		return Response{}, fmt.Errorf("API error: %s", data.Error.Message)
	}
	for _, block := range data.Content {
		if block.Type == "text" {
			return Response{
				Text:         block.Text,
				Model:        data.Model,
				InputTokens:  data.Usage.InputTokens,
				OutputTokens: data.Usage.OutputTokens,
			}, nil
		}
	}
	return Response{}, fmt.Errorf("empty response from API")
}

// -----------------------------------------------------------------------------
// OpenAI-compatible chat completions
// -----------------------------------------------------------------------------

// OpenAIClient implements Client for OpenAI-compatible chat-completion
// endpoints. Moonshot uses the same wire format with its own base URL.
type OpenAIClient struct {
	name   Name
	apiKey string
	cfg    clientConfig
}

// NewOpenAIClient creates a chat-completions client reporting as name.
func NewOpenAIClient(name Name, apiKey string, opts ...ClientOption) *OpenAIClient {
	return &OpenAIClient{name: name, apiKey: apiKey, cfg: newClientConfig(openAIAPIURL, opts)}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

// Provider implements Client.
func (c *OpenAIClient) Provider() Name { return c.name }

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, r Request) (Response, error) {
	msgs := make([]message, 0, 2)
	if r.System != "" {
		msgs = append(msgs, message{Role: "system", Content: r.System})
	}
	msgs = append(msgs, message{Role: "user", Content: r.Prompt})

	body, err := post(ctx, c.cfg, c.name, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, chatRequest{Model: r.Model, Messages: msgs, MaxTokens: maxTokens(r), Temperature: r.Temperature})
	if err != nil {
		return Response{}, err
	}

	var data chatResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if data.Error != nil {
		return Response{}, fmt.Errorf("API error: %s", data.Error.Message)
	}
	if len(data.Choices) == 0 {
		return Response{}, fmt.Errorf("empty response from API")
	}
	return Response{
		Text:         data.Choices[0].Message.Content,
		Model:        data.Model,
		InputTokens:  data.Usage.PromptTokens,
		OutputTokens: data.Usage.CompletionTokens,
	}, nil
}

func maxTokens(r Request) int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// Factory builds clients on demand with per-provider options.
type Factory struct {
	Keys    KeyProvider
	Options map[Name][]ClientOption
}

// Client returns a client for the named provider.
func (f Factory) Client(name Name) (Client, error) {
	return NewClient(name, f.Keys, f.Options[name]...)
}
