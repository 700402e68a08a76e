// Package llm is the stateless call adapter between promptbench and the
// two supported LLM providers.
//
// A request carries everything a call needs (provider, model, messages,
// sampling parameters, and the credential), so the gateway holds no
// per-user state and a credential change between calls takes effect
// immediately.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"

	telem "github.com/timvw/promptbench/internal/otel"
)

// Provider identifies which upstream API a model is served by.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ProviderForModel classifies a model id. Models following the OpenAI
// naming convention ("gpt" prefix) route to the chat-completions API;
// everything else routes to the Anthropic messages API. There is no
// stored provider field; this mapping is the entire provider concept,
// resolved once per run and threaded through.
func ProviderForModel(model string) Provider {
	if strings.HasPrefix(model, "gpt") {
		return ProviderOpenAI
	}
	return ProviderAnthropic
}

// Roles accepted in a message list.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one entry in an ordered chat message list.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call.
type Request struct {
	Provider    Provider  `json:"provider"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int64     `json:"maxTokens"`
	TopP        float64   `json:"topP"`
	APIKey      string    `json:"-"`
}

// Response is the first completion's text.
type Response struct {
	Content string `json:"content"`
}

// Gateway produces plain-text output for a completion request.
type Gateway interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// TransportError is a failed provider call: a non-2xx response or a
// network failure. Message carries the provider-supplied error text when
// one was available, else a generic failure message.
type TransportError struct {
	Provider Provider
	Message  string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// noResponseFallback is returned as content when the provider answered
// with an empty completion.
const noResponseFallback = "No response generated"

// anthropicMaxTokensCap bounds requested max tokens on Anthropic calls.
// Applied uniformly on every Anthropic call regardless of call path.
const anthropicMaxTokensCap = 8192

var tracer = otel.Tracer("promptbench/llm")

// Client routes requests to the provider named in the request. BaseURL
// overrides exist for proxies and Azure-hosted deployments; zero values
// use each SDK's default endpoint.
type Client struct {
	OpenAIBaseURL    string
	AnthropicBaseURL string
	Metrics          *telem.Metrics
}

// Complete dispatches the request to its provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.APIKey == "" {
		return nil, &TransportError{Provider: req.Provider, Message: "API key is required"}
	}
	switch req.Provider {
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, req)
	case ProviderAnthropic:
		return c.completeAnthropic(ctx, req)
	default:
		return nil, &TransportError{Provider: req.Provider, Message: fmt.Sprintf("invalid provider %q", req.Provider)}
	}
}
