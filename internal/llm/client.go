// Package llm provides chat-completion clients for the model providers that
// competitors run on. Each client speaks its provider's REST API directly
// and reports token usage and latency for billing.
package llm

import (
	"context"
	"fmt"
	"time"
)

// defaultTimeout bounds a single model call. Reasoning models can be slow.
const defaultTimeout = 120 * time.Second

// Request is a single generation request.
type Request struct {
	Prompt       string
	SystemPrompt string
	JSONMode     bool
	MaxTokens    int
	Temperature  float64
}

// Response is a successful generation result.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Model            string
}

// TotalTokens returns prompt plus completion tokens.
func (r *Response) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Client generates completions from one provider/model pairing.
type Client interface {
	// Generate performs one model call. A non-nil error means the call
	// failed at the transport or API level; the content was not produced.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Provider returns the provider name, e.g. "openrouter".
	Provider() string

	// Model returns the model identifier.
	Model() string
}

// NewClient constructs a Client for the named provider. apiKey must be
// non-empty.
func NewClient(provider, model, apiKey string) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: missing API key for provider %q", provider)
	}
	switch provider {
	case "openrouter":
		return NewOpenRouterClient(model, apiKey), nil
	case "gemini":
		return NewGeminiClient(model, apiKey), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}
