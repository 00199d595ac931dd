// Package llm defines the provider port shared by the build pipeline and
// the gate evaluator. Implementations live under internal/adapter.
package llm

import (
	"context"

	"github.com/epiphytic/girt/internal/domain/build"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic chat request.
type Request struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
}

// Response is the provider's reply with token accounting.
type Response struct {
	Content string
	Usage   build.TokenUsage
}

// Client is the port interface for LLM providers. Implementations must be
// safe for concurrent use.
type Client interface {
	// Chat sends one request and returns the full response. The context
	// deadline bounds the call.
	Chat(ctx context.Context, req Request) (*Response, error)
}
