// Package openaicompat implements the llm port against any
// OpenAI-compatible chat completions endpoint (vLLM, LiteLLM, Ollama's
// compatibility server).
package openaicompat

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/port/llm"
	"github.com/epiphytic/girt/internal/resilience"
)

// Client is an llm.Client speaking the OpenAI chat completions protocol
// against a configurable base URL.
type Client struct {
	client  openai.Client
	model   string
	breaker *resilience.Breaker
}

// New creates a client for the given endpoint. apiKey may be empty for
// unauthenticated local servers.
func New(baseURL, model, apiKey string) *Client {
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(180 * time.Second),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Client{client: openai.NewClient(opts...), model: model}
}

// SetBreaker attaches a circuit breaker to all requests.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	var completion *openai.ChatCompletion
	call := func() error {
		var err error
		completion, err = c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("chat completion: %w", err)
		}
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
	} else if err := call(); err != nil {
		return nil, err
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: no choices in response")
	}

	return &llm.Response{
		Content: completion.Choices[0].Message.Content,
		Usage: build.TokenUsage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}
