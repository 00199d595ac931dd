// Package anthropic implements the llm port against the Anthropic
// Messages API, supporting both API keys and OAuth bearer tokens.
package anthropic

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/port/llm"
	"github.com/epiphytic/girt/internal/resilience"
	"github.com/epiphytic/girt/internal/secrets"
)

// oauthTokenPrefix marks tokens that must be sent as a bearer with the
// provider's beta opt-in headers instead of the API-key header.
const oauthTokenPrefix = "sk-ant-oat"

const oauthBetaHeader = "claude-code-20250219,oauth-2025-04-20"

// Client is an llm.Client backed by the Anthropic Messages API.
type Client struct {
	client  sdk.Client
	model   string
	breaker *resilience.Breaker
}

// New creates a client with an explicit credential. Engineer-sized
// responses can take a while, hence the generous request timeout.
func New(model, credential string) *Client {
	opts := []option.RequestOption{
		option.WithRequestTimeout(180 * time.Second),
	}
	if strings.HasPrefix(credential, oauthTokenPrefix) {
		opts = append(opts,
			option.WithAuthToken(credential),
			option.WithHeader("anthropic-beta", oauthBetaHeader),
		)
	} else {
		opts = append(opts, option.WithAPIKey(credential))
	}
	return &Client{client: sdk.NewClient(opts...), model: model}
}

// NewFromCredentials resolves the credential in priority order:
//
//  1. ANTHROPIC_API_KEY environment variable
//  2. stored OAuth token (auto-refreshed)
//  3. configFallback from girt.yaml
func NewFromCredentials(ctx context.Context, model, configFallback string, oauth *secrets.OAuthStore) (*Client, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return New(model, key), nil
	}
	if oauth != nil {
		token, err := oauth.GetValidToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("anthropic oauth token: %w", err)
		}
		if token != "" {
			return New(model, token), nil
		}
	}
	if configFallback != "" {
		return New(model, configFallback), nil
	}
	return nil, fmt.Errorf("anthropic credentials not found: set ANTHROPIC_API_KEY, run `girt auth login`, or set llm.api_key in girt.yaml")
}

// SetBreaker attaches a circuit breaker to all requests.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}

	var msg *sdk.Message
	call := func() error {
		var err error
		msg, err = c.client.Messages.New(ctx, params)
		if err != nil {
			return fmt.Errorf("anthropic messages: %w", err)
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

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("anthropic messages: no text content in response")
	}

	return &llm.Response{
		Content: content.String(),
		Usage: build.TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
