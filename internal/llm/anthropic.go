// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/litminer/internal/httputil"
	"github.com/pdiddy/litminer/pkg/types"
)

// AnalyzeDelimiter separates instructions from the record text in a
// rendered prompt. Anthropic receives the part before it as the system
// prompt.
const AnalyzeDelimiter = "--- TEXT TO ANALYZE ---"

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
	cfg    types.ProviderConfig
}

// NewAnthropicClient creates a Messages API client with SDK retries
// disabled.
func NewAnthropicClient(cfg types.ProviderConfig) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		cfg:    cfg,
	}
}

// SplitPrompt splits a rendered prompt at AnalyzeDelimiter. The user part
// keeps the delimiter. Without a delimiter the whole prompt is the user
// part.
func SplitPrompt(prompt string) (system, user string) {
	i := strings.Index(prompt, AnalyzeDelimiter)
	if i < 0 {
		return "", prompt
	}
	return strings.TrimSpace(prompt[:i]), prompt[i:]
}

// Analyze sends prompt, with its instruction part as the system prompt.
func (c *AnthropicClient) Analyze(ctx context.Context, prompt string) (Response, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	system, user := SplitPrompt(prompt)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
		Temperature: anthropic.Float(c.cfg.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, c.classify(err)
	}

	if string(resp.StopReason) == "refusal" {
		return Response{}, &APIError{Provider: "anthropic", Kind: ErrContentPolicy, Message: "model refused the request"}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	return Response{
		Text:         text.String(),
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Duration:     time.Since(start),
	}, nil
}

func (c *AnthropicClient) classify(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return transportError("anthropic", err)
	}
	e := statusError("anthropic", apiErr.StatusCode, err.Error(), err)
	e.RetryAfter = httputil.RetryAfter(apiErr.Response)
	return e
}

// Name returns "anthropic".
func (c *AnthropicClient) Name() string { return "anthropic" }

// Model returns the configured model.
func (c *AnthropicClient) Model() string { return c.model }

func init() {
	Register(Provider{
		Name:         "anthropic",
		DefaultModel: "claude-sonnet-4-5",
		KeyEnv:       "ANTHROPIC_API_KEY",
		Factory: func(cfg types.ProviderConfig) (Client, error) {
			return NewAnthropicClient(cfg), nil
		},
	})
}
