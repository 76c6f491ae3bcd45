// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/pdiddy/litminer/internal/httputil"
	"github.com/pdiddy/litminer/pkg/types"
)

// openAIFlavor captures the per-provider differences of the
// OpenAI-compatible chat completions APIs.
type openAIFlavor struct {
	jsonMode bool
	extra    map[string]any
}

// OpenAIClient talks to OpenAI and to the OpenAI-compatible providers.
type OpenAIClient struct {
	client openai.Client
	name   string
	model  string
	cfg    types.ProviderConfig
	flavor openAIFlavor
}

// newOpenAIClient creates a chat completions client. SDK retries are
// disabled; the worker pool owns retry policy.
func newOpenAIClient(name string, cfg types.ProviderConfig, flavor openAIFlavor) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range flavor.extra {
		opts = append(opts, option.WithJSONSet(k, v))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		name:   name,
		model:  cfg.Model,
		cfg:    cfg,
		flavor: flavor,
	}
}

// Analyze sends prompt as a single user message.
func (c *OpenAIClient) Analyze(ctx context.Context, prompt string) (Response, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(c.cfg.Temperature),
		TopP:        openai.Float(c.cfg.TopP),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.MaxTokens))
	}
	if c.flavor.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, c.classify(err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, &APIError{Provider: c.name, Kind: ErrServer, Message: "no choices in response"}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return Response{}, &APIError{Provider: c.name, Kind: ErrContentPolicy, Message: "reply withheld by content filter"}
	}

	return Response{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Duration:     time.Since(start),
	}, nil
}

func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return transportError(c.name, err)
	}

	msg := apiErr.Message
	if msg == "" {
		msg = err.Error()
	}
	e := statusError(c.name, apiErr.StatusCode, msg, err)
	switch apiErr.Code {
	case "content_policy_violation", "content_filter":
		e.Kind = ErrContentPolicy
	case "invalid_api_key":
		e.Kind = ErrAuth
	}
	e.RetryAfter = httputil.RetryAfter(apiErr.Response)
	return e
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string { return c.name }

// Model returns the configured model.
func (c *OpenAIClient) Model() string { return c.model }

func init() {
	compatible := []struct {
		name, model, baseURL, keyEnv string
		flavor                       openAIFlavor
	}{
		{"openai", "gpt-4o", "", "OPENAI_API_KEY", openAIFlavor{jsonMode: true}},
		{"deepseek", "deepseek-chat", "https://api.deepseek.com", "DEEPSEEK_API_KEY", openAIFlavor{}},
		{"moonshot", "moonshot-v1-8k", "https://api.moonshot.cn/v1", "MOONSHOT_API_KEY", openAIFlavor{jsonMode: true}},
		{"intern-ai", "intern-s1", "https://chat.intern-ai.org.cn/api/v1", "INTERN_AI_API_KEY", openAIFlavor{extra: map[string]any{"thinking_mode": false}}},
	}

	for _, p := range compatible {
		Register(Provider{
			Name:         p.name,
			DefaultModel: p.model,
			BaseURL:      p.baseURL,
			KeyEnv:       p.keyEnv,
			Factory: func(cfg types.ProviderConfig) (Client, error) {
				return newOpenAIClient(p.name, cfg, p.flavor), nil
			},
		})
	}
}
