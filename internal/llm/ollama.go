// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/litminer/internal/httputil"
	"github.com/pdiddy/litminer/pkg/types"
)

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	baseURL string
	model   string
	cfg     types.ProviderConfig
	client  *http.Client
}

// NewOllamaClient creates a client for the Ollama chat API.
func NewOllamaClient(cfg types.ProviderConfig) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		cfg:     cfg,
		client:  &http.Client{},
	}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Format   string          `json:"format,omitempty"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// Analyze sends prompt to /api/chat in JSON mode.
func (c *OllamaClient) Analyze(ctx context.Context, prompt string) (Response, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaRequest{
		Model:    c.model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Format:   "json",
		Options: ollamaOptions{
			Temperature: c.cfg.Temperature,
			TopP:        c.cfg.TopP,
			NumPredict:  c.cfg.MaxTokens,
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, transportError("ollama", err)
	}

	if httputil.Classify(resp.StatusCode) != httputil.ClassOK {
		msg := httputil.ReadErrorBody(resp)
		var oe ollamaError
		if json.Unmarshal([]byte(msg), &oe) == nil && oe.Error != "" {
			msg = oe.Error
		}
		e := statusError("ollama", resp.StatusCode, msg, nil)
		e.RetryAfter = httputil.RetryAfter(resp)
		return Response{}, e
	}
	defer resp.Body.Close()

	var oResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return Response{}, transportError("ollama", fmt.Errorf("decoding response: %w", err))
	}

	return Response{
		Text:         oResp.Message.Content,
		Model:        oResp.Model,
		FinishReason: oResp.DoneReason,
		InputTokens:  oResp.PromptEvalCount,
		OutputTokens: oResp.EvalCount,
		Duration:     time.Since(start),
	}, nil
}

// Name returns "ollama".
func (c *OllamaClient) Name() string { return "ollama" }

// Model returns the configured model.
func (c *OllamaClient) Model() string { return c.model }

func init() {
	Register(Provider{
		Name:         "ollama",
		DefaultModel: "llama3.2",
		BaseURL:      "http://localhost:11434",
		Factory: func(cfg types.ProviderConfig) (Client, error) {
			return NewOllamaClient(cfg), nil
		},
	})
}
