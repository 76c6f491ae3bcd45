// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm adapts LLM provider APIs to one narrow interface: send a
// rendered prompt, get the reply text back. Providers do not retry on their
// own; every failure is returned as an *APIError whose Kind tells the
// worker pool whether another attempt can help.
package llm

import (
	"context"
	"time"
)

// Client sends one prompt to a model and returns its reply.
type Client interface {
	Analyze(ctx context.Context, prompt string) (Response, error)
	Name() string
	Model() string
}

// Response is a model reply with its usage accounting.
type Response struct {
	Text         string
	Model        string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// ClientFunc adapts a function to the Client interface. Tests use it for
// stub providers.
type ClientFunc func(ctx context.Context, prompt string) (Response, error)

// Analyze calls f.
func (f ClientFunc) Analyze(ctx context.Context, prompt string) (Response, error) {
	return f(ctx, prompt)
}

// Name returns "func".
func (f ClientFunc) Name() string { return "func" }

// Model returns "stub".
func (f ClientFunc) Model() string { return "stub" }

// withTimeout bounds one request. A zero timeout leaves ctx unchanged.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
