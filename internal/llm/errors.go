// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/litminer/internal/httputil"
)

// Kind classifies a provider failure.
type Kind string

const (
	ErrAuth          Kind = "auth"
	ErrBadRequest    Kind = "bad_request"
	ErrContentPolicy Kind = "content_policy"
	ErrRateLimited   Kind = "rate_limited"
	ErrServer        Kind = "server"
	ErrNetwork       Kind = "network"
)

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	switch k {
	case ErrRateLimited, ErrServer, ErrNetwork:
		return true
	}
	return false
}

// APIError is a classified provider failure.
type APIError struct {
	Provider   string
	StatusCode int
	Kind       Kind
	Message    string

	// RetryAfter is the server-suggested wait for rate-limited requests.
	RetryAfter time.Duration

	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether err is worth another attempt. Unclassified
// transport errors and timeouts are retryable; a cancelled context is not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind.Retryable()
	}
	return httputil.IsNetwork(err)
}

// KindOf returns the Kind of err, or "" when err is not an *APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// statusError builds an APIError from an HTTP status.
func statusError(provider string, status int, msg string, err error) *APIError {
	kind := ErrServer
	switch httputil.Classify(status) {
	case httputil.ClassAuth:
		kind = ErrAuth
	case httputil.ClassBadRequest:
		kind = ErrBadRequest
	case httputil.ClassRateLimited:
		kind = ErrRateLimited
	}
	return &APIError{Provider: provider, StatusCode: status, Kind: kind, Message: msg, Err: err}
}

// transportError wraps a failure that never produced an HTTP response.
// Cancellation is passed through untouched so callers can tell an
// abandoned request from a failed one.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &APIError{Provider: provider, Kind: ErrNetwork, Message: err.Error(), Err: err}
}
