// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across LLM providers.
package httputil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Class groups HTTP outcomes by how a caller should react to them.
type Class int

const (
	ClassOK Class = iota
	ClassAuth
	ClassBadRequest
	ClassRateLimited
	ClassServer
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassAuth:
		return "auth"
	case ClassBadRequest:
		return "bad_request"
	case ClassRateLimited:
		return "rate_limited"
	case ClassServer:
		return "server"
	default:
		return "unknown"
	}
}

// Retryable reports whether a request that ended in this class may succeed
// if sent again unchanged.
func (c Class) Retryable() bool {
	return c == ClassRateLimited || c == ClassServer
}

// Classify maps an HTTP status code to a Class. 408 and 409 are treated as
// transient, matching the retry rules of the provider SDKs.
func Classify(status int) Class {
	switch {
	case status >= 200 && status < 300:
		return ClassOK
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ClassAuth
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusConflict:
		return ClassServer
	case status >= 500:
		return ClassServer
	case status >= 400:
		return ClassBadRequest
	default:
		return ClassUnknown
	}
}

// maxRetryAfter bounds a server-suggested wait so a misbehaving endpoint
// cannot stall a worker indefinitely.
const maxRetryAfter = 5 * time.Minute

// RetryAfter parses the Retry-After header of resp, in either the
// delay-seconds or the HTTP-date form. It returns 0 when the header is
// absent or unparseable.
func RetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}

	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// IsTimeout reports whether err is a deadline or network timeout. A
// cancelled context is not a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsNetwork reports whether err came from the transport layer rather than
// from an HTTP response.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe) || errors.Is(err, io.ErrUnexpectedEOF)
}

// errorBodyLimit caps how much of an error response body is kept.
const errorBodyLimit = 4 << 10

// ReadErrorBody reads and closes at most a few KB of resp.Body for use in
// an error message.
func ReadErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	io.Copy(io.Discard, resp.Body)
	return strings.TrimSpace(string(data))
}
