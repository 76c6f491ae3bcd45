// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status    int
		want      Class
		retryable bool
	}{
		{200, ClassOK, false},
		{204, ClassOK, false},
		{400, ClassBadRequest, false},
		{401, ClassAuth, false},
		{403, ClassAuth, false},
		{404, ClassBadRequest, false},
		{408, ClassServer, true},
		{409, ClassServer, true},
		{422, ClassBadRequest, false},
		{429, ClassRateLimited, true},
		{500, ClassServer, true},
		{502, ClassServer, true},
		{503, ClassServer, true},
		{529, ClassServer, true},
		{302, ClassUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			got := Classify(tt.status)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.retryable, got.Retryable())
		})
	}
}

func TestRetryAfter(t *testing.T) {
	mk := func(v string) *http.Response {
		h := http.Header{}
		if v != "" {
			h.Set("Retry-After", v)
		}
		return &http.Response{Header: h}
	}

	assert.Equal(t, time.Duration(0), RetryAfter(nil))
	assert.Equal(t, time.Duration(0), RetryAfter(mk("")))
	assert.Equal(t, 3*time.Second, RetryAfter(mk("3")))
	assert.Equal(t, time.Duration(0), RetryAfter(mk("soon")))
	assert.Equal(t, maxRetryAfter, RetryAfter(mk("86400")))

	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	d := RetryAfter(mk(future))
	assert.Greater(t, d, 5*time.Second)
	assert.LessOrEqual(t, d, 10*time.Second)
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(context.Canceled))
	assert.False(t, IsTimeout(errors.New("boom")))
}

func TestIsNetwork_ClientTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer ts.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	_, err := client.Get(ts.URL)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, IsNetwork(err))
}

func TestIsNetwork_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := http.Get(url)
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.False(t, IsNetwork(errors.New("plain")))
}

func TestReadErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "  "+strings.Repeat("x", errorBodyLimit+100))
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)

	body := ReadErrorBody(resp)
	assert.Len(t, body, errorBodyLimit-2)
}
