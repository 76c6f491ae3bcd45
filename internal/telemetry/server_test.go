// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package telemetry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litminer/internal/logger"
)

func TestStartMetricsServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	PoolTasks.WithLabelValues("success").Inc()
	CheckpointFlushes.Inc()

	addr, err := StartMetricsServer(ctx, "127.0.0.1:0", logger.Discard())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	assert.True(t, strings.Contains(text, `litminer_pool_tasks_total{status="success"}`))
	assert.True(t, strings.Contains(text, "litminer_checkpoint_flushes_total"))

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get("http://" + addr + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestStartMetricsServer_BadAddr(t *testing.T) {
	_, err := StartMetricsServer(context.Background(), "not-an-addr", logger.Discard())
	require.Error(t, err)
}
