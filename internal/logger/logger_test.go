// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Levels(t *testing.T) {
	defer Init(Options{})

	tests := []struct {
		name      string
		opts      Options
		wantDebug bool
		wantInfo  bool
		wantError bool
	}{
		{name: "default is info", wantInfo: true, wantError: true},
		{name: "debug", opts: Options{Debug: true}, wantDebug: true, wantInfo: true, wantError: true},
		{name: "quiet", opts: Options{Quiet: true}, wantError: true},
		{name: "quiet wins over debug", opts: Options{Debug: true, Quiet: true}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			opts := tt.opts
			opts.Output = &buf
			Init(opts)

			Default().Debug("debug-msg")
			Default().Info("info-msg")
			Default().Error("error-msg")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, bytes.Contains([]byte(out), []byte("debug-msg")))
			assert.Equal(t, tt.wantInfo, bytes.Contains([]byte(out), []byte("info-msg")))
			assert.Equal(t, tt.wantError, bytes.Contains([]byte(out), []byte("error-msg")))
		})
	}
}

func TestInit_JSON(t *testing.T) {
	defer Init(Options{})

	var buf bytes.Buffer
	Init(Options{JSON: true, Output: &buf})
	With("run_id", "r1").Info("started", "records", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "started", rec["msg"])
	assert.Equal(t, "r1", rec["run_id"])
	assert.Equal(t, float64(3), rec["records"])
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
	assert.False(t, l.Enabled(t.Context(), slog.LevelError))
}
