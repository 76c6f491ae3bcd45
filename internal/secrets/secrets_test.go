// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litminer/internal/logger"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T) string
		want   map[string]string
		errMsg string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "openai-api-key", "  sk-abc123  \n")
				writeFile(t, dir, "deepseek-api-key", "ds_xyz789")
				writeFile(t, dir, "intern-ai-api-key", "ia_456\n")
				return dir
			},
			want: map[string]string{
				"openai-api-key":    "sk-abc123",
				"deepseek-api-key":  "ds_xyz789",
				"intern-ai-api-key": "ia_456",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "anthropic-api-key", "valid-key")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: map[string]string{
				"anthropic-api-key": "valid-key",
			},
		},
		{
			name: "skips dotfiles",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, "moonshot-api-key", "ms_real")
				return dir
			},
			want: map[string]string{
				"moonshot-api-key": "ms_real",
			},
		},
		{
			name: "skips subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "anthropic-api-key", "ak_123")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{
				"anthropic-api-key": "ak_123",
			},
		},
		{
			name: "normalizes file names to key names",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "OpenAI-API-Key.txt", "sk-upper")
				writeFile(t, dir, "anthropic-api-key.key", "ak_suffix")
				return dir
			},
			want: map[string]string{
				"openai-api-key":    "sk-upper",
				"anthropic-api-key": "ak_suffix",
			},
		},
		{
			name: "keeps the first of two files with the same key",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "DEEPSEEK-API-KEY", "first")
				writeFile(t, dir, "deepseek-api-key.txt", "second")
				return dir
			},
			want: map[string]string{
				"deepseek-api-key": "first",
			},
		},
		{
			name: "returns empty map for empty directory",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			got, err := Load(dir)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not apply to root")
	}
	prev := logger.Default()
	logger.Set(logger.Discard())
	t.Cleanup(func() { logger.Set(prev) })

	dir := t.TempDir()
	writeFile(t, dir, "good-key", "value123")

	// Create a file then remove read permission.
	badPath := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	// The good file should still be returned; the bad file is skipped with a warning.
	assert.Equal(t, "value123", got["good-key"])
	_, hasBad := got["bad-key"]
	assert.False(t, hasBad, "unreadable file should not appear in result")
}

func TestKeyName(t *testing.T) {
	assert.Equal(t, "openai-api-key", KeyName("openai-api-key"))
	assert.Equal(t, "openai-api-key", KeyName("OPENAI-API-KEY.TXT"))
	assert.Equal(t, "moonshot-api-key", KeyName("moonshot-api-key.key"))
}

func TestLoadWarnsOnOpenPermissions(t *testing.T) {
	prev := logger.Default()
	logger.Set(logger.Discard())
	t.Cleanup(func() { logger.Set(prev) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "openai-api-key"), []byte("sk-open"), 0o644))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-open", got["openai-api-key"], "a loose mode warns but still loads")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "*****", Mask("short"))
	assert.Equal(t, "****cdef", Mask("sk-0123456789abcdef"))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}
