// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litminer/pkg/types"
)

func newConfigCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	setConfigDefaults()

	cmd := &cobra.Command{Use: "test"}
	addInputFlags(cmd)
	addProviderFlags(cmd)
	addCheckpointFlags(cmd)
	cmd.Flags().Int("concurrency", 0, "")
	cmd.Flags().Int("max-retries", 0, "")
	cmd.Flags().Duration("base-delay", 0, "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestLoadRunConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cmd := newConfigCmd(t, "papers.csv")

	cfg, err := loadRunConfig(cmd, false)
	require.NoError(t, err)

	assert.Equal(t, "papers.csv", cfg.Input.Path)
	assert.Equal(t, types.DefaultIDColumn, cfg.Input.IDColumn)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, types.DefaultConcurrency, cfg.Pool.Concurrency)
	assert.Equal(t, types.DefaultMaxRetries, cfg.Pool.Retry.MaxRetries)
	assert.Equal(t, types.DefaultBaseDelay, cfg.Pool.Retry.BaseDelay)
	assert.Equal(t, "checkpoints/checkpoint.jsonl", cfg.Checkpoint.Path)
	assert.Equal(t, types.CancelGraceful, cfg.CancelPolicy)
}

func TestLoadRunConfig_FlagsOverride(t *testing.T) {
	cmd := newConfigCmd(t,
		"--input", "in.xlsx",
		"--concurrency", "7",
		"--max-retries", "0",
		"--base-delay", "250ms",
		"--checkpoint", "ck.jsonl",
		"--provider", "anthropic",
		"ignored.csv",
	)

	cfg, err := loadRunConfig(cmd, true)
	require.NoError(t, err)

	assert.Equal(t, "in.xlsx", cfg.Input.Path, "--input wins over the positional argument")
	assert.Equal(t, 7, cfg.Pool.Concurrency)
	assert.Equal(t, 0, cfg.Pool.Retry.MaxRetries, "an explicit zero is kept")
	assert.Equal(t, 250*time.Millisecond, cfg.Pool.Retry.BaseDelay)
	assert.Equal(t, "ck.jsonl", cfg.Checkpoint.Path)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
}

func TestLoadRunConfig_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cmd := newConfigCmd(t, "papers.csv")

	cfg, err := loadRunConfig(cmd, false)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Provider.APIKey)

	cmd = newConfigCmd(t, "--api-key", "sk-flag", "papers.csv")
	cfg, err = loadRunConfig(cmd, false)
	require.NoError(t, err)
	assert.Equal(t, "sk-flag", cfg.Provider.APIKey)
}

func TestLoadRunConfig_Validation(t *testing.T) {
	cmd := newConfigCmd(t, "--concurrency", "1000", "papers.csv")

	_, err := loadRunConfig(cmd, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pool.Concurrency")

	cmd = newConfigCmd(t)
	_, err = loadRunConfig(cmd, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Input.Path")
}
