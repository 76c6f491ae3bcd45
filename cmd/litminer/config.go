// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litminer/internal/llm"
	"github.com/pdiddy/litminer/pkg/types"
)

// flagKeys maps command-line flags to their config keys. A flag bound to a
// key overrides the config file and LITMINER_* environment variables when
// it is set.
var flagKeys = map[string]string{
	"input":           "input.path",
	"id-column":       "input.id_column",
	"title-column":    "input.title_column",
	"abstract-column": "input.abstract_column",
	"sheet":           "input.sheet",
	"index-ids":       "input.index_ids",

	"provider":    "provider.name",
	"model":       "provider.model",
	"api-key":     "provider.api_key",
	"base-url":    "provider.base_url",
	"temperature": "provider.temperature",
	"top-p":       "provider.top_p",
	"max-tokens":  "provider.max_tokens",
	"timeout":     "provider.timeout",

	"concurrency": "pool.concurrency",
	"max-retries": "pool.retry.max_retries",
	"base-delay":  "pool.retry.base_delay",
	"max-delay":   "pool.retry.max_delay",

	"checkpoint":     "checkpoint.path",
	"flush-interval": "checkpoint.flush_interval",
	"save-every":     "checkpoint.save_every",

	"prompts-dir": "prompt.dir",
	"template":    "prompt.template",

	"limit":             "limit",
	"dispatch-interval": "dispatch_interval",
	"progress-interval": "progress_interval",
	"cancel-policy":     "cancel_policy",
}

// setConfigDefaults registers every RunConfig default with viper so config
// files and environment variables only need to name what they change.
func setConfigDefaults() {
	d := types.DefaultRunConfig()
	viper.SetDefault("input.id_column", d.Input.IDColumn)
	viper.SetDefault("input.title_column", d.Input.TitleColumn)
	viper.SetDefault("input.abstract_column", d.Input.AbstractColumn)
	viper.SetDefault("provider.name", "openai")
	viper.SetDefault("provider.temperature", d.Provider.Temperature)
	viper.SetDefault("provider.top_p", d.Provider.TopP)
	viper.SetDefault("provider.max_tokens", d.Provider.MaxTokens)
	viper.SetDefault("provider.timeout", d.Provider.Timeout)
	viper.SetDefault("pool.concurrency", d.Pool.Concurrency)
	viper.SetDefault("pool.retry.max_retries", d.Pool.Retry.MaxRetries)
	viper.SetDefault("pool.retry.base_delay", d.Pool.Retry.BaseDelay)
	viper.SetDefault("pool.retry.max_delay", d.Pool.Retry.MaxDelay)
	viper.SetDefault("checkpoint.path", "checkpoints/checkpoint.jsonl")
	viper.SetDefault("checkpoint.flush_interval", d.Checkpoint.FlushInterval)
	viper.SetDefault("checkpoint.save_every", d.Checkpoint.SaveEvery)
	viper.SetDefault("prompt.dir", d.Prompt.Dir)
	viper.SetDefault("progress_interval", d.ProgressInterval)
	viper.SetDefault("cancel_policy", string(d.CancelPolicy))
}

// bindFlags binds the command's flags that appear in flagKeys. Binding
// happens per invocation because several commands share flag names.
func bindFlags(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// loadRunConfig merges defaults, the config file, environment variables,
// and flags into a RunConfig. When validate is set the result is checked
// against the config constraints.
func loadRunConfig(cmd *cobra.Command, validate bool) (types.RunConfig, error) {
	if err := bindFlags(cmd); err != nil {
		return types.RunConfig{}, err
	}

	var cfg types.RunConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if positional := cmd.Flags().Arg(0); cfg.Input.Path == "" && positional != "" {
		cfg.Input.Path = positional
	}
	cfg.ApplyDefaults()
	cfg.Provider.APIKey = llm.ResolveAPIKey(cfg.Provider.Name, cfg.Provider.APIKey, loadedSecrets)

	if validate {
		if err := types.ValidateConfig(cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("input", "i", "", "input table (.csv or .xlsx)")
	f.String("id-column", "", "identifier column (default \"UID\")")
	f.String("title-column", "", "title column (default \"Article Title\")")
	f.String("abstract-column", "", "abstract column (default \"Abstract\")")
	f.String("sheet", "", "XLSX worksheet (default: first sheet)")
	f.Bool("index-ids", false, "use row numbers as ids when the id column is missing")
}

func addProviderFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("provider", "p", "", "LLM provider (see \"litminer providers\")")
	f.StringP("model", "m", "", "model identifier (default: provider default)")
	f.String("api-key", "", "API key (default: provider env var or secrets file)")
	f.String("base-url", "", "override the provider endpoint")
	f.Float64("temperature", 0, "sampling temperature (default 0.1)")
	f.Float64("top-p", 0, "nucleus sampling (default 0.9)")
	f.Int("max-tokens", 0, "maximum reply tokens (default 4096)")
	f.Duration("timeout", 0, "per-request timeout (default 120s)")
}

func addPromptFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("prompts-dir", "", "directory of prompt templates (default \"prompts\")")
	f.StringP("template", "t", "", "template name or file stem")
}

func addCheckpointFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("checkpoint", "c", "", "checkpoint file (default \"checkpoints/checkpoint.jsonl\")")
}
