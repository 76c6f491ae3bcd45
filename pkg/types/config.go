package types

import "time"

// Defaults for RunConfig.
const (
	DefaultIDColumn         = "UID"
	DefaultTitleColumn      = "Article Title"
	DefaultAbstractColumn   = "Abstract"
	DefaultConcurrency      = 10
	DefaultMaxRetries       = 3
	DefaultBaseDelay        = time.Second
	DefaultMaxDelay         = 30 * time.Second
	DefaultRequestTimeout   = 120 * time.Second
	DefaultFlushInterval    = 30 * time.Second
	DefaultSaveEvery        = 100
	DefaultProgressInterval = 500 * time.Millisecond
	DefaultTemperature      = 0.1
	DefaultTopP             = 0.9
	DefaultMaxTokens        = 4096
)

// InputConfig selects the input table and its columns.
type InputConfig struct {
	// Path is the CSV or XLSX file holding the literature records.
	Path string `json:"path" yaml:"path" mapstructure:"path" validate:"required"`

	// IDColumn names the unique identifier column (default "UID").
	IDColumn string `json:"id_column" yaml:"id_column" mapstructure:"id_column"`

	// TitleColumn names the article title column (default "Article Title").
	TitleColumn string `json:"title_column" yaml:"title_column" mapstructure:"title_column"`

	// AbstractColumn names the abstract column (default "Abstract").
	AbstractColumn string `json:"abstract_column" yaml:"abstract_column" mapstructure:"abstract_column"`

	// Sheet selects the worksheet of an XLSX input. Empty means the first sheet.
	Sheet string `json:"sheet,omitempty" yaml:"sheet,omitempty" mapstructure:"sheet"`

	// IndexIDs uses the 1-based row number as the record id when the id
	// column is missing, instead of failing.
	IndexIDs bool `json:"index_ids" yaml:"index_ids" mapstructure:"index_ids"`
}

// ProviderConfig selects and configures the LLM provider.
type ProviderConfig struct {
	// Name is the registered provider name (e.g. "openai", "anthropic").
	Name string `json:"name" yaml:"name" mapstructure:"name" validate:"required"`

	// Model is the model identifier. Empty selects the provider default.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the provider API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`

	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `json:"top_p" yaml:"top_p" mapstructure:"top_p" validate:"gte=0,lte=1"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`

	// Timeout bounds a single API request.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// RetryConfig controls the worker pool's retry policy.
type RetryConfig struct {
	// MaxRetries is the number of extra attempts after the first (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=20"`

	// BaseDelay is the first backoff delay (default 1s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay" validate:"gte=0"`

	// MaxDelay caps the backoff delay (default 30s).
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay" validate:"gte=0"`
}

// PoolConfig holds settings for the extraction worker pool.
type PoolConfig struct {
	// Concurrency is the maximum number of simultaneous in-flight API calls.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=500"`

	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// CheckpointConfig holds settings for the checkpoint store.
type CheckpointConfig struct {
	// Path is the JSON Lines checkpoint file.
	Path string `json:"path" yaml:"path" mapstructure:"path" validate:"required"`

	// FlushInterval is the periodic fsync interval (default 30s).
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval" mapstructure:"flush_interval" validate:"gte=0"`

	// SaveEvery flushes after this many pending entries (default 100).
	SaveEvery int `json:"save_every" yaml:"save_every" mapstructure:"save_every" validate:"gte=0"`
}

// PromptConfig selects the prompt template.
type PromptConfig struct {
	// Dir is the directory of *.txt templates (default "prompts").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Template is the template name or file stem.
	Template string `json:"template" yaml:"template" mapstructure:"template"`
}

// CancelPolicy selects what happens to in-flight tasks on cancel.
type CancelPolicy string

const (
	// CancelGraceful lets in-flight tasks finish and persists their results.
	CancelGraceful CancelPolicy = "graceful"

	// CancelAbandon cancels in-flight tasks; no entries are written for them.
	CancelAbandon CancelPolicy = "abandon"
)

// RunConfig is the explicit configuration passed into the run controller.
type RunConfig struct {
	Input      InputConfig      `json:"input" yaml:"input" mapstructure:"input"`
	Provider   ProviderConfig   `json:"provider" yaml:"provider" mapstructure:"provider"`
	Pool       PoolConfig       `json:"pool" yaml:"pool" mapstructure:"pool"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint" mapstructure:"checkpoint"`
	Prompt     PromptConfig     `json:"prompt" yaml:"prompt" mapstructure:"prompt"`

	// Limit caps the number of new records processed in this run. Zero
	// means no limit.
	Limit int `json:"limit" yaml:"limit" mapstructure:"limit" validate:"gte=0"`

	// DispatchInterval spaces consecutive task dispatches.
	DispatchInterval time.Duration `json:"dispatch_interval" yaml:"dispatch_interval" mapstructure:"dispatch_interval" validate:"gte=0"`

	// ProgressInterval throttles progress snapshots (default 500ms).
	ProgressInterval time.Duration `json:"progress_interval" yaml:"progress_interval" mapstructure:"progress_interval" validate:"gte=0"`

	// CancelPolicy applies to Cancel when set to "abandon".
	CancelPolicy CancelPolicy `json:"cancel_policy" yaml:"cancel_policy" mapstructure:"cancel_policy" validate:"omitempty,oneof=graceful abandon"`
}

// ApplyDefaults fills zero-valued settings with their defaults.
func (c *RunConfig) ApplyDefaults() {
	if c.Input.IDColumn == "" {
		c.Input.IDColumn = DefaultIDColumn
	}
	if c.Input.TitleColumn == "" {
		c.Input.TitleColumn = DefaultTitleColumn
	}
	if c.Input.AbstractColumn == "" {
		c.Input.AbstractColumn = DefaultAbstractColumn
	}
	c.Provider.ApplyDefaults()
	c.Pool.ApplyDefaults()
	if c.Checkpoint.FlushInterval <= 0 {
		c.Checkpoint.FlushInterval = DefaultFlushInterval
	}
	if c.Checkpoint.SaveEvery == 0 {
		c.Checkpoint.SaveEvery = DefaultSaveEvery
	}
	if c.Prompt.Dir == "" {
		c.Prompt.Dir = "prompts"
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.CancelPolicy == "" {
		c.CancelPolicy = CancelGraceful
	}
}

// ApplyDefaults fills zero-valued provider settings.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopP == 0 {
		c.TopP = DefaultTopP
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultRequestTimeout
	}
}

// ApplyDefaults fills zero-valued pool settings. A zero MaxRetries is a
// valid setting and is kept.
func (c *PoolConfig) ApplyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		c.Retry.MaxDelay = c.Retry.BaseDelay
	}
}

// DefaultRunConfig returns a RunConfig with every default applied.
func DefaultRunConfig() RunConfig {
	cfg := RunConfig{
		Pool: PoolConfig{Retry: RetryConfig{MaxRetries: DefaultMaxRetries}},
	}
	cfg.ApplyDefaults()
	return cfg
}
