// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pdiddy/litminer/pkg/types"
)

// Factory builds a Client from a provider configuration that already has
// its defaults applied.
type Factory func(cfg types.ProviderConfig) (Client, error)

// Provider describes one registered provider.
type Provider struct {
	Name         string
	DefaultModel string
	BaseURL      string

	// KeyEnv is the environment variable holding the API key. Empty means
	// the provider needs no key.
	KeyEnv string

	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Provider{}
)

// Register adds or replaces a provider.
func Register(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name] = p
}

// Lookup returns the provider registered under name.
func Lookup(name string) (Provider, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SecretName is the .secrets/ file that holds a provider's API key.
func SecretName(provider string) string {
	return provider + "-api-key"
}

// ResolveAPIKey returns the key for provider from, in order: the
// configured value, the provider's environment variable, and the loaded
// secrets.
func ResolveAPIKey(provider, configured string, secrets map[string]string) string {
	if configured != "" {
		return configured
	}
	p, ok := Lookup(provider)
	if !ok || p.KeyEnv == "" {
		return ""
	}
	if v := strings.TrimSpace(os.Getenv(p.KeyEnv)); v != "" {
		return v
	}
	return secrets[SecretName(p.Name)]
}

// NewClient validates cfg and builds the client for cfg.Name. Missing
// keys and unknown providers are caught here, before any request is sent.
func NewClient(cfg types.ProviderConfig) (Client, error) {
	p, ok := Lookup(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", cfg.Name, strings.Join(Providers(), ", "))
	}
	cfg.Name = p.Name
	cfg.ApplyDefaults()

	if p.KeyEnv != "" && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("provider %s requires an API key (set --api-key, provider.api_key, %s, or .secrets/%s)", p.Name, p.KeyEnv, SecretName(p.Name))
	}
	if cfg.Model == "" {
		cfg.Model = p.DefaultModel
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider %s requires a model", p.Name)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = p.BaseURL
	}
	return p.Factory(cfg)
}
