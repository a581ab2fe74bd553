// Provider configuration - upstream endpoints and capability allow-lists.
//
// DESIGN: Each provider is one OpenAI-compatible upstream. Capability params
// are kept as raw YAML values because an allow-list may be written as a list
// or as an object; the capability filter decides what a shape means.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// CapabilityParams is the raw capability block of a provider or model, e.g.
//
//	capability_params:
//	  request:
//	    allowlist: [temperature, max_tokens, reasoning.effort]
type CapabilityParams map[string]any

// ProviderConfig describes one upstream provider.
type ProviderConfig struct {
	BaseURL          string                 `yaml:"base_url"`
	APIKey           string                 `yaml:"api_key"`
	Timeout          time.Duration          `yaml:"timeout"`
	Headers          map[string]string      `yaml:"headers"`
	CapabilityParams CapabilityParams       `yaml:"capability_params"`
	Models           map[string]ModelConfig `yaml:"models"`
}

// ModelConfig holds per-model overrides.
type ModelConfig struct {
	CapabilityParams CapabilityParams `yaml:"capability_params"`
}

// ProvidersConfig maps provider id to its configuration.
type ProvidersConfig map[string]ProviderConfig

// Validate checks every provider entry.
func (p ProvidersConfig) Validate() error {
	for _, id := range p.IDs() {
		prov := p[id]
		if prov.BaseURL == "" {
			return fmt.Errorf("providers.%s.base_url is required", id)
		}
		u, err := url.Parse(prov.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("providers.%s.base_url is not a valid URL: %q", id, prov.BaseURL)
		}
		if prov.Timeout < 0 {
			return fmt.Errorf("providers.%s.timeout must not be negative", id)
		}
	}
	return nil
}

// IDs returns the configured provider ids in sorted order.
func (p ProvidersConfig) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the provider config, matching ids case-insensitively.
func (p ProvidersConfig) Get(id string) (ProviderConfig, bool) {
	if prov, ok := p[id]; ok {
		return prov, true
	}
	for k, prov := range p {
		if strings.EqualFold(k, id) {
			return prov, true
		}
	}
	return ProviderConfig{}, false
}

// CapabilityFor resolves the capability params for a provider/model pair.
// A model override wins over the provider default. Returns nil when neither
// is configured, which means no filtering.
func (c *Config) CapabilityFor(provider, model string) CapabilityParams {
	prov, ok := c.Providers.Get(provider)
	if !ok {
		return nil
	}
	if m, ok := prov.Models[model]; ok && m.CapabilityParams != nil {
		return m.CapabilityParams
	}
	return prov.CapabilityParams
}
