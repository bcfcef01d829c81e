package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/formwork/pkg/engine"
)

// Config holds all formwork configuration.
type Config struct {
	DBPath    string           `yaml:"db_path"`
	Providers []ProviderConfig `yaml:"providers"`
	Defaults  RequestDefaults  `yaml:"defaults"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// ProviderConfig defines an upstream LLM provider.
// Type is "openai" (default) or "anthropic".
type ProviderConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// Stream selects the streaming variant. Providers without it only
	// serve whole responses.
	Stream bool `yaml:"stream"`
}

// RequestDefaults fill in request fields the caller leaves unset.
type RequestDefaults struct {
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Retry       int           `yaml:"retry"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Cache       string        `yaml:"cache"`
}

// Request returns a request carrying these defaults. Callers fill in the
// task, context and shape and override what they need.
func (d RequestDefaults) Request() engine.Request {
	return engine.Request{
		Temperature: d.Temperature,
		MaxTokens:   d.MaxTokens,
		Timeout:     d.Timeout,
		Retry:       d.Retry,
		Cache:       engine.CachePolicy(d.Cache),
	}
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Defaults: RequestDefaults{
			Timeout:    30 * time.Second,
			RetryDelay: 250 * time.Millisecond,
			Cache:      "session",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks provider entries and defaults.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: missing name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %s: duplicate name", p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case "", "openai", "anthropic":
		default:
			return fmt.Errorf("provider %s: unknown type %q", p.Name, p.Type)
		}
	}
	switch c.Defaults.Cache {
	case "", "session", "none":
	default:
		return fmt.Errorf("defaults: unknown cache policy %q", c.Defaults.Cache)
	}
	if c.Defaults.Retry < 0 {
		return fmt.Errorf("defaults: retry must not be negative")
	}
	return nil
}

// Provider returns the named provider, or the first one when name is empty.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if len(c.Providers) == 0 {
		return ProviderConfig{}, fmt.Errorf("no providers configured")
	}
	if name == "" {
		return c.Providers[0], nil
	}
	for _, p := range c.Providers {
		if p.Name == name {
			return p, nil
		}
	}
	return ProviderConfig{}, fmt.Errorf("provider %q not configured", name)
}
