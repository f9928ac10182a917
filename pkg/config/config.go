// Package config loads the optional runtime configuration file for the
// bridge CLI and host processes: cache sizing, default trace/log
// levels, and which stdlib namespaces to register. Loading follows the
// teacher's config package shape (YAML via gopkg.in/yaml.v3, decoded
// with github.com/mitchellh/mapstructure) without the provider/watch
// machinery a DSL compiler has no use for.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the bridge runtime's top-level configuration document.
type Config struct {
	LogLevel   string   `yaml:"log_level"`
	TraceLevel string   `yaml:"trace_level"`
	CacheSize  int      `yaml:"cache_size"`
	Namespaces []string `yaml:"namespaces"`
}

// SetDefaults fills zero-valued fields with the bridge runtime's
// defaults.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.TraceLevel == "" {
		c.TraceLevel = "off"
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
}

// Validate rejects a config whose values fall outside what the bridge
// runtime understands.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	switch c.TraceLevel {
	case "off", "basic", "full":
	default:
		return fmt.Errorf("config: trace_level must be one of off, basic, full, got %q", c.TraceLevel)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("config: cache_size must be positive, got %d", c.CacheSize)
	}
	return nil
}

// Load parses a YAML config document, decodes it into a Config,
// applies defaults, and validates the result.
func Load(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses the config document at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Load(data)
}
