// Package config loads the geoimport YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of a geoimport configuration file.
type Config struct {
	Logger   Logging  `yaml:"logger"`
	Registry Registry `yaml:"registry"`
	Grid     Grid     `yaml:"grid"`
	Import   Import   `yaml:"import"`
}

// Registry selects the format handlers and their probe order.
type Registry struct {
	// Handlers lists handler names in priority order. Empty means the built-in order.
	Handlers []string `yaml:"handlers"`
}

// Grid tunes the ASCII grid decoder.
type Grid struct {
	QueueSize int `yaml:"queue_size"`
}

// Import tunes batch imports.
type Import struct {
	Workers     int    `yaml:"workers"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var conf Config
	_ = conf.validate()
	return &conf
}

func FromBytes(data []byte) (*Config, error) {
	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &conf, nil
}

func FromFile(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return FromBytes(raw)
}

func (c *Config) validate() error {
	if c.Grid.QueueSize < 0 {
		return fmt.Errorf("grid.queue_size must not be negative")
	}
	if c.Grid.QueueSize == 0 {
		c.Grid.QueueSize = 64
	}
	if c.Import.Workers <= 0 {
		c.Import.Workers = 4
	}
	seen := make(map[string]bool, len(c.Registry.Handlers))
	for _, name := range c.Registry.Handlers {
		if name == "" {
			return fmt.Errorf("registry.handlers: empty handler name")
		}
		if seen[name] {
			return fmt.Errorf("registry.handlers: %q listed twice", name)
		}
		seen[name] = true
	}
	return nil
}
