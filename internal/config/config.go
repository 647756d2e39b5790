// Package config loads and validates the healthd configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mozilla-ai/healthd/internal/perms"
)

var _ Provider = (*DefaultLoader)(nil)

type Loader interface {
	Load(path string) (*Config, error)
}

type Initializer interface {
	Init(path string) error
}

type Provider interface {
	Initializer
	Loader
}

type DefaultLoader struct{}

// Config represents the .healthd.toml file structure.
type Config struct {
	API        *APISection      `json:"api,omitempty"        toml:"api,omitempty"        yaml:"api,omitempty"`
	Monitor    *MonitorSection  `json:"monitor,omitempty"    toml:"monitor,omitempty"    yaml:"monitor,omitempty"`
	Pool       *PoolSection     `json:"pool,omitempty"       toml:"pool,omitempty"       yaml:"pool,omitempty"`
	Recovery   *RecoverySection `json:"recovery,omitempty"   toml:"recovery,omitempty"   yaml:"recovery,omitempty"`
	Alerts     *AlertsSection   `json:"alerts,omitempty"     toml:"alerts,omitempty"     yaml:"alerts,omitempty"`
	History    *HistorySection  `json:"history,omitempty"    toml:"history,omitempty"    yaml:"history,omitempty"`
	Components []ComponentEntry `json:"components,omitempty" toml:"components,omitempty" yaml:"components,omitempty"`

	configFilePath string
}

// skeleton is written by Init for TOML paths.
const skeleton = `# healthd configuration

[monitor]
interval = "30s"
probe_timeout = "10s"

[history]
driver = "memory"

[[alerts.channels]]
name = "log"
kind = "log"

[[components]]
id = "host"
type = "system_resources"
`

// yamlSkeleton is written by Init for .yaml and .yml paths.
const yamlSkeleton = `# healthd configuration
monitor:
  interval: 30s
  probe_timeout: 10s
history:
  driver: memory
alerts:
  channels:
    - name: log
      kind: log
components:
  - id: host
    type: system_resources
`

// Init creates a starter configuration file at path, in YAML when the extension asks for it.
// It refuses to overwrite an existing file.
func (d *DefaultLoader) Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	content := skeleton
	if isYAML(path) {
		content = yamlSkeleton
	}

	if err := os.WriteFile(path, []byte(content), perms.RegularFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Load reads, decodes and validates the configuration at path.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
// Unknown keys are rejected.
func (d *DefaultLoader) Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrConfigLoadFailed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file cannot be found, run: 'healthd init'", ErrConfigLoadFailed)
		}
		return nil, fmt.Errorf("%w: failed to read config file (%s): %w", ErrConfigLoadFailed, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: config file is empty (%s)", ErrConfigLoadFailed, path)
	}

	cfg, err := decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode config from file (%s): %w", ErrConfigLoadFailed, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	cfg.configFilePath = path

	return cfg, nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.configFilePath
}

// Validate orchestrates validation of configuration structure.
func (c *Config) Validate() error {
	validators := []struct {
		section string
		check   func() error
	}{
		{"api", c.API.Validate},
		{"monitor", c.Monitor.Validate},
		{"pool", c.Pool.Validate},
		{"recovery", c.Recovery.Validate},
		{"alerts", c.Alerts.Validate},
		{"history", c.History.Validate},
		{"components", c.validateComponents},
	}

	var errs []error
	for _, v := range validators {
		if err := v.check(); err != nil {
			errs = append(errs, fmt.Errorf("%s configuration error: %w", v.section, err))
		}
	}

	return errors.Join(errs...)
}

func decode(path string, data []byte) (*Config, error) {
	var cfg Config

	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))
	}

	return &cfg, nil
}

func isYAML(path string) bool {
	return slices.Contains([]string{".yaml", ".yml"}, strings.ToLower(filepath.Ext(path)))
}
