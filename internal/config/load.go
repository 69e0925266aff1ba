package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a configuration file, resolves component paths relative to
// the file, and applies defaults. It does not validate, because overrides
// still have to be applied; call Validate on the final value.
func Load(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(abs))
	return cfg, nil
}

// LoadFromBytes parses a configuration without touching the filesystem.
// Component paths are left as written.
func LoadFromBytes(data []byte) (*Config, error) {
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func (c *Config) resolvePaths(baseDir string) {
	for i := range c.Components {
		comp := &c.Components[i]
		if comp.Recipe != "" && !filepath.IsAbs(comp.Recipe) {
			comp.Recipe = filepath.Join(baseDir, comp.Recipe)
		}
		for j, a := range comp.Artifacts {
			if !filepath.IsAbs(a) {
				comp.Artifacts[j] = filepath.Join(baseDir, a)
			}
		}
	}
	if c.StateDir != "" && !filepath.IsAbs(c.StateDir) {
		c.StateDir = filepath.Join(baseDir, c.StateDir)
	}
}

// Save writes a configuration to a file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
