package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands environment variables, and
// unmarshals into a Config struct. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	switch c.SessionPolicy {
	case "", "each", "first", "any":
	default:
		return fmt.Errorf("session_policy must be each, first or any, got %q", c.SessionPolicy)
	}
	switch c.Shrink.Degenerate {
	case "", "freeze", "fail":
	default:
		return fmt.Errorf("shrink.degenerate must be freeze or fail, got %q", c.Shrink.Degenerate)
	}
	if c.Shrink.DistanceMm != nil && *c.Shrink.DistanceMm < 0 {
		return fmt.Errorf("shrink.distance_mm must be >= 0, got %v", *c.Shrink.DistanceMm)
	}
	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("archive.backend must be fs or s3, got %q", c.Archive.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type)
	}
	if c.Nprocs < 0 || c.Parallel < 0 {
		return errors.New("nprocs and parallel must be >= 0")
	}
	return nil
}
