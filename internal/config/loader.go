// Package config loads layered JSON configuration: defaults, then a global
// file, then a project file, then environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/architectagent/architect/internal/reasoning"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// GlobalPath returns ~/.architect/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".architect", "config.json"), nil
}

// ProjectPath is the project config, relative to the working directory.
var ProjectPath = filepath.Join(".architect", "config.json")

// LoadDefault loads configuration from conventional paths and applies the
// environment.
// Global: ~/.architect/config.json
// Project: .architect/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}

	cfg, err := Load(globalPath, ProjectPath)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.Getenv)

	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(filepath.Dir(globalPath), "architect.db")
	}
	return cfg, nil
}

// mergeConfigFile decodes a JSON config file over base. Fields absent from
// the file keep their values; provider entries are replaced per key.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil // Missing file is not an error
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables read through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	setKey := func(provider, key string) {
		if key == "" {
			return
		}
		p, ok := cfg.Providers[provider]
		if !ok {
			p = ProviderConfig{Type: provider}
		}
		p.APIKey = key
		cfg.Providers[provider] = p
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	setKey("anthropic", getenv("ANTHROPIC_API_KEY"))
	setKey("openai", getenv("OPENAI_API_KEY"))

	if v := getenv("ARCHITECT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := getenv("ARCHITECT_MODEL"); v != "" {
		p := cfg.Providers[cfg.Provider]
		p.Model = v
		cfg.Providers[cfg.Provider] = p
	}
	if v := getenv("ARCHITECT_DB"); v != "" {
		cfg.StorePath = v
	}
	if v := getenv("ARCHITECT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	p, ok := c.Providers[c.Provider]
	switch {
	case !ok:
		errs = append(errs, fmt.Errorf("provider %q is not configured", c.Provider))
	case !slices.Contains([]string{"", "anthropic", "openai", "cli"}, p.Type):
		errs = append(errs, fmt.Errorf("provider %q: unknown backend type %q", c.Provider, p.Type))
	}
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("generation: %w", err))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry: max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, fmt.Errorf("retry: jitter must be within [0, 1], got %g", c.Retry.Jitter))
	}
	if c.Engine.Workers < 1 {
		errs = append(errs, fmt.Errorf("engine: workers must be at least 1, got %d", c.Engine.Workers))
	}
	if c.Engine.StepBudget < 1 {
		errs = append(errs, fmt.Errorf("engine: step_budget must be at least 1, got %d", c.Engine.StepBudget))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Backend returns the reasoning backend settings of the selected provider.
func (c *Config) Backend() (reasoning.Config, error) {
	p, ok := c.Providers[c.Provider]
	if !ok {
		return reasoning.Config{}, fmt.Errorf("provider %q is not configured", c.Provider)
	}
	return reasoning.Config{
		Type:    p.Type,
		Model:   p.Model,
		APIKey:  p.APIKey,
		BaseURL: p.BaseURL,
		Command: p.Command,
		Args:    p.Args,
	}, nil
}

// Params returns the default generation parameters.
func (c *Config) Params() reasoning.Params {
	return reasoning.Params{
		MaxTokens:   c.Generation.MaxTokens,
		Temperature: c.Generation.Temperature,
		Timeout:     time.Duration(c.Generation.Timeout),
	}
}

// RetryPolicy returns the reasoning client's retry policy.
func (c *Config) RetryPolicy() reasoning.RetryPolicy {
	return reasoning.RetryPolicy{
		MaxAttempts:         c.Retry.MaxAttempts,
		InitialInterval:     time.Duration(c.Retry.InitialInterval),
		MaxInterval:         time.Duration(c.Retry.MaxInterval),
		Multiplier:          c.Retry.Multiplier,
		RandomizationFactor: c.Retry.Jitter,
	}
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
