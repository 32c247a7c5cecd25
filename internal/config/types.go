package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration encoded as a Go duration string ("500ms", "2m").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Plain numbers are read as
// nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// ProviderConfig defines a reasoning backend.
// Several providers of the same type can coexist under different keys.
type ProviderConfig struct {
	Type    string   `json:"type"`               // Backend type: "anthropic", "openai" or "cli"
	Model   string   `json:"model,omitempty"`    // Model override
	APIKey  string   `json:"api_key,omitempty"`  // API key for hosted backends
	BaseURL string   `json:"base_url,omitempty"` // OpenAI compatible endpoint
	Command string   `json:"command,omitempty"`  // CLI binary name (defaults to "claude")
	Args    []string `json:"args,omitempty"`     // Default args appended to every CLI invocation
}

// GenerationConfig holds the default generation parameters of a run.
type GenerationConfig struct {
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	Timeout     Duration `json:"timeout"` // Per backend attempt
}

// RetryConfig tunes the reasoning client's backoff.
type RetryConfig struct {
	MaxAttempts     int      `json:"max_attempts"`
	InitialInterval Duration `json:"initial_interval"`
	MaxInterval     Duration `json:"max_interval"`
	Multiplier      float64  `json:"multiplier"`
	Jitter          float64  `json:"jitter"`
}

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	Workers      int `json:"workers"`       // Concurrent node executions
	StepBudget   int `json:"step_budget"`   // Steps per node before terminal failure
	ContextChars int `json:"context_chars"` // Bound on each reasoning context
}

// Config is the top-level configuration.
type Config struct {
	Provider   string                    `json:"provider"` // Key into Providers
	Providers  map[string]ProviderConfig `json:"providers"`
	Generation GenerationConfig          `json:"generation"`
	Retry      RetryConfig               `json:"retry"`
	Engine     EngineConfig              `json:"engine"`
	StorePath  string                    `json:"store_path,omitempty"` // SQLite database file
	Listen     string                    `json:"listen"`               // HTTP API address
	Template   string                    `json:"template,omitempty"`   // Plan template file, empty for the built-in one
	LogLevel   string                    `json:"log_level"`
}
