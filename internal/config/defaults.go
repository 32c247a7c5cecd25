package config

import (
	"time"

	"github.com/architectagent/architect/internal/reasoning"
)

// DefaultConfig returns the default configuration with built-in providers.
func DefaultConfig() *Config {
	return &Config{
		Provider: "anthropic",
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Type:  "anthropic",
				Model: reasoning.DefaultAnthropicModel,
			},
			"openai": {
				Type:  "openai",
				Model: string(reasoning.DefaultOpenAIModel),
			},
			"claude-cli": {
				Type:    "cli",
				Command: "claude",
			},
		},
		Generation: GenerationConfig{
			MaxTokens:   4096,
			Temperature: 0.3,
			Timeout:     Duration(2 * time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: Duration(500 * time.Millisecond),
			MaxInterval:     Duration(10 * time.Second),
			Multiplier:      2.0,
			Jitter:          0.5,
		},
		Engine: EngineConfig{
			Workers:      4,
			StepBudget:   3,
			ContextChars: 24000,
		},
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
	}
}
