package reasoning

import "fmt"

// Config selects and configures a backend.
type Config struct {
	Type    string // "anthropic", "openai" or "cli"
	Model   string
	APIKey  string
	BaseURL string   // OpenAI compatible endpoints
	Command string   // CLI executable
	Args    []string // Extra CLI arguments
	WorkDir string
}

// New creates a backend from cfg. The ProcessManager is only used by CLI
// backends and may be nil.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	switch cfg.Type {
	case "anthropic", "":
		return NewAnthropicBackend(cfg.APIKey, cfg.Model), nil
	case "openai":
		return NewOpenAIBackend(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "cli":
		return NewCLIBackend(cfg.Command, cfg.Args, cfg.Model, cfg.WorkDir, pm), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
