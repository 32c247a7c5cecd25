// Package reasoning is the uniform client for external reasoning backends
// (language models). Callers see one Invoke call; retries, timeouts and
// circuit breaking happen behind it.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Backend is the narrow capability every reasoning provider implements.
type Backend interface {
	// Name identifies the backend in logs and circuit breaker state.
	Name() string

	// Complete performs a single completion call and returns the raw text.
	Complete(ctx context.Context, req Request) (string, error)
}

// Params are the generation parameters for one request.
type Params struct {
	MaxTokens   int           `json:"max_tokens"`  // Cap on output size
	Temperature float64       `json:"temperature"` // Randomness level, 0 to 2
	Timeout     time.Duration `json:"timeout"`     // Wall-clock budget per attempt, 0 for none
}

// Validate rejects parameters no backend would accept.
func (p Params) Validate() error {
	if p.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidRequest, p.MaxTokens)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %g", ErrInvalidRequest, p.Temperature)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidRequest, p.Timeout)
	}
	return nil
}

// Request is the input of one reasoning call.
type Request struct {
	System  string
	Context string
	Params  Params
}

// Response is the outcome of a successful Invoke. Exactly one of Structured
// and ParseErr is set.
type Response struct {
	Text       string
	Structured json.RawMessage
	ParseErr   error
	Attempts   int // Backend calls spent, retries included
	Elapsed    time.Duration
}
