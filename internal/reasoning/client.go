package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryPolicy configures the bounded exponential backoff around each call.
type RetryPolicy struct {
	MaxAttempts         int           `json:"max_attempts"`         // Total attempts, first call included (default 3)
	InitialInterval     time.Duration `json:"initial_interval"`     // First backoff interval (default 500ms)
	MaxInterval         time.Duration `json:"max_interval"`         // Cap on a single interval (default 10s)
	Multiplier          float64       `json:"multiplier"`           // Backoff multiplier (default 2.0)
	RandomizationFactor float64       `json:"randomization_factor"` // Jitter factor (default 0.5)
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.RandomizationFactor
	exp.MaxElapsedTime = 0 // Bounded by attempts instead

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// BreakerRegistry manages per-backend circuit breakers. It is the only state
// a Client keeps across invocations and can be shared by several clients.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewBreakerRegistry creates a new circuit breaker registry.
func NewBreakerRegistry(logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for the given backend, creating it on first
// use.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // Probe requests allowed while half-open
		Timeout:     30 * time.Second, // Open period before probing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed", "backend", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and caller mistakes say nothing about backend health
			return err == nil || errors.Is(err, context.Canceled) || !IsTransient(err)
		},
	})
	r.breakers[name] = cb
	return cb
}

// Client invokes a Backend with retries, per-attempt timeouts and circuit
// breaking.
type Client struct {
	backend  Backend
	policy   RetryPolicy
	breakers *BreakerRegistry
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithBreakers shares a circuit breaker registry between clients.
func WithBreakers(r *BreakerRegistry) Option {
	return func(c *Client) { c.breakers = r }
}

// WithLogger sets the logger used for per-attempt records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient wraps backend in the retrying client.
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		policy:  DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.breakers == nil {
		c.breakers = NewBreakerRegistry(c.logger)
	}
	return c
}

// Backend returns the wrapped backend.
func (c *Client) Backend() Backend { return c.backend }

// Invoke sends req to the backend. Transient failures are retried up to the
// policy's attempt limit; when they run out the error is an
// *UnavailableError carrying the last cause. Non-transient failures return
// immediately. A successful call always yields a Response whose JSON payload
// is either Structured or described by ParseErr.
func (c *Client) Invoke(ctx context.Context, req Request) (Response, error) {
	if err := req.Params.Validate(); err != nil {
		return Response{}, err
	}

	name := c.backend.Name()
	cb := c.breakers.Get(name)
	start := time.Now()

	var (
		text    string
		attempt int
	)

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempt++

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if req.Params.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, req.Params.Timeout)
		}
		began := time.Now()
		result, err := cb.Execute(func() (any, error) {
			return c.backend.Complete(attemptCtx, req)
		})
		cancel()
		elapsed := time.Since(began)

		if err == nil {
			text = result.(string)
			c.logger.Debug("reasoning attempt succeeded",
				"backend", name, "attempt", attempt, "elapsed", elapsed)
			return nil
		}

		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = MarkTransient(fmt.Errorf("attempt timed out after %s: %w", req.Params.Timeout, err))
		}
		c.logger.Warn("reasoning attempt failed",
			"backend", name, "attempt", attempt, "max_attempts", c.policy.MaxAttempts,
			"elapsed", elapsed, "err", err)

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			attempt-- // Rejected without reaching the backend
			return backoff.Permanent(&UnavailableError{Backend: name, Attempts: attempt, Cause: err})
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case !IsTransient(err):
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, c.policy.backOff(ctx))
	resp := Response{Attempts: attempt, Elapsed: time.Since(start)}
	if err != nil {
		var unavailable *UnavailableError
		switch {
		case errors.As(err, &unavailable):
			return resp, unavailable
		case ctx.Err() != nil:
			return resp, fmt.Errorf("reasoning call on %s interrupted: %w", name, ctx.Err())
		case IsTransient(err):
			return resp, &UnavailableError{Backend: name, Attempts: attempt, Cause: err}
		}
		return resp, fmt.Errorf("reasoning backend %s: %w", name, err)
	}

	resp.Text = text
	resp.Structured, resp.ParseErr = ExtractJSON(text)
	return resp, nil
}
