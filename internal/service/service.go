// Package service is the run registry behind the CLI and HTTP API: it starts
// runs in the background and answers status, cancel and resume requests.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/architectagent/architect/internal/blueprint"
	"github.com/architectagent/architect/internal/knowledge"
	"github.com/architectagent/architect/internal/orchestrator"
	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/scheduler"
	"github.com/architectagent/architect/internal/session"
)

// MinRequirementsLength is the shortest design request accepted.
const MinRequirementsLength = 10

var (
	// ErrInvalidRequest marks requests rejected before a run starts.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotActive is returned when cancelling a run no orchestrator drives.
	ErrNotActive = errors.New("run is not active")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("service is closed")
)

// Overrides adjust the default run settings for one run. Zero values keep
// the defaults.
type Overrides struct {
	Workers     int      `json:"workers,omitempty"`
	StepBudget  int      `json:"step_budget,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// StartRequest asks for a new run.
type StartRequest struct {
	Requirements string         `json:"requirements"`
	Overrides    Overrides      `json:"overrides"`
	Plan         *plan.Template `json:"plan,omitempty"` // Custom plan, default template when nil
}

// RunStatus is a run's state as seen by callers.
type RunStatus struct {
	RunID        string              `json:"run_id"`
	Status       session.Status      `json:"status"`
	Error        string              `json:"error,omitempty"`
	Active       bool                `json:"active"` // Driven by this service right now
	Requirements string              `json:"requirements"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Counts       map[plan.Status]int `json:"counts"`
	Failed       []string            `json:"failed,omitempty"`
	Blocked      []string            `json:"blocked,omitempty"`
	Nodes        []plan.Node         `json:"nodes"`
}

// Config wires a Service.
type Config struct {
	Runner   *orchestrator.Runner
	Store    session.Store
	Template *plan.Template   // Default plan (default: plan.DefaultTemplate)
	Defaults session.Settings // Settings before per-run overrides
	Logger   *slog.Logger
}

type activeRun struct {
	sess   *session.Session
	cancel context.CancelFunc
	done   chan struct{}
}

// Service owns the background runs of one process.
type Service struct {
	config Config

	mu     sync.Mutex
	runs   map[string]*activeRun
	closed bool

	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Runner == nil || cfg.Store == nil {
		return nil, errors.New("service needs a runner and a store")
	}
	if cfg.Template == nil {
		tmpl, err := plan.DefaultTemplate()
		if err != nil {
			return nil, err
		}
		cfg.Template = tmpl
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:    cfg,
		runs:      make(map[string]*activeRun),
		ctx:       ctx,
		cancelAll: cancel,
	}, nil
}

// Start validates req, creates the run and drives it in the background. It
// returns the run ID without waiting for any node.
func (s *Service) Start(ctx context.Context, req StartRequest) (string, error) {
	requirements := strings.TrimSpace(req.Requirements)
	if n := len([]rune(requirements)); n < MinRequirementsLength {
		return "", fmt.Errorf("%w: requirements must be at least %d characters, got %d",
			ErrInvalidRequest, MinRequirementsLength, n)
	}

	settings, err := s.settings(req.Overrides)
	if err != nil {
		return "", err
	}

	tmpl := s.config.Template
	if req.Plan != nil {
		tmpl = req.Plan
		settings.Template = req.Plan.Name
	}
	if len(tmpl.Nodes) == 0 {
		return "", &plan.ValidationError{Reason: "plan has no nodes"}
	}
	graph, err := tmpl.Build()
	if err != nil {
		return "", err
	}

	sess := session.New(requirements, settings, graph)
	if err := s.launch(sess); err != nil {
		return "", err
	}
	s.config.Logger.Info("run accepted", "run", sess.ID(), "nodes", graph.Len())
	return sess.ID(), nil
}

func (s *Service) settings(o Overrides) (session.Settings, error) {
	st := s.config.Defaults
	if st.Template == "" {
		st.Template = s.config.Template.Name
	}
	if o.Workers < 0 || o.StepBudget < 0 {
		return st, fmt.Errorf("%w: workers and step budget must not be negative", ErrInvalidRequest)
	}
	if o.Workers > 0 {
		st.Workers = o.Workers
	}
	if o.StepBudget > 0 {
		st.StepBudget = o.StepBudget
	}
	if o.MaxTokens != 0 {
		st.Generation.MaxTokens = o.MaxTokens
	}
	if o.Temperature != nil {
		st.Generation.Temperature = *o.Temperature
	}
	if err := st.Generation.Validate(); err != nil {
		return st, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return st, nil
}

func (s *Service) launch(sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, busy := s.runs[sess.ID()]; busy {
		return fmt.Errorf("run %s: %w", sess.ID(), scheduler.ErrRunLocked)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	run := &activeRun{sess: sess, cancel: cancel, done: make(chan struct{})}
	s.runs[sess.ID()] = run

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		out, err := s.config.Runner.Run(ctx, sess)
		if err != nil {
			s.config.Logger.Error("run ended with error", "run", sess.ID(), "status", out.Status, "err", err)
		}

		s.mu.Lock()
		delete(s.runs, sess.ID())
		s.mu.Unlock()
		close(run.done)
	}()
	return nil
}

func (s *Service) active(runID string) *activeRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[runID]
}

// Status returns the current state of a run, live or stored.
func (s *Service) Status(ctx context.Context, runID string) (RunStatus, error) {
	if run := s.active(runID); run != nil {
		return statusOf(run.sess.Checkpoint(), true), nil
	}
	cp, err := s.config.Store.Load(ctx, runID)
	if err != nil {
		return RunStatus{}, err
	}
	return statusOf(cp, false), nil
}

func statusOf(cp session.Checkpoint, active bool) RunStatus {
	st := RunStatus{
		RunID:        cp.RunID,
		Status:       cp.Status,
		Error:        cp.Error,
		Active:       active,
		Requirements: cp.Requirements,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
		Counts:       make(map[plan.Status]int),
		Nodes:        cp.Nodes,
	}
	for _, n := range cp.Nodes {
		st.Counts[n.Status]++
		if n.Status == plan.StatusFailed && n.Terminal {
			st.Failed = append(st.Failed, n.ID)
		}
	}
	if g, err := plan.FromNodes(cp.Nodes); err == nil {
		st.Blocked = g.Blocked()
	}
	return st
}

// Cancel signals a live run to stop. It returns once the signal is
// delivered; use Wait to observe the run halting.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	if run := s.active(runID); run != nil {
		run.cancel()
		s.config.Logger.Info("run cancellation requested", "run", runID)
		return nil
	}
	if _, err := s.config.Store.Load(ctx, runID); err != nil {
		return err
	}
	return fmt.Errorf("run %s: %w", runID, ErrNotActive)
}

// Resume restarts a stored, unfinished run in the background.
func (s *Service) Resume(ctx context.Context, runID string) error {
	if s.active(runID) != nil {
		return fmt.Errorf("run %s: %w", runID, scheduler.ErrRunLocked)
	}
	sess, err := s.config.Runner.Restore(ctx, runID)
	if err != nil {
		return err
	}
	if err := s.launch(sess); err != nil {
		return err
	}
	s.config.Logger.Info("run resumed", "run", runID)
	return nil
}

// Wait blocks until runID is no longer active, then returns its status.
func (s *Service) Wait(ctx context.Context, runID string) (RunStatus, error) {
	if run := s.active(runID); run != nil {
		select {
		case <-run.done:
		case <-ctx.Done():
			return RunStatus{}, ctx.Err()
		}
	}
	return s.Status(ctx, runID)
}

// List returns stored run summaries, newest first.
func (s *Service) List(ctx context.Context) ([]session.Summary, error) {
	return s.config.Store.List(ctx)
}

// Patterns returns the architecture pattern catalog.
func (s *Service) Patterns() []knowledge.Pattern {
	return knowledge.Patterns()
}

// Analyze runs the knowledge base over a design request.
func (s *Service) Analyze(requirements string) knowledge.Analysis {
	return knowledge.Analyze(requirements)
}

// Blueprint renders the run's current plan as Markdown.
func (s *Service) Blueprint(ctx context.Context, runID string) (string, error) {
	if run := s.active(runID); run != nil {
		return blueprint.Markdown(run.sess.Checkpoint()), nil
	}
	cp, err := s.config.Store.Load(ctx, runID)
	if err != nil {
		return "", err
	}
	return blueprint.Markdown(cp), nil
}

// Close cancels every live run and waits for them to checkpoint. The store
// stays open.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelAll()
	s.wg.Wait()
	return nil
}
