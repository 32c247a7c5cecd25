// Package scheduler drives single plan nodes through their step state
// machine and guards runs against concurrent writers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/architectagent/architect/internal/knowledge"
	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/prompt"
	"github.com/architectagent/architect/internal/reasoning"
	"github.com/architectagent/architect/internal/session"
)

// DefaultStepBudget is the number of steps a node gets before failing
// terminally.
const DefaultStepBudget = 3

// Invoker performs one reasoning call, retries included.
type Invoker interface {
	Invoke(ctx context.Context, req reasoning.Request) (reasoning.Response, error)
}

// Transition describes a committed node change.
type Transition struct {
	NodeID   string
	Outcome  session.Outcome
	Step     int
	Attempts int
	Err      error
}

// Observer is called after every committed transition. A non-nil error is
// fatal to the run.
type Observer func(Transition) error

// Result is how a node left the executor.
type Result struct {
	NodeID   string
	Status   plan.Status // Resolved, Failed (terminal) or Pending (requeued)
	Steps    int
	Attempts int   // Backend invocations spent by this execution
	Err      error // Last cause when not resolved
}

// Executor runs one claimed node until it resolves, fails terminally or is
// requeued by cancellation.
type Executor struct {
	invoker  Invoker
	builder  *prompt.Builder
	budget   int
	params   reasoning.Params
	analysis *knowledge.Analysis
	observe  Observer
	logger   *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithStepBudget sets the per-node step budget.
func WithStepBudget(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.budget = n
		}
	}
}

// WithGeneration sets the generation parameters for every call. Zero Params
// keep the defaults.
func WithGeneration(p reasoning.Params) ExecutorOption {
	return func(e *Executor) {
		if p != (reasoning.Params{}) {
			e.params = p
		}
	}
}

// WithBuilder replaces the default context builder.
func WithBuilder(b *prompt.Builder) ExecutorOption {
	return func(e *Executor) { e.builder = b }
}

// WithAnalysis supplies the knowledge base analysis for hinted nodes.
func WithAnalysis(a *knowledge.Analysis) ExecutorOption {
	return func(e *Executor) { e.analysis = a }
}

// WithObserver registers the transition callback.
func WithObserver(fn Observer) ExecutorOption {
	return func(e *Executor) { e.observe = fn }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor calling invoker.
func NewExecutor(invoker Invoker, opts ...ExecutorOption) *Executor {
	e := &Executor{
		invoker: invoker,
		budget:  DefaultStepBudget,
		params:  reasoning.Params{MaxTokens: 4096, Temperature: 0.3},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.builder == nil {
		e.builder = prompt.NewBuilder(0)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

type stepState int

const (
	stateCall   stepState = iota // Build context and call the backend
	stateCommit                  // Resolve with the validated payload
	stateFailed                  // Decide between retry, requeue and terminal failure
	stateClaim                   // Start the next step
	stateDone
)

// Execute drives node, which the caller has already claimed, through the step
// state machine. ctx only gates new steps: a reasoning call in flight runs to
// completion on a context detached from ctx's cancellation. The returned
// error is fatal to the run (a conflicting commit or a failed observer).
func (e *Executor) Execute(ctx context.Context, sess *session.Session, node plan.Node) (Result, error) {
	if node.Status != plan.StatusRunning {
		return Result{}, fmt.Errorf("execute %q: node is %s, not claimed", node.ID, node.Status)
	}

	res := Result{NodeID: node.ID}
	callCtx := context.WithoutCancel(ctx)
	state := stateCall

	var (
		resp     reasoning.Response
		cause    error
		terminal bool
	)

	for state != stateDone {
		switch state {
		case stateCall:
			var err error
			resp, err = e.invoker.Invoke(callCtx, e.request(sess, node))
			res.Attempts += resp.Attempts
			switch {
			case err != nil:
				cause = err
				// Exhausted transient retries are worth another step
				var unavailable *reasoning.UnavailableError
				terminal = !errors.As(err, &unavailable)
				state = stateFailed
			case resp.ParseErr != nil:
				cause = fmt.Errorf("response is not a JSON object: %w", resp.ParseErr)
				terminal = false
				state = stateFailed
			default:
				if err := ValidatePayload(node.Kind, resp.Structured); err != nil {
					cause, terminal = err, false
					state = stateFailed
					break
				}
				state = stateCommit
			}

		case stateCommit:
			if _, err := sess.Resolve(node.ID, resp.Structured, resp.Attempts); err != nil {
				return res, fmt.Errorf("commit %q: %w", node.ID, err)
			}
			e.logger.Info("node resolved", "run", sess.ID(), "node", node.ID, "step", node.Steps, "attempts", resp.Attempts)
			if err := e.notify(Transition{NodeID: node.ID, Outcome: session.OutcomeResolved, Step: node.Steps, Attempts: resp.Attempts}); err != nil {
				return res, err
			}
			res.Status = plan.StatusResolved
			res.Err = nil
			state = stateDone

		case stateFailed:
			res.Err = cause
			if node.Steps >= e.budget {
				terminal = true
			}

			if !terminal && ctx.Err() != nil {
				if err := sess.Requeue(node.ID, resp.Attempts, cause); err != nil {
					return res, fmt.Errorf("requeue %q: %w", node.ID, err)
				}
				e.logger.Info("node requeued", "run", sess.ID(), "node", node.ID, "step", node.Steps, "err", cause)
				if err := e.notify(Transition{NodeID: node.ID, Outcome: session.OutcomeRequeued, Step: node.Steps - 1, Attempts: resp.Attempts, Err: cause}); err != nil {
					return res, err
				}
				res.Status = plan.StatusPending
				state = stateDone
				break
			}

			if err := sess.Fail(node.ID, cause, resp.Attempts, terminal); err != nil {
				return res, fmt.Errorf("fail %q: %w", node.ID, err)
			}
			outcome := session.OutcomeRetry
			if terminal {
				outcome = session.OutcomeFailed
				e.logger.Error("node failed", "run", sess.ID(), "node", node.ID, "step", node.Steps, "err", cause)
			} else {
				e.logger.Warn("node step failed, retrying", "run", sess.ID(), "node", node.ID,
					"step", node.Steps, "budget", e.budget, "err", cause)
			}
			if err := e.notify(Transition{NodeID: node.ID, Outcome: outcome, Step: node.Steps, Attempts: resp.Attempts, Err: cause}); err != nil {
				return res, err
			}
			if terminal {
				res.Status = plan.StatusFailed
				state = stateDone
				break
			}
			state = stateClaim

		case stateClaim:
			if ctx.Err() != nil {
				// Failed steps are retryable; leave the node for resume
				if err := sess.Requeue(node.ID, 0, ctx.Err()); err != nil {
					return res, fmt.Errorf("requeue %q: %w", node.ID, err)
				}
				if err := e.notify(Transition{NodeID: node.ID, Outcome: session.OutcomeRequeued, Step: node.Steps}); err != nil {
					return res, err
				}
				res.Status = plan.StatusPending
				state = stateDone
				break
			}
			next, err := sess.Claim(node.ID)
			if err != nil {
				return res, fmt.Errorf("claim %q: %w", node.ID, err)
			}
			node = next
			if err := e.notify(Transition{NodeID: node.ID, Outcome: session.OutcomeStarted, Step: node.Steps}); err != nil {
				return res, err
			}
			state = stateCall
		}
	}

	final, _ := sess.Graph().Get(node.ID)
	res.Steps = final.Steps
	return res, nil
}

func (e *Executor) request(sess *session.Session, node plan.Node) reasoning.Request {
	graph := sess.Graph()
	deps := make([]plan.Node, 0, len(node.DependsOn))
	for _, id := range node.DependsOn {
		if d, ok := graph.Get(id); ok {
			deps = append(deps, d)
		}
	}
	return reasoning.Request{
		System: e.builder.System(),
		Context: e.builder.Build(prompt.Input{
			Requirements: sess.Requirements(),
			Node:         node,
			Dependencies: deps,
			Analysis:     e.analysis,
			Feedback:     node.LastError,
		}),
		Params: e.params,
	}
}

func (e *Executor) notify(t Transition) error {
	if e.observe == nil {
		return nil
	}
	if err := e.observe(t); err != nil {
		return fmt.Errorf("after %s of %q: %w", t.Outcome, t.NodeID, err)
	}
	return nil
}
