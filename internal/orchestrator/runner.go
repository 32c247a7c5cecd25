// Package orchestrator drives a run's plan graph to completion with a bounded
// worker pool, checkpointing after every node transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/architectagent/architect/internal/events"
	"github.com/architectagent/architect/internal/knowledge"
	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/prompt"
	"github.com/architectagent/architect/internal/scheduler"
	"github.com/architectagent/architect/internal/session"
)

// DefaultWorkers bounds concurrent node executions when a run sets none.
const DefaultWorkers = 4

// ErrNotResumable is returned when resuming a run that already finished.
var ErrNotResumable = errors.New("run cannot be resumed")

// Outcome is the final state of a Run call.
type Outcome struct {
	RunID   string
	Status  session.Status
	Failed  []string // Terminally failed nodes
	Blocked []string // Pending nodes behind a failed dependency
	Counts  map[plan.Status]int
}

// RunnerConfig configures the runner.
type RunnerConfig struct {
	Invoker scheduler.Invoker         // Reasoning calls (required)
	Store   session.Store             // Checkpoint storage (required)
	Locks   *scheduler.RunLockManager // Shared single-writer registry (default: private)
	Bus     *events.EventBus          // Optional progress events
	Builder *prompt.Builder           // Context builder (default: prompt.NewBuilder(0))
	Logger  *slog.Logger
}

// Runner executes plan graphs. A single Runner can drive many runs at once;
// each run ID is driven by at most one caller at a time.
type Runner struct {
	config RunnerConfig
}

// NewRunner creates a new runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Locks == nil {
		cfg.Locks = scheduler.NewRunLockManager()
	}
	if cfg.Builder == nil {
		cfg.Builder = prompt.NewBuilder(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{config: cfg}
}

// Restore loads a stored run and prepares it for another Run: work left in
// flight is requeued and the status goes back to running.
func (r *Runner) Restore(ctx context.Context, runID string) (*session.Session, error) {
	cp, err := r.config.Store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !cp.Status.Resumable() {
		return nil, fmt.Errorf("run %s is %s: %w", runID, cp.Status, ErrNotResumable)
	}
	sess, err := session.Restore(cp)
	if err != nil {
		return nil, err
	}
	if ids := sess.PrepareResume(); len(ids) > 0 {
		r.config.Logger.Info("requeued interrupted nodes", "run", runID, "nodes", ids)
	}
	return sess, nil
}

// Resume restores runID and drives it to completion.
func (r *Runner) Resume(ctx context.Context, runID string) (Outcome, error) {
	sess, err := r.Restore(ctx, runID)
	if err != nil {
		return Outcome{RunID: runID}, err
	}
	return r.Run(ctx, sess)
}

// completion is what a worker reports back to the dispatcher.
type completion struct {
	result scheduler.Result
	err    error
}

// Run drives sess until every node is resolved, nothing more can run, ctx is
// cancelled or a fatal error occurs.
//
// Cancelling ctx stops new claims at once; reasoning calls already in flight
// finish and commit before Run returns with status cancelled. A conflicting
// commit or a failed checkpoint write ends the run with status failed and
// returns the error.
func (r *Runner) Run(ctx context.Context, sess *session.Session) (Outcome, error) {
	out := Outcome{RunID: sess.ID()}
	release, err := r.config.Locks.TryLock(sess.ID())
	if err != nil {
		return out, err
	}
	defer release()

	settings := sess.Settings()
	workers := settings.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := r.config.Logger.With("run", sess.ID())

	cp := &checkpointer{store: r.config.Store, sess: sess}
	persistCtx := context.WithoutCancel(ctx)
	if err := cp.save(persistCtx); err != nil {
		return out, fmt.Errorf("initial checkpoint: %w", err)
	}

	// Fatal errors cancel with a cause; plain parent cancellation does not.
	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	analysis := knowledge.Analyze(sess.Requirements())
	exec := scheduler.NewExecutor(r.config.Invoker,
		scheduler.WithStepBudget(settings.StepBudget),
		scheduler.WithGeneration(settings.Generation),
		scheduler.WithBuilder(r.config.Builder),
		scheduler.WithAnalysis(&analysis),
		scheduler.WithLogger(logger),
		scheduler.WithObserver(func(t scheduler.Transition) error {
			r.publishTransition(sess, t)
			if err := cp.save(persistCtx); err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
			r.publishProgress(sess)
			return nil
		}),
	)

	logger.Info("run started", "nodes", sess.Graph().Len(), "workers", workers)

	queue := make(chan plan.Node)
	done := make(chan completion, workers)

	var g errgroup.Group
	g.SetLimit(workers)
	for range workers {
		g.Go(func() error {
			for node := range queue {
				res, err := exec.Execute(runCtx, sess, node)
				done <- completion{result: res, err: err}
			}
			return nil
		})
	}

	var fatal error
	fail := func(err error) {
		if fatal == nil {
			fatal = err
			stop(err)
		}
	}

	inflight := 0
	for {
		if runCtx.Err() == nil {
			for node := range sess.Graph().ReadyNodes() {
				if inflight >= workers {
					break
				}
				claimed, err := sess.Claim(node.ID)
				if err != nil {
					fail(fmt.Errorf("claim %q: %w", node.ID, err))
					break
				}
				logger.Debug("node claimed", "node", claimed.ID, "step", claimed.Steps)
				r.publishTransition(sess, scheduler.Transition{NodeID: claimed.ID, Outcome: session.OutcomeStarted, Step: claimed.Steps})
				if err := cp.save(persistCtx); err != nil {
					fail(fmt.Errorf("checkpoint: %w", err))
					_ = sess.Requeue(claimed.ID, 0, err)
					break
				}
				r.publishProgress(sess)
				queue <- claimed
				inflight++
			}
		}

		if inflight == 0 {
			break
		}
		c := <-done
		inflight--
		if c.err != nil {
			fail(c.err)
		}
	}
	close(queue)
	_ = g.Wait()

	out.Counts = sess.Graph().Counts()
	status := r.finalStatus(ctx, sess, fatal, &out)
	sess.SetStatus(status, fatal)
	out.Status = status

	if err := cp.save(persistCtx); err != nil && fatal == nil {
		fatal = fmt.Errorf("final checkpoint: %w", err)
		sess.SetStatus(session.StatusFailed, fatal)
		out.Status = session.StatusFailed
		_ = cp.save(persistCtx)
	}

	r.publish(events.TopicRun, events.RunFinishedEvent{
		Run:       sess.ID(),
		Status:    string(out.Status),
		Err:       fatal,
		Failed:    out.Failed,
		Blocked:   out.Blocked,
		Timestamp: time.Now(),
	})

	switch out.Status {
	case session.StatusResolved:
		logger.Info("run resolved", "nodes", sess.Graph().Len())
	case session.StatusFailed:
		logger.Error("run failed", "err", fatal)
	default:
		logger.Warn("run stopped", "status", out.Status, "failed", out.Failed, "blocked", out.Blocked)
	}
	return out, fatal
}

func (r *Runner) finalStatus(ctx context.Context, sess *session.Session, fatal error, out *Outcome) session.Status {
	graph := sess.Graph()
	if fatal != nil {
		return session.StatusFailed
	}
	if out.Counts[plan.StatusResolved] == graph.Len() {
		return session.StatusResolved
	}
	if ctx.Err() != nil {
		return session.StatusCancelled
	}
	for _, n := range graph.Nodes() {
		if n.Status == plan.StatusFailed && n.Terminal {
			out.Failed = append(out.Failed, n.ID)
		}
	}
	out.Blocked = graph.Blocked()
	return session.StatusPartialFailure
}

// checkpointer serializes checkpoint writes for one run.
type checkpointer struct {
	mu    sync.Mutex
	store session.Store
	sess  *session.Session
}

func (c *checkpointer) save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Save(ctx, c.sess.Checkpoint())
}

func (r *Runner) publish(topic string, ev events.Event) {
	if r.config.Bus != nil {
		r.config.Bus.Publish(topic, ev)
	}
}

func (r *Runner) publishTransition(sess *session.Session, t scheduler.Transition) {
	now := time.Now()
	switch t.Outcome {
	case session.OutcomeStarted:
		n, _ := sess.Graph().Get(t.NodeID)
		r.publish(events.TopicNode, events.NodeStartedEvent{Run: sess.ID(), Node: t.NodeID, Title: n.Title, Step: t.Step, Timestamp: now})
	case session.OutcomeResolved:
		r.publish(events.TopicNode, events.NodeResolvedEvent{Run: sess.ID(), Node: t.NodeID, Step: t.Step, Attempts: t.Attempts, Timestamp: now})
	case session.OutcomeRetry, session.OutcomeFailed:
		r.publish(events.TopicNode, events.NodeFailedEvent{
			Run: sess.ID(), Node: t.NodeID, Step: t.Step, Attempts: t.Attempts,
			Err: t.Err, Terminal: t.Outcome == session.OutcomeFailed, Timestamp: now,
		})
	case session.OutcomeRequeued:
		r.publish(events.TopicNode, events.NodeRequeuedEvent{Run: sess.ID(), Node: t.NodeID, Timestamp: now})
	}
}

func (r *Runner) publishProgress(sess *session.Session) {
	if r.config.Bus == nil {
		return
	}
	counts := sess.Graph().Counts()
	r.publish(events.TopicRun, events.RunProgressEvent{
		Run:       sess.ID(),
		Total:     sess.Graph().Len(),
		Resolved:  counts[plan.StatusResolved],
		Running:   counts[plan.StatusRunning],
		Failed:    counts[plan.StatusFailed],
		Pending:   counts[plan.StatusPending],
		Timestamp: time.Now(),
	})
}
