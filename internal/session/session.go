// Package session holds the state of one orchestration run and its durable
// checkpoints.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/reasoning"
)

// Status is the overall state of a run.
type Status string

const (
	StatusRunning        Status = "running"
	StatusResolved       Status = "resolved"
	StatusPartialFailure Status = "partial_failure"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed" // Aborted by a fatal error
)

// Finished reports whether no orchestrator will drive the run any further
// without an explicit resume.
func (s Status) Finished() bool {
	return s != StatusRunning
}

// Resumable reports whether a stored run can be picked up again.
func (s Status) Resumable() bool {
	return s == StatusRunning || s == StatusCancelled || s == StatusPartialFailure
}

// Settings are the per-run knobs fixed at start.
type Settings struct {
	Generation reasoning.Params `json:"generation"`
	Workers    int              `json:"workers"`
	StepBudget int              `json:"step_budget"` // Step attempts per node before terminal failure
	Template   string           `json:"template"`
}

// Outcome labels a step log record.
type Outcome string

const (
	OutcomeStarted  Outcome = "started"
	OutcomeResolved Outcome = "resolved"
	OutcomeRetry    Outcome = "retry"    // Failed, another step attempt follows
	OutcomeFailed   Outcome = "failed"   // Failed terminally
	OutcomeRequeued Outcome = "requeued" // Interrupted, back to pending
)

// StepRecord is one entry in the ordered step log.
type StepRecord struct {
	NodeID    string    `json:"node_id"`
	Step      int       `json:"step"`
	Attempts  int       `json:"attempts,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the state of one run. Every graph mutation goes through its
// commit methods so the graph change and the matching log record are applied
// together under one lock.
type Session struct {
	mu           sync.Mutex
	id           string
	createdAt    time.Time
	updatedAt    time.Time
	requirements string
	settings     Settings
	graph        *plan.Graph
	log          []StepRecord
	status       Status
	lastErr      string
	now          func() time.Time
}

// New creates a running session with a fresh run ID.
func New(requirements string, settings Settings, graph *plan.Graph) *Session {
	now := time.Now().UTC()
	return &Session{
		id:           uuid.NewString(),
		createdAt:    now,
		updatedAt:    now,
		requirements: requirements,
		settings:     settings,
		graph:        graph,
		status:       StatusRunning,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the run ID.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Requirements returns the design request text.
func (s *Session) Requirements() string { return s.requirements }

// Settings returns the run settings.
func (s *Session) Settings() Settings { return s.settings }

// Graph returns the plan graph for reading. Mutate it only through the
// session's commit methods.
func (s *Session) Graph() *plan.Graph { return s.graph }

// Status returns the run status and the fatal error, if any.
func (s *Session) Status() (Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

// SetStatus records the run status.
func (s *Session) SetStatus(status Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.updatedAt = s.now()
}

// Log returns a copy of the step log.
func (s *Session) Log() []StepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StepRecord(nil), s.log...)
}

func (s *Session) appendLocked(rec StepRecord) {
	rec.Timestamp = s.now()
	s.log = append(s.log, rec)
	s.updatedAt = rec.Timestamp
}

// Claim moves a ready node, or one whose last step failed retryably, to
// running and starts a new step.
func (s *Session) Claim(nodeID string) (plan.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.graph.Mark(nodeID, plan.StatusRunning, nil, plan.AddSteps(1)); err != nil {
		return plan.Node{}, err
	}
	n, _ := s.graph.Get(nodeID)
	s.appendLocked(StepRecord{NodeID: nodeID, Step: n.Steps, Outcome: OutcomeStarted})
	return n, nil
}

// Resolve commits a node's payload. Committing the same payload twice is a
// no-op and adds no log record; a different payload is a plan.ConflictError.
func (s *Session) Resolve(nodeID string, payload json.RawMessage, attempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.graph.Mark(nodeID, plan.StatusResolved, payload, plan.AddAttempts(attempts))
	if err != nil || !changed {
		return false, err
	}
	n, _ := s.graph.Get(nodeID)
	s.appendLocked(StepRecord{NodeID: nodeID, Step: n.Steps, Attempts: attempts, Outcome: OutcomeResolved})
	return true, nil
}

// Fail records a failed step. A terminal failure is final for the node.
func (s *Session) Fail(nodeID string, cause error, attempts int, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := []plan.MarkOption{plan.WithError(cause), plan.AddAttempts(attempts)}
	outcome := OutcomeRetry
	if terminal {
		opts = append(opts, plan.AsTerminal())
		outcome = OutcomeFailed
	}
	if _, err := s.graph.Mark(nodeID, plan.StatusFailed, nil, opts...); err != nil {
		return err
	}
	n, _ := s.graph.Get(nodeID)
	rec := StepRecord{NodeID: nodeID, Step: n.Steps, Attempts: attempts, Outcome: outcome}
	if cause != nil {
		rec.Error = cause.Error()
	}
	s.appendLocked(rec)
	return nil
}

// Requeue returns an interrupted node to pending without counting the
// unfinished step.
func (s *Session) Requeue(nodeID string, attempts int, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.graph.Get(nodeID)
	if !ok {
		return fmt.Errorf("requeue %q: %w", nodeID, plan.ErrNodeNotFound)
	}
	opts := []plan.MarkOption{plan.AddAttempts(attempts)}
	if n.Status == plan.StatusRunning {
		opts = append(opts, plan.AddSteps(-1))
	}
	if _, err := s.graph.Mark(nodeID, plan.StatusPending, nil, opts...); err != nil {
		return err
	}
	rec := StepRecord{NodeID: nodeID, Step: n.Steps, Attempts: attempts, Outcome: OutcomeRequeued}
	if cause != nil {
		rec.Error = cause.Error()
	}
	s.appendLocked(rec)
	return nil
}

// PrepareResume resets work an interrupted run left in flight and marks the
// session running again. Returns the requeued node IDs.
func (s *Session) PrepareResume() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.graph.RequeueInterrupted()
	for _, id := range ids {
		n, _ := s.graph.Get(id)
		s.appendLocked(StepRecord{NodeID: id, Step: n.Steps, Outcome: OutcomeRequeued, Error: "run resumed"})
	}
	s.status = StatusRunning
	s.lastErr = ""
	s.updatedAt = s.now()
	return ids
}

// Checkpoint is the durable snapshot of a session.
type Checkpoint struct {
	RunID        string       `json:"run_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Requirements string       `json:"requirements"`
	Settings     Settings     `json:"settings"`
	Status       Status       `json:"status"`
	Error        string       `json:"error,omitempty"`
	Nodes        []plan.Node  `json:"nodes"`
	Log          []StepRecord `json:"log"`
}

// Checkpoint takes a consistent snapshot of the session.
func (s *Session) Checkpoint() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Checkpoint{
		RunID:        s.id,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
		Requirements: s.requirements,
		Settings:     s.settings,
		Status:       s.status,
		Error:        s.lastErr,
		Nodes:        s.graph.Nodes(),
		Log:          append([]StepRecord(nil), s.log...),
	}
}

// Restore rebuilds a session from a checkpoint.
func Restore(cp Checkpoint) (*Session, error) {
	if cp.RunID == "" {
		return nil, errors.New("checkpoint has no run id")
	}
	graph, err := plan.FromNodes(cp.Nodes)
	if err != nil {
		return nil, fmt.Errorf("restore run %s: %w", cp.RunID, err)
	}
	return &Session{
		id:           cp.RunID,
		createdAt:    cp.CreatedAt,
		updatedAt:    cp.UpdatedAt,
		requirements: cp.Requirements,
		settings:     cp.Settings,
		graph:        graph,
		log:          append([]StepRecord(nil), cp.Log...),
		status:       cp.Status,
		lastErr:      cp.Error,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}
