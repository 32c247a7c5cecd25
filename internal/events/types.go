package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	RunID() string
	NodeID() string
}

// Topic constants
const (
	TopicNode = "node"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeNodeStarted  = "node.started"
	EventTypeNodeResolved = "node.resolved"
	EventTypeNodeFailed   = "node.failed"
	EventTypeNodeRequeued = "node.requeued"
	EventTypeRunProgress  = "run.progress"
	EventTypeRunFinished  = "run.finished"
)

// NodeStartedEvent is published when a node step begins.
type NodeStartedEvent struct {
	Run       string
	Node      string
	Title     string
	Step      int
	Timestamp time.Time
}

func (e NodeStartedEvent) EventType() string { return EventTypeNodeStarted }
func (e NodeStartedEvent) RunID() string     { return e.Run }
func (e NodeStartedEvent) NodeID() string    { return e.Node }

// NodeResolvedEvent is published when a node's payload is committed.
type NodeResolvedEvent struct {
	Run       string
	Node      string
	Step      int
	Attempts  int
	Timestamp time.Time
}

func (e NodeResolvedEvent) EventType() string { return EventTypeNodeResolved }
func (e NodeResolvedEvent) RunID() string     { return e.Run }
func (e NodeResolvedEvent) NodeID() string    { return e.Node }

// NodeFailedEvent is published when a node step fails. Terminal failures
// end the node; others are followed by another step.
type NodeFailedEvent struct {
	Run       string
	Node      string
	Step      int
	Attempts  int
	Err       error
	Terminal  bool
	Timestamp time.Time
}

func (e NodeFailedEvent) EventType() string { return EventTypeNodeFailed }
func (e NodeFailedEvent) RunID() string     { return e.Run }
func (e NodeFailedEvent) NodeID() string    { return e.Node }

// NodeRequeuedEvent is published when cancellation returns a node to pending.
type NodeRequeuedEvent struct {
	Run       string
	Node      string
	Timestamp time.Time
}

func (e NodeRequeuedEvent) EventType() string { return EventTypeNodeRequeued }
func (e NodeRequeuedEvent) RunID() string     { return e.Run }
func (e NodeRequeuedEvent) NodeID() string    { return e.Node }

// RunProgressEvent is published when node counts change.
type RunProgressEvent struct {
	Run       string
	Total     int
	Resolved  int
	Running   int
	Failed    int
	Pending   int
	Timestamp time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) RunID() string     { return e.Run }
func (e RunProgressEvent) NodeID() string    { return "" }

// RunFinishedEvent is published once when an orchestrator stops driving a run.
type RunFinishedEvent struct {
	Run       string
	Status    string
	Err       error
	Failed    []string // Terminally failed nodes
	Blocked   []string // Pending nodes behind a failed dependency
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) RunID() string     { return e.Run }
func (e RunFinishedEvent) NodeID() string    { return "" }
