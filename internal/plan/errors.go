package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNodeNotFound is returned when an operation names an unknown node.
var ErrNodeNotFound = errors.New("node not found")

// ValidationError reports a malformed node or graph.
type ValidationError struct {
	NodeID string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.NodeID == "" {
		return "invalid plan: " + e.Reason
	}
	return fmt.Sprintf("invalid node %q: %s", e.NodeID, e.Reason)
}

// CycleError reports an edge that would close a dependency cycle.
type CycleError struct {
	From string
	To   string
	Path []string // Existing path from To back to From, when known
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("edge %q -> %q would create a cycle", e.From, e.To)
	}
	return fmt.Sprintf("edge %q -> %q would create a cycle: %s", e.From, e.To, strings.Join(e.Path, " -> "))
}

// DuplicateNodeError is returned when a node id is already present.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q already exists", e.NodeID)
}

// ConflictError reports a status transition the graph refuses, most notably
// re-resolving a node with a different payload.
type ConflictError struct {
	NodeID string
	From   Status
	To     Status
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("node %q: cannot mark %s as %s: %s", e.NodeID, e.From, e.To, e.Reason)
}
