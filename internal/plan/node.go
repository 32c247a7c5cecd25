package plan

import (
	"bytes"
	"encoding/json"
)

// Kind classifies what a node contributes to the architecture.
type Kind string

const (
	KindComponent Kind = "component" // Building blocks of the system
	KindDecision  Kind = "decision"  // Architecture decision records
	KindInterface Kind = "interface" // Contracts between components
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindComponent, KindDecision, KindInterface:
		return true
	}
	return false
}

// Status represents the current state of a node.
type Status string

const (
	StatusPending  Status = "pending"  // Waiting for dependencies or a worker
	StatusRunning  Status = "running"  // Claimed by the step executor
	StatusResolved Status = "resolved" // Payload committed
	StatusFailed   Status = "failed"   // Last step attempt failed
)

// Hint names a knowledge-base section injected into a node's context.
type Hint string

const (
	HintPatterns  Hint = "patterns"
	HintConflicts Hint = "conflicts"
)

// Node is a unit of work in the plan graph.
type Node struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Title       string          `json:"title"`
	Instruction string          `json:"instruction,omitempty"`
	Hints       []Hint          `json:"hints,omitempty"`
	DependsOn   []string        `json:"depends_on,omitempty"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"` // Backend invocations, adapter retries included
	Steps       int             `json:"steps"`    // Step attempts started by the executor
	LastError   string          `json:"last_error,omitempty"`
	Terminal    bool            `json:"terminal,omitempty"` // Failed and out of retries
}

// HasHint reports whether the node asks for the given knowledge section.
func (n Node) HasHint(h Hint) bool {
	for _, x := range n.Hints {
		if x == h {
			return true
		}
	}
	return false
}

func cloneNode(n *Node) Node {
	cp := *n
	if n.DependsOn != nil {
		cp.DependsOn = append([]string(nil), n.DependsOn...)
	}
	if n.Hints != nil {
		cp.Hints = append([]Hint(nil), n.Hints...)
	}
	if n.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), n.Payload...)
	}
	return cp
}

// compactPayload normalizes a JSON payload so equal documents compare equal
// regardless of whitespace.
func compactPayload(p json.RawMessage) (json.RawMessage, error) {
	if len(p) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
