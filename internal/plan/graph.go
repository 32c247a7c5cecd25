package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// Graph is a directed acyclic graph of plan nodes. All methods are safe for
// concurrent use; nodes handed out are copies.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]*Node    // All nodes indexed by ID
	dependents map[string][]string // Maps nodeID -> nodes that depend on it
	order      []string            // Cached deterministic order, nil when stale
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		dependents: make(map[string][]string),
	}
}

// FromNodes rebuilds a graph from a snapshot, such as a checkpoint or a plan
// template. Unlike AddNode it accepts nodes in any order and validates the
// whole graph afterwards.
func FromNodes(nodes []Node) (*Graph, error) {
	g := NewGraph()
	for i := range nodes {
		n := cloneNode(&nodes[i])
		if err := checkNode(&n); err != nil {
			return nil, err
		}
		if _, exists := g.nodes[n.ID]; exists {
			return nil, &DuplicateNodeError{NodeID: n.ID}
		}
		if n.Status == "" {
			n.Status = StatusPending
		}
		g.nodes[n.ID] = &n
	}
	for id, n := range g.nodes {
		for _, dep := range n.DependsOn {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	if _, err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func checkNode(n *Node) error {
	if n.ID == "" {
		return &ValidationError{Reason: "node id is empty"}
	}
	if !n.Kind.Valid() {
		return &ValidationError{NodeID: n.ID, Reason: fmt.Sprintf("unknown kind %q", n.Kind)}
	}
	seen := make(map[string]bool, len(n.DependsOn))
	for _, dep := range n.DependsOn {
		if dep == n.ID {
			return &CycleError{From: dep, To: n.ID}
		}
		if seen[dep] {
			return &ValidationError{NodeID: n.ID, Reason: fmt.Sprintf("dependency %q listed twice", dep)}
		}
		seen[dep] = true
	}
	return nil
}

// AddNode inserts a new pending node. Every declared dependency must already
// be present, so insertion can never close a cycle.
func (g *Graph) AddNode(node Node) error {
	n := cloneNode(&node)
	if err := checkNode(&n); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.ID]; exists {
		return &DuplicateNodeError{NodeID: n.ID}
	}
	for _, dep := range n.DependsOn {
		if _, ok := g.nodes[dep]; !ok {
			return &ValidationError{NodeID: n.ID, Reason: fmt.Sprintf("depends on unknown node %q", dep)}
		}
	}

	n.Status = StatusPending
	n.Payload = nil
	g.nodes[n.ID] = &n
	for _, dep := range n.DependsOn {
		g.dependents[dep] = append(g.dependents[dep], n.ID)
	}
	g.order = nil
	return nil
}

// AddEdge records that to depends on from. The edge is rejected with a
// CycleError, leaving the graph unchanged, if from already depends on to.
// Adding an existing edge is a no-op.
func (g *Graph) AddEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("edge source %q: %w", from, ErrNodeNotFound)
	}
	target, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("edge target %q: %w", to, ErrNodeNotFound)
	}
	if from == to {
		return &CycleError{From: from, To: to}
	}
	if slices.Contains(target.DependsOn, from) {
		return nil
	}
	if path := g.pathLocked(to, from); path != nil {
		return &CycleError{From: from, To: to, Path: path}
	}
	if target.Status != StatusPending {
		return &ValidationError{NodeID: to, Reason: fmt.Sprintf("cannot add dependency to %s node", target.Status)}
	}

	target.DependsOn = append(target.DependsOn, from)
	g.dependents[from] = append(g.dependents[from], to)
	g.order = nil
	return nil
}

// pathLocked returns a dependents path from src to dst, or nil if dst is not
// reachable.
func (g *Graph) pathLocked(src, dst string) []string {
	parent := map[string]string{src: ""}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == dst {
			var path []string
			for id := dst; id != ""; id = parent[id] {
				path = append(path, id)
			}
			slices.Reverse(path)
			return path
		}
		for _, next := range g.dependents[cur] {
			if _, seen := parent[next]; !seen {
				parent[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return nil
}

// Validate runs a topological sort using gammazero/toposort and verifies all
// dependencies exist. Returns the sorted node IDs.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := g.sortedIDsLocked()
	for _, id := range ids {
		for _, dep := range g.nodes[id].DependsOn {
			if _, exists := g.nodes[dep]; !exists {
				return nil, &ValidationError{NodeID: id, Reason: fmt.Sprintf("depends on unknown node %q", dep)}
			}
		}
	}

	var edges []toposort.Edge
	for _, id := range ids {
		n := g.nodes[id]
		if len(n.DependsOn) == 0 {
			// Roots get an edge from nil so they appear in the result
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, dep := range n.DependsOn {
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("graph contains cycle: %v", err)}
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(g.nodes) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, &ValidationError{Reason: fmt.Sprintf("topological sort lost %d nodes: %s", len(missing), strings.Join(missing, ", "))}
	}
	return order, nil
}

// Order returns the deterministic scheduling order: topological, with ties
// broken by node ID.
func (g *Graph) Order() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.orderLocked())
}

func (g *Graph) orderLocked() []string {
	if g.order != nil {
		return g.order
	}

	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.DependsOn)
	}
	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, child := range g.dependents[id] {
			indegree[child]--
			if indegree[child] == 0 {
				i, _ := slices.BinarySearch(ready, child)
				ready = slices.Insert(ready, i, child)
			}
		}
	}
	g.order = order
	return order
}

func (g *Graph) sortedIDsLocked() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReadyNodes returns a lazy sequence of pending nodes whose dependencies are
// all resolved, in scheduling order. Readiness is re-checked as the sequence
// advances, so nodes claimed by the consumer mid-iteration are skipped.
func (g *Graph) ReadyNodes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		g.mu.Lock()
		order := g.orderLocked()
		g.mu.Unlock()

		for _, id := range order {
			g.mu.RLock()
			n, ok := g.nodes[id]
			ready := ok && g.readyLocked(n)
			var cp Node
			if ready {
				cp = cloneNode(n)
			}
			g.mu.RUnlock()

			if !ready {
				continue
			}
			if !yield(cp) {
				return
			}
		}
	}
}

func (g *Graph) readyLocked(n *Node) bool {
	if n.Status != StatusPending {
		return false
	}
	return g.depsResolvedLocked(n) == ""
}

// depsResolvedLocked returns the first unresolved dependency, or "".
func (g *Graph) depsResolvedLocked(n *Node) string {
	for _, dep := range n.DependsOn {
		d, ok := g.nodes[dep]
		if !ok || d.Status != StatusResolved {
			return dep
		}
	}
	return ""
}

// MarkOption adjusts bookkeeping fields alongside a status transition.
type MarkOption func(*Node)

// WithError records the failure cause on the node.
func WithError(err error) MarkOption {
	return func(n *Node) {
		if err != nil {
			n.LastError = err.Error()
		}
	}
}

// AsTerminal flags a failure as final.
func AsTerminal() MarkOption {
	return func(n *Node) { n.Terminal = true }
}

// AddAttempts adds backend invocations to the node's attempt count.
func AddAttempts(delta int) MarkOption {
	return func(n *Node) { n.Attempts += delta }
}

// AddSteps adjusts the node's step counter.
func AddSteps(delta int) MarkOption {
	return func(n *Node) {
		n.Steps += delta
		if n.Steps < 0 {
			n.Steps = 0
		}
	}
}

// Mark transitions a node to status. It reports whether the node changed.
//
// Resolving an already resolved node with an identical payload is a no-op;
// any other transition out of Resolved fails with a ConflictError.
// Permitted transitions:
//   - Pending -> Running, once every dependency is resolved
//   - Failed -> Running, unless the failure is terminal
//   - Running -> Resolved, Failed or Pending
//   - Failed -> Pending, unless the failure is terminal
func (g *Graph) Mark(id string, status Status, payload json.RawMessage, opts ...MarkOption) (bool, error) {
	compact, err := compactPayload(payload)
	if err != nil {
		return false, &ValidationError{NodeID: id, Reason: fmt.Sprintf("payload is not valid JSON: %v", err)}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return false, fmt.Errorf("mark %q: %w", id, ErrNodeNotFound)
	}

	conflict := func(reason string) error {
		return &ConflictError{NodeID: id, From: n.Status, To: status, Reason: reason}
	}

	if n.Status == StatusResolved {
		if status != StatusResolved {
			return false, conflict("node is already resolved")
		}
		if !bytes.Equal(n.Payload, compact) {
			return false, conflict("payload differs from the committed one")
		}
		return false, nil
	}

	switch status {
	case StatusRunning:
		switch {
		case n.Status == StatusPending:
		case n.Status == StatusFailed && !n.Terminal:
		default:
			return false, conflict("node is not runnable")
		}
		if dep := g.depsResolvedLocked(n); dep != "" {
			return false, conflict(fmt.Sprintf("dependency %q is not resolved", dep))
		}
	case StatusResolved:
		if n.Status != StatusRunning {
			return false, conflict("only a running node can be resolved")
		}
		if len(compact) == 0 {
			return false, &ValidationError{NodeID: id, Reason: "resolved payload is empty"}
		}
	case StatusFailed:
		if n.Status != StatusRunning {
			return false, conflict("only a running node can fail")
		}
	case StatusPending:
		if n.Status != StatusRunning && !(n.Status == StatusFailed && !n.Terminal) {
			return false, conflict("node cannot be requeued")
		}
	default:
		return false, conflict("unknown status")
	}

	n.Status = status
	switch status {
	case StatusResolved:
		n.Payload = compact
		n.LastError = ""
	case StatusFailed, StatusPending:
		n.Payload = nil
	}
	for _, opt := range opts {
		opt(n)
	}
	return true, nil
}

// RequeueInterrupted resets work left in flight by an interrupted run:
// running nodes go back to pending with their unfinished step uncounted, and
// retryable failures become pending again. Returns the affected IDs.
func (g *Graph) RequeueInterrupted() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []string
	for _, id := range g.orderLocked() {
		n := g.nodes[id]
		switch {
		case n.Status == StatusRunning:
			n.Status = StatusPending
			if n.Steps > 0 {
				n.Steps--
			}
		case n.Status == StatusFailed && !n.Terminal:
			n.Status = StatusPending
		default:
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Get returns a copy of the node with the given ID.
func (g *Graph) Get(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

// Nodes returns copies of all nodes in scheduling order.
func (g *Graph) Nodes() []Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	order := g.orderLocked()
	nodes := make([]Node, 0, len(order))
	for _, id := range order {
		nodes = append(nodes, cloneNode(g.nodes[id]))
	}
	return nodes
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Counts returns the number of nodes per status.
func (g *Graph) Counts() map[Status]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[Status]int, 4)
	for _, n := range g.nodes {
		counts[n.Status]++
	}
	return counts
}

// Clone returns an independent deep copy of the graph.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cp := NewGraph()
	for id, n := range g.nodes {
		c := cloneNode(n)
		cp.nodes[id] = &c
	}
	for id, deps := range g.dependents {
		cp.dependents[id] = slices.Clone(deps)
	}
	return cp
}

// Blocked returns pending nodes that can never become ready because a
// dependency, direct or transitive, failed terminally.
func (g *Graph) Blocked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	dead := make(map[string]bool)
	var blocked []string
	for _, id := range g.orderLocked() {
		n := g.nodes[id]
		if n.Status == StatusFailed && n.Terminal {
			dead[id] = true
			continue
		}
		if n.Status != StatusPending {
			continue
		}
		for _, dep := range n.DependsOn {
			if dead[dep] {
				dead[id] = true
				blocked = append(blocked, id)
				break
			}
		}
	}
	return blocked
}
