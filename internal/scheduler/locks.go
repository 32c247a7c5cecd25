package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrRunLocked is returned when a run is already being driven.
var ErrRunLocked = errors.New("run is already being driven")

// RunLockManager enforces a single writer per run ID.
// Uses a keyed lock set: each run ID is held by at most one orchestrator,
// while different runs proceed independently.
type RunLockManager struct {
	mu   sync.Mutex          // Guards the held set
	held map[string]struct{} // Run IDs currently driven
}

// NewRunLockManager creates a new RunLockManager.
func NewRunLockManager() *RunLockManager {
	return &RunLockManager{
		held: make(map[string]struct{}),
	}
}

// TryLock claims runID without blocking. The returned release function frees
// the claim and is safe to call more than once.
func (m *RunLockManager) TryLock(runID string) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[runID]; busy {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunLocked)
	}
	m.held[runID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, runID)
			m.mu.Unlock()
		})
	}, nil
}

// Held reports whether runID is currently claimed.
func (m *RunLockManager) Held(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[runID]
	return ok
}

// Active returns the claimed run IDs in sorted order.
func (m *RunLockManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.held))
	for id := range m.held {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
