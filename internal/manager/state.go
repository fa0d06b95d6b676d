// Package manager runs the periodic refresh of every listed investor:
// compile, record per-investor health, export.
//
// This file defines InvestorState for per-investor refresh tracking and
// StateManager for managing the states of every listed investor.
package manager

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Health State Constants
// =============================================================================

const (
	// HealthStateUnknown indicates no record has been compiled yet.
	HealthStateUnknown = "unknown"

	// HealthStateUp indicates the last compile succeeded.
	HealthStateUp = "up"

	// HealthStateDegraded indicates recent compiles failed.
	HealthStateDegraded = "degraded"

	// HealthStateDown indicates compiles are consistently failing.
	HealthStateDown = "down"
)

// downAfter is the number of consecutive failures that marks an investor down.
const downAfter = 3

// =============================================================================
// InvestorState
// =============================================================================

// InvestorState holds the refresh state of one investor.
//
// Investors without raw data are skipped rather than failed: a skip keeps
// the health state and only records the reason.
//
// InvestorState is safe for concurrent use.
type InvestorState struct {
	Name string

	mu                  sync.RWMutex
	healthState         string
	lastError           string
	consecutiveFailures int
	compiles            int64
	failures            int64
	lastRunAt           *time.Time
	lastSuccessAt       *time.Time
	lastFailureAt       *time.Time
}

// NewInvestorState creates a new investor state with default values.
func NewInvestorState(name string) *InvestorState {
	return &InvestorState{
		Name:        name,
		healthState: HealthStateUnknown,
	}
}

// GetHealthState returns the health state.
func (s *InvestorState) GetHealthState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthState
}

// GetLastError returns the last error message.
func (s *InvestorState) GetLastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// GetConsecutiveFailures returns the count of consecutive failures.
func (s *InvestorState) GetConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures
}

// GetCounts returns the number of compiles attempted and failed.
func (s *InvestorState) GetCounts() (compiles, failures int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiles, s.failures
}

// GetTimestamps returns the last run, success, and failure timestamps.
func (s *InvestorState) GetTimestamps() (lastRun, lastSuccess, lastFailure *time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRunAt, s.lastSuccessAt, s.lastFailureAt
}

// RecordSuccess records a successful compile.
func (s *InvestorState) RecordSuccess(now time.Time) {
	s.mu.Lock()
	s.compiles++
	s.lastRunAt = &now
	s.lastSuccessAt = &now
	s.consecutiveFailures = 0
	s.lastError = ""
	s.healthState = HealthStateUp
	s.mu.Unlock()
}

// RecordSkipped records a compile that found nothing to compile.
func (s *InvestorState) RecordSkipped(now time.Time, reason string) {
	s.mu.Lock()
	s.lastRunAt = &now
	s.lastError = reason
	s.mu.Unlock()
}

// RecordFailure records a failed compile.
func (s *InvestorState) RecordFailure(now time.Time, errMsg string) {
	s.mu.Lock()
	s.compiles++
	s.failures++
	s.lastRunAt = &now
	s.lastFailureAt = &now
	s.consecutiveFailures++
	s.lastError = errMsg

	// Update health based on consecutive failures
	if s.consecutiveFailures >= downAfter {
		s.healthState = HealthStateDown
	} else {
		s.healthState = HealthStateDegraded
	}
	s.mu.Unlock()
}

// =============================================================================
// StateManager
// =============================================================================

// StateManager manages investor states in memory.
//
// StateManager is safe for concurrent use.
type StateManager struct {
	mu     sync.RWMutex
	states map[string]*InvestorState
}

// NewStateManager creates a new state manager.
func NewStateManager() *StateManager {
	return &StateManager{
		states: make(map[string]*InvestorState),
	}
}

// Get returns the state for an investor, creating it if needed.
func (m *StateManager) Get(name string) *InvestorState {
	// Fast path: read lock
	m.mu.RLock()
	state, ok := m.states[name]
	m.mu.RUnlock()

	if ok {
		return state
	}

	// Slow path: write lock
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if state, ok := m.states[name]; ok {
		return state
	}

	state = NewInvestorState(name)
	m.states[name] = state
	return state
}

// GetIfExists returns the state for an investor if it exists.
func (m *StateManager) GetIfExists(name string) *InvestorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[name]
}

// Retain drops the states of every investor not in names and returns how
// many were dropped.
func (m *StateManager) Retain(names []string) int {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for name := range m.states {
		if _, ok := keep[name]; !ok {
			delete(m.states, name)
			dropped++
		}
	}
	return dropped
}

// GetAll returns all states sorted by investor name.
func (m *StateManager) GetAll() []*InvestorState {
	m.mu.RLock()
	result := make([]*InvestorState, 0, len(m.states))
	for _, state := range m.states {
		result = append(result, state)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Count returns the number of states.
func (m *StateManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

// CountByHealthState returns counts grouped by health state.
func (m *StateManager) CountByHealthState() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, state := range m.states {
		counts[state.GetHealthState()]++
	}
	return counts
}
