// Package state holds the per-run RuntimeState: status, active /
// completed / failed agent membership, the invocation log, and token
// accounting. It is the single source of truth the scheduler,
// approval handlers, and HTTP surface all read and mutate.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle phase of a run.
type Status string

const (
	StatusRunning          Status = "Running"
	StatusAwaitingApproval Status = "AwaitingApproval"
	StatusCompleted        Status = "Completed"
	StatusFailed           Status = "Failed"
)

// InvocationStatus is the terminal outcome of a single agent
// invocation, appended to RuntimeState.Invocations.
type InvocationStatus string

const (
	InvocationSucceeded InvocationStatus = "succeeded"
	InvocationFailed    InvocationStatus = "failed"
)

// Invocation is a single finished agent turn, appended to the
// run's append-only invocation log.
type Invocation struct {
	AgentID   string
	Model     string
	Tools     []string
	Tokens    int
	Latency   time.Duration
	Status    InvocationStatus
	Timestamp time.Time
	Error     string `json:",omitempty"`
	Artifact  string `json:",omitempty"` // reference into the persistence layer, not the artifact body
}

// RuntimeState is the mutable record of one workflow run.
type RuntimeState struct {
	RunID      string
	WorkflowID string
	ClientID   string
	Status     Status

	ActiveAgents    map[string]struct{}
	CompletedAgents map[string]struct{}
	FailedAgents    map[string]struct{}

	Invocations []Invocation

	TotalTokensUsed int
	StartTime       time.Time
	EndTime         time.Time
}

func newRuntimeState(runID, workflowID, clientID string) *RuntimeState {
	return &RuntimeState{
		RunID:           runID,
		WorkflowID:      workflowID,
		ClientID:        clientID,
		Status:          StatusRunning,
		ActiveAgents:    make(map[string]struct{}),
		CompletedAgents: make(map[string]struct{}),
		FailedAgents:    make(map[string]struct{}),
		StartTime:       time.Now(),
	}
}

// clone returns a deep-enough copy safe to hand to callers outside the
// store's lock.
func (s *RuntimeState) clone() *RuntimeState {
	c := *s
	c.ActiveAgents = cloneSet(s.ActiveAgents)
	c.CompletedAgents = cloneSet(s.CompletedAgents)
	c.FailedAgents = cloneSet(s.FailedAgents)
	c.Invocations = append([]Invocation(nil), s.Invocations...)
	return &c
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

var ErrRunNotFound = errors.New("state: run not found")

// Persister is the seam the Persistence Layer implements (pkg/persistence.Manager).
// Declared here, not there, so pkg/state has no dependency on Redis.
type Persister interface {
	Persist(ctx context.Context, s *RuntimeState) error
}

// noopPersister is used when the store is constructed without a
// Persister, so every Store method stays safe to call standalone
// (e.g. in unit tests) without a nil check at every call site.
type noopPersister struct{}

func (noopPersister) Persist(context.Context, *RuntimeState) error { return nil }

// Store is a thread-safe mapping from run_id to RuntimeState,
// supporting fine-grained access to a single run without blocking
// others: the top-level map is guarded by its own mutex only for
// insert/delete, while per-run mutation locks that run's own entry.
type Store struct {
	mu        sync.RWMutex
	runs      map[string]*entry
	persister Persister
}

type entry struct {
	mu    sync.RWMutex
	state *RuntimeState
}

// New returns an empty Store. Pass nil for persister to run without
// persistence (every record_invocation call becomes a pure in-memory
// mutation).
func New(persister Persister) *Store {
	if persister == nil {
		persister = noopPersister{}
	}
	return &Store{
		runs:      make(map[string]*entry),
		persister: persister,
	}
}

// CreateRun initializes a new RuntimeState for runID and returns a
// snapshot of it.
func (s *Store) CreateRun(runID, workflowID, clientID string) *RuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{state: newRuntimeState(runID, workflowID, clientID)}
	s.runs[runID] = e
	return e.state.clone()
}

// Get returns a snapshot of runID's state.
func (s *Store) Get(runID string) (*RuntimeState, error) {
	e, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.clone(), nil
}

// Delete removes runID from the store entirely (used for expiry
// sweeps, not for normal lifecycle transitions).
func (s *Store) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}

func (s *Store) lookup(runID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return e, nil
}

// RecordInvocation appends an invocation record, transitions agentID
// between the active/completed/failed sets according to inv.Status,
// updates the token counter, and requests persistence. The
// active/completed/failed sets remain pairwise disjoint: agentID is
// removed from all three before being added to exactly one. An empty
// agentID records a run-level event (operator rejection, kernel
// restart) without touching the membership sets, which only ever hold
// real node ids.
func (s *Store) RecordInvocation(ctx context.Context, runID, agentID string, inv Invocation) (*RuntimeState, error) {
	e, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	st := e.state
	if agentID != "" {
		delete(st.ActiveAgents, agentID)
		delete(st.CompletedAgents, agentID)
		delete(st.FailedAgents, agentID)

		switch inv.Status {
		case InvocationSucceeded:
			st.CompletedAgents[agentID] = struct{}{}
		case InvocationFailed:
			st.FailedAgents[agentID] = struct{}{}
		}
	}

	st.Invocations = append(st.Invocations, inv)
	st.TotalTokensUsed += inv.Tokens
	snapshot := st.clone()
	e.mu.Unlock()

	if err := s.persister.Persist(ctx, snapshot); err != nil {
		return snapshot, fmt.Errorf("state: persist after invocation: %w", err)
	}
	return snapshot, nil
}

// MarkActive adds agentID to the active set (used when the scheduler
// dispatches a node for invocation), removing it from completed/failed
// first to preserve disjointness.
func (s *Store) MarkActive(ctx context.Context, runID, agentID string) (*RuntimeState, error) {
	e, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	delete(e.state.CompletedAgents, agentID)
	delete(e.state.FailedAgents, agentID)
	e.state.ActiveAgents[agentID] = struct{}{}
	snapshot := e.state.clone()
	e.mu.Unlock()

	if err := s.persister.Persist(ctx, snapshot); err != nil {
		return snapshot, fmt.Errorf("state: persist after mark-active: %w", err)
	}
	return snapshot, nil
}

// SetStatus transitions runID's overall status and, for terminal
// statuses, stamps EndTime.
func (s *Store) SetStatus(ctx context.Context, runID string, status Status) (*RuntimeState, error) {
	e, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.state.Status = status
	if status == StatusCompleted || status == StatusFailed {
		e.state.EndTime = time.Now()
	}
	snapshot := e.state.clone()
	e.mu.Unlock()

	if err := s.persister.Persist(ctx, snapshot); err != nil {
		return snapshot, fmt.Errorf("state: persist after status change: %w", err)
	}
	return snapshot, nil
}

// Restore installs a RuntimeState obtained from rehydration directly,
// bypassing the usual transition helpers. Used only at boot.
func (s *Store) Restore(st *RuntimeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[st.RunID] = &entry{state: st}
}
