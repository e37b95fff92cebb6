// Package signature tracks, per run, the latest opaque reasoning
// continuation token the LLM adapter returned for each agent. Stale
// entries (agent ids no longer in the DAG) are permitted to linger;
// nothing reads them again once their owning node is gone.
package signature

import "sync"

// Store is a thread-safe mapping of run_id -> agent_id -> token.
type Store struct {
	mu   sync.RWMutex
	runs map[string]map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{runs: make(map[string]map[string]string)}
}

// Set records token as the latest signature for agentID within runID.
func (s *Store) Set(runID, agentID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.runs[runID]
	if !ok {
		m = make(map[string]string)
		s.runs[runID] = m
	}
	m[agentID] = token
}

// Get returns agentID's latest signature within runID, and whether one
// is present.
func (s *Store) Get(runID, agentID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.runs[runID]
	if !ok {
		return "", false
	}
	tok, ok := m[agentID]
	return tok, ok
}

// FirstAvailable returns the first signature found among
// parentIDs, in the given order, along with whether any was found.
// The Invocation Payload Builder uses this to pick a parent signature
// deterministically on manifest-declared parent order.
func (s *Store) FirstAvailable(runID string, parentIDs []string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.runs[runID]
	if !ok {
		return "", false
	}
	for _, pid := range parentIDs {
		if tok, ok := m[pid]; ok {
			return tok, true
		}
	}
	return "", false
}

// All returns a copy of every agent_id -> token pair recorded for
// runID, for the read-only GET /runtime/{id}/signatures surface.
func (s *Store) All(runID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.runs[runID]
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Delete removes runID's signatures entirely (run teardown / expiry).
func (s *Store) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}
