// Package persistence is the optional Redis-backed durability layer.
// When constructed without a client it degrades every operation to a
// no-op with a warning, so the rest of the kernel never needs to
// branch on whether persistence is configured.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raro-systems/raro/pkg/state"
)

const (
	// terminalStateTTL is how long a terminal run's serialized state
	// survives in Redis before expiring.
	terminalStateTTL = 24 * time.Hour
	// artifactTTL is how long a completed agent's artifact survives,
	// scoped short since it only exists to pass context from a parent
	// node to its not-yet-dispatched children.
	artifactTTL = 1 * time.Hour

	activeRunsKey = "sys:active_runs"
)

func stateKey(runID string) string {
	return fmt.Sprintf("run:%s:state", runID)
}

func artifactKey(runID, agentID string) string {
	return fmt.Sprintf("run:%s:agent:%s:output", runID, agentID)
}

// Manager is the Redis-backed persistence layer. The zero value is not
// usable; construct with New.
type Manager struct {
	rdb *redis.Client
}

// New wraps rdb. Pass nil to run with persistence disabled: every
// method becomes a no-op (Persist, StoreArtifact) or returns "not
// found" (FetchArtifact) / an empty set (RehydrateActiveRuns), each
// logging a warning.
func New(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb}
}

func (m *Manager) enabled() bool {
	return m.rdb != nil
}

// Persist serializes s and writes it to run:{id}:state, maintaining
// sys:active_runs membership according to s.Status, and applying the
// terminal-state TTL once the run reaches Completed or Failed.
func (m *Manager) Persist(ctx context.Context, s *state.RuntimeState) error {
	if !m.enabled() {
		slog.Warn("persistence disabled, dropping state write", "run_id", s.RunID)
		return nil
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("persistence: marshal state: %w", err)
	}

	key := stateKey(s.RunID)
	terminal := s.Status == state.StatusCompleted || s.Status == state.StatusFailed

	pipe := m.rdb.TxPipeline()
	if terminal {
		pipe.Set(ctx, key, payload, terminalStateTTL)
		pipe.SRem(ctx, activeRunsKey, s.RunID)
	} else {
		pipe.Set(ctx, key, payload, 0)
		pipe.SAdd(ctx, activeRunsKey, s.RunID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persistence: persist run %q: %w", s.RunID, err)
	}
	return nil
}

// StoreArtifact stores a completed agent's artifact JSON under
// run:{id}:agent:{aid}:output with the artifact TTL, for child-to-
// parent context passing.
func (m *Manager) StoreArtifact(ctx context.Context, runID, agentID string, artifact json.RawMessage) error {
	if !m.enabled() {
		slog.Warn("persistence disabled, dropping artifact write", "run_id", runID, "agent_id", agentID)
		return nil
	}
	key := artifactKey(runID, agentID)
	if err := m.rdb.Set(ctx, key, []byte(artifact), artifactTTL).Err(); err != nil {
		return fmt.Errorf("persistence: store artifact for %q/%q: %w", runID, agentID, err)
	}
	return nil
}

// FetchArtifact returns agentID's stored artifact for runID, and
// whether one was found (it may have expired or never been written).
func (m *Manager) FetchArtifact(ctx context.Context, runID, agentID string) (json.RawMessage, bool, error) {
	if !m.enabled() {
		slog.Warn("persistence disabled, artifact fetch returns nothing", "run_id", runID, "agent_id", agentID)
		return nil, false, nil
	}
	val, err := m.rdb.Get(ctx, artifactKey(runID, agentID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persistence: fetch artifact for %q/%q: %w", runID, agentID, err)
	}
	return json.RawMessage(val), true, nil
}

// RehydrateActiveRuns reads sys:active_runs and deserializes each run's
// stored state. Any run whose persisted status is Running (the kernel
// crashed mid-execution) is demoted to Failed in the returned value
// with a synthetic invocation record documenting the restart; it is
// not written back here, nor resumed — the caller is expected to
// install it into the State Store as a terminal run via
// state.Store.Restore, then persist it once so the demotion sticks.
func (m *Manager) RehydrateActiveRuns(ctx context.Context) ([]*state.RuntimeState, error) {
	if !m.enabled() {
		slog.Warn("persistence disabled, rehydration yields an empty set")
		return nil, nil
	}

	runIDs, err := m.rdb.SMembers(ctx, activeRunsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("persistence: list active runs: %w", err)
	}

	out := make([]*state.RuntimeState, 0, len(runIDs))
	for _, runID := range runIDs {
		raw, err := m.rdb.Get(ctx, stateKey(runID)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persistence: load state for %q: %w", runID, err)
		}

		var s state.RuntimeState
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("persistence: decode state for %q: %w", runID, err)
		}

		if s.Status == state.StatusRunning {
			s.Status = state.StatusFailed
			s.EndTime = time.Now()
			s.Invocations = append(s.Invocations, state.Invocation{
				AgentID:   "",
				Status:    state.InvocationFailed,
				Timestamp: s.EndTime,
				Error:     "run was still marked Running when the kernel restarted; demoted to Failed on rehydration",
			})
		}
		out = append(out, &s)
	}
	return out, nil
}
