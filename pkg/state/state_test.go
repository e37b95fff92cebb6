package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// CREATE AND GET
// ============================================================================

func TestStore_CreateRun_DefaultsToRunning(t *testing.T) {
	s := New(nil)
	st := s.CreateRun("run-1", "wf-1", "client-1")

	assert.Equal(t, StatusRunning, st.Status)
	assert.Empty(t, st.ActiveAgents)
	assert.Empty(t, st.CompletedAgents)
	assert.Empty(t, st.FailedAgents)
}

func TestStore_Get_UnknownRun(t *testing.T) {
	s := New(nil)
	_, err := s.Get("ghost")
	require.ErrorIs(t, err, ErrRunNotFound)
}

// ============================================================================
// DISJOINT MEMBERSHIP INVARIANT
// ============================================================================

func TestStore_RecordInvocation_MembershipIsDisjoint(t *testing.T) {
	s := New(nil)
	s.CreateRun("run-1", "wf-1", "client-1")
	ctx := context.Background()

	_, err := s.MarkActive(ctx, "run-1", "agent-a")
	require.NoError(t, err)

	st, err := s.RecordInvocation(ctx, "run-1", "agent-a", Invocation{
		AgentID: "agent-a",
		Status:  InvocationSucceeded,
		Tokens:  42,
	})
	require.NoError(t, err)

	_, inActive := st.ActiveAgents["agent-a"]
	_, inCompleted := st.CompletedAgents["agent-a"]
	_, inFailed := st.FailedAgents["agent-a"]

	assert.False(t, inActive)
	assert.True(t, inCompleted)
	assert.False(t, inFailed)
	assert.Equal(t, 42, st.TotalTokensUsed)
	assert.Len(t, st.Invocations, 1)
}

func TestStore_RecordInvocation_FailureMovesToFailedSet(t *testing.T) {
	s := New(nil)
	s.CreateRun("run-1", "wf-1", "client-1")
	ctx := context.Background()

	_, err := s.MarkActive(ctx, "run-1", "agent-a")
	require.NoError(t, err)

	st, err := s.RecordInvocation(ctx, "run-1", "agent-a", Invocation{
		AgentID: "agent-a",
		Status:  InvocationFailed,
	})
	require.NoError(t, err)

	_, inFailed := st.FailedAgents["agent-a"]
	assert.True(t, inFailed)
}

// ============================================================================
// PERSISTENCE HOOK
// ============================================================================

type recordingPersister struct {
	calls int
}

func (r *recordingPersister) Persist(_ context.Context, _ *RuntimeState) error {
	r.calls++
	return nil
}

func TestStore_RecordInvocation_TriggersPersist(t *testing.T) {
	p := &recordingPersister{}
	s := New(p)
	s.CreateRun("run-1", "wf-1", "client-1")

	_, err := s.RecordInvocation(context.Background(), "run-1", "agent-a", Invocation{
		AgentID: "agent-a",
		Status:  InvocationSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestStore_SetStatus_StampsEndTimeOnTerminal(t *testing.T) {
	s := New(nil)
	s.CreateRun("run-1", "wf-1", "client-1")

	st, err := s.SetStatus(context.Background(), "run-1", StatusCompleted)
	require.NoError(t, err)
	assert.False(t, st.EndTime.IsZero())
}

func TestStore_RecordInvocation_RunLevelRecordSkipsMembership(t *testing.T) {
	s := New(nil)
	s.CreateRun("run-1", "wf-1", "client-1")

	st, err := s.RecordInvocation(context.Background(), "run-1", "", Invocation{
		Status: InvocationFailed,
		Error:  "rejected by operator",
	})
	require.NoError(t, err)

	assert.Empty(t, st.FailedAgents)
	assert.Empty(t, st.ActiveAgents)
	require.Len(t, st.Invocations, 1)
	assert.Equal(t, "rejected by operator", st.Invocations[0].Error)
}
