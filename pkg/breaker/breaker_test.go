package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raro-systems/raro/pkg/eventbus"
	"github.com/raro-systems/raro/pkg/state"
)

func TestBreaker_Trip_FailsAgentAndPausesRun(t *testing.T) {
	ss := state.New(nil)
	ss.CreateRun("run-1", "wf-1", "client-1")
	ss.MarkActive(context.Background(), "run-1", "agent-a")

	bus := eventbus.New(0)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	b := New(ss, bus)
	err := b.Trip(context.Background(), "run-1", "agent-a", ReasonContextDrought, "no parent context")
	require.NoError(t, err)

	st, err := ss.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusAwaitingApproval, st.Status)
	_, active := st.ActiveAgents["agent-a"]
	assert.False(t, active)
	_, failed := st.FailedAgents["agent-a"]
	assert.True(t, failed)
	require.Len(t, st.Invocations, 1)
	assert.Contains(t, st.Invocations[0].Error, "Context Drought")
}

func TestBreaker_Trip_EmitsAgentFailedAndSystemIntervention(t *testing.T) {
	ss := state.New(nil)
	ss.CreateRun("run-1", "wf-1", "client-1")

	bus := eventbus.New(0)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	b := New(ss, bus)
	require.NoError(t, b.Trip(context.Background(), "run-1", "agent-a", ReasonProtocolViolation, "research agent did not search"))

	var gotFailed, gotIntervention bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events:
			switch ev.Type {
			case eventbus.AgentFailed:
				gotFailed = true
			case eventbus.SystemIntervention:
				gotIntervention = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.True(t, gotFailed)
	assert.True(t, gotIntervention)
}
