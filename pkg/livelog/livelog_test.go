package livelog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raro-systems/raro/pkg/eventbus"
)

func newTestBridge(t *testing.T) (*Bridge, *eventbus.Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	bus := eventbus.New(0)
	return New(client, bus), bus, mr
}

func waitForEvent(t *testing.T, sub *eventbus.Subscription) eventbus.Event {
	t.Helper()
	select {
	case ev := <-sub.Events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bridged event")
		return eventbus.Event{}
	}
}

func TestBridge_ForwardsMessagesAsIntermediateLog(t *testing.T) {
	bridge, bus, mr := newTestBridge(t)

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	// Give the subscription a moment to register before publishing.
	require.Eventually(t, func() bool {
		return mr.Publish(Channel, `{"run_id":"r1","agent_id":"research_x","category":"TOOL_CALL","metadata":"IO_REQ","message":"searching","tool_name":"web_search"}`) > 0
	}, 2*time.Second, 10*time.Millisecond)

	ev := waitForEvent(t, sub)
	assert.Equal(t, "r1", ev.RunID)
	assert.Equal(t, eventbus.IntermediateLog, ev.Type)
	assert.Equal(t, "research_x", ev.AgentID)

	payload, ok := ev.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "TOOL_CALL", payload["category"])
	assert.Equal(t, "web_search", payload["tool_name"])
}

func TestBridge_DropsMessagesWithoutRunID(t *testing.T) {
	bridge, bus, _ := newTestBridge(t)

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	bridge.forward(`{"category":"REASONING","message":"no routing info"}`)
	bridge.forward(`not json at all`)

	select {
	case ev := <-sub.Events:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridge_LiftsTimestampWhenParseable(t *testing.T) {
	bridge, bus, _ := newTestBridge(t)

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	bridge.forward(`{"run_id":"r2","timestamp":"2026-01-02T15:04:05Z","message":"hi"}`)

	ev := waitForEvent(t, sub)
	assert.Equal(t, 2026, ev.Timestamp.Year())
}

func TestBridge_NilClientIsSafe(t *testing.T) {
	bus := eventbus.New(0)
	bridge := New(nil, bus)

	done := make(chan struct{})
	go func() {
		bridge.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately without a backend")
	}
}
