package pattern

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raro-systems/raro/pkg/eventbus"
)

func TestEngineDispatchesOnFailure(t *testing.T) {
	bus := eventbus.New(0)
	engine := New()

	var mu sync.Mutex
	var notified []string

	engine.Register(OnFailureRequestApproval(func(_ context.Context, ev eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, ev.AgentID)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx, bus)

	time.Sleep(10 * time.Millisecond)
	bus.Publish(eventbus.Event{RunID: "r1", Type: eventbus.AgentCompleted, AgentID: "a", Timestamp: time.Now()})
	bus.Publish(eventbus.Event{RunID: "r1", Type: eventbus.AgentFailed, AgentID: "b", Timestamp: time.Now()})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"b"}, notified)
}

func TestEngineIgnoresUnmatchedPatterns(t *testing.T) {
	engine := New()
	called := false
	engine.Register(Pattern{
		Name:   "never",
		Match:  func(eventbus.Event) bool { return false },
		Action: func(context.Context, eventbus.Event) { called = true },
	})
	engine.dispatch(context.Background(), eventbus.Event{Type: eventbus.AgentFailed})
	require.False(t, called)
}
