package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Publish_DeliversToAllSubscribers(t *testing.T) {
	b := New(0)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	b.Publish(Event{RunID: "run-1", Type: AgentStarted, AgentID: "a"})

	select {
	case ev := <-s1.Events:
		assert.Equal(t, AgentStarted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for s1")
	}
	select {
	case ev := <-s2.Events:
		assert.Equal(t, AgentStarted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for s2")
	}
}

func TestBus_Unsubscribe_StopsDelivery(t *testing.T) {
	b := New(0)
	s := b.Subscribe()
	s.Unsubscribe()

	b.Publish(Event{RunID: "run-1", Type: AgentCompleted})
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-s.Events
	assert.False(t, ok, "channel should be closed")
}

func TestBus_Publish_NeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New(2)
	s := b.Subscribe()
	defer s.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{RunID: "run-1", Type: ToolCall})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full, undrained subscriber")
	}

	drained := 0
	for {
		select {
		case _, ok := <-s.Events:
			if !ok {
				t.Fatal("channel closed unexpectedly")
			}
			drained++
		default:
			assert.LessOrEqual(t, drained, 2)
			return
		}
	}
}

func TestBus_Unsubscribe_IsIdempotent(t *testing.T) {
	b := New(0)
	s := b.Subscribe()
	s.Unsubscribe()
	require.NotPanics(t, func() { s.Unsubscribe() })
}

func TestBus_SubscriberCount(t *testing.T) {
	b := New(0)
	assert.Equal(t, 0, b.SubscriberCount())
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())
	s1.Unsubscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	s2.Unsubscribe()
}
