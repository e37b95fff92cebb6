// Package livelog bridges the LLM adapter's per-turn log pub/sub
// channel onto the kernel's Event Bus: every message the adapter
// publishes while an agent's tool loop is running (tool calls, tool
// results, reasoning fragments) is re-emitted as an IntermediateLog
// event, so WebSocket subscribers see live turn-by-turn activity
// without the kernel understanding the message bodies.
package livelog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raro-systems/raro/pkg/eventbus"
)

// Channel is the pub/sub channel the adapter publishes live-log
// messages on.
const Channel = "raro:live_logs"

// Bridge subscribes to Channel and forwards each message to the bus.
type Bridge struct {
	rdb *redis.Client
	bus *eventbus.Bus
}

// New constructs a Bridge. rdb may be nil (persistence disabled), in
// which case Run warns once and returns immediately.
func New(rdb *redis.Client, bus *eventbus.Bus) *Bridge {
	return &Bridge{rdb: rdb, bus: bus}
}

// Run subscribes and forwards until ctx is done or the subscription
// closes. Intended to run as one long-lived goroutine per process,
// alongside the Pattern Engine.
func (b *Bridge) Run(ctx context.Context) {
	if b.rdb == nil {
		slog.Warn("livelog: no pub/sub backend, live adapter logs will not stream")
		return
	}

	sub := b.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.forward(msg.Payload)
		}
	}
}

// forward decodes one published message and re-emits it on the bus.
// The message body is passed through as the event payload untouched;
// only run_id, agent_id, and timestamp are lifted into the envelope.
// Messages without a run_id cannot be routed to a stream and are
// dropped with a warning.
func (b *Bridge) forward(payload string) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		slog.Warn("livelog: dropping undecodable message", "error", err)
		return
	}

	runID, _ := m["run_id"].(string)
	if runID == "" {
		slog.Warn("livelog: dropping message without run_id")
		return
	}
	agentID, _ := m["agent_id"].(string)

	ts := time.Now()
	if s, ok := m["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			ts = parsed
		}
	}

	b.bus.Publish(eventbus.Event{
		RunID:     runID,
		Type:      eventbus.IntermediateLog,
		AgentID:   agentID,
		Payload:   m,
		Timestamp: ts,
	})
}
