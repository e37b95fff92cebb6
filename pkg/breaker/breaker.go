// Package breaker implements the Circuit Breaker: the pause that the
// scheduler's pre-flight (context drought) and post-flight (protocol
// violation) guards trip to hold a run for human review instead of
// letting the scheduler cascade corrupted context to downstream
// agents. ReasonSemanticNull is defined, but no guard trips it: an
// agent whose own result is "[STATUS: NULL]" completes normally, and
// the drought guard halts the dependent that would consume it.
package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/raro-systems/raro/pkg/eventbus"
	"github.com/raro-systems/raro/pkg/state"
)

// Reason classifies why the breaker tripped. It is carried in the
// failed invocation record and the AgentFailed event so an operator
// sees why the run paused.
type Reason string

const (
	ReasonContextDrought    Reason = "Context Drought"
	ReasonProtocolViolation Reason = "Protocol Violation"
	ReasonSemanticNull      Reason = "Semantic Null"
)

// recoveryHints gives the operator a next step per reason, surfaced
// alongside AgentFailed so the approval UI has something actionable
// to show, not just a bare failure.
var recoveryHints = map[Reason]string{
	ReasonContextDrought:    "inspect the delegating parent's output; resume once context is available or edit the prompt",
	ReasonProtocolViolation: "edit the agent's prompt to satisfy its identity's required tool usage, then resume",
	ReasonSemanticNull:      "the agent reported no usable result; edit its prompt or upstream context, then resume",
}

// Breaker pauses a run to AwaitingApproval on a tripped guard. It
// holds no state of its own: every trip mutates the shared state
// Store and publishes on the shared event Bus.
type Breaker struct {
	states *state.Store
	bus    *eventbus.Bus
}

// New constructs a Breaker over the shared state store and event bus.
func New(states *state.Store, bus *eventbus.Bus) *Breaker {
	return &Breaker{states: states, bus: bus}
}

// Trip executes the five-step trip sequence (§4.8): fail the
// offending agent, persist, pause the run, emit AgentFailed, and
// return so the scheduler's loop observes AwaitingApproval on its next
// status check and breaks.
func (b *Breaker) Trip(ctx context.Context, runID, agentID string, reason Reason, detail string) error {
	message := string(reason)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", reason, detail)
	}

	if _, err := b.states.RecordInvocation(ctx, runID, agentID, state.Invocation{
		AgentID:   agentID,
		Status:    state.InvocationFailed,
		Error:     message,
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("breaker: record failed invocation: %w", err)
	}

	if _, err := b.states.SetStatus(ctx, runID, state.StatusAwaitingApproval); err != nil {
		return fmt.Errorf("breaker: pause run: %w", err)
	}

	b.bus.Publish(eventbus.Event{
		RunID:   runID,
		Type:    eventbus.AgentFailed,
		AgentID: agentID,
		Payload: map[string]string{
			"reason":        message,
			"recovery_hint": recoveryHints[reason],
		},
		Timestamp: time.Now(),
	})

	b.bus.Publish(eventbus.Event{
		RunID:   runID,
		Type:    eventbus.SystemIntervention,
		AgentID: agentID,
		Payload: map[string]string{
			"reason": message,
		},
		Timestamp: time.Now(),
	})

	return nil
}
