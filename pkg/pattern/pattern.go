// Package pattern implements the optional safety layer (§2, §4.8 last
// paragraph): a registered set of predicates over runtime events, each
// paired with an action, evaluated in registration order as events
// arrive on the Event Bus. The Circuit Breaker already pauses a run on
// its own trip conditions; the Pattern Engine is the extensible seam
// for additional reactions an operator registers without touching the
// scheduler itself (the canonical example: requesting approval-UI
// attention whenever any agent fails, regardless of which guard
// tripped it).
package pattern

import (
	"context"
	"log/slog"

	"github.com/raro-systems/raro/pkg/eventbus"
)

// Pattern is a named predicate-action pair. Match decides whether
// Action runs for a given event; patterns are independent of one
// another and a single event may satisfy more than one.
type Pattern struct {
	Name   string
	Match  func(eventbus.Event) bool
	Action func(ctx context.Context, ev eventbus.Event)
}

// Engine evaluates a registered set of Patterns against every event
// observed on a Bus subscription. It holds no workflow state of its
// own: actions are expected to call back into the Kernel, Breaker, or
// an external notifier.
type Engine struct {
	patterns []Pattern
}

// New returns an Engine with no patterns registered.
func New() *Engine {
	return &Engine{}
}

// Register appends p to the evaluation order. Patterns run in
// registration order for every event; this is the same
// predicate-then-action composition the logging package's
// filteringHandler uses, generalized from one level filter to an open
// set of named rules.
func (e *Engine) Register(p Pattern) {
	e.patterns = append(e.patterns, p)
}

// Run subscribes to bus and evaluates every registered pattern against
// every event until ctx is done or the subscription ends. Intended to
// run as a single long-lived goroutine per process, started alongside
// the Kernel.
func (e *Engine) Run(ctx context.Context, bus *eventbus.Bus) {
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			e.dispatch(ctx, ev)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev eventbus.Event) {
	for _, p := range e.patterns {
		if !p.Match(ev) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("pattern: action panicked", "pattern", p.Name, "run_id", ev.RunID, "recover", r)
				}
			}()
			p.Action(ctx, ev)
		}()
	}
}

// OnFailureRequestApproval is the canonical pattern named in §4.8's
// last paragraph: whenever any agent fails, regardless of which guard
// (breaker or transport error) tripped it, invoke notify so an
// approval UI can surface the paused run. notify receives the raw
// event; callers decide how to render it (the web console is out of
// scope for this kernel — see spec.md §1).
func OnFailureRequestApproval(notify func(ctx context.Context, ev eventbus.Event)) Pattern {
	return Pattern{
		Name: "on-failure-request-approval",
		Match: func(ev eventbus.Event) bool {
			return ev.Type == eventbus.AgentFailed || ev.Type == eventbus.SystemIntervention
		},
		Action: notify,
	}
}
