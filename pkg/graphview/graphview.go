// Package graphview renders a run's current DAG state as a textual
// "[OPERATIONAL AWARENESS]" context block handed to the next agent
// invocation, so it can reason about what else is happening in the
// graph before it acts or delegates.
package graphview

import (
	"fmt"
	"strings"

	"github.com/raro-systems/raro/pkg/config"
	"github.com/raro-systems/raro/pkg/dag"
	"github.com/raro-systems/raro/pkg/state"
)

// NodeStatus is the observable lifecycle phase of a node for display
// purposes, distinct from state.RuntimeState's own bookkeeping: a node
// neither active, completed, nor failed is simply "pending".
type NodeStatus string

const (
	StatusPending   NodeStatus = "pending"
	StatusRunning   NodeStatus = "running"
	StatusCompleted NodeStatus = "completed"
	StatusFailed    NodeStatus = "failed"
)

const specialtyPreviewLen = 50

func nodeStatus(id string, st *state.RuntimeState) NodeStatus {
	if _, ok := st.ActiveAgents[id]; ok {
		return StatusRunning
	}
	if _, ok := st.CompletedAgents[id]; ok {
		return StatusCompleted
	}
	if _, ok := st.FailedAgents[id]; ok {
		return StatusFailed
	}
	return StatusPending
}

func specialtyPreview(prompt string) string {
	p := strings.TrimSpace(prompt)
	if len(p) <= specialtyPreviewLen {
		return p
	}
	return p[:specialtyPreviewLen]
}

// Render produces the operational-awareness block for currentAgentID.
// detailed selects the structured per-delegator mode (§4.5); false
// selects the linear worker mode. nodesByID must contain every id in
// g's node set.
func Render(g *dag.Graph, st *state.RuntimeState, nodesByID map[string]config.AgentNodeConfig, currentAgentID string, detailed bool) string {
	order, err := g.TopologicalSort()
	if err != nil {
		return fmt.Sprintf("[OPERATIONAL AWARENESS]\n(graph state unavailable: %v)", err)
	}

	var b strings.Builder
	b.WriteString("[OPERATIONAL AWARENESS]\n")

	if detailed {
		renderDetailed(&b, g, st, nodesByID, order, currentAgentID)
	} else {
		renderLinear(&b, st, nodesByID, order, currentAgentID)
	}
	return b.String()
}

func renderDetailed(b *strings.Builder, g *dag.Graph, st *state.RuntimeState, nodesByID map[string]config.AgentNodeConfig, order []string, currentAgentID string) {
	for _, id := range order {
		status := nodeStatus(id, st)
		deps := g.GetDependencies(id)

		fmt.Fprintf(b, "- id=%s status=%s", id, status)
		if id == currentAgentID {
			b.WriteString(" is_you=true")
		}
		if len(deps) > 0 {
			fmt.Fprintf(b, " dependencies=[%s]", strings.Join(deps, ","))
		}
		if status == StatusPending {
			if node, ok := nodesByID[id]; ok {
				fmt.Fprintf(b, " specialty=%q", specialtyPreview(node.Prompt))
			}
		}
		b.WriteString("\n")
	}
}

func renderLinear(b *strings.Builder, st *state.RuntimeState, nodesByID map[string]config.AgentNodeConfig, order []string, currentAgentID string) {
	tokens := make([]string, 0, len(order))
	for _, id := range order {
		status := nodeStatus(id, st)
		tok := fmt.Sprintf("[%s:%s]", id, strings.ToUpper(string(status)))
		if id == currentAgentID {
			tok += "(YOU)"
		}
		if status == StatusPending {
			if node, ok := nodesByID[id]; ok {
				if preview := specialtyPreview(node.Prompt); preview != "" {
					tok += fmt.Sprintf("(%s)", preview)
				}
			}
		}
		tokens = append(tokens, tok)
	}
	b.WriteString(strings.Join(tokens, "->"))
	b.WriteString("\n")
}
