// Package surgeon implements the Graph Surgeon: the live mutation of a
// run's DAG and node registry in response to an authorized delegation
// request, without disturbing nodes already running or completed.
package surgeon

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/raro-systems/raro/pkg/config"
	"github.com/raro-systems/raro/pkg/dag"
	"github.com/raro-systems/raro/pkg/noderegistry"
	"github.com/raro-systems/raro/pkg/state"
)

// Strategy is the delegation shape the delegator requested.
type Strategy string

const (
	StrategyChild   Strategy = "Child"
	StrategyReplace Strategy = "Replace"
	StrategyAppend  Strategy = "Append"
)

// Request is a parsed delegation proposal (the `delegation` field of
// an InvokeResponse, strategy and new_nodes only — reason is logged by
// the caller, not needed here).
type Request struct {
	Strategy Strategy
	NewNodes []config.AgentNodeConfig
}

// ErrPrivilegeEscalation is returned when a delegator proposes a node
// whose id prefix implies a higher privilege tier than its own.
var ErrPrivilegeEscalation = fmt.Errorf("surgeon: delegation would escalate privilege")

// privilegedPrefix identifies ids reserved for the highest privilege
// tier. A delegator may only propose such an id if its own id carries
// the same prefix.
const privilegedPrefix = "master_"

// Result reports the outcome of a successful Apply: the final
// (post id-collision-resolution) ids of the nodes that were inserted,
// for the caller to log and emit NodeCreated events for.
type Result struct {
	InsertedIDs []string
	IDRemap     map[string]string // old proposed id -> minted id, collisions only
}

// Apply mutates graph and nodes in place per req, rooted at the
// delegating parent parentID. Only the Child strategy performs
// dependent rewiring; Replace and Append are documented variants (see
// applyReplace/applyAppend).
func Apply(graph *dag.Graph, nodes *noderegistry.Registry, snapshot *state.RuntimeState, runID, parentID string, req Request) (*Result, error) {
	if err := checkPrivilege(parentID, req.NewNodes); err != nil {
		return nil, err
	}

	switch req.Strategy {
	case StrategyChild, "":
		return applyChild(graph, nodes, snapshot, runID, parentID, req.NewNodes)
	case StrategyReplace:
		return applyReplace(graph, nodes, snapshot, runID, parentID, req.NewNodes)
	case StrategyAppend:
		return applyAppend(graph, nodes, snapshot, runID, parentID, req.NewNodes)
	default:
		return nil, fmt.Errorf("surgeon: unknown delegation strategy %q", req.Strategy)
	}
}

// checkPrivilege enforces that a delegator cannot spawn a node whose
// id prefix implies higher privilege than its own. Unclassified
// proposed ids (no recognized prefix) are always permitted.
func checkPrivilege(parentID string, proposed []config.AgentNodeConfig) error {
	parentIsPrivileged := strings.HasPrefix(strings.ToLower(parentID), privilegedPrefix)
	if parentIsPrivileged {
		return nil
	}
	for _, n := range proposed {
		if strings.HasPrefix(strings.ToLower(n.ID), privilegedPrefix) {
			return fmt.Errorf("%w: %q may not spawn %q", ErrPrivilegeEscalation, parentID, n.ID)
		}
	}
	return nil
}

// resolveIDs performs step 2 of the Child procedure: for each proposed
// node colliding with an existing id, either adopt-and-overwrite (if
// the collision is pending) or mint a fresh id (otherwise), and apply
// the resulting old->new mapping to every proposal's depends_on list
// so inter-proposal references still resolve.
func resolveIDs(graph *dag.Graph, nodes *noderegistry.Registry, snapshot *state.RuntimeState, runID string, proposed []config.AgentNodeConfig) ([]config.AgentNodeConfig, map[string]string) {
	remap := make(map[string]string)
	out := make([]config.AgentNodeConfig, len(proposed))
	copy(out, proposed)

	for i, n := range out {
		if !graph.HasNode(n.ID) {
			continue
		}
		if isPending(n.ID, snapshot) {
			nodes.Delete(runID, n.ID)
			graph.ClearIncomingEdges(n.ID)
			continue
		}
		fresh := n.ID + "-" + uuid.New().String()[:8]
		remap[n.ID] = fresh
		out[i].ID = fresh
	}

	if len(remap) > 0 {
		for i, n := range out {
			deps := make([]string, len(n.DependsOn))
			for j, d := range n.DependsOn {
				if newID, ok := remap[d]; ok {
					deps[j] = newID
				} else {
					deps[j] = d
				}
			}
			out[i].DependsOn = deps
		}
	}
	return out, remap
}

func isPending(id string, snapshot *state.RuntimeState) bool {
	if snapshot == nil {
		return true
	}
	if _, ok := snapshot.ActiveAgents[id]; ok {
		return false
	}
	if _, ok := snapshot.CompletedAgents[id]; ok {
		return false
	}
	if _, ok := snapshot.FailedAgents[id]; ok {
		return false
	}
	return true
}

// applyChild implements §4.9's Child procedure in full.
func applyChild(graph *dag.Graph, nodes *noderegistry.Registry, snapshot *state.RuntimeState, runID, parentID string, proposed []config.AgentNodeConfig) (*Result, error) {
	dependents := graph.GetChildren(parentID)

	resolved, remap := resolveIDs(graph, nodes, snapshot, runID, proposed)

	proposedIDs := make(map[string]struct{}, len(resolved))
	for _, n := range resolved {
		proposedIDs[n.ID] = struct{}{}
	}

	// Step 3: subtract the proposed-id set from the downstream
	// dependents *before* rewiring, so a delegator adopting one of its
	// own current children never produces a self-referential edge.
	downstream := make([]string, 0, len(dependents))
	for _, d := range dependents {
		if _, skip := proposedIDs[d]; !skip {
			downstream = append(downstream, d)
		}
	}

	// Step 4: update the node registry.
	for _, n := range resolved {
		nodes.Set(runID, n)
	}
	for _, depID := range downstream {
		dn, ok := nodes.Get(runID, depID)
		if !ok {
			continue
		}
		rewired := make([]string, 0, len(dn.DependsOn)+len(resolved))
		for _, d := range dn.DependsOn {
			if d != parentID {
				rewired = append(rewired, d)
			}
		}
		for _, n := range resolved {
			rewired = append(rewired, n.ID)
		}
		nodes.MutateDependsOn(runID, depID, rewired)
	}

	// Step 5: update the DAG.
	for _, n := range resolved {
		graph.AddNode(n.ID)
	}
	for _, n := range resolved {
		for _, dep := range n.DependsOn {
			if err := graph.AddEdge(dep, n.ID); err != nil {
				return nil, fmt.Errorf("surgeon: wire dependency %s->%s: %w", dep, n.ID, err)
			}
		}
		if len(n.DependsOn) == 0 {
			if err := graph.AddEdge(parentID, n.ID); err != nil {
				return nil, fmt.Errorf("surgeon: wire parent %s->%s: %w", parentID, n.ID, err)
			}
		} else {
			for _, dep := range n.DependsOn {
				if dep == parentID {
					if err := graph.AddEdge(parentID, n.ID); err != nil {
						return nil, fmt.Errorf("surgeon: wire parent %s->%s: %w", parentID, n.ID, err)
					}
					break
				}
			}
		}
	}
	for _, depID := range downstream {
		for _, n := range resolved {
			if err := graph.AddEdge(n.ID, depID); err != nil {
				return nil, fmt.Errorf("surgeon: wire %s->%s: %w", n.ID, depID, err)
			}
		}
		if err := graph.RemoveEdge(parentID, depID); err != nil && err != dag.ErrEdgeNotFound {
			return nil, fmt.Errorf("surgeon: remove original edge %s->%s: %w", parentID, depID, err)
		}
	}

	// Step 6: defensive topological sort.
	if _, err := graph.TopologicalSort(); err != nil {
		return nil, fmt.Errorf("surgeon: delegation left an invalid graph: %w", err)
	}

	ids := make([]string, len(resolved))
	for i, n := range resolved {
		ids[i] = n.ID
	}
	return &Result{InsertedIDs: ids, IDRemap: remap}, nil
}

// applyReplace inserts the proposed nodes between parent and a new
// leaf position without rewiring parent's existing children: the
// delegator's current children remain attached directly to parent, and
// the proposed nodes become a second, independent branch rooted at
// parent. Chosen per the recorded Open Question decision (DESIGN.md):
// colliding ids go through Child's adopt-or-mint resolution, but
// Child's dependent-rewiring step is skipped. applyAppend runs exactly
// the same steps, so Replace and Append produce the same graph.
func applyReplace(graph *dag.Graph, nodes *noderegistry.Registry, snapshot *state.RuntimeState, runID, parentID string, proposed []config.AgentNodeConfig) (*Result, error) {
	resolved, remap := resolveIDs(graph, nodes, snapshot, runID, proposed)
	return wireRootedAtParent(graph, nodes, runID, parentID, resolved, remap)
}

// applyAppend attaches the proposed nodes as new leaves hanging off
// parent, with no collision handling beyond what resolveIDs already
// guarantees (ids are expected to be fresh; a collision still
// resolves via the same adopt-or-mint rule for safety).
func applyAppend(graph *dag.Graph, nodes *noderegistry.Registry, snapshot *state.RuntimeState, runID, parentID string, proposed []config.AgentNodeConfig) (*Result, error) {
	resolved, remap := resolveIDs(graph, nodes, snapshot, runID, proposed)
	return wireRootedAtParent(graph, nodes, runID, parentID, resolved, remap)
}

func wireRootedAtParent(graph *dag.Graph, nodes *noderegistry.Registry, runID, parentID string, resolved []config.AgentNodeConfig, remap map[string]string) (*Result, error) {
	for _, n := range resolved {
		nodes.Set(runID, n)
		graph.AddNode(n.ID)
	}
	for _, n := range resolved {
		if len(n.DependsOn) == 0 {
			if err := graph.AddEdge(parentID, n.ID); err != nil {
				return nil, fmt.Errorf("surgeon: wire parent %s->%s: %w", parentID, n.ID, err)
			}
			continue
		}
		for _, dep := range n.DependsOn {
			if err := graph.AddEdge(dep, n.ID); err != nil {
				return nil, fmt.Errorf("surgeon: wire dependency %s->%s: %w", dep, n.ID, err)
			}
		}
	}

	if _, err := graph.TopologicalSort(); err != nil {
		return nil, fmt.Errorf("surgeon: delegation left an invalid graph: %w", err)
	}

	ids := make([]string, len(resolved))
	for i, n := range resolved {
		ids[i] = n.ID
	}
	return &Result{InsertedIDs: ids, IDRemap: remap}, nil
}
