// Package noderegistry holds the live, per-run AgentNodeConfig set: the
// manifest as loaded at run start, mutated in place by the Graph
// Surgeon as delegation proposals land. The DAG Store tracks edges;
// this registry tracks the node bodies (prompt, tools, depends_on,
// ...) those edges refer to, so both the scheduler and the Payload
// Builder read a consistent view of "what does node X look like right
// now".
package noderegistry

import (
	"sync"

	"github.com/raro-systems/raro/pkg/config"
)

// Registry is a thread-safe mapping from run id to that run's node
// set, each run's set guarded by its own mutex: the same shape as
// pkg/state's Store.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*runNodes
}

type runNodes struct {
	mu    sync.RWMutex
	nodes map[string]config.AgentNodeConfig
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{runs: make(map[string]*runNodes)}
}

func (r *Registry) runFor(runID string) *runNodes {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[runID]
	if !ok {
		rn = &runNodes{nodes: make(map[string]config.AgentNodeConfig)}
		r.runs[runID] = rn
	}
	return rn
}

// Seed populates runID's node set from a freshly validated manifest,
// called once at run start.
func (r *Registry) Seed(runID string, agents []config.AgentNodeConfig) {
	rn := r.runFor(runID)
	rn.mu.Lock()
	defer rn.mu.Unlock()
	for _, a := range agents {
		rn.nodes[a.ID] = a
	}
}

// Get returns nodeID's current config for runID.
func (r *Registry) Get(runID, nodeID string) (config.AgentNodeConfig, bool) {
	rn := r.runFor(runID)
	rn.mu.RLock()
	defer rn.mu.RUnlock()
	n, ok := rn.nodes[nodeID]
	return n, ok
}

// Set installs or overwrites nodeID's config for runID (used by the
// Graph Surgeon when appending proposed nodes or adopting a pending
// sibling's id).
func (r *Registry) Set(runID string, node config.AgentNodeConfig) {
	rn := r.runFor(runID)
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.nodes[node.ID] = node
}

// Delete removes nodeID from runID's node set (used when adopting a
// pending sibling's id under its old config before the new one is
// installed).
func (r *Registry) Delete(runID, nodeID string) {
	rn := r.runFor(runID)
	rn.mu.Lock()
	defer rn.mu.Unlock()
	delete(rn.nodes, nodeID)
}

// All returns a snapshot of every node currently registered for runID,
// keyed by id — the shape the Payload Builder and Graph-View Renderer
// both expect.
func (r *Registry) All(runID string) map[string]config.AgentNodeConfig {
	rn := r.runFor(runID)
	rn.mu.RLock()
	defer rn.mu.RUnlock()
	out := make(map[string]config.AgentNodeConfig, len(rn.nodes))
	for k, v := range rn.nodes {
		out[k] = v
	}
	return out
}

// MutateDependsOn rewrites nodeID's DependsOn list in place. Used by
// the Graph Surgeon when rewiring a downstream dependent away from the
// delegating parent and onto the newly inserted nodes.
func (r *Registry) MutateDependsOn(runID, nodeID string, dependsOn []string) {
	rn := r.runFor(runID)
	rn.mu.Lock()
	defer rn.mu.Unlock()
	n, ok := rn.nodes[nodeID]
	if !ok {
		return
	}
	n.DependsOn = dependsOn
	rn.nodes[nodeID] = n
}
