// Package scheduler implements the Kernel: the structured value that
// owns every store (DAG, state, signature, cache, node registry),
// the event bus, the Circuit Breaker, and the LLM adapter client, and
// the dynamic DAG executor — one long-running task per run — that
// drives a workflow from Running to a terminal status.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/raro-systems/raro/pkg/breaker"
	"github.com/raro-systems/raro/pkg/cachereg"
	"github.com/raro-systems/raro/pkg/capability"
	"github.com/raro-systems/raro/pkg/config"
	"github.com/raro-systems/raro/pkg/dag"
	"github.com/raro-systems/raro/pkg/eventbus"
	"github.com/raro-systems/raro/pkg/graphview"
	"github.com/raro-systems/raro/pkg/llmclient"
	"github.com/raro-systems/raro/pkg/noderegistry"
	"github.com/raro-systems/raro/pkg/observability"
	"github.com/raro-systems/raro/pkg/payload"
	"github.com/raro-systems/raro/pkg/persistence"
	"github.com/raro-systems/raro/pkg/signature"
	"github.com/raro-systems/raro/pkg/state"
	"github.com/raro-systems/raro/pkg/storage"
	"github.com/raro-systems/raro/pkg/surgeon"
)

// pollInterval is the scheduler's idle re-check cadence (§5: "a short
// sleep, ~100ms, when no agent is ready but some are active").
const pollInterval = 100 * time.Millisecond

// graphStore is the per-kernel map of run id to that run's live DAG.
// A thin, private counterpart to pkg/dag's per-run Graph instance —
// the Graph itself assumes single-run scope, so something above it
// must track "which Graph belongs to which run".
type graphStore struct {
	mu     sync.RWMutex
	graphs map[string]*dag.Graph
}

func newGraphStore() *graphStore {
	return &graphStore{graphs: make(map[string]*dag.Graph)}
}

func (g *graphStore) set(runID string, graph *dag.Graph) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.graphs[runID] = graph
}

func (g *graphStore) get(runID string) (*dag.Graph, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gr, ok := g.graphs[runID]
	return gr, ok
}

// outputStore keeps each completed agent's output JSON in memory for
// the lifetime of its run, so child invocations can assemble parent
// context even when the key-value store is absent (§5: persistence
// failure degrades to in-memory-only operation). The persistence
// layer's copy exists for durability and rehydration, not for the
// scheduling hot path.
type outputStore struct {
	mu      sync.RWMutex
	outputs map[string]map[string]json.RawMessage
}

func newOutputStore() *outputStore {
	return &outputStore{outputs: make(map[string]map[string]json.RawMessage)}
}

func (o *outputStore) set(runID, agentID string, raw json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.outputs[runID]
	if !ok {
		m = make(map[string]json.RawMessage)
		o.outputs[runID] = m
	}
	m[agentID] = raw
}

func (o *outputStore) get(runID, agentID string) (json.RawMessage, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	raw, ok := o.outputs[runID][agentID]
	return raw, ok
}

// clientIDStore remembers each run's client id, needed by artifact
// promotion and storage path resolution but not itself part of
// RuntimeState's scheduling concerns.
type clientIDStore struct {
	mu      sync.RWMutex
	clients map[string]string
}

func newClientIDStore() *clientIDStore {
	return &clientIDStore{clients: make(map[string]string)}
}

func (c *clientIDStore) set(runID, clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[runID] = clientID
}

func (c *clientIDStore) get(runID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clients[runID]
}

// Kernel is a structured value, not a singleton: every collaborator is
// an explicit field, instantiated once per process and shared by the
// HTTP handlers and every run's scheduler task.
type Kernel struct {
	States     *state.Store
	Nodes      *noderegistry.Registry
	Signatures *signature.Store
	Cache      *cachereg.Registry
	Bus        *eventbus.Bus
	Breaker    *breaker.Breaker
	Adapter    *llmclient.AdapterClient
	Artifacts  *persistence.Manager
	Layout     *storage.Layout

	// Obs is optional; every Manager method tolerates a nil receiver,
	// so a Kernel built without observability wiring behaves exactly
	// as it did before this field existed.
	Obs *observability.Manager

	graphs  *graphStore
	clients *clientIDStore
	outputs *outputStore
}

// New wires a Kernel from its collaborators. artifacts may be nil if
// persistence is disabled. Call SetObservability afterward to attach
// tracing/metrics; it defaults to nil (no-op).
func New(states *state.Store, nodes *noderegistry.Registry, signatures *signature.Store, cache *cachereg.Registry, bus *eventbus.Bus, brk *breaker.Breaker, adapter *llmclient.AdapterClient, artifacts *persistence.Manager, layout *storage.Layout) *Kernel {
	return &Kernel{
		States:     states,
		Nodes:      nodes,
		Signatures: signatures,
		Cache:      cache,
		Bus:        bus,
		Breaker:    brk,
		Adapter:    adapter,
		Artifacts:  artifacts,
		Layout:     layout,
		graphs:     newGraphStore(),
		clients:    newClientIDStore(),
		outputs:    newOutputStore(),
	}
}

// SetObservability attaches the process-wide observability Manager.
// Separate from New so the HTTP surface and the Kernel can share one
// Manager constructed after both exist.
func (k *Kernel) SetObservability(m *observability.Manager) {
	k.Obs = m
}

// builderFor lazily constructs the one Payload Builder the kernel
// needs per run graph; the builder itself is graph-agnostic except
// for the *dag.Graph pointer it closes over, so one Builder per Kernel
// would leak the wrong run's graph into graph-view rendering — build
// fresh per call instead.
func (k *Kernel) builderFor(graph *dag.Graph) *payload.Builder {
	return payload.NewBuilder(graph, k.States, k.Signatures, k.Cache, kernelArtifacts{k}, k.Layout)
}

// kernelArtifacts is the ArtifactFetcher handed to the Payload
// Builder: the in-memory output store answers first (it is always
// current for a live run), the persistence layer is the fallback.
type kernelArtifacts struct{ k *Kernel }

func (a kernelArtifacts) FetchArtifact(ctx context.Context, runID, agentID string) (json.RawMessage, bool, error) {
	if raw, ok := a.k.outputs.get(runID, agentID); ok {
		return raw, true, nil
	}
	if a.k.Artifacts != nil {
		return a.k.Artifacts.FetchArtifact(ctx, runID, agentID)
	}
	return nil, false, nil
}

// StartRun validates manifest, seeds the DAG store and node registry,
// creates a fresh RuntimeState, and spawns the single scheduler task
// for this run. Returns the run id.
func (k *Kernel) StartRun(ctx context.Context, manifest config.WorkflowManifest, clientID string) (string, error) {
	if err := manifest.Validate(); err != nil {
		return "", fmt.Errorf("scheduler: reject manifest: %w", err)
	}

	graph := dag.New()
	for _, a := range manifest.Agents {
		graph.AddNode(a.ID)
	}
	ids := make(map[string]struct{}, len(manifest.Agents))
	for _, a := range manifest.Agents {
		ids[a.ID] = struct{}{}
	}
	for _, a := range manifest.Agents {
		for _, dep := range a.DependsOn {
			if _, ok := ids[dep]; !ok {
				return "", fmt.Errorf("scheduler: agent %q depends on unknown agent %q", a.ID, dep)
			}
			if err := graph.AddEdge(dep, a.ID); err != nil {
				return "", fmt.Errorf("scheduler: reject manifest: %w", err)
			}
		}
	}
	if _, err := graph.TopologicalSort(); err != nil {
		return "", fmt.Errorf("scheduler: reject manifest: %w", err)
	}

	runID := uuid.New().String()

	if err := k.Layout.EnsureRunDirs(clientID, runID); err != nil {
		slog.Warn("scheduler: failed to prepare run directories", "run_id", runID, "error", err)
	}
	if len(manifest.AttachedFiles) > 0 {
		if _, err := k.Layout.StageInputs(clientID, runID, manifest.AttachedFiles); err != nil {
			return "", fmt.Errorf("scheduler: reject manifest: %w", err)
		}
	}

	k.graphs.set(runID, graph)
	k.clients.set(runID, clientID)
	k.Nodes.Seed(runID, manifest.Agents)
	k.States.CreateRun(runID, manifest.ID, clientID)

	for _, a := range manifest.Agents {
		k.Bus.Publish(eventbus.Event{RunID: runID, Type: eventbus.NodeCreated, AgentID: a.ID, Timestamp: time.Now()})
	}

	go k.run(context.Background(), runID)
	return runID, nil
}

// Resume verifies runID still has a DAG (the defensive check §4.12
// documents), resets its status to Running, and re-enters the
// scheduler loop.
func (k *Kernel) Resume(ctx context.Context, runID string) error {
	if _, ok := k.graphs.get(runID); !ok {
		return fmt.Errorf("scheduler: run %q has no DAG to resume", runID)
	}
	if _, err := k.States.SetStatus(ctx, runID, state.StatusRunning); err != nil {
		return fmt.Errorf("scheduler: resume run %q: %w", runID, err)
	}
	go k.run(context.Background(), runID)
	return nil
}

// Topology returns a snapshot of runID's current node/edge set, for
// the GET /runtime/{id}/topology surface and the WS state_update
// frame. ok is false if runID has no graph (unknown run).
func (k *Kernel) Topology(runID string) (nodes []string, edges []dag.Edge, ok bool) {
	graph, ok := k.graphs.get(runID)
	if !ok {
		return nil, nil, false
	}
	return graph.ExportNodes(), graph.ExportEdges(), true
}

// GraphView renders the §4.5 operational-awareness block for
// currentAgentID within runID, for ad hoc inspection outside the
// scheduler's own dispatch loop (e.g. a future debug endpoint).
func (k *Kernel) GraphView(runID, currentAgentID string, detailed bool) (string, bool) {
	graph, ok := k.graphs.get(runID)
	if !ok {
		return "", false
	}
	st, err := k.States.Get(runID)
	if err != nil {
		return "", false
	}
	return graphview.Render(graph, st, k.Nodes.All(runID), currentAgentID, detailed), true
}

// HasGraph reports whether runID has a live DAG, the same defensive
// check Resume performs (§4.12).
func (k *Kernel) HasGraph(runID string) bool {
	_, ok := k.graphs.get(runID)
	return ok
}

// Reject transitions runID straight to Failed; the running scheduler
// task (if any) observes this on its next status check and exits.
func (k *Kernel) Reject(ctx context.Context, runID, reason string) error {
	if _, err := k.States.RecordInvocation(ctx, runID, "", state.Invocation{
		Status:    state.InvocationFailed,
		Error:     fmt.Sprintf("rejected by operator: %s", reason),
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("scheduler: reject run %q: %w", runID, err)
	}
	if _, err := k.States.SetStatus(ctx, runID, state.StatusFailed); err != nil {
		return err
	}
	k.cleanup(runID)
	return nil
}

// run is the single long-running task per run (§4.7, §5).
func (k *Kernel) run(ctx context.Context, runID string) {
	graph, ok := k.graphs.get(runID)
	if !ok {
		slog.Error("scheduler: run has no graph", "run_id", runID)
		return
	}
	builder := k.builderFor(graph)

	for {
		st, err := k.States.Get(runID)
		if err != nil {
			slog.Error("scheduler: run vanished from state store", "run_id", runID, "error", err)
			return
		}
		if st.Status != state.StatusRunning {
			return
		}

		order, err := graph.TopologicalSort()
		if err != nil {
			k.failRun(ctx, runID, "", fmt.Sprintf("cycle detected: %v", err))
			return
		}

		nextID, hasActive := pickNext(order, st, graph, k.Nodes, runID)
		if nextID == "" {
			if hasActive {
				time.Sleep(pollInterval)
				continue
			}
			k.States.SetStatus(ctx, runID, state.StatusCompleted)
			k.cleanup(runID)
			return
		}

		node, ok := k.Nodes.Get(runID, nextID)
		if !ok {
			k.failRun(ctx, runID, nextID, fmt.Sprintf("agent %q has no registered config", nextID))
			return
		}

		k.States.MarkActive(ctx, runID, nextID)
		k.Bus.Publish(eventbus.Event{RunID: runID, Type: eventbus.AgentStarted, AgentID: nextID, Timestamp: time.Now()})

		nodesByID := k.Nodes.All(runID)
		p, err := builder.Build(ctx, runID, node, nodesByID)
		if err != nil {
			k.failRun(ctx, runID, nextID, fmt.Sprintf("build payload: %v", err))
			return
		}

		if payload.IsContextDrought(p.HasParents, p) {
			if err := k.Breaker.Trip(ctx, runID, nextID, breaker.ReasonContextDrought, "assembled parent context was empty or null with no generated files"); err != nil {
				slog.Error("scheduler: breaker trip failed", "run_id", runID, "agent_id", nextID, "error", err)
			}
			continue
		}

		invokeCtx, span := k.Obs.Tracer("raro.scheduler").Start(ctx, "agent.invoke")
		invokeStart := time.Now()
		resp, err := k.Adapter.Invoke(invokeCtx, toInvokeRequest(p))
		span.End()
		if err != nil {
			k.Obs.RecordInvocation("transport_error", string(node.Model), time.Since(invokeStart).Seconds())
			k.failAgentTransport(ctx, runID, nextID, err)
			return
		}

		if !resp.Success {
			errMsg := "invocation reported failure"
			if resp.Error != nil {
				errMsg = *resp.Error
			}
			k.Obs.RecordInvocation("failed", string(node.Model), float64(resp.LatencyMS)/1000)
			k.failAgentTransport(ctx, runID, nextID, fmt.Errorf("%s", errMsg))
			return
		}

		if violated, reason := postFlightViolation(nextID, resp); violated {
			k.Obs.RecordInvocation("protocol_violation", string(node.Model), float64(resp.LatencyMS)/1000)
			if err := k.Breaker.Trip(ctx, runID, nextID, breaker.ReasonProtocolViolation, reason); err != nil {
				slog.Error("scheduler: breaker trip failed", "run_id", runID, "agent_id", nextID, "error", err)
			}
			continue
		}

		k.Obs.RecordInvocation("succeeded", string(node.Model), float64(resp.LatencyMS)/1000)

		k.handleSuccess(ctx, runID, nextID, node, graph, resp)
	}
}

// pickNext finds the first id in topological order whose parents are
// all completed and which is not yet in any membership set. Parents
// are the DAG's edges, not the node config's declared depends_on: the
// Graph Surgeon may wire a spliced node under its delegator without
// touching the node's own declaration. pickNext also reports whether
// any agent is currently active, so the caller knows whether an empty
// result means "wait" (something is still active) or "done" (nothing
// ready, nothing active).
func pickNext(order []string, st *state.RuntimeState, graph *dag.Graph, nodes *noderegistry.Registry, runID string) (nextID string, hasActive bool) {
	hasActive = len(st.ActiveAgents) > 0

	for _, id := range order {
		if _, active := st.ActiveAgents[id]; active {
			continue
		}
		if _, completed := st.CompletedAgents[id]; completed {
			continue
		}
		if _, failed := st.FailedAgents[id]; failed {
			continue
		}
		if _, ok := nodes.Get(runID, id); !ok {
			continue
		}
		ready := true
		for _, dep := range graph.GetDependencies(id) {
			if _, ok := st.CompletedAgents[dep]; !ok {
				ready = false
				break
			}
		}
		if ready {
			return id, hasActive
		}
	}
	return "", hasActive
}

func toInvokeRequest(p *payload.Payload) llmclient.InvokeRequest {
	var parentSig, cacheHandle *string
	if p.ParentSignature != "" {
		parentSig = &p.ParentSignature
	}
	if p.CacheHandle != "" {
		cacheHandle = &p.CacheHandle
	}
	var thinkingLevel *int
	if p.ThinkingDepth != "" {
		lvl := 2
		thinkingLevel = &lvl
	}

	return llmclient.InvokeRequest{
		RunID:           p.RunID,
		AgentID:         p.AgentID,
		Model:           string(p.Model),
		Prompt:          p.SystemPrompt,
		UserDirective:   p.UserDirective,
		InputData:       p.StructuredInput,
		ParentSignature: parentSig,
		CachedContentID: cacheHandle,
		ThinkingLevel:   thinkingLevel,
		FilePaths:       p.FilePaths,
		Tools:           p.Tools,
		AllowDelegation: p.AllowDelegation,
		GraphView:       p.GraphView,
	}
}

// postFlightViolation implements §4.7's post-flight protocol
// validation for an agent's own completed invocation. A producing
// agent's own "[STATUS: NULL]" result is not tripped here: it is a
// legitimate "found nothing" outcome for that agent's own invocation,
// and is instead enforced as a pre-flight drought guard against
// whichever *dependent* tries to consume it as context (see
// payload.IsContextDrought and its call site in Kernel.run) — this
// keeps S5-style scenarios producing the spec's documented outcome
// (the drought surfaces on the consumer, not the producer). violated
// is true only for an identity-prefix protocol violation; reason is a
// human-readable explanation for the Circuit Breaker and operator.
func postFlightViolation(agentID string, resp *llmclient.InvokeResponse) (violated bool, reason string) {
	var text string
	if resp.Output != nil {
		text = resp.Output.Result
	}

	isBypassed := strings.HasPrefix(strings.TrimSpace(text), "[BYPASS:")
	if isBypassed {
		return false, ""
	}

	usedTool := func(name string) bool {
		for _, t := range resp.ExecutedTools {
			if t == name {
				return true
			}
		}
		return strings.Contains(text, name)
	}
	usedSearch := usedTool(capability.ToolWebSearch)
	usedPython := usedTool(capability.ToolCodeExec)
	usedWrite := usedTool(capability.ToolFileWrite)

	id := strings.ToLower(agentID)
	if strings.HasPrefix(id, "research_") && !usedSearch {
		return true, fmt.Sprintf("research agent did not search: no %s usage in executed tools or output evidence", capability.ToolWebSearch)
	}
	if (strings.HasPrefix(id, "analyze_") || strings.HasPrefix(id, "coder_")) && !usedPython && !usedWrite {
		return true, "analyst/coder produced no artifact"
	}
	return false, ""
}

// failAgentTransport handles a transport-failure response (§7):
// fail the run at this agent, emit AgentFailed, and fire cleanup.
func (k *Kernel) failAgentTransport(ctx context.Context, runID, agentID string, cause error) {
	k.failRun(ctx, runID, agentID, fmt.Sprintf("transport error: %v", cause))
}

func (k *Kernel) failRun(ctx context.Context, runID, agentID, reason string) {
	if agentID != "" {
		k.States.RecordInvocation(ctx, runID, agentID, state.Invocation{
			AgentID:   agentID,
			Status:    state.InvocationFailed,
			Error:     reason,
			Timestamp: time.Now(),
		})
	}
	k.States.SetStatus(ctx, runID, state.StatusFailed)
	k.Bus.Publish(eventbus.Event{
		RunID:     runID,
		Type:      eventbus.AgentFailed,
		AgentID:   agentID,
		Payload:   map[string]string{"reason": reason},
		Timestamp: time.Now(),
	})
	k.cleanup(runID)
}

// cleanup fires DELETE /runtime/{id}/cleanup once a run reaches a
// terminal status, logging but never blocking on failure.
func (k *Kernel) cleanup(runID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := k.Adapter.Cleanup(ctx, runID); err != nil {
			slog.Warn("scheduler: adapter cleanup failed", "run_id", runID, "error", err)
		}
	}()
}

// handleSuccess processes a successful invocation: cache handle,
// delegation, thought signature, artifact promotion/storage, then
// records the completed invocation and emits AgentCompleted.
func (k *Kernel) handleSuccess(ctx context.Context, runID, agentID string, node config.AgentNodeConfig, graph *dag.Graph, resp *llmclient.InvokeResponse) {
	if resp.CachedContentID != nil {
		k.Cache.Set(runID, *resp.CachedContentID)
	}

	if resp.Delegation != nil {
		if !node.AllowDelegation {
			slog.Info("scheduler: unauthorized delegation ignored", "run_id", runID, "agent_id", agentID)
		} else if err := k.applyDelegation(ctx, runID, agentID, graph, *resp.Delegation); err != nil {
			k.failRun(ctx, runID, agentID, fmt.Sprintf("delegation failed: %v", err))
			return
		}
	}

	if resp.ThoughtSignature != nil {
		k.Signatures.Set(runID, agentID, *resp.ThoughtSignature)
	}

	var artifactRef string
	var resultText string
	var filesGenerated []string
	if resp.Output != nil {
		resultText = resp.Output.Result
		filesGenerated = resp.Output.FilesGenerated
	}

	if len(filesGenerated) > 0 {
		clientID := k.clients.get(runID)
		go k.promoteArtifacts(runID, clientID, agentID, node.UserDirective, filesGenerated)
	}

	raw, marshalErr := json.Marshal(map[string]interface{}{
		"result":          resultText,
		"files_generated": filesGenerated,
	})
	if marshalErr == nil {
		k.outputs.set(runID, agentID, raw)
	}

	if resp.Output != nil && resp.Output.ArtifactStored {
		artifactRef = fmt.Sprintf("artifact:%s:%s", runID, agentID)
	} else if k.Artifacts != nil && marshalErr == nil {
		if err := k.Artifacts.StoreArtifact(ctx, runID, agentID, raw); err != nil {
			slog.Warn("scheduler: store artifact failed", "run_id", runID, "agent_id", agentID, "error", err)
		} else {
			artifactRef = fmt.Sprintf("run:%s:agent:%s:output", runID, agentID)
		}
	}

	k.States.RecordInvocation(ctx, runID, agentID, state.Invocation{
		AgentID:   agentID,
		Model:     string(node.Model),
		Tools:     resp.ExecutedTools,
		Tokens:    resp.TokensUsed,
		Latency:   time.Duration(resp.LatencyMS) * time.Millisecond,
		Status:    state.InvocationSucceeded,
		Timestamp: time.Now(),
		Artifact:  artifactRef,
	})

	k.Bus.Publish(eventbus.Event{RunID: runID, Type: eventbus.AgentCompleted, AgentID: agentID, Timestamp: time.Now()})
}

func (k *Kernel) applyDelegation(ctx context.Context, runID, agentID string, graph *dag.Graph, delegation llmclient.Delegation) error {
	newNodes := make([]config.AgentNodeConfig, 0, len(delegation.NewNodes))
	for _, raw := range delegation.NewNodes {
		fields := make(map[string]interface{}, len(raw))
		for k, v := range raw {
			var decoded interface{}
			if err := json.Unmarshal(v, &decoded); err != nil {
				return fmt.Errorf("decode proposed node field %q: %w", k, err)
			}
			fields[k] = decoded
		}

		var n config.AgentNodeConfig
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName: "json",
			Result:  &n,
		})
		if err != nil {
			return fmt.Errorf("build proposed node decoder: %w", err)
		}
		if err := dec.Decode(fields); err != nil {
			return fmt.Errorf("decode proposed node: %w", err)
		}
		n.SetDefaults()
		newNodes = append(newNodes, n)
	}

	snapshot, err := k.States.Get(runID)
	if err != nil {
		return fmt.Errorf("load state for delegation: %w", err)
	}

	result, err := surgeon.Apply(graph, k.Nodes, snapshot, runID, agentID, surgeon.Request{
		Strategy: surgeon.Strategy(delegation.Strategy),
		NewNodes: newNodes,
	})
	if err != nil {
		return err
	}

	for _, id := range result.InsertedIDs {
		k.Bus.Publish(eventbus.Event{RunID: runID, Type: eventbus.NodeCreated, AgentID: id, Timestamp: time.Now()})
	}
	return nil
}

// artifactMetadata is written alongside every promoted artifact file.
type artifactMetadata struct {
	GeneratingAgent string    `json:"generating_agent"`
	Directive       string    `json:"directive"`
	PromotedAt      time.Time `json:"promoted_at"`
	Files           []string  `json:"files"`
}

// promoteArtifacts copies each generated file from the run's ephemeral
// session output directory to persistent, client-scoped artifact
// storage, writing a metadata.json record alongside. Fire-and-forget:
// failures are logged, never fail the run (§4.7).
func (k *Kernel) promoteArtifacts(runID, clientID, agentID, directive string, files []string) {
	destDir := k.Layout.Artifacts(clientID, runID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		slog.Warn("scheduler: artifact promotion: create dest dir", "run_id", runID, "agent_id", agentID, "error", err)
		return
	}

	for _, name := range files {
		src := k.Layout.ResolveGeneratedFile(runID, name)
		dst := filepath.Join(destDir, filepath.Base(name))
		if err := copyFile(src, dst); err != nil {
			slog.Warn("scheduler: artifact promotion failed", "run_id", runID, "agent_id", agentID, "file", name, "error", err)
			continue
		}
	}

	meta := artifactMetadata{GeneratingAgent: agentID, Directive: directive, PromotedAt: time.Now(), Files: files}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		slog.Warn("scheduler: artifact promotion: marshal metadata", "run_id", runID, "agent_id", agentID, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(destDir, "metadata.json"), raw, 0o644); err != nil {
		slog.Warn("scheduler: artifact promotion: write metadata", "run_id", runID, "agent_id", agentID, "error", err)
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
