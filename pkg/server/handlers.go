package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/raro-systems/raro/pkg/config"
	"github.com/raro-systems/raro/pkg/dag"
	"github.com/raro-systems/raro/pkg/state"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleStart implements POST /runtime/start: decode the manifest,
// reject malformed/cyclic/dangling-dependency manifests synchronously
// with 4xx (§7), otherwise hand off to the Kernel and return the run
// id immediately — the scheduler runs detached. An optional top-level
// user_directive field carries the operator's task text; it is routed
// into every agent whose accepts_directive flag is set.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		config.WorkflowManifest
		UserDirective string `json:"user_directive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	manifest := body.WorkflowManifest
	manifest.SetDefaults()

	if body.UserDirective != "" {
		for i := range manifest.Agents {
			if manifest.Agents[i].AcceptsDirective {
				manifest.Agents[i].UserDirective = body.UserDirective
			}
		}
	}

	clientID := clientIDFromContext(r.Context())
	runID, err := s.kernel.StartRun(r.Context(), manifest, clientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID})
}

// handleResume implements POST /runtime/{id}/resume (§4.12): verifies
// a DAG still exists for the run, resets status to Running, re-enters
// the scheduler.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if err := s.kernel.Resume(r.Context(), runID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// handleApprove implements POST /runtime/{id}/approve: the operator
// has reviewed (and possibly edited, via noderegistry.Set, a separate
// concern per §4.8) the paused run and wants the scheduler to
// continue. Approval and resume share the same underlying transition
// in this core (§9 records no separate wire contract for an edit
// endpoint); approve is kept as its own route because §4.12 lists it
// distinctly from resume and a future revision may attach
// approval-specific bookkeeping (e.g. an audit record) without
// touching plain resume's semantics.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if err := s.kernel.Resume(r.Context(), runID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// handleReject implements POST /runtime/{id}/reject: the operator
// declines to continue a paused run; it transitions straight to
// Failed (§7, §5 "Cancellation").
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "rejected by operator"
	}
	if err := s.kernel.Reject(r.Context(), runID, body.Reason); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// stateView is RuntimeState reshaped for the wire: the three
// membership sets are serialized as sorted string slices rather than
// Go's map[string]struct{} JSON shape, so repeated snapshots of the
// same state are byte-identical.
type stateView struct {
	RunID           string              `json:"run_id"`
	WorkflowID      string              `json:"workflow_id"`
	ClientID        string              `json:"client_id"`
	Status          state.Status        `json:"status"`
	ActiveAgents    []string            `json:"active_agents"`
	CompletedAgents []string            `json:"completed_agents"`
	FailedAgents    []string            `json:"failed_agents"`
	Invocations     []state.Invocation  `json:"invocations"`
	TotalTokensUsed int                 `json:"total_tokens_used"`
	StartTime       string              `json:"start_time"`
	EndTime         string              `json:"end_time,omitempty"`
}

func toStateView(st *state.RuntimeState) stateView {
	v := stateView{
		RunID:           st.RunID,
		WorkflowID:      st.WorkflowID,
		ClientID:        st.ClientID,
		Status:          st.Status,
		ActiveAgents:    keys(st.ActiveAgents),
		CompletedAgents: keys(st.CompletedAgents),
		FailedAgents:    keys(st.FailedAgents),
		Invocations:     st.Invocations,
		TotalTokensUsed: st.TotalTokensUsed,
		StartTime:       st.StartTime.Format(timeLayout),
	}
	if !st.EndTime.IsZero() {
		v.EndTime = st.EndTime.Format(timeLayout)
	}
	return v
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// handleState implements GET /runtime/{id}/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	st, err := s.kernel.States.Get(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateView(st))
}

// handleSignatures implements GET /runtime/{id}/signatures.
func (s *Server) handleSignatures(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, s.signatures.All(runID))
}

// topologyView mirrors dag.Edge for a stable wire shape independent of
// the internal struct's field names.
type topologyView struct {
	Nodes []string        `json:"nodes"`
	Edges []topologyEdge  `json:"edges"`
}

type topologyEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func toTopologyView(nodes []string, edges []dag.Edge) topologyView {
	v := topologyView{Nodes: nodes, Edges: make([]topologyEdge, 0, len(edges))}
	for _, e := range edges {
		v.Edges = append(v.Edges, topologyEdge{From: e.From, To: e.To})
	}
	return v
}

// handleTopology implements GET /runtime/{id}/topology.
func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	nodes, edges, ok := s.kernel.Topology(runID)
	if !ok {
		writeError(w, http.StatusNotFound, errRunHasNoGraph(runID))
		return
	}
	writeJSON(w, http.StatusOK, toTopologyView(nodes, edges))
}

func errRunHasNoGraph(runID string) error {
	return &runNotFoundError{runID: runID}
}

type runNotFoundError struct{ runID string }

func (e *runNotFoundError) Error() string {
	return "server: run " + e.runID + " has no graph"
}
