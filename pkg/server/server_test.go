package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raro-systems/raro/pkg/breaker"
	"github.com/raro-systems/raro/pkg/cachereg"
	"github.com/raro-systems/raro/pkg/config"
	"github.com/raro-systems/raro/pkg/eventbus"
	"github.com/raro-systems/raro/pkg/llmclient"
	"github.com/raro-systems/raro/pkg/noderegistry"
	"github.com/raro-systems/raro/pkg/observability"
	"github.com/raro-systems/raro/pkg/scheduler"
	"github.com/raro-systems/raro/pkg/signature"
	"github.com/raro-systems/raro/pkg/state"
	"github.com/raro-systems/raro/pkg/storage"
)

func newTestServer(t *testing.T) *Server {
	return newTestServerWithAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(llmclient.InvokeResponse{
			AgentID: "a",
			Success: true,
			Output:  &llmclient.InvokeOutput{Result: "[BYPASS: test]"},
		})
	})
}

func newTestServerWithAdapter(t *testing.T, handler http.HandlerFunc) *Server {
	t.Helper()

	adapterSrv := httptest.NewServer(handler)
	t.Cleanup(adapterSrv.Close)

	bus := eventbus.New(0)
	states := state.New(nil)
	brk := breaker.New(states, bus)
	adapter := llmclient.NewAdapterClient(adapterSrv.URL)
	layout := storage.New(t.TempDir())

	kernel := scheduler.New(states, noderegistry.New(), signature.New(), cachereg.New(), bus, brk, adapter, nil, layout)

	obs, err := observability.NewManager(context.Background(), "raro-test")
	require.NoError(t, err)
	kernel.SetObservability(obs)

	return New("127.0.0.1:0", kernel, signature.New(), bus, obs)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestClientIDSanitization(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/runtime/unknown/state", nil)
	req.Header.Set(clientIDHeader, "has a space")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartRejectsEmptyManifest(t *testing.T) {
	s := newTestServer(t)

	body := strings.NewReader(`{"id":"wf1","agents":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/runtime/start", body)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartAndReadState(t *testing.T) {
	s := newTestServer(t)

	manifest := config.WorkflowManifest{
		ID: "wf1",
		Agents: []config.AgentNodeConfig{
			{ID: "a", Prompt: "do a thing"},
		},
	}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/runtime/start", strings.NewReader(string(raw)))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	runID := resp["run_id"]
	require.NotEmpty(t, runID)

	req = httptest.NewRequest(http.MethodGet, "/runtime/"+runID+"/topology", nil)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var topo topologyView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&topo))
	require.Contains(t, topo.Nodes, "a")
}

func TestStartRoutesUserDirectiveIntoAcceptingAgents(t *testing.T) {
	directives := make(chan string, 2)
	s := newTestServerWithAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req llmclient.InvokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		directives <- req.UserDirective
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(llmclient.InvokeResponse{
			AgentID: req.AgentID,
			Success: true,
			Output:  &llmclient.InvokeOutput{Result: "[BYPASS: test]"},
		})
	})

	body := `{
		"id": "wf1",
		"agents": [
			{"id": "a", "prompt": "do a thing", "accepts_directive": true}
		],
		"user_directive": "analyze the Q3 numbers"
	}`
	req := httptest.NewRequest(http.MethodPost, "/runtime/start", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case got := <-directives:
		require.Equal(t, "analyze the Q3 numbers", got)
	case <-time.After(2 * time.Second):
		t.Fatal("adapter never received the invocation")
	}
}

func TestRejectUnknownRun(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/runtime/does-not-exist/reject", strings.NewReader(`{"reason":"nope"}`))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
