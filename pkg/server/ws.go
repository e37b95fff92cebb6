package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/raro-systems/raro/pkg/eventbus"
)

// stateUpdateFrame is the periodic §6.5 snapshot frame.
type stateUpdateFrame struct {
	Type       string       `json:"type"`
	State      stateView    `json:"state"`
	Signatures interface{}  `json:"signatures"`
	Topology   topologyView `json:"topology"`
}

// logEventFrame forwards one Event Bus event filtered to this run.
type logEventFrame struct {
	Type      string      `json:"type"`
	AgentID   string      `json:"agent_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// handleStream implements GET /runtime/{id}/stream (§6.5): after
// upgrade, multiplexes a periodic state_update snapshot with
// forwarded, run-filtered log_event frames until the client
// disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The server never expects inbound frames on this stream; reading
	// in the background is how coder/websocket surfaces a client-side
	// close so we can release resources (§6.5 "the server detects
	// this on the next poll interval").
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	sub := s.bus.Subscribe()
	defer sub.Unsubscribe()

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeSnapshot(ctx, conn, runID); err != nil {
				return
			}
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if ev.RunID != runID {
				continue
			}
			if err := s.writeLogEvent(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeSnapshot(ctx context.Context, conn *websocket.Conn, runID string) error {
	st, err := s.kernel.States.Get(runID)
	if err != nil {
		return nil // run not found yet (e.g. race with start) — skip this tick, not fatal
	}
	nodes, edges, _ := s.kernel.Topology(runID)

	frame := stateUpdateFrame{
		Type:       "state_update",
		State:      toStateView(st),
		Signatures: s.signatures.All(runID),
		Topology:   toTopologyView(nodes, edges),
	}
	return writeWS(ctx, conn, frame)
}

func (s *Server) writeLogEvent(ctx context.Context, conn *websocket.Conn, ev eventbus.Event) error {
	frame := logEventFrame{
		Type:      "log_event",
		AgentID:   ev.AgentID,
		Payload:   ev.Payload,
		Timestamp: ev.Timestamp.Format(timeLayout),
	}
	return writeWS(ctx, conn, frame)
}

func writeWS(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("server: marshal ws frame", "error", err)
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, raw)
}
