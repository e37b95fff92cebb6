// Package server implements the HTTP/WS Surface (§4.12): the
// start/resume/approve/reject/state/signatures/topology endpoints and
// the combined state-snapshot-plus-live-event WebSocket stream (§6.5).
// Server is a structured value like Kernel, not a singleton: every
// collaborator (Kernel, Bus, observability Manager) is an explicit
// field, the same design note §9 applies to Kernel.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raro-systems/raro/pkg/eventbus"
	"github.com/raro-systems/raro/pkg/observability"
	"github.com/raro-systems/raro/pkg/scheduler"
	"github.com/raro-systems/raro/pkg/signature"
)

// snapshotInterval is the WS state_update cadence (§6.5: "≈ every
// 250 ms").
const snapshotInterval = 250 * time.Millisecond

// Server hosts the chi router and the HTTP listener for one kernel
// process.
type Server struct {
	kernel     *scheduler.Kernel
	signatures *signature.Store
	bus        *eventbus.Bus
	obs        *observability.Manager

	router     chi.Router
	httpServer *http.Server
}

// New wires a Server over the given collaborators and builds its
// route table. addr is the listen address (host:port).
func New(addr string, kernel *scheduler.Kernel, signatures *signature.Store, bus *eventbus.Bus, obs *observability.Manager) *Server {
	s := &Server{
		kernel:     kernel,
		signatures: signatures,
		bus:        bus,
		obs:        obs,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observabilityMiddleware)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(clientIDMiddleware)
		r.Post("/runtime/start", s.handleStart)
		r.Post("/runtime/{id}/resume", s.handleResume)
		r.Post("/runtime/{id}/approve", s.handleApprove)
		r.Post("/runtime/{id}/reject", s.handleReject)
		r.Get("/runtime/{id}/state", s.handleState)
		r.Get("/runtime/{id}/signatures", s.handleSignatures)
		r.Get("/runtime/{id}/topology", s.handleTopology)
		r.Get("/runtime/{id}/stream", s.handleStream)
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the chi router, mainly for tests that want to issue
// requests with httptest without a live listener.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving in a background goroutine. Errors other than
// http.ErrServerClosed are sent to errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: listen: %w", err)
		}
	}()
}

// Stop gracefully shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
