// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"baton/internal/controller/handlers"
	"baton/internal/controller/middleware"
	"baton/internal/store"
)

// Config carries the wiring knobs the server needs beyond its dependencies.
type Config struct {
	Addr string
	// InternalToken guards the runner-facing /internal/ routes. Empty
	// leaves them open, which is only acceptable on a trusted network
	// or in development.
	InternalToken string
	// JobMaxRuntime is the stale threshold behind POST /internal/reap.
	JobMaxRuntime time.Duration
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server. The store authenticates namespaces
// and answers the readiness probe; everything else goes through the engine.
// metrics is the scrape handler returned by observability.InitMetrics.
func New(cfg Config, st store.Store, eng handlers.Orchestrator, metrics http.Handler) *Server {
	h := handlers.New(eng, st, cfg.JobMaxRuntime)

	authMW := middleware.AuthMiddleware(st)
	rateMW := middleware.NewRateLimiter().Middleware()

	// Namespace-scoped routes: key auth, then that namespace's rate limit.
	protected := func(hf http.HandlerFunc) http.Handler {
		return authMW(rateMW(hf))
	}

	// Runner-facing routes: shared token when one is configured.
	internal := func(hf http.HandlerFunc) http.Handler {
		if cfg.InternalToken == "" {
			return hf
		}
		return middleware.RequireInternalAuth(cfg.InternalToken)(hf)
	}

	mux := http.NewServeMux()

	// Bootstrap: this is where an operator gets the one-time API key.
	mux.HandleFunc("POST /namespaces", h.CreateNamespace)

	// Public authenticated apis
	mux.Handle("GET /namespaces/{name}", protected(h.GetNamespace))
	mux.Handle("DELETE /namespaces/{name}", protected(h.DeleteNamespace))

	mux.Handle("POST /assignments", protected(h.CreateAssignment))
	mux.Handle("GET /assignments", protected(h.ListAssignments))
	mux.Handle("GET /assignments/{id}", protected(h.GetAssignment))
	mux.Handle("GET /assignments/{id}/chain", protected(h.GetChain))
	mux.Handle("POST /assignments/{id}/block", protected(h.BlockAssignment))
	mux.Handle("POST /assignments/{id}/unblock", protected(h.UnblockAssignment))
	mux.Handle("POST /assignments/{id}/complete", protected(h.CompleteAssignment))
	mux.Handle("POST /assignments/{id}/decisions", protected(h.RecordDecision))
	mux.Handle("POST /assignments/{id}/groups", protected(h.EnqueueGroup))
	mux.Handle("GET /assignments/{id}/evaluations", protected(h.ListEvaluations))
	mux.Handle("POST /assignments/{id}/alignment", protected(h.ApplyAlignment))

	mux.Handle("GET /jobs/ready", protected(h.ReadyJobs))
	mux.Handle("GET /jobs/{id}", protected(h.GetJob))

	mux.Handle("POST /threads", protected(h.CreateThread))
	mux.Handle("POST /threads/{id}/mode", protected(h.SetThreadMode))
	mux.Handle("GET /guardian/pending", protected(h.PendingEvaluations))

	// Internal endpoints
	// These are called by the runners.
	mux.Handle("GET /internal/jobs/ready", internal(h.InternalReadyJobs))
	mux.Handle("POST /internal/jobs/{id}/claim", internal(h.ClaimJob))
	mux.Handle("POST /internal/jobs/{id}/complete", internal(h.CompleteJob))
	mux.Handle("POST /internal/jobs/{id}/fail", internal(h.FailJob))
	mux.Handle("PATCH /internal/jobs/{id}/metrics", internal(h.UpdateJobMetrics))
	mux.Handle("POST /internal/reap", internal(h.Reap))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.Handle("GET /metrics", metrics)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
