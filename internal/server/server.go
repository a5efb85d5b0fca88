// Package server wraps an http.Server (and, for the engine process,
// a worker pool) with graceful shutdown, grounded on the teacher's
// common/server/server.go.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lyzr/flowengine/internal/logger"
)

// Server wraps an HTTP server and an optional set of background
// workers (the engine's worker pool) with graceful shutdown.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	name       string
	workers    func(ctx context.Context) // nil for the API-only process
}

// New creates a server bound to port, serving handler. workers, if
// non-nil, is started in its own goroutine and receives a context
// cancelled on shutdown; Start waits for it to return before exiting.
func New(name string, port int, handler http.Handler, log *logger.Logger, workers func(ctx context.Context)) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:     log,
		name:    name,
		workers: workers,
	}
}

// Start runs the HTTP server (and workers, if configured) until an
// OS interrupt/SIGTERM, then shuts the HTTP server down within a 30
// second budget and waits for the workers to return.
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info(fmt.Sprintf("%s starting", s.name), "addr", s.httpServer.Addr)
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	var workersDone sync.WaitGroup
	if s.workers != nil {
		workersDone.Add(1)
		go func() {
			defer workersDone.Done()
			s.workers(workerCtx)
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		cancelWorkers()
		workersDone.Wait()
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("graceful shutdown failed", "error", err)
			if closeErr := s.httpServer.Close(); closeErr != nil {
				cancelWorkers()
				workersDone.Wait()
				return fmt.Errorf("could not stop server: %w", closeErr)
			}
		}

		cancelWorkers()
		workersDone.Wait()
		s.log.Info("shutdown complete")
	}

	return nil
}

// HealthHandler returns a simple liveness check handler.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}
}
