// Package api exposes the knowledge base over HTTP.
//
//	POST   /api/v1/documents                 upload, starts ingestion
//	GET    /api/v1/documents                 list (owner-scoped)
//	GET    /api/v1/documents/{id}            fetch one
//	PATCH  /api/v1/documents/{id}            update metadata
//	DELETE /api/v1/documents/{id}            delete document, chunks and file
//	POST   /api/v1/documents/{id}/reprocess  purge and re-ingest
//	POST   /api/v1/search                    semantic search
//	GET    /api/v1/stats                     knowledge-base overview
//	GET    /health                           liveness probe
//	GET    /ready                            readiness probe (DB ping)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - documents.go: document CRUD and pipeline endpoints
//   - search.go: search and stats endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkb/docbase/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	// Sized for multi-megabyte uploads on slow links.
	ReadTimeout = 5 * time.Minute

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the knowledge-base REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health    *HealthHandler
	documents *DocumentHandler
	search    *SearchHandler
}

// ServerConfig wires the handlers' dependencies.
type ServerConfig struct {
	Pool     *pgxpool.Pool
	Registry DocumentRegistry
	Files    Uploader
	Runner   Ingestor
	Searcher SearchService
	Logger   log.Logger
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg ServerConfig) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    cfg.Logger,
		health:    NewHealthHandler(cfg.Pool, cfg.Logger),
		documents: NewDocumentHandler(cfg.Registry, cfg.Files, cfg.Runner, cfg.Logger),
		search:    NewSearchHandler(cfg.Searcher, cfg.Registry, cfg.Logger),
	}

	s.health.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// On shutdown it stops accepting requests, then waits for in-flight
// background ingestion runs before returning.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.documents.Wait()
		return err
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
