package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/contentstore"
	"github.com/ladleio/ladle/pkg/health"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
	"github.com/ladleio/ladle/pkg/publisher"
	"github.com/ladleio/ladle/pkg/queue"
)

// defaultMaxPayloadBytes caps a single intake request body
const defaultMaxPayloadBytes = 8 << 20

// Server is the inbound HTTP surface: payload intake for scrapers,
// pipeline stats, on-demand publishing, readiness, and metrics.
type Server struct {
	addr   string
	router *mux.Router
	http   *http.Server
	log    zerolog.Logger

	intake  *contentstore.Intake
	queues  []*queue.Queue
	pub     *publisher.Publisher
	checks  *health.Set
	version string

	maxPayloadBytes int64
}

// Deps are the pipeline collaborators the server exposes
type Deps struct {
	Intake    *contentstore.Intake
	Queues    []*queue.Queue
	Publisher *publisher.Publisher
	Checks    *health.Set
	Version   string

	// MaxPayloadBytes overrides the intake body cap (0 means default)
	MaxPayloadBytes int64
}

// NewServer creates the API server and registers its routes
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		addr:            addr,
		router:          mux.NewRouter(),
		log:             log.WithComponent("api"),
		intake:          deps.Intake,
		queues:          deps.Queues,
		pub:             deps.Publisher,
		checks:          deps.Checks,
		version:         deps.Version,
		maxPayloadBytes: deps.MaxPayloadBytes,
	}
	if s.maxPayloadBytes <= 0 {
		s.maxPayloadBytes = defaultMaxPayloadBytes
	}
	s.routes()
	s.http = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// publish is synchronous and holds the response for the
		// length of a git push
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// routes registers every endpoint. Probe endpoints (healthz, metrics)
// stay outside the instrumented subrouter so scrape traffic does not
// inflate the request counters.
func (s *Server) routes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.instrument)
	v1.HandleFunc("/payloads", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/publish", s.handlePublish).Methods(http.MethodPost)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// Start begins serving and blocks until the listener closes
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.addr).Msg("api server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes the listener
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("api server stopping")
	return s.http.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}
