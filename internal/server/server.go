// Package server exposes chunkd's control surface over HTTP: REST endpoints
// for injecting and steering work units, and a WebSocket stream of lifecycle
// events.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/ShayCichocki/chunkd/internal/orchestrator"
	"github.com/ShayCichocki/chunkd/internal/state"
)

// Server serves the chunkd HTTP API in front of a running orchestrator.
type Server struct {
	orch     *orchestrator.Orchestrator
	store    state.Store
	logger   *slog.Logger
	upgrader websocket.Upgrader

	server *http.Server
}

// New builds a Server over the orchestrator and its backing store.
func New(orch *orchestrator.Orchestrator, store state.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:   orch,
		store:  store,
		logger: logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The daemon binds to an operator-controlled address; browser
			// origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/work-units", func(r chi.Router) {
		r.Post("/", s.handleInject)
		r.Get("/", s.handleListWorkUnits)
		r.Get("/{chunk}", s.handleGetWorkUnit)
		r.Patch("/{chunk}/priority", s.handleSetPriority)
		r.Post("/{chunk}/answer", s.handleAnswer)
		r.Post("/{chunk}/resolve", s.handleResolve)
		r.Post("/{chunk}/retry", s.handleRetry)
	})
	r.Route("/conflicts", func(r chi.Router) {
		r.Get("/", s.handleListConflicts)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/{chunk}", s.handleConflictsFor)
	})
	r.Get("/attention", s.handleAttention)
	r.Get("/config", s.handleGetConfig)
	r.Patch("/config", s.handlePatchConfig)

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(r)
}

// ListenAndServe starts the HTTP server on addr. ctx becomes the base
// context of every request, so cancelling it tears down in-flight streams
// during shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	s.logger.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
