// Package api exposes the registration boundary over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Adidier/agents/internal/registry"
	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 * 1024

// Pinger checks primary sink connectivity for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SnapshotSource exposes the last completed snapshot. *aggregator.Loop implements it.
type SnapshotSource interface {
	Latest() *telemetry.Snapshot
	Cycles() uint64
}

// Server routes registration calls to the registry store.
type Server struct {
	store     *registry.Store
	pinger    Pinger
	snapshots SnapshotSource
	router    *mux.Router
	server    *http.Server
	log       zerolog.Logger
}

// NewServer creates the API. pinger and snapshots may be nil.
func NewServer(store *registry.Store, pinger Pinger, snapshots SnapshotSource, log zerolog.Logger) *Server {
	s := &Server{
		store:     store,
		pinger:    pinger,
		snapshots: snapshots,
		router:    mux.NewRouter(),
		log:       log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc("/deregister", s.handleDeregister).Methods(http.MethodPost)
	s.router.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	s.router.HandleFunc("/participants", s.handleListParticipants).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/snapshots/latest", s.handleLatestSnapshot).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "no route for "+r.URL.Path)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
// It returns once the listener is bound so callers can rely on the port.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("API server error")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("API server listening")
	return ln.Addr(), nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
