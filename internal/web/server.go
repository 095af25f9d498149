// Package web serves the HTTP API and the websocket change feed.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jiecolao/pyquest-game/internal/config"
	"github.com/jiecolao/pyquest-game/internal/data"
	"github.com/jiecolao/pyquest-game/internal/handler"
	"github.com/jiecolao/pyquest-game/internal/persist"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// RunReader lists journaled runs.
type RunReader interface {
	RecentRuns(ctx context.Context, limit int) ([]persist.RunRecord, error)
}

// Deps holds what the HTTP handlers need. Journal and Runs are optional.
type Deps struct {
	Config   config.WebConfig
	Log      *zap.Logger
	Tracker  *watch.Tracker
	Runtime  *scripting.Runtime
	Queue    *scripting.Queue
	Examples *data.ExampleTable
	Journal  handler.Recorder
	Runs     RunReader
}

type Server struct {
	deps   Deps
	router *mux.Router
	hub    *Hub
	http   *http.Server
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		hub:    NewHub(deps.Tracker, deps.Config, deps.Log.Named("ws")),
	}
	s.http = &http.Server{
		Addr:         deps.Config.BindAddress,
		Handler:      s.router,
		ReadTimeout:  deps.Config.ReadTimeout,
		WriteTimeout: deps.Config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scripts/validate", s.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/scripts/run", s.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/values", s.handleValues).Methods(http.MethodGet)
	api.HandleFunc("/values/{path}", s.handleValue).Methods(http.MethodGet)
	api.HandleFunc("/watches", s.handleReset).Methods(http.MethodDelete)
	api.HandleFunc("/watches/{path}", s.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/examples", s.handleExamples).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.hub.HandleWebSocket)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the websocket hub so the game loop can feed it.
func (s *Server) Hub() *Hub { return s.hub }

// Serve runs until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.deps.Log.Info("web api listening", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.http.Shutdown(ctx)
}

// writeJSON encodes v before touching the response, so an unencodable
// value turns into a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
