// Package api exposes the fixture over HTTP: command endpoints feeding the
// fade engine queue, state and history reads, and a websocket event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/aurora"
	"github.com/dokzlo13/dimmerd/internal/ledger"
	"github.com/dokzlo13/dimmerd/internal/light"
	"github.com/dokzlo13/dimmerd/internal/queue"
	"github.com/dokzlo13/dimmerd/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Enqueuer accepts command envelopes for the fade engine.
type Enqueuer interface {
	Push(env queue.Envelope) error
}

// History reads the command ledger.
type History interface {
	GetRecent(limit int) ([]*ledger.Entry, error)
	GetByType(eventType ledger.EventType, limit int) ([]*ledger.Entry, error)
}

// Config holds the server settings.
type Config struct {
	Addr            string
	RateLimitRPS    float64
	RateLimitBurst  int
	AuroraWait      time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP command surface.
type Server struct {
	cfg     Config
	queue   Enqueuer
	store   storage.StateStore
	history History
	hub     *Hub
	router  chi.Router
}

// NewServer builds the router. history and hub may be nil, which disables
// GET /history and GET /ws.
func NewServer(cfg Config, q Enqueuer, store storage.StateStore, history History, hub *Hub) *Server {
	s := &Server{
		cfg:     cfg,
		queue:   q,
		store:   store,
		history: history,
		hub:     hub,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/state", s.handleGetState)
	r.Get("/history", s.handleHistory)
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
		r.Post("/switch", commandHandler[switchRequest](s, "switch"))
		r.Post("/adjust", commandHandler[adjustRequest](s, "adjust"))
		r.Post("/state", commandHandler[stateRequest](s, "state"))
		r.Post("/preset", commandHandler[presetRequest](s, "preset"))
		r.Post("/hsv", commandHandler[hsvRequest](s, "hsv"))
		r.Post("/aurora", s.handleAurora)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return eris.Wrapf(err, "failed to listen on %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", ln.Addr().String()).Msg("Starting HTTP server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "http server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return eris.Wrap(err, "http server shutdown")
	}
	<-errCh
	log.Info().Msg("HTTP server stopped")
	return nil
}

type commandRequest interface {
	command() (light.Command, error)
}

// commandHandler decodes T, enqueues its command and answers 202.
func commandHandler[T commandRequest](s *Server, source string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cmd, err := req.command()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		env := queue.NewEnvelope(cmd, "http:"+source)
		if !s.enqueue(w, env) {
			return
		}
		writeAccepted(w, env)
	}
}

// handleAurora waits for the first colour so an unsatisfiable request is
// reported to the caller.
func (s *Server) handleAurora(w http.ResponseWriter, r *http.Request) {
	var req auroraRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cmd, err := req.command()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := make(chan error, 1)
	env := queue.NewEnvelope(cmd, "http:aurora")
	env.Result = result
	if !s.enqueue(w, env) {
		return
	}

	timer := time.NewTimer(s.cfg.AuroraWait)
	defer timer.Stop()

	select {
	case err := <-result:
		switch {
		case err == nil:
			writeAccepted(w, env)
		case eris.Is(err, aurora.ErrNoValidColour):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case eris.Is(err, aurora.ErrInvalidBounds):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	case <-timer.C:
		// Still queued behind other commands.
		writeAccepted(w, env)
	case <-r.Context().Done():
	}
}

func (s *Server) enqueue(w http.ResponseWriter, env queue.Envelope) bool {
	err := s.queue.Push(env)
	switch {
	case err == nil:
		log.Debug().
			Str("command_id", env.ID.String()).
			Str("kind", string(env.Command.Kind())).
			Msg("Command queued")
		return true
	case eris.Is(err, queue.ErrQueueFull), eris.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return false
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Load()
	if err != nil {
		status := http.StatusInternalServerError
		if eris.Is(err, storage.ErrStateNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	data, err := storage.Encode(st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var (
		entries []*ledger.Entry
		err     error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		entries, err = s.history.GetByType(ledger.EventType(t), limit)
	} else {
		entries, err = s.history.GetRecent(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports ready once persisted state can be read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Load(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeAccepted(w http.ResponseWriter, env queue.Envelope) {
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     env.ID.String(),
		"kind":   string(env.Command.Kind()),
		"status": "queued",
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// Addr formats a listen address.
func Addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
