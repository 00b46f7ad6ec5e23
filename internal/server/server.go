package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"moltblox/internal/game"
	"moltblox/internal/session"
)

// Server is the HTTP server.
type Server struct {
	router   chi.Router
	registry *game.Registry
	manager  *session.Manager
	logger   *log.Logger
	validate *validator.Validate
}

// New creates a server with all routes.
func New(registry *game.Registry, manager *session.Manager, logger *log.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		registry: registry,
		manager:  manager,
		logger:   logger,
		validate: validator.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/games", s.handleListGames)
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{code}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/join", s.handleJoinSession)
			r.Post("/start", s.handleStartSession)
			r.Post("/actions", s.handleAction)
			r.Get("/state", s.handleGetState)
			r.Get("/events", s.handleListEvents)
			r.Get("/ws", s.handleWebSocket)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// handleListGames lists every template, or with ?players=N only those a
// lobby of N humans can start.
func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("players")
	if raw == "" {
		writeJSON(w, http.StatusOK, s.registry.List())
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "players must be a positive integer")
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Seating(n))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

type createSessionRequest struct {
	GameType string          `json:"gameType" validate:"required"`
	PlayerID string          `json:"playerId" validate:"required"`
	Seed     uint64          `json:"seed"`
	Options  json.RawMessage `json:"options"`
}

type playerRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
}

type actionRequest struct {
	PlayerID string      `json:"playerId" validate:"required"`
	Action   game.Action `json:"action"`
}

// decode reads a JSON body into dst and validates it, writing a 400 and
// returning false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.GameType = strings.TrimSpace(req.GameType)
	req.PlayerID = strings.TrimSpace(req.PlayerID)

	sess, err := s.manager.Create(req.GameType, req.Seed, req.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.manager.Join(sess.Code, req.PlayerID); err != nil {
		s.manager.Remove(sess.Code)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(chi.URLParam(r, "code"))
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.manager.Join(chi.URLParam(r, "code"), strings.TrimSpace(req.PlayerID))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.broadcastState(sess, nil)
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	out, err := s.manager.Start(code, req.PlayerID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if sess, ok := s.manager.Get(code); ok {
		s.broadcastState(sess, out.Events)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAction answers 200 for an accepted action and 422 with the
// rejection reason otherwise.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Action.Type == "" {
		writeError(w, http.StatusBadRequest, "action.type required")
		return
	}
	code := chi.URLParam(r, "code")
	out, err := s.manager.Apply(code, req.PlayerID, req.Action)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if !out.Result.Success {
		writeJSON(w, http.StatusUnprocessableEntity, out)
		return
	}
	if sess, ok := s.manager.Get(code); ok {
		s.broadcastState(sess, out.Events)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Snapshot(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}
	events, err := s.manager.Events(chi.URLParam(r, "code"), after)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if events == nil {
		events = []session.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotAccepting),
		errors.Is(err, session.ErrFull),
		errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, session.ErrNotStarted):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
