// Package api exposes the game service over HTTP. Handlers decode a request,
// call one service operation and answer with the caller's projection of the
// committed game.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	engine "github.com/jason-s-yu/influence/engine"
	"github.com/jason-s-yu/influence/service/internal/auth"
	"github.com/jason-s-yu/influence/service/internal/game"
	"github.com/jason-s-yu/influence/service/internal/store"
	"github.com/sirupsen/logrus"
)

// Server holds the handler dependencies.
type Server struct {
	svc    *game.Service
	tokens *auth.Tokens
	log    *logrus.Entry
}

// NewServer builds a Server. tokens may be nil, which disables the internal
// routes.
func NewServer(svc *game.Service, tokens *auth.Tokens, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{svc: svc, tokens: tokens, log: log.WithField("component", "api")}
}

// Routes wires every endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", Healthz)
	r.Post("/games", s.createGame)
	r.Post("/games/join", s.joinGame)
	r.Route("/games/{id}", func(r chi.Router) {
		r.Get("/", s.getGame)
		r.Get("/ws", s.socket)
		r.Post("/bots", s.addBot)
		r.Post("/start", s.startGame)
		r.Post("/actions", s.declareAction)
		r.Post("/responses", s.submitResponse)
		r.Post("/cards", s.selectCard)
		r.Post("/exchange", s.exchangeReturn)
	})
	if s.tokens != nil {
		r.With(s.tokens.Middleware).Post("/internal/games/{id}/advance", s.advance)
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
			"request":  middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

type createRequest struct {
	PlayerID           string `json:"playerId"`
	Username           string `json:"username"`
	MaxPlayers         int    `json:"maxPlayers"`
	ResponseTimeoutSec int    `json:"responseTimeoutSec"`
}

type joinRequest struct {
	Pin      string `json:"pin"`
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}

type playerRequest struct {
	PlayerID string `json:"playerId"`
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	rules := engine.Rules{MaxPlayers: req.MaxPlayers, ResponseTimeoutSec: req.ResponseTimeoutSec}
	g, err := s.svc.CreateGame(r.Context(), req.PlayerID, req.Username, rules)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g.ViewFor(req.PlayerID))
}

func (s *Server) joinGame(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.svc.JoinGame(r.Context(), req.Pin, req.PlayerID, req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.ViewFor(req.PlayerID))
}

func (s *Server) addBot(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.svc.AddBot(r.Context(), chi.URLParam(r, "id"), req.PlayerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) startGame(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.svc.StartGame(r.Context(), chi.URLParam(r, "id"), req.PlayerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.ViewFor(req.PlayerID))
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	viewer := r.URL.Query().Get("viewer")
	g, err := s.svc.View(r.Context(), chi.URLParam(r, "id"), viewer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ---------------------------------------------------------------------------
// Turn input
// ---------------------------------------------------------------------------

type actionRequest struct {
	PlayerID       string            `json:"playerId"`
	Type           engine.ActionType `json:"type"`
	TargetPlayerID string            `json:"targetPlayerId"`
}

type responseRequest struct {
	PlayerID     string              `json:"playerId"`
	Type         engine.ResponseType `json:"type"`
	BlockingRole engine.Role         `json:"blockingRole"`
}

type cardRequest struct {
	PlayerID string `json:"playerId"`
	CardID   string `json:"cardId"`
}

type exchangeRequest struct {
	PlayerID string   `json:"playerId"`
	CardIDs  []string `json:"cardIds"`
}

func (s *Server) declareAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	a := engine.Action{Type: req.Type, PlayerID: req.PlayerID, TargetPlayerID: req.TargetPlayerID}
	g, err := s.svc.DeclareAction(r.Context(), chi.URLParam(r, "id"), a)
	s.answer(w, g, req.PlayerID, err)
}

func (s *Server) submitResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if !decode(w, r, &req) {
		return
	}
	resp := engine.Response{Type: req.Type, BlockingRole: req.BlockingRole}
	g, err := s.svc.SubmitResponse(r.Context(), chi.URLParam(r, "id"), req.PlayerID, resp)
	s.answer(w, g, req.PlayerID, err)
}

func (s *Server) selectCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.svc.SelectCard(r.Context(), chi.URLParam(r, "id"), req.PlayerID, req.CardID)
	s.answer(w, g, req.PlayerID, err)
}

func (s *Server) exchangeReturn(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.svc.SubmitExchangeReturn(r.Context(), chi.URLParam(r, "id"), req.PlayerID, req.CardIDs)
	s.answer(w, g, req.PlayerID, err)
}

type advanceRequest struct {
	Expect *engine.Watch `json:"expect"`
}

type advanceResponse struct {
	Advanced bool `json:"advanced"`
}

// advance is the trusted escalation entry point. An empty body escalates
// whatever deadline is due.
func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	gameID := chi.URLParam(r, "id")
	if req.Expect != nil && req.Expect.GameID != gameID {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "watch tuple names another game"})
		return
	}
	ok, err := s.svc.AdvanceTurnState(r.Context(), gameID, req.Expect)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Advanced: ok})
}

func (s *Server) answer(w http.ResponseWriter, g engine.Game, viewer string, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.ViewFor(viewer))
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type errorBody struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps an operation error onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, game.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrWrongPhase),
		errors.Is(err, engine.ErrAlreadyResponded),
		errors.Is(err, engine.ErrTurnInProgress),
		errors.Is(err, engine.ErrNoTurn),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case engine.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrTransient), errors.Is(err, game.ErrNoPin):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
