package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wenjiegu/notescout/internal/chat"
	"github.com/wenjiegu/notescout/internal/config"
	"github.com/wenjiegu/notescout/internal/notify"
	"github.com/wenjiegu/notescout/internal/observability"
	"github.com/wenjiegu/notescout/internal/taskflow"
)

type Server struct {
	cfg      config.Config
	chat     *chat.Service
	flow     *taskflow.Service
	registry *notify.Registry
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, chatSvc *chat.Service, flow *taskflow.Service, registry *notify.Registry, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		chat:     chatSvc,
		flow:     flow,
		registry: registry,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/chat", s.handleChat)
	r.Post("/api/start_auto_search", s.handleStartSearch)
	r.Post("/api/cancel_auto_search", s.handleCancelSearch)
	r.Get("/api/search_tasks/{client_id}", s.handleListTasks)
	r.Post("/api/submit_user_input", s.handleSubmitUserInput)

	r.Get("/ws", s.handleWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type chatRequest struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "client_id and message are required")
		return
	}

	// The reply streams over the websocket; the HTTP call only enqueues.
	go s.chat.ProcessChat(context.Background(), req.ClientID, req.Message)

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"initial_response": "reply is streamed over the websocket",
	})
}

type startSearchRequest struct {
	ClientID string `json:"client_id"`
	Keywords string `json:"keywords"`
	TaskID   string `json:"task_id"`
}

func (s *Server) handleStartSearch(w http.ResponseWriter, r *http.Request) {
	var req startSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}
	if strings.TrimSpace(req.Keywords) == "" && strings.TrimSpace(req.TaskID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "keywords or task_id is required")
		return
	}

	env := s.flow.StartTask(req.Keywords, req.ClientID, req.TaskID)
	respondJSON(w, statusOf(env), env)
}

type cancelSearchRequest struct {
	ClientID string `json:"client_id"`
	TaskID   string `json:"task_id"`
}

func (s *Server) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	var req cancelSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.TaskID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "client_id and task_id are required")
		return
	}

	env := s.flow.CancelTask(req.TaskID, req.ClientID)
	respondJSON(w, statusOf(env), env)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(chi.URLParam(r, "client_id"))
	if clientID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}

	snaps := s.flow.ListTasks(clientID)
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"tasks":  snaps,
	})
}

type userInputRequest struct {
	ClientID       string `json:"client_id"`
	TaskID         string `json:"task_id"`
	ContinueSearch bool   `json:"continue_search"`
}

func (s *Server) handleSubmitUserInput(w http.ResponseWriter, r *http.Request) {
	var req userInputRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.TaskID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "client_id and task_id are required")
		return
	}

	env := s.flow.SubmitUserInput(req.TaskID, req.ClientID, req.ContinueSearch)
	respondJSON(w, statusOf(env), env)
}

func statusOf(env taskflow.Envelope) int {
	if env.Status == "success" {
		return http.StatusOK
	}
	return http.StatusConflict
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
