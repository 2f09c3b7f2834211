// Package server provides the HTTP API for codebot.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ajibigad/codebot/internal/config"
	"github.com/ajibigad/codebot/internal/models"
	"github.com/ajibigad/codebot/internal/review"
	"github.com/ajibigad/codebot/internal/scheduler"
	"github.com/ajibigad/codebot/internal/taskstore"
	"github.com/ajibigad/codebot/internal/webhook"
)

// maxWebhookBody caps how much of a delivery is read before verification.
const maxWebhookBody = 5 << 20

// Server exposes task submission, status, and the webhook ingress.
type Server struct {
	cfg         *config.Config
	store       *taskstore.Store
	scheduler   *scheduler.Scheduler
	ingress     *webhook.Ingress
	reviewQueue *review.Queue
	server      *http.Server
}

// New creates the HTTP server.
func New(cfg *config.Config, store *taskstore.Store, sched *scheduler.Scheduler, ingress *webhook.Ingress, reviewQueue *review.Queue) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		scheduler:   sched,
		ingress:     ingress,
		reviewQueue: reviewQueue,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("Starting codebot server on %s", s.cfg.ListenAddr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler builds the route mux. Exposed so tests can drive the API without a
// listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Task endpoints
	mux.HandleFunc("/api/tasks/submit", s.requireAPIKey(s.handleSubmit))
	mux.HandleFunc("/api/tasks/", s.requireAPIKey(s.handleTaskStatus))
	mux.HandleFunc("/api/tasks", s.requireAPIKey(s.handleListTasks))

	// Webhook ingress
	mux.HandleFunc("/webhook", s.handleWebhook)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

// requireAPIKey rejects API requests without a valid key. Keys come in as
// either "Authorization: Bearer <key>" or "X-API-Key: <key>". When no keys
// are configured the API is open, which only makes sense on localhost.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.HasAPIKeys() {
			next(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if !s.cfg.IsAPIKeyValid(key) {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var prompt models.TaskPrompt
	if err := json.NewDecoder(r.Body).Decode(&prompt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	id, err := s.scheduler.Submit(prompt)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, models.ErrMissingRepositoryURL), errors.Is(err, models.ErrMissingDescription):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		TaskID: id,
		Status: string(models.TaskStatusPending),
	})
}

// handleTaskStatus handles GET /api/tasks/{id}/status.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "status" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	task, err := s.store.Get(parts[0])
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := taskstore.MaxListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < taskstore.MinListLimit || n > taskstore.MaxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	var status models.TaskStatus
	if v := r.URL.Query().Get("status"); v != "" {
		status = models.TaskStatus(v)
	}

	tasks := s.store.List(status, limit)
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleWebhook verifies and enqueues a delivery. The 200 goes out as soon
// as the comment is queued; processing happens on the worker.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	outcome, err := s.ingress.Handle(
		r.Header.Get("X-GitHub-Event"),
		body,
		r.Header.Get("X-Hub-Signature-256"),
	)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrBadSignature):
			writeError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, review.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, "review queue full")
		default:
			writeError(w, http.StatusBadRequest, outcome.Reason)
		}
		return
	}
	if !outcome.Accepted {
		writeError(w, http.StatusBadRequest, outcome.Reason)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"queued": outcome.Queued,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"task_queue_depth":   s.scheduler.Depth(),
		"review_queue_depth": s.reviewQueue.Depth(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
