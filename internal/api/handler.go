// Package api provides HTTP handlers for the task chat API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asuleiman/taskchat/internal/auth"
	"github.com/asuleiman/taskchat/internal/chat"
	"github.com/asuleiman/taskchat/internal/store"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo         store.Repository
	orchestrator *chat.Orchestrator
	issuer       *auth.TokenIssuer
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, orchestrator *chat.Orchestrator, issuer *auth.TokenIssuer) *Handler {
	return &Handler{
		repo:         repo,
		orchestrator: orchestrator,
		issuer:       issuer,
	}
}

// RegisterRoutes mounts all API routes. Everything except the auth
// endpoints requires a valid access token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.issuer))

		r.Route("/api/tasks", func(r chi.Router) {
			r.Post("/", h.CreateTask)
			r.Get("/", h.ListTasks)
			r.Get("/stats", h.TaskStats)
			r.Get("/tags", h.TaskTags)
			r.Get("/{taskID}", h.GetTask)
			r.Patch("/{taskID}", h.UpdateTask)
			r.Delete("/{taskID}", h.DeleteTask)
			r.Post("/{taskID}/complete", h.CompleteTask)
			r.Post("/{taskID}/uncomplete", h.UncompleteTask)
		})

		r.Route("/api/chat", func(r chi.Router) {
			r.Post("/", h.Chat)
			r.Get("/conversations", h.ListConversations)
			r.Get("/conversations/{conversationID}/messages", h.ListMessages)
			r.Post("/conversations/{conversationID}/close", h.CloseConversation)
			r.Delete("/conversations/{conversationID}", h.DeleteConversation)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// parseDate accepts the ISO date shapes clients send.
func parseDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}
