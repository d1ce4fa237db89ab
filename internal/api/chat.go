package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/asuleiman/taskchat/internal/auth"
	"github.com/asuleiman/taskchat/internal/chat"
)

// Chat runs one chat turn: the message is interpreted by the model, task
// operations are executed, and the exchange is persisted.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req chat.Request
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	resp, err := h.orchestrator.ProcessMessage(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			Error(w, http.StatusNotFound, "Conversation not found")
			return
		}
		// Upstream model faults and store faults surface as one generic
		// failure; details stay in the log.
		slog.Error("chat turn failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	JSON(w, http.StatusOK, resp)
}

// ListConversations returns the user's conversations, most recent first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	qp := r.URL.Query()

	conversations, err := h.repo.ListConversations(r.Context(), userID,
		intQuery(qp.Get("skip"), 0),
		intQuery(qp.Get("limit"), 50),
		qp.Get("include_closed") != "true",
	)
	if err != nil {
		slog.Error("list conversations failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to retrieve conversations")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"total":         len(conversations),
	})
}

// ListMessages returns one conversation's messages in chronological order.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	conversationID, valid := pathID(r, "conversationID")
	if !valid {
		Error(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}

	conv, err := h.repo.GetConversation(r.Context(), userID, conversationID)
	if err != nil {
		slog.Error("get conversation failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to retrieve messages")
		return
	}
	if conv == nil {
		Error(w, http.StatusNotFound, "Conversation not found")
		return
	}

	qp := r.URL.Query()
	messages, err := h.repo.ListMessages(r.Context(), userID, conversationID,
		intQuery(qp.Get("skip"), 0),
		intQuery(qp.Get("limit"), 100),
	)
	if err != nil {
		slog.Error("list messages failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to retrieve messages")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}

// CloseConversation soft-deletes a conversation by flipping its active flag.
func (h *Handler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	conversationID, valid := pathID(r, "conversationID")
	if !valid {
		Error(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}

	conv, err := h.repo.CloseConversation(r.Context(), userID, conversationID)
	if err != nil {
		slog.Error("close conversation failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to close conversation")
		return
	}
	if conv == nil {
		Error(w, http.StatusNotFound, "Conversation not found")
		return
	}
	JSON(w, http.StatusOK, conv)
}

// DeleteConversation hard-deletes a conversation with all its messages.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	conversationID, valid := pathID(r, "conversationID")
	if !valid {
		Error(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}

	deleted, err := h.repo.DeleteConversation(r.Context(), userID, conversationID)
	if err != nil {
		slog.Error("delete conversation failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "Conversation not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}
