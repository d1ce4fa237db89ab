package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/asuleiman/taskchat/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	existing, err := h.repo.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("register lookup failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to register")
		return
	}
	if existing != nil {
		Error(w, http.StatusBadRequest, "Email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("password hashing failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	user, err := h.repo.CreateUser(r.Context(), req.Email, req.FullName, hash)
	if err != nil {
		slog.Error("register create failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	JSON(w, http.StatusCreated, user)
}

// Login verifies credentials and issues an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.repo.GetUserByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		slog.Error("login lookup failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	if user == nil || !auth.VerifyPassword(req.Password, user.HashedPassword) {
		Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.issuer.Issue(user.ID)
	if err != nil {
		slog.Error("token issuance failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user": map[string]any{
			"id":        user.ID,
			"email":     user.Email,
			"full_name": user.FullName,
		},
	})
}

// Logout acknowledges logout. Tokens are stateless, so there is nothing to
// revoke server-side.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
