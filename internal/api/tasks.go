package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/asuleiman/taskchat/internal/auth"
	"github.com/asuleiman/taskchat/internal/domain"
)

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
	DueDate     string   `json:"due_date"`
}

type updateTaskRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Completed   *bool     `json:"completed"`
	Priority    *string   `json:"priority"`
	Tags        *[]string `json:"tags"`
	DueDate     *string   `json:"due_date"`
}

// CreateTask creates a task for the authenticated user.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	due, valid := parseDate(req.DueDate)
	if !valid {
		Error(w, http.StatusBadRequest, "Invalid due_date")
		return
	}

	task, err := h.repo.CreateTask(r.Context(), userID, domain.TaskCreate{
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.Priority(req.Priority),
		Tags:        req.Tags,
		DueDate:     due,
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			Error(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("create task failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create task")
		return
	}

	JSON(w, http.StatusCreated, task)
}

// ListTasks returns the filtered, sorted, paginated task listing.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	qp := r.URL.Query()

	q := domain.TaskQuery{
		Search:   qp.Get("search"),
		Tag:      qp.Get("tag"),
		SortBy:   qp.Get("sort_by"),
		SortDesc: qp.Get("sort_order") != "asc",
		Skip:     intQuery(qp.Get("skip"), 0),
		Limit:    intQuery(qp.Get("limit"), 100),
	}
	if p := qp.Get("priority"); p != "" {
		priority := domain.Priority(p)
		q.Priority = &priority
	}
	if c := qp.Get("completed"); c != "" {
		completed := c == "true"
		q.Completed = &completed
	}

	tasks, total, err := h.repo.QueryTasks(r.Context(), userID, q)
	if err != nil {
		slog.Error("list tasks failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to retrieve tasks")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"total": total,
		"skip":  q.Skip,
		"limit": q.Limit,
	})
}

// TaskStats returns the aggregate snapshot of the user's tasks.
func (h *Handler) TaskStats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	stats, err := h.repo.TaskStatistics(r.Context(), userID)
	if err != nil {
		slog.Error("task statistics failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to retrieve statistics")
		return
	}
	JSON(w, http.StatusOK, stats)
}

// TaskTags returns the user's tag inventory.
func (h *Handler) TaskTags(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	tags, err := h.repo.TaskTags(r.Context(), userID)
	if err != nil {
		slog.Error("task tags failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to retrieve tags")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// GetTask returns one task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	taskID, valid := pathID(r, "taskID")
	if !valid {
		Error(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	task, err := h.repo.GetTask(r.Context(), userID, taskID)
	if err != nil {
		slog.Error("get task failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to retrieve task")
		return
	}
	if task == nil {
		Error(w, http.StatusNotFound, "Task not found")
		return
	}
	JSON(w, http.StatusOK, task)
}

// UpdateTask applies a partial update to one task.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	taskID, valid := pathID(r, "taskID")
	if !valid {
		Error(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	var req updateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u := domain.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
		Tags:        req.Tags,
	}
	if req.Priority != nil {
		priority := domain.Priority(*req.Priority)
		u.Priority = &priority
	}
	if req.DueDate != nil {
		due, ok := parseDate(*req.DueDate)
		if !ok {
			Error(w, http.StatusBadRequest, "Invalid due_date")
			return
		}
		u.DueDate = due
	}

	task, err := h.repo.UpdateTask(r.Context(), userID, taskID, u)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			Error(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("update task failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to update task")
		return
	}
	if task == nil {
		Error(w, http.StatusNotFound, "Task not found")
		return
	}
	JSON(w, http.StatusOK, task)
}

// DeleteTask removes one task.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	taskID, valid := pathID(r, "taskID")
	if !valid {
		Error(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	deleted, err := h.repo.DeleteTask(r.Context(), userID, taskID)
	if err != nil {
		slog.Error("delete task failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to delete task")
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "Task not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

// CompleteTask marks a task done.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.setCompleted(w, r, true)
}

// UncompleteTask marks a task not done.
func (h *Handler) UncompleteTask(w http.ResponseWriter, r *http.Request) {
	h.setCompleted(w, r, false)
}

func (h *Handler) setCompleted(w http.ResponseWriter, r *http.Request, completed bool) {
	userID := auth.UserIDFromContext(r.Context())
	taskID, valid := pathID(r, "taskID")
	if !valid {
		Error(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	task, err := h.repo.SetTaskCompleted(r.Context(), userID, taskID, completed)
	if err != nil {
		slog.Error("set task completed failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to update task")
		return
	}
	if task == nil {
		Error(w, http.StatusNotFound, "Task not found")
		return
	}
	JSON(w, http.StatusOK, task)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func pathID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	return id, err == nil && id > 0
}

func intQuery(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
