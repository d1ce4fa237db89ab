// Package tools implements the closed tool vocabulary the model capability
// may invoke, dispatching each call to the task store.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asuleiman/taskchat/internal/domain"
	"github.com/asuleiman/taskchat/internal/store"
)

// Name identifies one tool in the closed vocabulary.
type Name string

const (
	AddTask      Name = "add_task"
	ListTasks    Name = "list_tasks"
	CompleteTask Name = "complete_task"
	DeleteTask   Name = "delete_task"
	UpdateTask   Name = "update_task"
	GetTask      Name = "get_task"
)

// Names returns the full tool vocabulary in a stable order.
func Names() []Name {
	return []Name{AddTask, ListTasks, CompleteTask, DeleteTask, UpdateTask, GetTask}
}

// Params is the parameter bag of one tool invocation.
type Params map[string]any

// Envelope is the uniform result every tool call produces. It is never an
// exception: validation failures, missing tasks, and unknown tools all come
// back as failed envelopes. It marshals flat, with the payload fields at the
// top level alongside success/message/error.
type Envelope struct {
	Success bool
	Message string
	Error   string
	Data    map[string]any
}

// MarshalJSON flattens the payload into the top-level object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+3)
	for k, v := range e.Data {
		out[k] = v
	}
	out["success"] = e.Success
	if e.Message != "" {
		out["message"] = e.Message
	}
	if e.Error != "" {
		out["error"] = e.Error
	}
	return json.Marshal(out)
}

func ok(message string, data map[string]any) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

func fail(errText, message string) Envelope {
	return Envelope{Success: false, Error: errText, Message: message}
}

// Executor dispatches named tool invocations to the task store, scoped to
// one owner.
type Executor struct {
	tasks    store.TaskStore
	userID   int64
	handlers map[Name]func(ctx context.Context, p Params) Envelope
}

// NewExecutor creates an executor bound to one owner's task set.
func NewExecutor(tasks store.TaskStore, userID int64) *Executor {
	e := &Executor{tasks: tasks, userID: userID}
	e.handlers = map[Name]func(ctx context.Context, p Params) Envelope{
		AddTask:      e.addTask,
		ListTasks:    e.listTasks,
		CompleteTask: e.completeTask,
		DeleteTask:   e.deleteTask,
		UpdateTask:   e.updateTask,
		GetTask:      e.getTask,
	}
	return e
}

// Execute runs one tool invocation. It is total over the tool vocabulary:
// an unrecognized name yields a failed envelope, never an error.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any) Envelope {
	handler, known := e.handlers[Name(name)]
	if !known {
		return fail(
			fmt.Sprintf("Unknown tool: %s", name),
			fmt.Sprintf("Tool '%s' is not available", name),
		)
	}
	return handler(ctx, Params(params))
}

func (e *Executor) addTask(ctx context.Context, p Params) Envelope {
	title := p.str("title")
	if title == "" {
		return fail("Missing required field: title", "Task title is required")
	}

	priority := domain.Priority(p.str("priority"))
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return fail("Invalid priority level", "Priority must be 'low', 'medium', or 'high'")
	}

	task, err := e.tasks.CreateTask(ctx, e.userID, domain.TaskCreate{
		Title:       title,
		Description: p.str("description"),
		Priority:    priority,
		Tags:        p.stringSlice("tags"),
		DueDate:     p.timeVal("due_date"),
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return fail(verr.Error(), "Failed to create task")
		}
		slog.Error("add_task store failure", "error", err)
		return fail("Internal error", "Failed to create task")
	}

	return ok("Task created successfully", map[string]any{
		"task_id": task.ID,
		"task":    task,
	})
}

func (e *Executor) listTasks(ctx context.Context, p Params) Envelope {
	q := domain.TaskQuery{
		Search:   p.str("search"),
		Tag:      p.str("tag"),
		Skip:     p.intVal("skip", 0),
		Limit:    p.intVal("limit", 50),
		SortBy:   p.str("sort_by"),
		SortDesc: p.str("sort_order") != "asc",
	}
	if pr := p.str("priority"); pr != "" {
		priority := domain.Priority(pr)
		q.Priority = &priority
	}
	if c := p.boolVal("completed"); c != nil {
		q.Completed = c
	}

	tasks, total, err := e.tasks.QueryTasks(ctx, e.userID, q)
	if err != nil {
		slog.Error("list_tasks store failure", "error", err)
		return fail("Internal error", "Failed to retrieve tasks")
	}

	return ok("Tasks retrieved successfully", map[string]any{
		"tasks": tasks,
		"total": total,
		"skip":  q.Skip,
		"limit": q.Limit,
	})
}

func (e *Executor) completeTask(ctx context.Context, p Params) Envelope {
	taskID, present := p.id("task_id")
	if !present {
		return fail("Missing required field: task_id", "Task ID is required")
	}

	task, err := e.tasks.SetTaskCompleted(ctx, e.userID, taskID, true)
	if err != nil {
		slog.Error("complete_task store failure", "error", err)
		return fail("Internal error", "Failed to complete task")
	}
	if task == nil {
		return fail("Task not found", "Could not find the specified task")
	}

	return ok("Task marked as complete", map[string]any{
		"task_id":   task.ID,
		"completed": task.Completed,
	})
}

func (e *Executor) deleteTask(ctx context.Context, p Params) Envelope {
	taskID, present := p.id("task_id")
	if !present {
		return fail("Missing required field: task_id", "Task ID is required")
	}

	deleted, err := e.tasks.DeleteTask(ctx, e.userID, taskID)
	if err != nil {
		slog.Error("delete_task store failure", "error", err)
		return fail("Internal error", "Failed to delete task")
	}
	if !deleted {
		return fail("Task not found", "Could not find the specified task")
	}

	return ok("Task deleted successfully", map[string]any{
		"task_id": taskID,
	})
}

func (e *Executor) updateTask(ctx context.Context, p Params) Envelope {
	taskID, present := p.id("task_id")
	if !present {
		return fail("Missing required field: task_id", "Task ID is required")
	}

	// Empty strings mean "do not change", not "clear": the model fills
	// unused optional parameters with empty values.
	var u domain.TaskUpdate
	if title := p.str("title"); title != "" {
		u.Title = &title
	}
	if desc := p.str("description"); desc != "" {
		u.Description = &desc
	}
	if pr := p.str("priority"); pr != "" {
		priority := domain.Priority(pr)
		if !priority.Valid() {
			return fail("Invalid priority level", "Priority must be 'low', 'medium', or 'high'")
		}
		u.Priority = &priority
	}
	if c := p.boolVal("completed"); c != nil {
		u.Completed = c
	}
	if due := p.timeVal("due_date"); due != nil {
		u.DueDate = due
	}

	if u.IsZero() {
		return fail("No fields to update", "At least one field must be updated")
	}

	task, err := e.tasks.UpdateTask(ctx, e.userID, taskID, u)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return fail(verr.Error(), "Failed to update task")
		}
		slog.Error("update_task store failure", "error", err)
		return fail("Internal error", "Failed to update task")
	}
	if task == nil {
		return fail("Task not found", "Could not find the specified task")
	}

	return ok("Task updated successfully", map[string]any{
		"task_id": task.ID,
		"task":    task,
	})
}

func (e *Executor) getTask(ctx context.Context, p Params) Envelope {
	taskID, present := p.id("task_id")
	if !present {
		return fail("Missing required field: task_id", "Task ID is required")
	}

	task, err := e.tasks.GetTask(ctx, e.userID, taskID)
	if err != nil {
		slog.Error("get_task store failure", "error", err)
		return fail("Internal error", "Failed to retrieve task")
	}
	if task == nil {
		return fail("Task not found", "Could not find the specified task")
	}

	return ok("Task retrieved successfully", map[string]any{
		"task": task,
	})
}

// Parameter extraction helpers. Tool parameters arrive as decoded JSON, so
// numbers are float64 and booleans may be real booleans or "true"/"false"
// strings depending on the model.

func (p Params) str(key string) string {
	if v, exists := p[key]; exists {
		if s, isStr := v.(string); isStr {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (p Params) id(key string) (int64, bool) {
	v, exists := p[key]
	if !exists || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		var i int64
		_, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &i)
		return i, err == nil
	}
	return 0, false
}

func (p Params) intVal(key string, fallback int) int {
	if id, present := p.id(key); present {
		return int(id)
	}
	return fallback
}

func (p Params) boolVal(key string) *bool {
	v, exists := p[key]
	if !exists || v == nil {
		return nil
	}
	switch b := v.(type) {
	case bool:
		return &b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			t := true
			return &t
		case "false":
			f := false
			return &f
		}
	}
	return nil
}

// stringSlice accepts either a JSON array of strings or a comma-separated
// string, matching the tags contract exposed to the model.
func (p Params) stringSlice(key string) []string {
	v, exists := p[key]
	if !exists || v == nil {
		return nil
	}
	switch items := v.(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, isStr := item.(string); isStr && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(items) == "" {
			return nil
		}
		parts := strings.Split(items, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (p Params) timeVal(key string) *time.Time {
	s := p.str(key)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
