// Package domain contains core domain types for the task chat application.
package domain

import (
	"fmt"
	"time"
)

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the three known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank returns the sort rank of a priority. High sorts first in
// ascending order: high=0, medium=1, low=2. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Task represents one owner-scoped unit of work.
type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskCreate carries the fields accepted when creating a task.
type TaskCreate struct {
	Title       string
	Description string
	Priority    Priority
	Tags        []string
	DueDate     *time.Time
}

// TaskUpdate carries a partial update: nil fields are left untouched.
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *Priority
	Tags        *[]string
	DueDate     *time.Time
}

// IsZero reports whether the update carries no fields at all.
func (u TaskUpdate) IsZero() bool {
	return u.Title == nil && u.Description == nil && u.Completed == nil &&
		u.Priority == nil && u.Tags == nil && u.DueDate == nil
}

// Sort keys accepted by TaskQuery.
const (
	SortByCreatedAt = "created_at"
	SortByDueDate   = "due_date"
	SortByTitle     = "title"
	SortByPriority  = "priority"
)

// TaskQuery describes a filtered, sorted, paginated task listing.
// All filters are optional and conjunctive.
type TaskQuery struct {
	Search    string    // case-insensitive substring over title OR description
	Priority  *Priority // exact match
	Completed *bool     // exact match
	Tag       string    // case-insensitive membership in the tag set
	SortBy    string    // created_at (default), due_date, title, priority
	SortDesc  bool
	Skip      int
	Limit     int
}

// TaskStatistics is an aggregate snapshot of one owner's tasks.
type TaskStatistics struct {
	Total                int `json:"total"`
	Completed            int `json:"completed"`
	Pending              int `json:"pending"`
	CompletionPercentage int `json:"completion_percentage"`
	HighPriority         int `json:"high_priority"`
	Overdue              int `json:"overdue"`
	DueToday             int `json:"due_today"`
	DueThisWeek          int `json:"due_this_week"`
}

// TagCount is one entry of the owner's tag inventory.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ValidationError reports invalid input to a task field or tool parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateTaskCreate checks the create-time task invariants.
func ValidateTaskCreate(tc TaskCreate) error {
	if tc.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if !tc.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "must be 'low', 'medium', or 'high'"}
	}
	return nil
}
