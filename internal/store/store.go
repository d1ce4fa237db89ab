// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/asuleiman/taskchat/internal/domain"
)

// TaskStore persists tasks and answers queries over one owner's task set.
// Lookup methods return (nil, nil) when no record matches the owner+id pair,
// so absence and foreign ownership are indistinguishable to callers.
type TaskStore interface {
	// CreateTask validates and inserts a new task for the owner.
	CreateTask(ctx context.Context, userID int64, tc domain.TaskCreate) (*domain.Task, error)

	// GetTask retrieves one task by id, scoped to the owner.
	GetTask(ctx context.Context, userID, taskID int64) (*domain.Task, error)

	// UpdateTask applies a partial update. Nil fields are untouched; an
	// all-nil update returns the task unchanged without bumping updated_at.
	UpdateTask(ctx context.Context, userID, taskID int64, u domain.TaskUpdate) (*domain.Task, error)

	// DeleteTask removes a task, reporting whether a record existed.
	DeleteTask(ctx context.Context, userID, taskID int64) (bool, error)

	// SetTaskCompleted flips the completion flag with a minimal-field write
	// (completed + updated_at only) so concurrent edits to other fields
	// are not overwritten.
	SetTaskCompleted(ctx context.Context, userID, taskID int64, completed bool) (*domain.Task, error)

	// QueryTasks returns one page of the filtered, sorted task set plus the
	// total size of the full filtered set. Pagination is always applied
	// after filtering and sorting.
	QueryTasks(ctx context.Context, userID int64, q domain.TaskQuery) ([]domain.Task, int, error)

	// TaskStatistics computes the aggregate snapshot over all owner tasks.
	TaskStatistics(ctx context.Context, userID int64) (*domain.TaskStatistics, error)

	// TaskTags returns the owner's case-folded tag inventory with usage
	// counts, sorted by descending count.
	TaskTags(ctx context.Context, userID int64) ([]domain.TagCount, error)
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID int64, title string) (*domain.Conversation, error)

	// GetConversation retrieves a conversation by id, scoped to the owner.
	GetConversation(ctx context.Context, userID, conversationID int64) (*domain.Conversation, error)

	// ListConversations returns the owner's conversations ordered by most
	// recently updated. When activeOnly is set, closed conversations are
	// excluded.
	ListConversations(ctx context.Context, userID int64, skip, limit int, activeOnly bool) ([]domain.Conversation, error)

	UpdateConversationTitle(ctx context.Context, userID, conversationID int64, title string) (*domain.Conversation, error)

	// CloseConversation flips the active flag off (soft delete).
	CloseConversation(ctx context.Context, userID, conversationID int64) (*domain.Conversation, error)

	// DeleteConversation removes a conversation and all of its messages as
	// a single unit.
	DeleteConversation(ctx context.Context, userID, conversationID int64) (bool, error)

	// AddMessage appends a message and bumps the conversation's updated_at
	// in the same transaction. Returns (nil, nil) if the conversation does
	// not exist for this owner.
	AddMessage(ctx context.Context, mc domain.MessageCreate) (*domain.Message, error)

	// ListMessages returns a conversation's messages in chronological order.
	ListMessages(ctx context.Context, userID, conversationID int64, skip, limit int) ([]domain.Message, error)

	// RecentMessages returns the last limit messages in chronological order.
	RecentMessages(ctx context.Context, userID, conversationID int64, limit int) ([]domain.Message, error)

	// DeleteMessage removes a single message owned by the user.
	DeleteMessage(ctx context.Context, userID, messageID int64) (bool, error)
}

// UserStore persists registered accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, fullName, hashedPassword string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)
}

// Repository is the full persistence surface backed by one database.
type Repository interface {
	TaskStore
	ConversationStore
	UserStore

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
