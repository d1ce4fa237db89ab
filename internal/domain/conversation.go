package domain

import (
	"time"
)

// Message roles. A conversation turn stores exactly one of each.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a chat session grouping messages for one owner.
type Conversation struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Title     string         `json:"title,omitempty"`
	IsActive  bool           `json:"is_active"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ToolCall records one tool invocation the model requested during a turn.
type ToolCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// ToolResult records the outcome of one tool invocation. The i-th result
// corresponds to the i-th call of the same message.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// Message is one turn within a conversation. Immutable once written,
// except for explicit administrative deletion.
type Message struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	UserID         int64          `json:"user_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	ToolCalls      []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults    []ToolResult   `json:"tool_results,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MessageCreate carries the fields for appending a message to a conversation.
type MessageCreate struct {
	ConversationID int64
	UserID         int64
	Role           string
	Content        string
	ToolCalls      []ToolCall
	ToolResults    []ToolResult
	Metadata       map[string]any
}
