// Package chat implements the conversational task pipeline: one user
// utterance in, zero or more validated task operations, a natural-language
// reply, and a durable conversation record out.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/asuleiman/taskchat/internal/domain"
	"github.com/asuleiman/taskchat/internal/llm"
	"github.com/asuleiman/taskchat/internal/store"
	"github.com/asuleiman/taskchat/internal/tools"
)

const (
	// recentMessageWindow is the number of prior messages given to the
	// model as context.
	recentMessageWindow = 10

	// titleMaxLen bounds the auto-assigned conversation title, taken from
	// the first user message.
	titleMaxLen = 50
)

// ErrConversationNotFound is returned when an explicitly supplied
// conversation id does not resolve for the caller. A fresh conversation is
// never silently substituted for an explicit id.
var ErrConversationNotFound = errors.New("conversation not found")

// Request is one chat turn from the user.
type Request struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

// Response is the structured result of one chat turn.
type Response struct {
	ConversationID int64          `json:"conversation_id"`
	MessageID      int64          `json:"message_id"`
	Response       string         `json:"response"`
	ToolCalls      []llm.ToolCall `json:"tool_calls"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Orchestrator is the chat entry point. It never mutates task or message
// storage directly: task mutation goes through the tool executor, message
// persistence through the conversation store.
type Orchestrator struct {
	tasks         store.TaskStore
	conversations store.ConversationStore
	capability    llm.Capability
	auditLog      *AuditLogger
}

// NewOrchestrator wires the chat pipeline. auditLog may be nil.
func NewOrchestrator(tasks store.TaskStore, conversations store.ConversationStore, capability llm.Capability, auditLog *AuditLogger) *Orchestrator {
	return &Orchestrator{
		tasks:         tasks,
		conversations: conversations,
		capability:    capability,
		auditLog:      auditLog,
	}
}

// ProcessMessage runs one chat turn for the given owner.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID int64, req Request) (*Response, error) {
	conv, err := o.resolveConversation(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	if conv.Title == "" {
		titled, err := o.conversations.UpdateConversationTitle(ctx, userID, conv.ID, titlePrefix(req.Message))
		if err != nil {
			return nil, fmt.Errorf("assign conversation title: %w", err)
		}
		if titled != nil {
			conv = titled
		}
	}

	recent, err := o.conversations.RecentMessages(ctx, userID, conv.ID, recentMessageWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	stats, err := o.tasks.TaskStatistics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load task statistics: %w", err)
	}

	history := make([]llm.Turn, 0, len(recent))
	for _, m := range recent {
		history = append(history, llm.Turn{Role: m.Role, Content: m.Content})
	}

	result, err := o.capability.Complete(ctx, llm.Request{
		Instructions: buildInstructions(stats),
		History:      history,
		UserMessage:  req.Message,
		Runner:       tools.NewExecutor(o.tasks, userID),
	})
	if err != nil {
		return nil, fmt.Errorf("model capability: %w", err)
	}

	toolCalls := normalizeToolCalls(result.ToolCalls)

	callTrace := make([]domain.ToolCall, 0, len(toolCalls))
	resultTrace := make([]domain.ToolResult, 0, len(toolCalls))
	for _, tc := range toolCalls {
		callTrace = append(callTrace, domain.ToolCall{Tool: tc.Tool, Parameters: tc.Parameters})
		resultTrace = append(resultTrace, domain.ToolResult{Tool: tc.Tool, Result: tc.Result})
	}

	if _, err := o.conversations.AddMessage(ctx, domain.MessageCreate{
		ConversationID: conv.ID,
		UserID:         userID,
		Role:           domain.RoleUser,
		Content:        req.Message,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	assistantMsg, err := o.conversations.AddMessage(ctx, domain.MessageCreate{
		ConversationID: conv.ID,
		UserID:         userID,
		Role:           domain.RoleAssistant,
		Content:        result.Response,
		ToolCalls:      callTrace,
		ToolResults:    resultTrace,
	})
	if err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}
	if assistantMsg == nil {
		return nil, fmt.Errorf("persist assistant message: conversation vanished mid-turn")
	}

	o.audit(userID, conv.ID, domain.RoleUser, req.Message, 0)
	o.audit(userID, conv.ID, domain.RoleAssistant, result.Response, len(toolCalls))

	slog.Info("chat turn complete",
		"user_id", userID,
		"conversation_id", conv.ID,
		"tool_calls", len(toolCalls),
	)

	return &Response{
		ConversationID: conv.ID,
		MessageID:      assistantMsg.ID,
		Response:       result.Response,
		ToolCalls:      toolCalls,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, userID, conversationID int64) (*domain.Conversation, error) {
	if conversationID != 0 {
		conv, err := o.conversations.GetConversation(ctx, userID, conversationID)
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		if conv == nil {
			return nil, ErrConversationNotFound
		}
		return conv, nil
	}

	conv, err := o.conversations.CreateConversation(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (o *Orchestrator) audit(userID, conversationID int64, role, content string, toolCount int) {
	if o.auditLog == nil {
		return
	}
	o.auditLog.Log(AuditEvent{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ToolCount:      toolCount,
	})
}

func titlePrefix(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) > titleMaxLen {
		runes = runes[:titleMaxLen]
	}
	return string(runes)
}

func buildInstructions(stats *domain.TaskStatistics) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI assistant for managing tasks.\n")
	b.WriteString("You have access to tools: add_task, list_tasks, complete_task, delete_task, update_task, get_task.\n")
	b.WriteString("Respond friendly, confirm actions, ask for clarification if needed, include due dates if available.")

	if stats == nil {
		return b.String()
	}
	b.WriteString("\n\nCurrent user task summary:\n")
	fmt.Fprintf(&b, "- Total tasks: %d\n", stats.Total)
	fmt.Fprintf(&b, "- Completed: %d\n", stats.Completed)
	fmt.Fprintf(&b, "- Pending: %d\n", stats.Pending)
	if stats.HighPriority > 0 {
		fmt.Fprintf(&b, "- High priority: %d\n", stats.HighPriority)
	}
	if stats.DueToday > 0 {
		fmt.Fprintf(&b, "- Due today: %d\n", stats.DueToday)
	}
	if stats.Overdue > 0 {
		fmt.Fprintf(&b, "- Overdue: %d\n", stats.Overdue)
	}
	return b.String()
}

// normalizeToolCalls keeps only structurally valid records and
// opportunistically decodes parameter values that arrived as JSON-encoded
// strings. Decoding is strictly best-effort: failures leave the original
// string in place. This leniency is confined to this boundary.
func normalizeToolCalls(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.Tool == "" {
			continue
		}
		if call.Parameters == nil {
			call.Parameters = map[string]any{}
		}
		for key, value := range call.Parameters {
			s, isStr := value.(string)
			if !isStr {
				continue
			}
			trimmed := strings.TrimSpace(s)
			if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
				continue
			}
			if !gjson.Valid(trimmed) {
				continue
			}
			call.Parameters[key] = gjson.Parse(trimmed).Value()
		}
		out = append(out, call)
	}
	return out
}
