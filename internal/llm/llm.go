// Package llm provides the language-model capability used by the chat
// pipeline. Given instructions, bounded history, and a tool runner, it
// returns the model's final text plus the tool invocations it made.
package llm

import (
	"context"

	"github.com/asuleiman/taskchat/internal/tools"
)

// Turn is one prior message supplied as model context.
type Turn struct {
	Role    string
	Content string
}

// ToolRunner executes one named tool invocation synchronously.
type ToolRunner interface {
	Execute(ctx context.Context, name string, params map[string]any) tools.Envelope
}

// Request carries everything one model exchange needs.
type Request struct {
	Instructions string
	History      []Turn
	UserMessage  string
	Runner       ToolRunner
}

// ToolCall records one tool invocation made during an exchange, in order.
type ToolCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Result     any            `json:"result"`
}

// Result is the outcome of one exchange: the model's final natural-language
// reply (empty string when the model produced none) and the ordered tool
// calls it made.
type Result struct {
	Response  string
	ToolCalls []ToolCall
}

// Capability is the opaque model capability the orchestrator depends on.
// Implementations own any internal tool looping and must terminate in a
// finite number of tool calls.
type Capability interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}
