package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/asuleiman/taskchat/internal/domain"
	"github.com/asuleiman/taskchat/internal/tools"
)

// maxToolRounds caps the number of tool-use iterations per exchange.
const maxToolRounds = 6

// Config holds model client configuration. BaseURL may point at any
// OpenAI-compatible endpoint (Gemini's compatibility endpoint, OpenRouter,
// or OpenAI itself).
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client implements Capability against an OpenAI-compatible chat
// completions API with native function calling.
type Client struct {
	api   openai.Client
	model openai.ChatModel
}

// NewClient creates a model client from config.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Client{
		api:   openai.NewClient(opts...),
		model: openai.ChatModel(cfg.Model),
	}
}

// Complete runs one bounded exchange: the model may request tool calls,
// each is executed synchronously through req.Runner and fed back, until the
// model answers in plain text or the round cap is reached.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	messages = append(messages, openai.SystemMessage(req.Instructions))
	for _, turn := range req.History {
		switch turn.Role {
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		case domain.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	result := &Result{}
	for round := 0; round < maxToolRounds; round++ {
		resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    c.model,
			Messages: messages,
			Tools:    toolDefinitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("chat completion: empty choices")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			result.Response = msg.Content
			return result, nil
		}

		messages = append(messages, msg.ToParam())

		// Some models repeat the same tool_call_id within one response.
		seen := make(map[string]bool, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			if seen[tc.ID] {
				continue
			}
			seen[tc.ID] = true

			params := decodeArguments(tc.Function.Arguments)
			slog.Info("tool call", "tool", tc.Function.Name, "round", round)

			envelope := req.Runner.Execute(ctx, tc.Function.Name, params)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				Tool:       tc.Function.Name,
				Parameters: params,
				Result:     envelope,
			})

			payload, err := json.Marshal(envelope)
			if err != nil {
				payload = []byte(`{"success":false,"error":"Internal error"}`)
			}
			messages = append(messages, openai.ToolMessage(string(payload), tc.ID))
		}
	}

	// Round cap reached with tool calls still pending: return what we have
	// with an empty reply rather than failing the turn.
	return result, nil
}

// decodeArguments parses the model's JSON argument string. An undecodable
// payload is preserved raw so the trace stays diagnosable.
func decodeArguments(arguments string) map[string]any {
	params := map[string]any{}
	if arguments == "" {
		return params
	}
	if err := json.Unmarshal([]byte(arguments), &params); err != nil {
		return map[string]any{"raw": arguments}
	}
	return params
}

func toolDefinitions() []openai.ChatCompletionToolUnionParam {
	fn := func(name tools.Name, description string, props map[string]any, required []string) openai.ChatCompletionToolUnionParam {
		if required == nil {
			required = []string{}
		}
		return openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        string(name),
			Description: openai.String(description),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	str := func(description string) map[string]any {
		return map[string]any{"type": "string", "description": description}
	}
	integer := func(description string) map[string]any {
		return map[string]any{"type": "integer", "description": description}
	}

	return []openai.ChatCompletionToolUnionParam{
		fn(tools.AddTask, "Add a new task for the user.", map[string]any{
			"title":       str("The title of the task"),
			"description": str("The description of the task"),
			"priority":    str("The priority level: low, medium, or high"),
			"tags":        str("Comma-separated tags"),
			"due_date":    str("Due date in ISO format"),
		}, []string{"title"}),
		fn(tools.ListTasks, "List the user's tasks with optional filtering.", map[string]any{
			"skip":      integer("Number of tasks to skip"),
			"limit":     integer("Maximum number of tasks to return"),
			"search":    str("Search query over title and description"),
			"priority":  str("Filter by priority: low, medium, or high"),
			"completed": str("Filter by completion status: true or false"),
		}, nil),
		fn(tools.CompleteTask, "Mark a task as complete.", map[string]any{
			"task_id": integer("The ID of the task to mark as complete"),
		}, []string{"task_id"}),
		fn(tools.DeleteTask, "Delete a task.", map[string]any{
			"task_id": integer("The ID of the task to delete"),
		}, []string{"task_id"}),
		fn(tools.UpdateTask, "Update a task's fields.", map[string]any{
			"task_id":     integer("The ID of the task to update"),
			"title":       str("New title"),
			"description": str("New description"),
			"priority":    str("New priority level: low, medium, or high"),
			"completed":   str("New completion status: true or false"),
		}, []string{"task_id"}),
		fn(tools.GetTask, "Get a specific task.", map[string]any{
			"task_id": integer("The ID of the task to retrieve"),
		}, []string{"task_id"}),
	}
}
