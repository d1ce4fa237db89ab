package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/asuleiman/taskchat/internal/tools"
)

type stubRunner struct {
	calls []string
}

func (s *stubRunner) Execute(ctx context.Context, name string, params map[string]any) tools.Envelope {
	s.calls = append(s.calls, name)
	return tools.Envelope{
		Success: true,
		Message: "Task created successfully",
		Data:    map[string]any{"task_id": int64(1)},
	}
}

func completionResponse(t *testing.T, w http.ResponseWriter, message map[string]any, finishReason string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{
			{"index": 0, "finish_reason": finishReason, "message": message},
		},
	})
	if err != nil {
		t.Errorf("encode completion: %v", err)
	}
}

func TestCompletePlainReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		completionResponse(t, w, map[string]any{
			"role":    "assistant",
			"content": "You have 3 tasks.",
		}, "stop")
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Model: "test-model"})
	runner := &stubRunner{}

	result, err := c.Complete(context.Background(), Request{
		Instructions: "be helpful",
		History:      []Turn{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "reply"}},
		UserMessage:  "how many tasks do I have",
		Runner:       runner,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if result.Response != "You have 3 tasks." {
		t.Errorf("unexpected response: %q", result.Response)
	}
	if len(result.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(result.ToolCalls))
	}
	if len(runner.calls) != 0 {
		t.Errorf("runner must not run without tool calls, got %v", runner.calls)
	}
}

func TestCompleteToolRound(t *testing.T) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		requests = append(requests, body)

		if len(requests) == 1 {
			// Duplicated tool_call_id below mirrors a quirk some
			// compatibility endpoints exhibit.
			completionResponse(t, w, map[string]any{
				"role":    "assistant",
				"content": "",
				"tool_calls": []map[string]any{
					{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "add_task",
							"arguments": `{"title":"Buy milk","priority":"high"}`,
						},
					},
					{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "add_task",
							"arguments": `{"title":"Buy milk","priority":"high"}`,
						},
					},
				},
			}, "tool_calls")
			return
		}
		completionResponse(t, w, map[string]any{
			"role":    "assistant",
			"content": "Added 'Buy milk'.",
		}, "stop")
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Model: "test-model"})
	runner := &stubRunner{}

	result, err := c.Complete(context.Background(), Request{
		Instructions: "be helpful",
		UserMessage:  "add buy milk, high priority",
		Runner:       runner,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if result.Response != "Added 'Buy milk'." {
		t.Errorf("unexpected response: %q", result.Response)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("duplicate tool_call_id should execute once, got %d", len(result.ToolCalls))
	}
	call := result.ToolCalls[0]
	if call.Tool != "add_task" {
		t.Errorf("unexpected tool: %q", call.Tool)
	}
	if call.Parameters["title"] != "Buy milk" || call.Parameters["priority"] != "high" {
		t.Errorf("arguments not decoded: %v", call.Parameters)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "add_task" {
		t.Errorf("unexpected runner calls: %v", runner.calls)
	}

	if len(requests) != 2 {
		t.Fatalf("expected 2 upstream requests, got %d", len(requests))
	}

	// The second request must carry the tool result back to the model.
	messages := requests[1]["messages"].([]any)
	var toolMsg map[string]any
	for _, m := range messages {
		msg := m.(map[string]any)
		if msg["role"] == "tool" {
			toolMsg = msg
			break
		}
	}
	if toolMsg == nil {
		t.Fatal("second request should include a tool message")
	}
	if toolMsg["tool_call_id"] != "call_1" {
		t.Errorf("tool message should reference the call id, got %v", toolMsg["tool_call_id"])
	}

	// Tool definitions go out with every request.
	toolDefs := requests[0]["tools"].([]any)
	if len(toolDefs) != 6 {
		t.Errorf("expected 6 tool definitions, got %d", len(toolDefs))
	}
}

func TestCompleteRoundCap(t *testing.T) {
	var count int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		completionResponse(t, w, map[string]any{
			"role":    "assistant",
			"content": "",
			"tool_calls": []map[string]any{
				{
					"id":   "call_loop",
					"type": "function",
					"function": map[string]any{
						"name":      "list_tasks",
						"arguments": `{}`,
					},
				},
			},
		}, "tool_calls")
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Model: "test-model"})
	runner := &stubRunner{}

	result, err := c.Complete(context.Background(), Request{
		UserMessage: "loop forever",
		Runner:      runner,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if count != 6 {
		t.Errorf("expected the exchange capped at 6 rounds, got %d", count)
	}
	if result.Response != "" {
		t.Errorf("capped exchange should return an empty reply, got %q", result.Response)
	}
	if len(result.ToolCalls) != 6 {
		t.Errorf("expected one executed call per round, got %d", len(result.ToolCalls))
	}
}

func TestDecodeArguments(t *testing.T) {
	params := decodeArguments(`{"title":"x","task_id":3}`)
	if params["title"] != "x" || params["task_id"] != float64(3) {
		t.Errorf("unexpected params: %v", params)
	}

	if got := decodeArguments(""); len(got) != 0 {
		t.Errorf("empty arguments should decode to an empty map, got %v", got)
	}

	raw := decodeArguments(`{"broken`)
	if raw["raw"] != `{"broken` {
		t.Errorf("undecodable arguments should be preserved raw, got %v", raw)
	}
}
