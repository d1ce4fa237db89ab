package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/asuleiman/taskchat/internal/domain"
	"github.com/asuleiman/taskchat/internal/llm"
	"github.com/asuleiman/taskchat/internal/store"
)

type fakeCapability struct {
	complete func(ctx context.Context, req llm.Request) (*llm.Result, error)
}

func (f *fakeCapability) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return f.complete(ctx, req)
}

func newTestOrchestrator(t *testing.T, capability llm.Capability) (*Orchestrator, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewOrchestrator(s, s, capability, nil), s
}

func TestProcessMessageSingleTurn(t *testing.T) {
	capability := &fakeCapability{
		complete: func(ctx context.Context, req llm.Request) (*llm.Result, error) {
			params := map[string]any{"title": "Buy milk"}
			env := req.Runner.Execute(ctx, "add_task", params)
			if !env.Success {
				t.Fatalf("tool execution failed: %+v", env)
			}
			return &llm.Result{
				Response:  "Added 'Buy milk' to your list.",
				ToolCalls: []llm.ToolCall{{Tool: "add_task", Parameters: params, Result: env}},
			}, nil
		},
	}
	o, s := newTestOrchestrator(t, capability)
	ctx := context.Background()

	resp, err := o.ProcessMessage(ctx, 1, Request{Message: "Please add buy milk to my list"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	if resp.ConversationID == 0 {
		t.Error("expected a conversation to be created")
	}
	if resp.Response != "Added 'Buy milk' to your list." {
		t.Errorf("unexpected response text: %q", resp.Response)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Tool != "add_task" {
		t.Fatalf("expected one add_task tool call, got %+v", resp.ToolCalls)
	}

	tasks, total, err := s.QueryTasks(ctx, 1, domain.TaskQuery{})
	if err != nil {
		t.Fatalf("QueryTasks failed: %v", err)
	}
	if total != 1 || tasks[0].Title != "Buy milk" {
		t.Fatalf("expected the task to exist, got %+v", tasks)
	}

	conv, err := s.GetConversation(ctx, 1, resp.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.Title != "Please add buy milk to my list" {
		t.Errorf("expected title from first message, got %q", conv.Title)
	}

	msgs, err := s.ListMessages(ctx, 1, resp.ConversationID, 0, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if len(msgs[0].ToolCalls) != 0 {
		t.Error("user message must carry no tool trace")
	}
	if len(msgs[1].ToolCalls) != 1 || len(msgs[1].ToolResults) != 1 {
		t.Errorf("assistant message should carry the tool trace, got %d calls / %d results",
			len(msgs[1].ToolCalls), len(msgs[1].ToolResults))
	}
	if msgs[1].ID != resp.MessageID {
		t.Errorf("response message id should point at the assistant message")
	}
}

func TestProcessMessageSequentialTurns(t *testing.T) {
	capability := &fakeCapability{
		complete: func(ctx context.Context, req llm.Request) (*llm.Result, error) {
			return &llm.Result{Response: "Noted."}, nil
		},
	}
	o, s := newTestOrchestrator(t, capability)
	ctx := context.Background()

	first, err := o.ProcessMessage(ctx, 1, Request{Message: "hello"})
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	afterFirst, err := s.GetConversation(ctx, 1, first.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	second, err := o.ProcessMessage(ctx, 1, Request{
		Message:        "are you there",
		ConversationID: first.ConversationID,
	})
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Error("second turn must reuse the conversation")
	}

	msgs, err := s.ListMessages(ctx, 1, first.ConversationID, 0, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	want := []string{"hello", "Noted.", "are you there", "Noted."}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, w := range want {
		if msgs[i].Content != w {
			t.Errorf("message %d: expected %q, got %q", i, w, msgs[i].Content)
		}
	}

	afterSecond, err := s.GetConversation(ctx, 1, first.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !afterSecond.UpdatedAt.After(afterFirst.UpdatedAt) {
		t.Error("conversation updated_at should strictly increase across turns")
	}

	// The title stays with the first message even after later turns.
	if afterSecond.Title != "hello" {
		t.Errorf("title should keep the first message, got %q", afterSecond.Title)
	}
}

func TestProcessMessageHistoryWindow(t *testing.T) {
	var gotHistory []llm.Turn
	capability := &fakeCapability{
		complete: func(ctx context.Context, req llm.Request) (*llm.Result, error) {
			gotHistory = req.History
			return &llm.Result{Response: "ok"}, nil
		},
	}
	o, _ := newTestOrchestrator(t, capability)
	ctx := context.Background()

	first, err := o.ProcessMessage(ctx, 1, Request{Message: "turn 1"})
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	for i := 2; i <= 8; i++ {
		if _, err := o.ProcessMessage(ctx, 1, Request{
			Message:        "another turn",
			ConversationID: first.ConversationID,
		}); err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
	}

	// 7 prior turns stored 14 messages; only the last 10 reach the model.
	if len(gotHistory) != 10 {
		t.Errorf("expected history capped at 10 messages, got %d", len(gotHistory))
	}
}

func TestProcessMessageUnknownConversation(t *testing.T) {
	capability := &fakeCapability{
		complete: func(ctx context.Context, req llm.Request) (*llm.Result, error) {
			t.Error("capability must not run for an unresolvable conversation")
			return &llm.Result{}, nil
		},
	}
	o, _ := newTestOrchestrator(t, capability)

	_, err := o.ProcessMessage(context.Background(), 1, Request{
		Message:        "hello",
		ConversationID: 999,
	})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestProcessMessageForeignConversation(t *testing.T) {
	capability := &fakeCapability{
		complete: func(ctx context.Context, req llm.Request) (*llm.Result, error) {
			t.Error("capability must not run for another owner's conversation")
			return &llm.Result{}, nil
		},
	}
	o, s := newTestOrchestrator(t, capability)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, 2, "theirs")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	_, err = o.ProcessMessage(ctx, 1, Request{Message: "hi", ConversationID: conv.ID})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestProcessMessageCapabilityError(t *testing.T) {
	capability := &fakeCapability{
		complete: func(ctx context.Context, req llm.Request) (*llm.Result, error) {
			return nil, errors.New("model unavailable")
		},
	}
	o, s := newTestOrchestrator(t, capability)
	ctx := context.Background()

	resp, err := o.ProcessMessage(ctx, 1, Request{Message: "hello"})
	if err == nil {
		t.Fatalf("expected error, got %+v", resp)
	}

	// The failed turn must not leave a dangling user message behind.
	convs, listErr := s.ListConversations(ctx, 1, 0, 0, false)
	if listErr != nil {
		t.Fatalf("ListConversations failed: %v", listErr)
	}
	for _, conv := range convs {
		msgs, msgErr := s.ListMessages(ctx, 1, conv.ID, 0, 0)
		if msgErr != nil {
			t.Fatalf("ListMessages failed: %v", msgErr)
		}
		if len(msgs) != 0 {
			t.Errorf("expected no persisted messages after a failed turn, got %d", len(msgs))
		}
	}
}

func TestTitlePrefix(t *testing.T) {
	if got := titlePrefix("  short  "); got != "short" {
		t.Errorf("expected trimmed title, got %q", got)
	}

	long := strings.Repeat("ab", 40)
	if got := titlePrefix(long); len([]rune(got)) != 50 {
		t.Errorf("expected 50-rune prefix, got %d", len([]rune(got)))
	}

	wide := strings.Repeat("日", 60)
	if got := titlePrefix(wide); len([]rune(got)) != 50 {
		t.Errorf("expected rune-safe truncation, got %d runes", len([]rune(got)))
	}
}

func TestBuildInstructions(t *testing.T) {
	stats := &domain.TaskStatistics{Total: 5, Completed: 2, Pending: 3, HighPriority: 1}

	instructions := buildInstructions(stats)

	if !strings.Contains(instructions, "add_task") {
		t.Error("instructions should name the tool vocabulary")
	}
	if !strings.Contains(instructions, "Total tasks: 5") {
		t.Error("instructions should include the task summary")
	}
	if !strings.Contains(instructions, "High priority: 1") {
		t.Error("instructions should include nonzero rollups")
	}
	if strings.Contains(instructions, "Overdue") {
		t.Error("zero rollups should be omitted")
	}
}

func TestNormalizeToolCalls(t *testing.T) {
	calls := []llm.ToolCall{
		{Tool: "", Parameters: map[string]any{"title": "dropped"}},
		{Tool: "add_task", Parameters: nil},
		{Tool: "add_task", Parameters: map[string]any{
			"title": "plain string stays",
			"tags":  `["work", "errand"]`,
			"bad":   `{"unterminated`,
		}},
	}

	out := normalizeToolCalls(calls)

	if len(out) != 2 {
		t.Fatalf("expected empty-name call dropped, got %d", len(out))
	}
	if out[0].Parameters == nil {
		t.Error("nil parameters should become an empty map")
	}

	params := out[1].Parameters
	if params["title"] != "plain string stays" {
		t.Errorf("plain strings must pass through, got %v", params["title"])
	}
	tags, isList := params["tags"].([]any)
	if !isList || len(tags) != 2 || tags[0] != "work" {
		t.Errorf("JSON-encoded array should be decoded, got %v", params["tags"])
	}
	if params["bad"] != `{"unterminated` {
		t.Errorf("undecodable values must stay raw, got %v", params["bad"])
	}
}
