package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/asuleiman/taskchat/internal/domain"
	"github.com/asuleiman/taskchat/internal/store"
)

func newTestExecutor(t *testing.T, userID int64) (*Executor, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewExecutor(s, userID), s
}

// untouchableStore fails the test if any store method is reached.
type untouchableStore struct {
	t *testing.T
}

func (u untouchableStore) fail(method string) {
	u.t.Errorf("store method %s must not be called", method)
}

func (u untouchableStore) CreateTask(context.Context, int64, domain.TaskCreate) (*domain.Task, error) {
	u.fail("CreateTask")
	return nil, nil
}
func (u untouchableStore) GetTask(context.Context, int64, int64) (*domain.Task, error) {
	u.fail("GetTask")
	return nil, nil
}
func (u untouchableStore) UpdateTask(context.Context, int64, int64, domain.TaskUpdate) (*domain.Task, error) {
	u.fail("UpdateTask")
	return nil, nil
}
func (u untouchableStore) DeleteTask(context.Context, int64, int64) (bool, error) {
	u.fail("DeleteTask")
	return false, nil
}
func (u untouchableStore) SetTaskCompleted(context.Context, int64, int64, bool) (*domain.Task, error) {
	u.fail("SetTaskCompleted")
	return nil, nil
}
func (u untouchableStore) QueryTasks(context.Context, int64, domain.TaskQuery) ([]domain.Task, int, error) {
	u.fail("QueryTasks")
	return nil, 0, nil
}
func (u untouchableStore) TaskStatistics(context.Context, int64) (*domain.TaskStatistics, error) {
	u.fail("TaskStatistics")
	return nil, nil
}
func (u untouchableStore) TaskTags(context.Context, int64) ([]domain.TagCount, error) {
	u.fail("TaskTags")
	return nil, nil
}

func TestExecuteUnknownTool(t *testing.T) {
	e := NewExecutor(untouchableStore{t: t}, 1)

	env := e.Execute(context.Background(), "unknownTool", nil)

	if env.Success {
		t.Error("unknown tool must not succeed")
	}
	if env.Error != "Unknown tool: unknownTool" {
		t.Errorf("unexpected error text: %q", env.Error)
	}
	if env.Message != "Tool 'unknownTool' is not available" {
		t.Errorf("unexpected message text: %q", env.Message)
	}
}

func TestAddTaskMissingTitle(t *testing.T) {
	e := NewExecutor(untouchableStore{t: t}, 1)

	env := e.Execute(context.Background(), "add_task", map[string]any{"description": "no title"})

	if env.Success {
		t.Error("expected failure without title")
	}
	if env.Error != "Missing required field: title" {
		t.Errorf("unexpected error text: %q", env.Error)
	}
}

func TestAddTaskInvalidPriority(t *testing.T) {
	e := NewExecutor(untouchableStore{t: t}, 1)

	env := e.Execute(context.Background(), "add_task", map[string]any{
		"title":    "x",
		"priority": "urgent",
	})

	if env.Success || env.Error != "Invalid priority level" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestAddTaskTagsForms(t *testing.T) {
	e, s := newTestExecutor(t, 1)
	ctx := context.Background()

	fromList := e.Execute(ctx, "add_task", map[string]any{
		"title": "array tags",
		"tags":  []any{"work", " urgent "},
	})
	if !fromList.Success {
		t.Fatalf("add_task failed: %+v", fromList)
	}

	fromCSV := e.Execute(ctx, "add_task", map[string]any{
		"title": "csv tags",
		"tags":  "home, errand",
	})
	if !fromCSV.Success {
		t.Fatalf("add_task failed: %+v", fromCSV)
	}

	tasks, _, err := s.QueryTasks(ctx, 1, domain.TaskQuery{})
	if err != nil {
		t.Fatalf("QueryTasks failed: %v", err)
	}
	byTitle := map[string][]string{}
	for _, task := range tasks {
		byTitle[task.Title] = task.Tags
	}
	if got := byTitle["array tags"]; len(got) != 2 || got[0] != "work" || got[1] != "urgent" {
		t.Errorf("array tags not normalized: %v", got)
	}
	if got := byTitle["csv tags"]; len(got) != 2 || got[0] != "home" || got[1] != "errand" {
		t.Errorf("csv tags not split: %v", got)
	}
}

func TestCompleteTaskNotFound(t *testing.T) {
	e, _ := newTestExecutor(t, 1)

	env := e.Execute(context.Background(), "complete_task", map[string]any{"task_id": float64(42)})

	if env.Success {
		t.Error("expected failure for missing task")
	}
	if env.Error != "Task not found" {
		t.Errorf("unexpected error text: %q", env.Error)
	}
	if env.Message != "Could not find the specified task" {
		t.Errorf("unexpected message text: %q", env.Message)
	}
}

func TestCompleteTaskMissingID(t *testing.T) {
	e := NewExecutor(untouchableStore{t: t}, 1)

	env := e.Execute(context.Background(), "complete_task", map[string]any{})

	if env.Success || env.Error != "Missing required field: task_id" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestUpdateTaskNoFields(t *testing.T) {
	e := NewExecutor(untouchableStore{t: t}, 1)

	// Empty optional parameters count as absent, so nothing remains to apply.
	env := e.Execute(context.Background(), "update_task", map[string]any{
		"task_id":     float64(1),
		"title":       "",
		"description": "",
	})

	if env.Success {
		t.Error("expected failure with no updatable fields")
	}
	if env.Error != "No fields to update" {
		t.Errorf("unexpected error text: %q", env.Error)
	}
	if env.Message != "At least one field must be updated" {
		t.Errorf("unexpected message text: %q", env.Message)
	}
}

func TestToolRoundTrip(t *testing.T) {
	e, _ := newTestExecutor(t, 1)
	ctx := context.Background()

	created := e.Execute(ctx, "add_task", map[string]any{
		"title":    "Buy milk",
		"priority": "high",
		"due_date": "2026-09-15",
	})
	if !created.Success {
		t.Fatalf("add_task failed: %+v", created)
	}
	taskID, isID := created.Data["task_id"].(int64)
	if !isID || taskID == 0 {
		t.Fatalf("expected task_id in payload, got %+v", created.Data)
	}

	updated := e.Execute(ctx, "update_task", map[string]any{
		"task_id":  float64(taskID),
		"priority": "low",
	})
	if !updated.Success {
		t.Fatalf("update_task failed: %+v", updated)
	}

	got := e.Execute(ctx, "get_task", map[string]any{"task_id": float64(taskID)})
	if !got.Success {
		t.Fatalf("get_task failed: %+v", got)
	}
	task, isTask := got.Data["task"].(*domain.Task)
	if !isTask {
		t.Fatalf("expected task payload, got %T", got.Data["task"])
	}
	if task.Priority != domain.PriorityLow {
		t.Errorf("expected updated priority low, got %s", task.Priority)
	}
	if task.DueDate == nil {
		t.Error("due_date should survive the update")
	}

	completed := e.Execute(ctx, "complete_task", map[string]any{"task_id": float64(taskID)})
	if !completed.Success {
		t.Fatalf("complete_task failed: %+v", completed)
	}

	listed := e.Execute(ctx, "list_tasks", map[string]any{"completed": true})
	if !listed.Success {
		t.Fatalf("list_tasks failed: %+v", listed)
	}
	if total := listed.Data["total"].(int); total != 1 {
		t.Errorf("expected 1 completed task, got %d", total)
	}

	deleted := e.Execute(ctx, "delete_task", map[string]any{"task_id": float64(taskID)})
	if !deleted.Success {
		t.Fatalf("delete_task failed: %+v", deleted)
	}

	gone := e.Execute(ctx, "get_task", map[string]any{"task_id": float64(taskID)})
	if gone.Success || gone.Error != "Task not found" {
		t.Errorf("expected task to be gone, got %+v", gone)
	}
}

func TestEnvelopeMarshalFlat(t *testing.T) {
	env := ok("Task created successfully", map[string]any{"task_id": int64(7)})

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out["success"] != true {
		t.Errorf("expected success true, got %v", out["success"])
	}
	if out["task_id"] != float64(7) {
		t.Errorf("payload should be flattened to the top level, got %v", out)
	}
	if _, nested := out["Data"]; nested {
		t.Error("payload must not nest under a Data key")
	}
	if _, present := out["error"]; present {
		t.Error("empty error must be omitted")
	}

	failRaw, err := json.Marshal(fail("Task not found", "Could not find the specified task"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var failOut map[string]any
	if err := json.Unmarshal(failRaw, &failOut); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if failOut["success"] != false || failOut["error"] != "Task not found" {
		t.Errorf("unexpected failure envelope: %v", failOut)
	}
}
