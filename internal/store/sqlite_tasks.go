package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asuleiman/taskchat/internal/domain"
)

const taskColumns = `id, user_id, title, description, completed, priority, tags_json, due_date, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*domain.Task, error) {
	var t domain.Task
	var completed int
	var tagsJSON string
	var due sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &completed,
		&t.Priority, &tagsJSON, &due, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan task row: %w", err)
	}

	t.Completed = completed != 0
	t.Tags = []string{}
	if err := decodeJSON(tagsJSON, &t.Tags); err != nil {
		return nil, err
	}
	if due.Valid {
		d := nsToTime(due.Int64)
		t.DueDate = &d
	}
	t.CreatedAt = nsToTime(createdAt)
	t.UpdatedAt = nsToTime(updatedAt)
	return &t, nil
}

// CreateTask validates and inserts a new task for the owner.
func (s *SQLiteStore) CreateTask(ctx context.Context, userID int64, tc domain.TaskCreate) (*domain.Task, error) {
	if tc.Priority == "" {
		tc.Priority = domain.PriorityMedium
	}
	if err := domain.ValidateTaskCreate(tc); err != nil {
		return nil, err
	}

	tagsJSON, err := encodeJSON(tc.Tags, "[]")
	if err != nil {
		return nil, err
	}

	var due any
	if tc.DueDate != nil {
		due = tc.DueDate.UnixNano()
	}
	now := time.Now().UnixNano()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (user_id, title, description, completed, priority, tags_json, due_date, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		userID, tc.Title, tc.Description, string(tc.Priority), tagsJSON, due, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task insert id: %w", err)
	}
	return s.GetTask(ctx, userID, id)
}

// GetTask retrieves one task by id, scoped to the owner.
func (s *SQLiteStore) GetTask(ctx context.Context, userID, taskID int64) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`,
		taskID, userID,
	)
	return scanTask(row)
}

// UpdateTask applies a partial update: only supplied fields change.
func (s *SQLiteStore) UpdateTask(ctx context.Context, userID, taskID int64, u domain.TaskUpdate) (*domain.Task, error) {
	if u.IsZero() {
		// No fields supplied: updated_at is deliberately left untouched.
		return s.GetTask(ctx, userID, taskID)
	}

	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)

	if u.Title != nil {
		if *u.Title == "" {
			return nil, &domain.ValidationError{Field: "title", Reason: "must not be empty"}
		}
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, boolToInt(*u.Completed))
	}
	if u.Priority != nil {
		if !u.Priority.Valid() {
			return nil, &domain.ValidationError{Field: "priority", Reason: "must be 'low', 'medium', or 'high'"}
		}
		sets = append(sets, "priority = ?")
		args = append(args, string(*u.Priority))
	}
	if u.Tags != nil {
		tagsJSON, err := encodeJSON(*u.Tags, "[]")
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags_json = ?")
		args = append(args, tagsJSON)
	}
	if u.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, u.DueDate.UnixNano())
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UnixNano())
	args = append(args, taskID, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update task rows: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetTask(ctx, userID, taskID)
}

// DeleteTask removes a task, reporting whether a record existed.
func (s *SQLiteStore) DeleteTask(ctx context.Context, userID, taskID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task rows: %w", err)
	}
	return n > 0, nil
}

// SetTaskCompleted flips the completion flag with a direct minimal-field
// write so concurrent edits of other fields are never overwritten.
func (s *SQLiteStore) SetTaskCompleted(ctx context.Context, userID, taskID int64, completed bool) (*domain.Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		boolToInt(completed), time.Now().UnixNano(), taskID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("set task completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set task completed rows: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetTask(ctx, userID, taskID)
}

// QueryTasks returns one page of the filtered task set plus the size of the
// complete filtered set. Tag filtering and priority sorting reorder the full
// set in memory, so pagination is always the final step on those paths.
func (s *SQLiteStore) QueryTasks(ctx context.Context, userID int64, q domain.TaskQuery) ([]domain.Task, int, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	if q.SortBy == "" {
		q.SortBy = domain.SortByCreatedAt
	}

	where := []string{"user_id = ?"}
	args := []any{userID}
	if q.Search != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		pattern := "%" + strings.ToLower(q.Search) + "%"
		args = append(args, pattern, pattern)
	}
	if q.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, string(*q.Priority))
	}
	if q.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, boolToInt(*q.Completed))
	}
	whereClause := strings.Join(where, " AND ")

	// Tag membership and priority rank are computed in Go, so those paths
	// materialize the full filtered set before sorting and paginating.
	inMemory := q.Tag != "" || q.SortBy == domain.SortByPriority
	if !inMemory {
		return s.queryTasksSQL(ctx, whereClause, args, q)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+whereClause+` ORDER BY created_at ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	if q.Tag != "" {
		tasks = filterByTag(tasks, q.Tag)
	}
	sortTasks(tasks, q.SortBy, q.SortDesc)

	total := len(tasks)
	return paginate(tasks, q.Skip, q.Limit), total, nil
}

func (s *SQLiteStore) queryTasksSQL(ctx context.Context, whereClause string, args []any, q domain.TaskQuery) ([]domain.Task, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE `+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	col := "created_at"
	switch q.SortBy {
	case domain.SortByDueDate:
		col = "due_date"
	case domain.SortByTitle:
		col = "title"
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}

	pageArgs := append(append([]any{}, args...), q.Limit, q.Skip)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+whereClause+
			` ORDER BY `+col+` `+dir+`, id `+dir+` LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, total, nil
}

func filterByTag(tasks []domain.Task, tag string) []domain.Task {
	want := strings.ToLower(tag)
	out := tasks[:0]
	for _, t := range tasks {
		for _, have := range t.Tags {
			if strings.ToLower(have) == want {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func sortTasks(tasks []domain.Task, sortBy string, desc bool) {
	less := func(a, b domain.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch sortBy {
	case domain.SortByPriority:
		less = func(a, b domain.Task) bool { return a.Priority.Rank() < b.Priority.Rank() }
	case domain.SortByDueDate:
		less = func(a, b domain.Task) bool {
			if a.DueDate == nil || b.DueDate == nil {
				return b.DueDate != nil
			}
			return a.DueDate.Before(*b.DueDate)
		}
	case domain.SortByTitle:
		less = func(a, b domain.Task) bool { return a.Title < b.Title }
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if desc {
			return less(tasks[j], tasks[i])
		}
		return less(tasks[i], tasks[j])
	})
}

func paginate(tasks []domain.Task, skip, limit int) []domain.Task {
	if skip >= len(tasks) {
		return []domain.Task{}
	}
	end := skip + limit
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[skip:end]
}

// TaskStatistics computes the aggregate snapshot from all of the owner's
// tasks at the time of the call. "Pending" rollups count completed=false only.
func (s *SQLiteStore) TaskStatistics(ctx context.Context, userID int64) (*domain.TaskStatistics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT completed, priority, due_date FROM tasks WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query task statistics: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	weekEnd := now.Add(7 * 24 * time.Hour)

	stats := &domain.TaskStatistics{}
	for rows.Next() {
		var completed int
		var priority string
		var due sql.NullInt64
		if err := rows.Scan(&completed, &priority, &due); err != nil {
			return nil, fmt.Errorf("scan task statistics row: %w", err)
		}

		stats.Total++
		if completed != 0 {
			stats.Completed++
			continue
		}
		stats.Pending++
		if priority == string(domain.PriorityHigh) {
			stats.HighPriority++
		}
		if !due.Valid {
			continue
		}
		d := nsToTime(due.Int64)
		if d.Before(now) {
			stats.Overdue++
		}
		if !d.Before(dayStart) && d.Before(dayEnd) {
			stats.DueToday++
		}
		if !d.Before(now) && !d.After(weekEnd) {
			stats.DueThisWeek++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task statistics: %w", err)
	}

	if stats.Total > 0 {
		stats.CompletionPercentage = stats.Completed * 100 / stats.Total
	}
	return stats, nil
}

// TaskTags returns every distinct case-folded tag with its usage count,
// sorted by descending count (name ascending on ties).
func (s *SQLiteStore) TaskTags(ctx context.Context, userID int64) ([]domain.TagCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tags_json FROM tasks WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query task tags: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var tagsJSON string
		if err := rows.Scan(&tagsJSON); err != nil {
			return nil, fmt.Errorf("scan task tags row: %w", err)
		}
		var tags []string
		if err := decodeJSON(tagsJSON, &tags); err != nil {
			return nil, err
		}
		for _, tag := range tags {
			counts[strings.ToLower(tag)]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task tags: %w", err)
	}

	out := make([]domain.TagCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, domain.TagCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
