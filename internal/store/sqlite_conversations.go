package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asuleiman/taskchat/internal/domain"
	"github.com/asuleiman/taskchat/internal/shared"
)

const conversationColumns = `id, user_id, title, is_active, metadata_json, created_at, updated_at`
const messageColumns = `id, conversation_id, user_id, role, content, tool_calls_json, tool_results_json, metadata_json, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*domain.Conversation, error) {
	var c domain.Conversation
	var active int
	var metadataJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&c.ID, &c.UserID, &c.Title, &active, &metadataJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}

	c.IsActive = active != 0
	if metadataJSON != "{}" {
		if err := decodeJSON(metadataJSON, &c.Metadata); err != nil {
			return nil, err
		}
	}
	c.CreatedAt = nsToTime(createdAt)
	c.UpdatedAt = nsToTime(updatedAt)
	return &c, nil
}

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var m domain.Message
	var toolCallsJSON, toolResultsJSON, metadataJSON string
	var createdAt int64

	err := row.Scan(
		&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content,
		&toolCallsJSON, &toolResultsJSON, &metadataJSON, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}

	if err := decodeJSON(toolCallsJSON, &m.ToolCalls); err != nil {
		return nil, err
	}
	if err := decodeJSON(toolResultsJSON, &m.ToolResults); err != nil {
		return nil, err
	}
	if metadataJSON != "{}" {
		if err := decodeJSON(metadataJSON, &m.Metadata); err != nil {
			return nil, err
		}
	}
	m.CreatedAt = nsToTime(createdAt)
	return &m, nil
}

// CreateConversation creates a new active conversation for the owner.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userID int64, title string) (*domain.Conversation, error) {
	now := time.Now().UnixNano()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, title, is_active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)`,
		userID, title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation insert id: %w", err)
	}
	return s.GetConversation(ctx, userID, id)
}

// GetConversation retrieves a conversation by id, scoped to the owner.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID, conversationID int64) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	)
	return scanConversation(row)
}

// ListConversations returns the owner's conversations, most recently
// updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64, skip, limit int, activeOnly bool) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []domain.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// UpdateConversationTitle sets the title and bumps updated_at.
func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, userID, conversationID int64, title string) (*domain.Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, time.Now().UnixNano(), conversationID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update conversation title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update conversation title rows: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetConversation(ctx, userID, conversationID)
}

// CloseConversation flips the active flag off (soft delete).
func (s *SQLiteStore) CloseConversation(ctx context.Context, userID, conversationID int64) (*domain.Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_active = 0, updated_at = ? WHERE id = ? AND user_id = ?`,
		time.Now().UnixNano(), conversationID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("close conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("close conversation rows: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetConversation(ctx, userID, conversationID)
}

// DeleteConversation removes a conversation and all of its messages as a
// single transaction.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, userID, conversationID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete conversation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete conversation rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, conversationID,
	); err != nil {
		return false, fmt.Errorf("delete conversation messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete conversation: %w", err)
	}
	return true, nil
}

// AddMessage appends a message after verifying conversation ownership, and
// bumps the conversation's updated_at in the same transaction. Retries once
// on SQLite write contention.
func (s *SQLiteStore) AddMessage(ctx context.Context, mc domain.MessageCreate) (*domain.Message, error) {
	msg, err := s.addMessage(ctx, mc)
	if shared.IsSQLiteConflictError(err) {
		msg, err = s.addMessage(ctx, mc)
	}
	return msg, err
}

func (s *SQLiteStore) addMessage(ctx context.Context, mc domain.MessageCreate) (*domain.Message, error) {
	toolCallsJSON, err := encodeJSON(mc.ToolCalls, "[]")
	if err != nil {
		return nil, err
	}
	toolResultsJSON, err := encodeJSON(mc.ToolResults, "[]")
	if err != nil {
		return nil, err
	}
	metadataJSON, err := encodeJSON(mc.Metadata, "{}")
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add message: %w", err)
	}
	defer tx.Rollback()

	var convID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE id = ? AND user_id = ?`,
		mc.ConversationID, mc.UserID,
	).Scan(&convID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify conversation: %w", err)
	}

	now := time.Now().UnixNano()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, user_id, role, content, tool_calls_json, tool_results_json, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mc.ConversationID, mc.UserID, mc.Role, mc.Content,
		toolCallsJSON, toolResultsJSON, metadataJSON, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	msgID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		now, mc.ConversationID,
	); err != nil {
		return nil, fmt.Errorf("bump conversation updated_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add message: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, msgID)
	return scanMessage(row)
}

// ListMessages returns a conversation's messages in chronological order.
// Returns an empty slice when the conversation is not owned by the user.
func (s *SQLiteStore) ListMessages(ctx context.Context, userID, conversationID int64, skip, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []domain.Message{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`,
		conversationID, limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// RecentMessages returns the last limit messages, still in chronological
// order, for use as model context.
func (s *SQLiteStore) RecentMessages(ctx context.Context, userID, conversationID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []domain.Message{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteMessage removes a single message owned by the user. Administrative
// path only; the chat pipeline never rewrites messages.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, userID, messageID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ? AND user_id = ?`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete message rows: %w", err)
	}
	return n > 0, nil
}
