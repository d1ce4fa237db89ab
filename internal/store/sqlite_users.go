package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asuleiman/taskchat/internal/domain"
)

const userColumns = `id, email, full_name, hashed_password, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	var createdAt, updatedAt int64

	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	u.CreatedAt = nsToTime(createdAt)
	u.UpdatedAt = nsToTime(updatedAt)
	return &u, nil
}

// CreateUser inserts a new account with an already-hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, fullName, hashedPassword string) (*domain.User, error) {
	now := time.Now().UnixNano()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, full_name, hashed_password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		email, fullName, hashedPassword, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user insert id: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByEmail retrieves an account by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetUserByID retrieves an account by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	return scanUser(row)
}
