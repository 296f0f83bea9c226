package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

// UpsertUser creates or refreshes a chat user. Existing username/full name
// are kept when the new values are empty.
func (s *Store) UpsertUser(ctx context.Context, chatID int64, username, fullName, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (chat_id, username, full_name, role)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
		   full_name = CASE WHEN excluded.full_name != '' THEN excluded.full_name ELSE users.full_name END,
		   role = excluded.role`,
		chatID, username, fullName, role,
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// LinkUserToPoint binds a user to a point, replacing any prior binding.
func (s *Store) LinkUserToPoint(ctx context.Context, chatID, pointID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO point_users (chat_id, point_id)
		 VALUES (?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET point_id = excluded.point_id`,
		chatID, pointID,
	)
	if err != nil {
		return fmt.Errorf("linking user to point: %w", err)
	}
	return nil
}

// GetUserPoint returns the point a user is bound to, or 0 when unbound.
func (s *Store) GetUserPoint(ctx context.Context, chatID int64) (int64, error) {
	var pointID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT point_id FROM point_users WHERE chat_id = ?`, chatID,
	).Scan(&pointID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting user point: %w", err)
	}
	return pointID, nil
}

// ListPointUsers returns the users bound to a point, most recent binding first.
func (s *Store) ListPointUsers(ctx context.Context, pointID int64) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.chat_id, u.username, u.full_name, u.role, pu.point_id, pu.created_at
		 FROM point_users pu
		 JOIN users u ON u.chat_id = pu.chat_id
		 WHERE pu.point_id = ?
		 ORDER BY pu.created_at DESC`,
		pointID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing point users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var (
			u                  model.User
			username, fullName sql.NullString
			boundAt            sql.NullTime
		)
		if err := rows.Scan(&u.ChatID, &username, &fullName, &u.Role, &u.PointID, &boundAt); err != nil {
			return nil, fmt.Errorf("scanning point user: %w", err)
		}
		u.Username = username.String
		u.FullName = fullName.String
		u.BoundAt = nullTime(boundAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// UnlinkUser removes a user's point binding.
func (s *Store) UnlinkUser(ctx context.Context, chatID int64) error {
	return s.deleteRow(ctx, "unlinking user", `DELETE FROM point_users WHERE chat_id = ?`, chatID)
}

// CreateOperator creates an operator API account.
func (s *Store) CreateOperator(ctx context.Context, username, passwordHash, role string) (*model.Operator, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (username, password_hash, role) VALUES (?, ?, ?)`,
		username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating operator: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operator: %w", err)
	}
	return s.getOperator(ctx, `WHERE id = ?`, id)
}

// GetOperatorByUsername returns an operator account by username.
func (s *Store) GetOperatorByUsername(ctx context.Context, username string) (*model.Operator, error) {
	return s.getOperator(ctx, `WHERE username = ?`, username)
}

// CountOperators returns the number of operator accounts.
func (s *Store) CountOperators(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting operators: %w", err)
	}
	return count, nil
}

func (s *Store) getOperator(ctx context.Context, where string, arg any) (*model.Operator, error) {
	var op model.Operator
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM operators `+where, arg,
	).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.Role, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting operator: %w", err)
	}
	return &op, nil
}
