package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_bot, is_alias, is_system, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.DisplayName, nullable(user.Email), user.PasswordHash,
		user.IsBot, user.IsAlias, user.IsSystem, user.ParentID)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, COALESCE(email, ''), password_hash, is_bot, is_alias, is_system, parent_id, deleted_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash,
		&user.IsBot, &user.IsAlias, &user.IsSystem, &user.ParentID, &user.DeletedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, COALESCE(email, ''), password_hash, is_bot, is_alias, is_system, parent_id, deleted_at
		FROM users
		WHERE email = $1 AND deleted_at IS NULL
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash,
		&user.IsBot, &user.IsAlias, &user.IsSystem, &user.ParentID, &user.DeletedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserName(ctx context.Context, userID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name = $2 WHERE id = $1 AND deleted_at IS NULL
	`, userID, displayName)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

// TombstoneUser soft-deletes: display data is blanked, the email is freed
// for re-registration, and all sessions die. The row itself stays so old
// messages keep a resolvable author.
func (s *PostgresStore) TombstoneUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tombstone tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users
		SET display_name = 'Deleted User', email = NULL, password_hash = '', deleted_at = NOW()
		WHERE id = $1
	`, userID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("tombstone user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete user sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tombstone tx: %w", err)
	}
	return nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
