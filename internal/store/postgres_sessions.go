package store

import (
	"context"
	"fmt"
)

// Postgres-backed session storage; used when Redis is not configured.
// The interface mirrors session.RedisStore.

func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash string, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO UPDATE SET status = EXCLUDED.status
	`, sess.ID, sess.UserID, tokenHash, sess.Status)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status FROM sessions WHERE token_hash = $1
	`, tokenHash).Scan(&sess.ID, &sess.UserID, &sess.Status)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, tokenHash string, status int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = $2 WHERE token_hash = $1
	`, tokenHash, status)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
