package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertMedia(ctx context.Context, m Media) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (id, user_id, filename, size)
		VALUES ($1, $2, $3, $4)
	`, m.ID, m.UserID, m.Filename, m.Size)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// UpdateMediaSize records the object's real size once the upload is
// confirmed against the bucket.
func (s *PostgresStore) UpdateMediaSize(ctx context.Context, mediaID string, size int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE media SET size = $2 WHERE id = $1
	`, mediaID, size)
	if err != nil {
		return fmt.Errorf("update media size: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMedia(ctx context.Context, mediaID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, mediaID)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMedia(ctx context.Context, mediaID string) (Media, error) {
	var m Media
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, filename, size FROM media WHERE id = $1
	`, mediaID).Scan(&m.ID, &m.UserID, &m.Filename, &m.Size)
	if err != nil {
		return Media{}, err
	}
	return m, nil
}
