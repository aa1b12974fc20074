package store

import (
	"context"
	"database/sql"
	"fmt"

	"lamprey/api/internal/pagination"
)

const threadCols = `id, room_id, creator_id, name, description, is_closed, is_locked, is_pinned,
	message_count, COALESCE(last_version_id::text, '')`

func scanThread(row interface{ Scan(...any) error }) (Thread, error) {
	var t Thread
	err := row.Scan(&t.ID, &t.RoomID, &t.CreatorID, &t.Name, &t.Description,
		&t.IsClosed, &t.IsLocked, &t.IsPinned, &t.MessageCount, &t.LastVersionID)
	if err != nil {
		return Thread{}, err
	}
	return t, nil
}

func (s *PostgresStore) InsertThread(ctx context.Context, t Thread) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, room_id, creator_id, name, description, is_closed, is_locked, is_pinned, message_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
	`, t.ID, t.RoomID, t.CreatorID, t.Name, t.Description, t.IsClosed, t.IsLocked, t.IsPinned)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThread(ctx context.Context, threadID string) (Thread, error) {
	return scanThread(s.db.QueryRowContext(ctx, `
		SELECT `+threadCols+` FROM threads WHERE id = $1
	`, threadID))
}

func (s *PostgresStore) UpdateThread(ctx context.Context, t Thread) (Thread, error) {
	return scanThread(s.db.QueryRowContext(ctx, `
		UPDATE threads
		SET name = $2, description = $3, is_closed = $4, is_locked = $5, is_pinned = $6
		WHERE id = $1
		RETURNING `+threadCols, t.ID, t.Name, t.Description, t.IsClosed, t.IsLocked, t.IsPinned))
}

func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRoomThreads(ctx context.Context, roomID string, w pagination.Window) ([]Thread, int, error) {
	lower, upper, order := renderWindow(w)
	var (
		items []Thread
		total int
	)
	err := s.snapshot(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM threads WHERE room_id = $1
		`, roomID).Scan(&total); err != nil {
			return fmt.Errorf("count threads: %w", err)
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT `+threadCols+`
			FROM threads
			WHERE room_id = $1 AND id > $2::uuid AND id < $3::uuid
			ORDER BY id %s
			LIMIT $4
		`, order), roomID, lower, upper, w.Limit+1)
		if err != nil {
			return fmt.Errorf("list threads: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanThread(rows)
			if err != nil {
				return fmt.Errorf("scan thread: %w", err)
			}
			items = append(items, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListRoomThreadIDs feeds gateway topic derivation.
func (s *PostgresStore) ListRoomThreadIDs(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM threads WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list thread ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RoomIDForThread resolves a thread's room for permission checks and
// event routing without loading the whole row.
func (s *PostgresStore) RoomIDForThread(ctx context.Context, threadID string) (string, error) {
	var roomID string
	err := s.db.QueryRowContext(ctx, `SELECT room_id FROM threads WHERE id = $1`, threadID).Scan(&roomID)
	if err != nil {
		return "", err
	}
	return roomID, nil
}
