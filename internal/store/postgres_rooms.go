package store

import (
	"context"
	"database/sql"
	"fmt"

	"lamprey/api/internal/pagination"
)

func (s *PostgresStore) InsertRoom(ctx context.Context, room Room) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, description) VALUES ($1, $2, $3)
	`, room.ID, room.Name, room.Description)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description FROM rooms WHERE id = $1
	`, roomID).Scan(&room.ID, &room.Name, &room.Description)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

func (s *PostgresStore) UpdateRoom(ctx context.Context, room Room) (Room, error) {
	var updated Room
	err := s.db.QueryRowContext(ctx, `
		UPDATE rooms SET name = $2, description = $3 WHERE id = $1
		RETURNING id, name, description
	`, room.ID, room.Name, room.Description).Scan(&updated.ID, &updated.Name, &updated.Description)
	if err != nil {
		return Room{}, fmt.Errorf("update room: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// ListUserRooms pages the rooms the user has joined, ordered by room id.
func (s *PostgresStore) ListUserRooms(ctx context.Context, userID string, w pagination.Window) ([]Room, int, error) {
	lower, upper, order := renderWindow(w)
	var (
		items []Room
		total int
	)
	err := s.snapshot(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM rooms r
			JOIN members m ON m.room_id = r.id
			WHERE m.user_id = $1 AND m.state = 'join'
		`, userID).Scan(&total); err != nil {
			return fmt.Errorf("count rooms: %w", err)
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT r.id, r.name, r.description
			FROM rooms r
			JOIN members m ON m.room_id = r.id
			WHERE m.user_id = $1 AND m.state = 'join' AND r.id > $2::uuid AND r.id < $3::uuid
			ORDER BY r.id %s
			LIMIT $4
		`, order), userID, lower, upper, w.Limit+1)
		if err != nil {
			return fmt.Errorf("list rooms: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var room Room
			if err := rows.Scan(&room.ID, &room.Name, &room.Description); err != nil {
				return fmt.Errorf("scan room: %w", err)
			}
			items = append(items, room)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListUserRoomIDs returns every room id the user has joined; the gateway
// uses it to derive a connection's topic set.
func (s *PostgresStore) ListUserRoomIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id FROM members WHERE user_id = $1 AND state = 'join' ORDER BY room_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user room ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
