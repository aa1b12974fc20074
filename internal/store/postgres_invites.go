package store

import (
	"context"
	"database/sql"
	"fmt"

	"lamprey/api/internal/pagination"
)

func (s *PostgresStore) InsertInvite(ctx context.Context, inv Invite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (code, target_type, target_id, creator_id)
		VALUES ($1, $2, $3, $4)
	`, inv.Code, inv.TargetType, inv.TargetID, inv.CreatorID)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvite(ctx context.Context, code string) (Invite, error) {
	var inv Invite
	err := s.db.QueryRowContext(ctx, `
		SELECT code, target_type, target_id, creator_id
		FROM invites
		WHERE code = $1
	`, code).Scan(&inv.Code, &inv.TargetType, &inv.TargetID, &inv.CreatorID)
	if err != nil {
		return Invite{}, err
	}
	return inv, nil
}

func (s *PostgresStore) DeleteInvite(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM invites WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

// ListTargetInvites pages invites pointing at one room, windowed by
// code. Codes are plain text so the bounds are not cast. A non-empty
// creatorID restricts the page to that creator's codes.
func (s *PostgresStore) ListTargetInvites(ctx context.Context, targetID, creatorID string, w pagination.Window) ([]Invite, int, error) {
	lower, upper, order := renderInviteWindow(w)
	var (
		items []Invite
		total int
	)
	err := s.snapshot(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM invites
			WHERE target_id = $1 AND ($2 = '' OR creator_id = $2)
		`, targetID, creatorID).Scan(&total); err != nil {
			return fmt.Errorf("count invites: %w", err)
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT code, target_type, target_id, creator_id
			FROM invites
			WHERE target_id = $1 AND ($2 = '' OR creator_id = $2)
			  AND code > $3 AND code < $4
			ORDER BY code %s
			LIMIT $5
		`, order), targetID, creatorID, lower, upper, w.Limit+1)
		if err != nil {
			return fmt.Errorf("list invites: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var inv Invite
			if err := rows.Scan(&inv.Code, &inv.TargetType, &inv.TargetID, &inv.CreatorID); err != nil {
				return fmt.Errorf("scan invite: %w", err)
			}
			items = append(items, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
