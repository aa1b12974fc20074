package store

import (
	"context"
	"database/sql"
	"fmt"

	"lamprey/api/internal/pagination"
)

func (s *PostgresStore) InsertRole(ctx context.Context, role Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (id, room_id, name, permissions, is_default, is_self_applicable, is_mentionable)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, role.ID, role.RoomID, role.Name, marshalStrings(role.Permissions),
		role.IsDefault, role.IsSelfApplicable, role.IsMentionable)
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRole(ctx context.Context, roomID, roleID string) (Role, error) {
	var (
		role Role
		raw  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, name, permissions, is_default, is_self_applicable, is_mentionable
		FROM roles
		WHERE id = $1 AND room_id = $2
	`, roleID, roomID).Scan(&role.ID, &role.RoomID, &role.Name, &raw,
		&role.IsDefault, &role.IsSelfApplicable, &role.IsMentionable)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = unmarshalStrings(raw)
	return role, nil
}

func (s *PostgresStore) UpdateRole(ctx context.Context, role Role) (Role, error) {
	var raw []byte
	var out Role
	err := s.db.QueryRowContext(ctx, `
		UPDATE roles
		SET name = $3, permissions = $4, is_default = $5, is_self_applicable = $6, is_mentionable = $7
		WHERE id = $1 AND room_id = $2
		RETURNING id, room_id, name, permissions, is_default, is_self_applicable, is_mentionable
	`, role.ID, role.RoomID, role.Name, marshalStrings(role.Permissions),
		role.IsDefault, role.IsSelfApplicable, role.IsMentionable,
	).Scan(&out.ID, &out.RoomID, &out.Name, &raw,
		&out.IsDefault, &out.IsSelfApplicable, &out.IsMentionable)
	if err != nil {
		return Role{}, err
	}
	out.Permissions = unmarshalStrings(raw)
	return out, nil
}

func (s *PostgresStore) DeleteRole(ctx context.Context, roomID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1 AND room_id = $2`, roleID, roomID)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRoomRoles(ctx context.Context, roomID string, w pagination.Window) ([]Role, int, error) {
	lower, upper, order := renderWindow(w)
	var (
		items []Role
		total int
	)
	err := s.snapshot(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM roles WHERE room_id = $1
		`, roomID).Scan(&total); err != nil {
			return fmt.Errorf("count roles: %w", err)
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT id, room_id, name, permissions, is_default, is_self_applicable, is_mentionable
			FROM roles
			WHERE room_id = $1 AND id > $2::uuid AND id < $3::uuid
			ORDER BY id %s
			LIMIT $4
		`, order), roomID, lower, upper, w.Limit+1)
		if err != nil {
			return fmt.Errorf("list roles: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				role Role
				raw  []byte
			)
			if err := rows.Scan(&role.ID, &role.RoomID, &role.Name, &raw,
				&role.IsDefault, &role.IsSelfApplicable, &role.IsMentionable); err != nil {
				return fmt.Errorf("scan role: %w", err)
			}
			role.Permissions = unmarshalStrings(raw)
			items = append(items, role)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// DefaultRoleIDs returns the room's is_default roles, applied to every
// new member on join.
func (s *PostgresStore) DefaultRoleIDs(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM roles WHERE room_id = $1 AND is_default ORDER BY id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list default roles: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan default role: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
