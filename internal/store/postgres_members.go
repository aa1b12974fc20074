package store

import (
	"context"
	"database/sql"
	"fmt"

	"lamprey/api/internal/pagination"
)

func (s *PostgresStore) UpsertMember(ctx context.Context, m Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (room_id, user_id, state, override_name, override_description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET state = EXCLUDED.state,
		              override_name = EXCLUDED.override_name,
		              override_description = EXCLUDED.override_description
	`, m.RoomID, m.UserID, m.State, m.OverrideName, m.OverrideDescription)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMember(ctx context.Context, roomID, userID string) (Member, error) {
	var m Member
	err := s.db.QueryRowContext(ctx, `
		SELECT m.room_id, m.user_id, m.state, m.override_name, m.override_description, u.display_name
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1 AND m.user_id = $2
	`, roomID, userID).Scan(&m.RoomID, &m.UserID, &m.State, &m.OverrideName, &m.OverrideDescription, &m.UserName)
	if err != nil {
		return Member{}, err
	}
	roleIDs, err := s.memberRoleIDs(ctx, roomID, userID)
	if err != nil {
		return Member{}, err
	}
	m.RoleIDs = roleIDs
	return m, nil
}

// UsersShareRoom reports whether both users are joined members of at
// least one common room.
func (s *PostgresStore) UsersShareRoom(ctx context.Context, userA, userB string) (bool, error) {
	var shared bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM members a
			JOIN members b ON b.room_id = a.room_id
			WHERE a.user_id = $1 AND a.state = 'join'
			  AND b.user_id = $2 AND b.state = 'join'
		)
	`, userA, userB).Scan(&shared)
	if err != nil {
		return false, fmt.Errorf("users share room: %w", err)
	}
	return shared, nil
}

func (s *PostgresStore) DeleteMember(ctx context.Context, roomID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM members WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetMemberState(ctx context.Context, roomID, userID, state string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members SET state = $3 WHERE room_id = $1 AND user_id = $2
	`, roomID, userID, state)
	if err != nil {
		return fmt.Errorf("set member state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) AddMemberRole(ctx context.Context, roomID, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO member_roles (room_id, user_id, role_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, roomID, userID, roleID)
	if err != nil {
		return fmt.Errorf("add member role: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveMemberRole(ctx context.Context, roomID, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM member_roles WHERE room_id = $1 AND user_id = $2 AND role_id = $3
	`, roomID, userID, roleID)
	if err != nil {
		return fmt.Errorf("remove member role: %w", err)
	}
	return nil
}

func (s *PostgresStore) memberRoleIDs(ctx context.Context, roomID, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role_id FROM member_roles
		WHERE room_id = $1 AND user_id = $2
		ORDER BY role_id
	`, roomID, userID)
	if err != nil {
		return nil, fmt.Errorf("list member roles: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member role: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ListRoomMembers(ctx context.Context, roomID string, w pagination.Window) ([]Member, int, error) {
	lower, upper, order := renderWindow(w)
	var (
		items []Member
		total int
	)
	err := s.snapshot(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM members WHERE room_id = $1
		`, roomID).Scan(&total); err != nil {
			return fmt.Errorf("count members: %w", err)
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT m.room_id, m.user_id, m.state, m.override_name, m.override_description, u.display_name
			FROM members m
			JOIN users u ON u.id = m.user_id
			WHERE m.room_id = $1 AND m.user_id > $2::uuid AND m.user_id < $3::uuid
			ORDER BY m.user_id %s
			LIMIT $4
		`, order), roomID, lower, upper, w.Limit+1)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var m Member
			if err := rows.Scan(&m.RoomID, &m.UserID, &m.State, &m.OverrideName, &m.OverrideDescription, &m.UserName); err != nil {
				return fmt.Errorf("scan member: %w", err)
			}
			items = append(items, m)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range items {
			roleRows, err := tx.QueryContext(ctx, `
				SELECT role_id FROM member_roles
				WHERE room_id = $1 AND user_id = $2
				ORDER BY role_id
			`, roomID, items[i].UserID)
			if err != nil {
				return fmt.Errorf("list member roles: %w", err)
			}
			ids := []string{}
			for roleRows.Next() {
				var id string
				if err := roleRows.Scan(&id); err != nil {
					roleRows.Close()
					return fmt.Errorf("scan member role: %w", err)
				}
				ids = append(ids, id)
			}
			if err := roleRows.Err(); err != nil {
				roleRows.Close()
				return err
			}
			roleRows.Close()
			items[i].RoleIDs = ids
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MemberPermissions loads what the resolver needs in one pass: whether
// the user is a joined member of the room and the permission lists of
// every role attached to them.
func (s *PostgresStore) MemberPermissions(ctx context.Context, roomID, userID string) (bool, [][]string, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM members WHERE room_id = $1 AND user_id = $2
	`, roomID, userID).Scan(&state)
	if err == sql.ErrNoRows {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("member state: %w", err)
	}
	if state != MemberJoin {
		return false, nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.permissions
		FROM member_roles mr
		JOIN roles r ON r.id = mr.role_id
		WHERE mr.room_id = $1 AND mr.user_id = $2
	`, roomID, userID)
	if err != nil {
		return false, nil, fmt.Errorf("member permissions: %w", err)
	}
	defer rows.Close()
	var lists [][]string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return false, nil, fmt.Errorf("scan permissions: %w", err)
		}
		lists = append(lists, unmarshalStrings(raw))
	}
	return true, lists, rows.Err()
}
