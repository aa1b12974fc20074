package store

import (
	"context"
	"database/sql"
	"fmt"

	"lamprey/api/internal/pagination"
)

const messageCols = `id, version_id, thread_id, ordering, content, attachments, reply_id, author_id, type, override_name`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var (
		m     Message
		raw   []byte
		reply sql.NullString
	)
	err := row.Scan(&m.ID, &m.VersionID, &m.ThreadID, &m.Ordering, &m.Content,
		&raw, &reply, &m.AuthorID, &m.Type, &m.OverrideName)
	if err != nil {
		return Message{}, err
	}
	m.Attachments = unmarshalStrings(raw)
	if reply.Valid {
		m.ReplyID = &reply.String
	}
	return m, nil
}

// InsertMessage writes the first version of a message. Ordering is
// assigned inside the transaction from the thread's message counter;
// the row lock taken by the UPDATE keeps values dense under concurrent
// sends.
func (s *PostgresStore) InsertMessage(ctx context.Context, m Message) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		UPDATE threads
		SET message_count = message_count + 1, last_version_id = $2
		WHERE id = $1
		RETURNING message_count
	`, m.ThreadID, m.VersionID).Scan(&m.Ordering); err != nil {
		return Message{}, fmt.Errorf("bump thread counter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (version_id, id, thread_id, ordering, content, attachments, reply_id, author_id, type, override_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.VersionID, m.ID, m.ThreadID, m.Ordering, m.Content, marshalStrings(m.Attachments),
		m.ReplyID, m.AuthorID, m.Type, m.OverrideName); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// InsertMessageVersion records an edit as a new version row. The
// message keeps its id and ordering; only version_id advances.
func (s *PostgresStore) InsertMessageVersion(ctx context.Context, m Message) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		SELECT thread_id, ordering, author_id FROM messages
		WHERE id = $1
		ORDER BY version_id DESC
		LIMIT 1
	`, m.ID).Scan(&m.ThreadID, &m.Ordering, &m.AuthorID); err != nil {
		return Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (version_id, id, thread_id, ordering, content, attachments, reply_id, author_id, type, override_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.VersionID, m.ID, m.ThreadID, m.Ordering, m.Content, marshalStrings(m.Attachments),
		m.ReplyID, m.AuthorID, m.Type, m.OverrideName); err != nil {
		return Message{}, fmt.Errorf("insert message version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE threads SET last_version_id = $2 WHERE id = $1
	`, m.ThreadID, m.VersionID); err != nil {
		return Message{}, fmt.Errorf("update thread head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// GetMessage returns the latest version of a message.
func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageCols+` FROM messages
		WHERE id = $1
		ORDER BY version_id DESC
		LIMIT 1
	`, messageID))
}

// GetMessageVersion returns one specific version of a message.
func (s *PostgresStore) GetMessageVersion(ctx context.Context, messageID, versionID string) (Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageCols+` FROM messages
		WHERE id = $1 AND version_id = $2
	`, messageID, versionID))
}

// DeleteMessage removes every version of a message. The thread counter
// is not decremented; orderings already handed out stay stable.
func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// ListThreadMessages pages over latest versions, windowed by message id.
func (s *PostgresStore) ListThreadMessages(ctx context.Context, threadID string, w pagination.Window) ([]Message, int, error) {
	lower, upper, order := renderWindow(w)
	var (
		items []Message
		total int
	)
	err := s.snapshot(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT id) FROM messages WHERE thread_id = $1
		`, threadID).Scan(&total); err != nil {
			return fmt.Errorf("count messages: %w", err)
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT `+messageCols+` FROM (
				SELECT DISTINCT ON (id) `+messageCols+`
				FROM messages
				WHERE thread_id = $1 AND id > $2::uuid AND id < $3::uuid
				ORDER BY id, version_id DESC
			) latest
			ORDER BY id %s
			LIMIT $4
		`, order), threadID, lower, upper, w.Limit+1)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return fmt.Errorf("scan message: %w", err)
			}
			items = append(items, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListMessageVersions pages over a message's edit history, windowed by
// version id.
func (s *PostgresStore) ListMessageVersions(ctx context.Context, messageID string, w pagination.Window) ([]Message, int, error) {
	lower, upper, order := renderWindow(w)
	var (
		items []Message
		total int
	)
	err := s.snapshot(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM messages WHERE id = $1
		`, messageID).Scan(&total); err != nil {
			return fmt.Errorf("count versions: %w", err)
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT `+messageCols+`
			FROM messages
			WHERE id = $1 AND version_id > $2::uuid AND version_id < $3::uuid
			ORDER BY version_id %s
			LIMIT $4
		`, order), messageID, lower, upper, w.Limit+1)
		if err != nil {
			return fmt.Errorf("list versions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return fmt.Errorf("scan version: %w", err)
			}
			items = append(items, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
