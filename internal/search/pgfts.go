package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the latest version of each message,
// restricted to the caller's rooms, ranked by ts_rank with ts_headline
// snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if len(q.RoomIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	roomFilter := "t.room_id = ANY($2::uuid[])"
	args := []any{q.Text, uuidArrayLiteral(q.RoomIDs)}
	if q.FilterRoomID != "" {
		roomFilter += " AND t.room_id = $3"
		args = append(args, q.FilterRoomID)
	}

	baseSQL := fmt.Sprintf(`
		SELECT sub.id, sub.thread_id, t.room_id, sub.author_id,
			ts_headline('english', sub.content, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			ts_rank(to_tsvector('english', sub.content), plainto_tsquery('english', $1)) AS rank
		FROM (
			SELECT DISTINCT ON (id) id, thread_id, author_id, content
			FROM messages
			ORDER BY id, version_id DESC
		) sub
		JOIN threads t ON t.id = sub.thread_id
		WHERE to_tsvector('english', sub.content) @@ plainto_tsquery('english', $1)
		  AND %s`, roomFilter)

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) hits", baseSQL)
	dataSQL := fmt.Sprintf(`SELECT id, thread_id, room_id, author_id, snippet
		FROM (%s) hits
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, baseSQL, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.RoomID, &r.AuthorID, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// uuidArrayLiteral renders ids as a Postgres array literal for a
// $n::uuid[] parameter.
func uuidArrayLiteral(ids []string) string {
	return "{" + strings.Join(ids, ",") + "}"
}

// LoadAllRecords returns latest versions of all messages for full
// reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]MessageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT sub.id, sub.thread_id, t.room_id, sub.author_id, sub.content
		FROM (
			SELECT DISTINCT ON (id) id, thread_id, author_id, content
			FROM messages
			ORDER BY id, version_id DESC
		) sub
		JOIN threads t ON t.id = sub.thread_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	records := make([]MessageRecord, 0)
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(&rec.ID, &rec.ThreadID, &rec.RoomID, &rec.AuthorID, &rec.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return records, nil
}
