package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"lamprey/api/internal/pagination"
	"lamprey/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// maxInviteCode sorts after every code the invite alphabet can produce.
var maxInviteCode = strings.Repeat("z", 32)

// renderWindow resolves a pagination window's bounds against the UUID
// sentinels and returns the SQL fragments shared by every list query.
func renderWindow(w pagination.Window) (lower, upper, order string) {
	lower = w.Lower.Render(util.MinID, util.MaxID)
	upper = w.Upper.Render(util.MinID, util.MaxID)
	order = "ASC"
	if !w.Ascending {
		order = "DESC"
	}
	return lower, upper, order
}

// renderInviteWindow is renderWindow with invite-code sentinels (codes are
// not UUID-shaped; the bounds are the empty string and a maximal code).
func renderInviteWindow(w pagination.Window) (lower, upper, order string) {
	lower = w.Lower.Render("", maxInviteCode)
	upper = w.Upper.Render("", maxInviteCode)
	order = "ASC"
	if !w.Ascending {
		order = "DESC"
	}
	return lower, upper, order
}

// snapshot runs fn inside one read-only repeatable-read transaction so a
// page's count and windowed fetch observe the same database state.
func (s *PostgresStore) snapshot(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

func marshalStrings(values []string) []byte {
	if values == nil {
		values = []string{}
	}
	raw, _ := json.Marshal(values)
	return raw
}

func unmarshalStrings(raw []byte) []string {
	values := []string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &values)
	}
	return values
}
