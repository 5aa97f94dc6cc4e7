package feedcache

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a single-file snapshot cache, suitable for a
// standalone or single-node deployment.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the snapshot table at
// dsn, e.g. "transitraptor.db" or ":memory:".
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("feedcache: open sqlite %q: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("feedcache: ping sqlite %q: %w", dsn, err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed_snapshot (
    operator     TEXT PRIMARY KEY,
    hash         TEXT NOT NULL,
    retrieved_at DATETIME NOT NULL,
    data         BLOB NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("feedcache: create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, operator string) (Snapshot, bool, error) {
	query, args, err := sq.Select("operator", "hash", "retrieved_at", "data").
		From("feed_snapshot").
		Where(sq.Eq{"operator": operator}).
		ToSql()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("feedcache: build select: %w", err)
	}

	var snap Snapshot
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&snap.Operator, &snap.Hash, &snap.RetrievedAt, &snap.Data)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("feedcache: query snapshot for %s: %w", operator, err)
	}
	return snap, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, snap Snapshot) error {
	query, args, err := sq.Insert("feed_snapshot").
		Columns("operator", "hash", "retrieved_at", "data").
		Values(snap.Operator, snap.Hash, snap.RetrievedAt, snap.Data).
		Suffix("ON CONFLICT(operator) DO UPDATE SET hash = excluded.hash, retrieved_at = excluded.retrieved_at, data = excluded.data").
		ToSql()
	if err != nil {
		return fmt.Errorf("feedcache: build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("feedcache: write snapshot for %s: %w", snap.Operator, err)
	}
	return nil
}
