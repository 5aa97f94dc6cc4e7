package feedcache

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore is a shared snapshot cache for a multi-node
// deployment, so every instance sees the same last-parsed feed.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool at connStr (pgx's
// database/sql driver, registered under "pgx" by its stdlib package)
// and ensures the snapshot table exists.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("feedcache: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("feedcache: ping postgres: %w", err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed_snapshot (
    operator     TEXT PRIMARY KEY,
    hash         TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    data         BYTEA NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("feedcache: create table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Get(ctx context.Context, operator string) (Snapshot, bool, error) {
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("operator", "hash", "retrieved_at", "data").
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

func (s *PostgresStore) Put(ctx context.Context, snap Snapshot) error {
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert("feed_snapshot").
		Columns("operator", "hash", "retrieved_at", "data").
		Values(snap.Operator, snap.Hash, snap.RetrievedAt, snap.Data).
		Suffix("ON CONFLICT (operator) DO UPDATE SET hash = excluded.hash, retrieved_at = excluded.retrieved_at, data = excluded.data").
		ToSql()
	if err != nil {
		return fmt.Errorf("feedcache: build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("feedcache: write snapshot for %s: %w", snap.Operator, err)
	}
	return nil
}
