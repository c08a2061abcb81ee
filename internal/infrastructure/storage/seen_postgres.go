package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

const seenTable = "seen_articles"

const createSeenTable = `CREATE TABLE IF NOT EXISTS seen_articles (
    identity   TEXT PRIMARY KEY,
    symbol     TEXT NOT NULL,
    first_seen TIMESTAMPTZ NOT NULL
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresSeenStore persists dedup identities into Postgres.
type PostgresSeenStore struct {
	db *sql.DB
}

var _ ports.SeenStore = (*PostgresSeenStore)(nil)

// OpenPostgresSeenStore connects with lib/pq and ensures the table exists.
func OpenPostgresSeenStore(ctx context.Context, dsn string) (*PostgresSeenStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := NewPostgresSeenStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresSeenStore wires a sql.DB implementation.
func NewPostgresSeenStore(db *sql.DB) *PostgresSeenStore {
	return &PostgresSeenStore{db: db}
}

// Migrate creates the table when missing.
func (r *PostgresSeenStore) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSeenTable); err != nil {
		return fmt.Errorf("create %s: %w", seenTable, err)
	}
	return nil
}

// LoadSeen returns all stored identities.
func (r *PostgresSeenStore) LoadSeen(ctx context.Context) ([]domain.DedupRecord, error) {
	query, args, err := selectSeenQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seen: %w", err)
	}

	var result []domain.DedupRecord
	for rows.Next() {
		var (
			rec    domain.DedupRecord
			symbol string
		)
		if err := rows.Scan(&rec.Identity, &symbol, &rec.FirstSeen); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan seen: %w", err)
		}
		rec.Symbol = domain.Symbol(symbol)
		result = append(result, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// MarkSeen inserts the identity, keeping the earliest row on conflict.
func (r *PostgresSeenStore) MarkSeen(ctx context.Context, rec domain.DedupRecord) error {
	query, args, err := insertSeenQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert seen: %w", err)
	}
	return nil
}

// PruneSeen deletes rows first seen before the cutoff.
func (r *PostgresSeenStore) PruneSeen(ctx context.Context, before time.Time) (int, error) {
	query, args, err := pruneSeenQuery(before).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the pool.
func (r *PostgresSeenStore) Close() error {
	return r.db.Close()
}

func selectSeenQuery() sq.SelectBuilder {
	return psql.Select("identity", "symbol", "first_seen").From(seenTable)
}

func insertSeenQuery(rec domain.DedupRecord) sq.InsertBuilder {
	return psql.Insert(seenTable).
		Columns("identity", "symbol", "first_seen").
		Values(rec.Identity, rec.Symbol.String(), rec.FirstSeen.UTC()).
		Suffix("ON CONFLICT (identity) DO NOTHING")
}

func pruneSeenQuery(before time.Time) sq.DeleteBuilder {
	return psql.Delete(seenTable).Where(sq.Lt{"first_seen": before.UTC()})
}
