// Package postgres provides a Postgres-backed scan history for server
// deployments that share one history across hosts.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/JakeFAU/sawdisk/internal/history/migrate"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	TopFindings     int
	// SkipMigrations leaves schema management to an external tool.
	SkipMigrations bool
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// Store is a scan.HistoryStore backed by Postgres.
type Store struct {
	pool pool
	top  int
}

// NewStore connects to Postgres and applies pending migrations.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("history.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if !cfg.SkipMigrations {
		db := stdlib.OpenDBFromPool(p)
		err := migrate.Up(db, "postgres", migrations, "migrations")
		_ = db.Close()
		if err != nil {
			p.Close()
			return nil, err
		}
	}
	return NewStoreWithPool(p, cfg.TopFindings)
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, top int) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if top < 1 {
		top = 5
	}
	return &Store{pool: p, top: top}, nil
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Append inserts the record and its summary in one transaction.
func (s *Store) Append(ctx context.Context, rec scan.Record) error {
	if !rec.Status.IsTerminal() {
		return fmt.Errorf("append scan %s: status %q is not final", rec.ID, rec.Status)
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	summary, err := json.Marshal(rec.Summarize(s.top))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
INSERT INTO scan_records (id, body)
VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING`, rec.ID, body)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append scan %s: %w", rec.ID, scan.ErrAlreadyRecorded)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO scan_summaries (id, root_path, status, started_at, result_count, body)
VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID,
		rec.Request.Path,
		string(rec.Status),
		rec.StartedAt,
		len(rec.Results),
		summary,
	); err != nil {
		return fmt.Errorf("insert scan summary: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	committed = true
	return nil
}

// Get loads the full record for id.
func (s *Store) Get(ctx context.Context, id string) (scan.Record, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM scan_records WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return scan.Record{}, fmt.Errorf("get scan %s: %w", id, scan.ErrNotFound)
	}
	if err != nil {
		return scan.Record{}, fmt.Errorf("get scan %s: %w", id, err)
	}
	var rec scan.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return scan.Record{}, fmt.Errorf("decode scan %s: %w", id, err)
	}
	return rec, nil
}

// Summary loads the summary row for id.
func (s *Store) Summary(ctx context.Context, id string) (scan.Summary, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM scan_summaries WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return scan.Summary{}, fmt.Errorf("summary scan %s: %w", id, scan.ErrNotFound)
	}
	if err != nil {
		return scan.Summary{}, fmt.Errorf("summary scan %s: %w", id, err)
	}
	var sum scan.Summary
	if err := json.Unmarshal(body, &sum); err != nil {
		return scan.Summary{}, fmt.Errorf("decode summary %s: %w", id, err)
	}
	return sum, nil
}

// List returns summaries most-recent-first.
func (s *Store) List(ctx context.Context) ([]scan.Summary, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM scan_summaries ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	out := []scan.Summary{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		var sum scan.Summary
		if err := json.Unmarshal(body, &sum); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return out, nil
}
