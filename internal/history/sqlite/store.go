// Package sqlite persists scan history in a local SQLite file so finalized
// scans survive restarts of the CLI or server.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/sawdisk/internal/history/migrate"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config controls where the database lives.
type Config struct {
	Path string
	// TopFindings is the number of findings kept on each summary (default 5).
	TopFindings int
}

// Store is a scan.HistoryStore backed by SQLite.
type Store struct {
	db     *sql.DB
	top    int
	logger *zap.Logger
}

// Open opens (creating if needed) the database at cfg.Path and applies
// pending migrations.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("history.sqlite_path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopFindings < 1 {
		cfg.TopFindings = 5
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	dsn := "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	// Single writer connection for SQLite.
	db.SetMaxOpenConns(1)

	if err := migrate.Up(db, "sqlite3", migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("history database ready", zap.String("path", cfg.Path))
	return &Store{db: db, top: cfg.TopFindings, logger: logger}, nil
}

// Append stores a finalized record and its summary in one transaction.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scan_records (id, body) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
		rec.ID, string(body))
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("append scan %s: %w", rec.ID, scan.ErrAlreadyRecorded)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scan_summaries (id, root_path, status, started_at, result_count, body) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Request.Path,
		string(rec.Status),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		len(rec.Results),
		string(summary),
	); err != nil {
		return fmt.Errorf("insert scan summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Get loads the full record for id.
func (s *Store) Get(ctx context.Context, id string) (scan.Record, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM scan_records WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return scan.Record{}, fmt.Errorf("get scan %s: %w", id, scan.ErrNotFound)
	}
	if err != nil {
		return scan.Record{}, fmt.Errorf("get scan %s: %w", id, err)
	}
	var rec scan.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return scan.Record{}, fmt.Errorf("decode scan %s: %w", id, err)
	}
	return rec, nil
}

// Summary loads the summary for id without touching the full record.
func (s *Store) Summary(ctx context.Context, id string) (scan.Summary, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM scan_summaries WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return scan.Summary{}, fmt.Errorf("summary scan %s: %w", id, scan.ErrNotFound)
	}
	if err != nil {
		return scan.Summary{}, fmt.Errorf("summary scan %s: %w", id, err)
	}
	var sum scan.Summary
	if err := json.Unmarshal([]byte(body), &sum); err != nil {
		return scan.Summary{}, fmt.Errorf("decode summary %s: %w", id, err)
	}
	return sum, nil
}

// List returns summaries in reverse append order.
func (s *Store) List(ctx context.Context) ([]scan.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM scan_summaries ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	out := []scan.Summary{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		var sum scan.Summary
		if err := json.Unmarshal([]byte(body), &sum); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return out, nil
}

// Ping verifies the database file is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history database: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close history database: %w", err)
	}
	return nil
}
