// Package migrate applies embedded goose migrations for the SQL history stores.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

// goose keeps its base FS, dialect and logger in package state.
var mu sync.Mutex

// Up applies every pending migration found under dir in fsys.
func Up(db *sql.DB, dialect string, fsys fs.FS, dir string) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run history migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func Version(db *sql.DB, dialect string) (int64, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
