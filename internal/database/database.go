package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const EngineSQLite = "sqlite"

var (
	ErrTimeout         = errors.New("operation timed out")
	ErrIntegrityFailed = errors.New("integrity check failed")
)

// SQLite checks database files with the pure-Go SQLite driver.
type SQLite struct {
	Timeout time.Duration
}

// NewSQLite returns a checker whose checks give up after timeout. A zero
// timeout means no limit beyond the caller's context.
func NewSQLite(timeout time.Duration) *SQLite {
	return &SQLite{Timeout: timeout}
}

// GetEngine returns the engine name.
func (s *SQLite) GetEngine() string { return EngineSQLite }

// Verify opens path read-only and runs PRAGMA quick_check. The file is opened
// as immutable, so it must not be written to while the check runs.
func (s *SQLite) Verify(ctx context.Context, path string) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.Timeout, ErrTimeout)
		defer cancel()
	}

	db, err := sql.Open("sqlite", readOnlyDSN(path))
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIntegrityFailed, path, err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("scan quick_check: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIntegrityFailed, path, err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrIntegrityFailed, path, strings.Join(problems, "; "))
	}
	return nil
}

// Tables lists the user tables of the database at path.
func (s *SQLite) Tables(ctx context.Context, path string) ([]string, error) {
	db, err := sql.Open("sqlite", readOnlyDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables of %q: %w", path, err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func readOnlyDSN(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	// immutable keeps SQLite from creating -wal and -shm files next to a
	// WAL-mode database it cannot write to.
	u.RawQuery = "mode=ro&immutable=1"
	return u.String()
}
