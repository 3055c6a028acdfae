package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kebairia/invbackup/internal/backuplog"
)

// FullBackup copies dbPath into the full backup directory unconditionally.
func (e *Engine) FullBackup(ctx context.Context, dbPath string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if res, ok := e.precheck(ctx, backuplog.KindFull, dbPath); !ok {
		return res
	}
	return e.backup(ctx, backuplog.KindFull, dbPath)
}

// IncrementalBackup copies dbPath if it changed since the most recent backup
// of any kind. A zero since is resolved from the log.
func (e *Engine) IncrementalBackup(ctx context.Context, dbPath string, since time.Time) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if res, ok := e.precheck(ctx, backuplog.KindIncremental, dbPath); !ok {
		return res
	}

	if since.IsZero() {
		last, ok, err := e.store.LastOverall()
		if err != nil {
			return e.ioFailure(backuplog.KindIncremental, err)
		}
		if !ok {
			e.log.Info("backup declined", "kind", backuplog.KindIncremental, "reason", ErrNoPriorBackup.Error())
			return declined(ErrNoPriorBackup, "No previous backups recorded. Run a full backup first.")
		}
		since = last.Time()
	}

	return e.backupIfChanged(ctx, backuplog.KindIncremental, dbPath, since, "last backup")
}

// DifferentialBackup copies dbPath if it changed since the most recent full
// backup. A zero since is resolved from the log.
func (e *Engine) DifferentialBackup(ctx context.Context, dbPath string, since time.Time) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if res, ok := e.precheck(ctx, backuplog.KindDifferential, dbPath); !ok {
		return res
	}

	if since.IsZero() {
		last, ok, err := e.store.LastOfKind(backuplog.KindFull)
		if err != nil {
			return e.ioFailure(backuplog.KindDifferential, err)
		}
		if !ok {
			e.log.Info("backup declined", "kind", backuplog.KindDifferential, "reason", ErrNoFullBackup.Error())
			return declined(ErrNoFullBackup, "No full backup recorded. Run a full backup first.")
		}
		since = last.Time()
	}

	return e.backupIfChanged(ctx, backuplog.KindDifferential, dbPath, since, "last full backup")
}

// precheck validates the context, the backup directories and the source file.
func (e *Engine) precheck(ctx context.Context, kind backuplog.Kind, dbPath string) (Result, bool) {
	if err := ctx.Err(); err != nil {
		return failed(err, fmt.Sprintf("%s backup cancelled: %v", kind, err)), false
	}
	if err := e.store.EnsureDirs(); err != nil {
		return e.ioFailure(kind, err), false
	}
	exists, err := fileExists(dbPath)
	if err != nil {
		return e.ioFailure(kind, err), false
	}
	if !exists {
		e.log.Error("backup failed", "kind", kind, "database", dbPath, "error", ErrSourceMissing.Error())
		return failed(
			fmt.Errorf("%w: %s", ErrSourceMissing, dbPath),
			fmt.Sprintf("Database file not found: %s", dbPath),
		), false
	}
	return Result{}, true
}

func (e *Engine) backupIfChanged(ctx context.Context, kind backuplog.Kind, dbPath string, since time.Time, baseline string) Result {
	changed, mtime, err := modifiedAfter(dbPath, since)
	if err != nil {
		return e.ioFailure(kind, err)
	}
	if !changed {
		e.log.Info("backup declined",
			"kind", kind,
			"database", dbPath,
			"modified", mtime,
			"baseline", since,
		)
		return declined(
			fmt.Errorf("%w: modified %s, %s at %s", ErrUnchanged, mtime.Format(time.RFC3339), baseline, since.Format(time.RFC3339)),
			fmt.Sprintf("Database unchanged since %s (%s).", baseline, since.Format(time.DateTime)),
		)
	}
	return e.backup(ctx, kind, dbPath)
}

// backup writes the artifact and records it in the log.
func (e *Engine) backup(ctx context.Context, kind backuplog.Kind, dbPath string) Result {
	startedAt := e.now()
	ext := artifactExt
	if e.compress {
		ext += CompressedExt
	}
	stem := fmt.Sprintf("%s_%s", kind, startedAt.Format(e.timestampFormat))
	backupPath, err := uniquePath(e.store.Dir(kind), stem, ext)
	if err != nil {
		return e.ioFailure(kind, err)
	}

	e.log.Info("backup started",
		"kind", kind,
		"database", dbPath,
		"path", backupPath,
		"compress", e.compress,
	)

	start := time.Now()
	if e.compress {
		err = CompressZstd(dbPath, backupPath)
	} else {
		err = copyFile(dbPath, backupPath, true)
	}
	if err != nil {
		return e.ioFailure(kind, err)
	}

	if e.verifier != nil && !e.compress {
		if err := e.verifier.Verify(ctx, backupPath); err != nil {
			os.Remove(backupPath)
			e.log.Error("backup verification failed", "kind", kind, "path", backupPath, "error", err.Error())
			return failed(
				fmt.Errorf("%w: verify %s: %w", ErrIOFailure, backupPath, err),
				fmt.Sprintf("Error creating %s backup: verification failed: %v", kind, err),
			)
		}
	}

	ev := backuplog.NewEvent(kind, startedAt, filepath.Base(backupPath), backupPath)
	if err := e.store.Append(ev); err != nil {
		os.Remove(backupPath)
		e.log.Error("backup log append failed", "kind", kind, "path", backupPath, "error", err.Error())
		return failed(
			fmt.Errorf("%w: %w", ErrIOFailure, err),
			fmt.Sprintf("Error creating %s backup: could not record it in the backup log: %v", kind, err),
		)
	}

	size := ""
	if info, err := os.Stat(backupPath); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	e.log.Info("backup completed",
		"kind", kind,
		"path", backupPath,
		"size", size,
		"duration", time.Since(start).String(),
	)

	res := succeeded(fmt.Sprintf("%s backup created: %s (%s)", kindTitle(kind), backupPath, size))
	res.Event = &ev
	return res
}

func (e *Engine) ioFailure(kind backuplog.Kind, err error) Result {
	e.log.Error("backup failed", "kind", kind, "error", err.Error())
	return failed(
		fmt.Errorf("%w: %w", ErrIOFailure, err),
		fmt.Sprintf("Error creating %s backup: %v", kind, err),
	)
}

func kindTitle(kind backuplog.Kind) string {
	switch kind {
	case backuplog.KindFull:
		return "Full"
	case backuplog.KindIncremental:
		return "Incremental"
	case backuplog.KindDifferential:
		return "Differential"
	}
	return string(kind)
}
