package operations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Restore replaces dbPath with the content of artifactPath.
//
// The artifact is first staged in a temp file next to dbPath. The current
// database, if any, is then preserved as "<dbPath>.bak_<timestamp>" through a
// hard link (a copy where links are unsupported) and the staged file is
// renamed over dbPath. dbPath is never absent while this runs, and a failure
// before the rename leaves it untouched. The artifact itself is not modified.
func (e *Engine) Restore(ctx context.Context, artifactPath, dbPath string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return failed(err, fmt.Sprintf("restore cancelled: %v", err))
	}

	exists, err := fileExists(artifactPath)
	if err != nil {
		return e.restoreFailure(err, "")
	}
	if !exists {
		e.log.Error("restore failed", "source", artifactPath, "error", ErrArtifactMissing.Error())
		return failed(
			fmt.Errorf("%w: %s", ErrArtifactMissing, artifactPath),
			fmt.Sprintf("Backup file not found: %s", artifactPath),
		)
	}

	e.log.Info("restore started", "source", artifactPath, "database", dbPath)
	start := time.Now()

	staged, err := e.stage(ctx, artifactPath, dbPath)
	if err != nil {
		return e.restoreFailure(err, "")
	}
	defer os.Remove(staged) // no-op once renamed into place

	displaced := ""
	live, err := fileExists(dbPath)
	if err != nil {
		return e.restoreFailure(err, "")
	}
	if live {
		stem := fmt.Sprintf("%s.bak_%s", filepath.Base(dbPath), e.now().Format(e.timestampFormat))
		displaced, err = uniquePath(filepath.Dir(dbPath), stem, "")
		if err != nil {
			return e.restoreFailure(err, "")
		}
		if err := preserve(dbPath, displaced); err != nil {
			return e.restoreFailure(err, "")
		}
	}

	if err := os.Rename(staged, dbPath); err != nil {
		if displaced != "" {
			os.Remove(displaced)
		}
		return e.restoreFailure(fmt.Errorf("replace %q: %w", dbPath, err), "The current database was left in place.")
	}

	if ok, err := fileExists(dbPath); !ok {
		e.log.Error("restore left no database file in place",
			"database", dbPath,
			"source", artifactPath,
			"displaced", displaced,
			"error", fmt.Sprint(err),
		)
		return failed(
			fmt.Errorf("%w: %s", ErrInconsistentState, dbPath),
			fmt.Sprintf("CRITICAL: restore from %s left no database at %s. Previous database: %s",
				artifactPath, dbPath, displacedOrNone(displaced)),
		)
	}

	e.log.Info("restore completed",
		"source", artifactPath,
		"database", dbPath,
		"displaced", displaced,
		"duration", time.Since(start).String(),
	)

	parts := make([]string, 0, 2)
	if displaced != "" {
		parts = append(parts, fmt.Sprintf("Current database moved to: %s.", displaced))
	}
	parts = append(parts, fmt.Sprintf("Database restored from: %s", artifactPath))

	res := succeeded(strings.Join(parts, " "))
	res.DisplacedPath = displaced
	res.RestartRequested = true
	return res
}

// stage writes the restore candidate to a temp file in dbPath's directory,
// so the final rename stays on one filesystem.
func (e *Engine) stage(ctx context.Context, artifactPath, dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create database directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dbPath)+".restore-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	staged := tmp.Name()
	tmp.Close()

	if IsCompressed(artifactPath) {
		err = DecompressZstd(artifactPath, staged)
	} else {
		err = copyFile(artifactPath, staged, false)
	}
	if err == nil && e.verifier != nil {
		if verr := e.verifier.Verify(ctx, staged); verr != nil {
			err = fmt.Errorf("verify %s: %w", artifactPath, verr)
		}
	}
	if err != nil {
		os.Remove(staged)
		return "", err
	}
	return staged, nil
}

// preserve keeps the content of path reachable at side.
func preserve(path, side string) error {
	linkErr := os.Link(path, side)
	if linkErr == nil {
		return nil
	}
	if err := copyFile(path, side, true); err != nil {
		return errors.Join(fmt.Errorf("preserve current database: %w", err), linkErr)
	}
	return nil
}

func (e *Engine) restoreFailure(err error, note string) Result {
	e.log.Error("restore failed", "error", err.Error())
	msg := fmt.Sprintf("Error during restore: %v", err)
	if note != "" {
		msg += " " + note
	}
	return failed(fmt.Errorf("%w: %w", ErrIOFailure, err), msg)
}

func displacedOrNone(p string) string {
	if p == "" {
		return "none"
	}
	return p
}
