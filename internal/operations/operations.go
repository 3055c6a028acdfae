package operations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kebairia/invbackup/internal/backuplog"
	"github.com/kebairia/invbackup/internal/logger"
)

// DefaultTimestampFormat renders as YYYYMMDD_HHMMSS.
const DefaultTimestampFormat = "20060102_150405"

var (
	// ErrSourceMissing means the live database file does not exist.
	ErrSourceMissing = errors.New("database file not found")
	// ErrArtifactMissing means the backup file to restore from does not exist.
	ErrArtifactMissing = errors.New("backup file not found")
	// ErrNoPriorBackup declines an incremental backup when the log is empty.
	ErrNoPriorBackup = errors.New("no previous backup recorded")
	// ErrNoFullBackup declines a differential backup when no full backup exists.
	ErrNoFullBackup = errors.New("no full backup recorded")
	// ErrUnchanged declines a backup when the database was not modified since
	// the comparison baseline.
	ErrUnchanged = errors.New("database unchanged since baseline")
	// ErrIOFailure wraps any filesystem error raised by an operation.
	ErrIOFailure = errors.New("i/o failure")
	// ErrInconsistentState means a restore left no database file in place.
	ErrInconsistentState = errors.New("database file missing after restore")
	// ErrEventNotFound means a log index is out of range.
	ErrEventNotFound = errors.New("backup log entry not found")
)

// Verifier checks that a file holds a usable database.
type Verifier interface {
	Verify(ctx context.Context, path string) error
}

// Option configures an Engine.
type Option func(*Engine)

// Engine decides whether a backup is warranted, copies the database file and
// records the event. It also restores previous backups.
type Engine struct {
	store           *backuplog.Store
	log             logger.Logger
	now             func() time.Time
	verifier        Verifier
	compress        bool
	timestampFormat string

	mu sync.Mutex
}

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the time source used for names and log timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithVerifier checks every uncompressed artifact after it is written and
// every restore candidate before it replaces the live file.
func WithVerifier(v Verifier) Option {
	return func(e *Engine) {
		e.verifier = v
	}
}

// WithCompression stores artifacts as zstd frames.
func WithCompression(enabled bool) Option {
	return func(e *Engine) {
		e.compress = enabled
	}
}

// WithTimestampFormat overrides the layout used in artifact names.
func WithTimestampFormat(format string) Option {
	return func(e *Engine) {
		if format != "" {
			e.timestampFormat = format
		}
	}
}

// New returns an Engine recording its backups in store.
func New(store *backuplog.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		log:             logger.Nop(),
		now:             time.Now,
		timestampFormat: DefaultTimestampFormat,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run dispatches to the backup operation of kind, resolving the baseline from
// the log.
func (e *Engine) Run(ctx context.Context, kind backuplog.Kind, dbPath string) Result {
	switch kind {
	case backuplog.KindFull:
		return e.FullBackup(ctx, dbPath)
	case backuplog.KindIncremental:
		return e.IncrementalBackup(ctx, dbPath, time.Time{})
	case backuplog.KindDifferential:
		return e.DifferentialBackup(ctx, dbPath, time.Time{})
	}
	return failed(fmt.Errorf("unknown backup kind %q", kind), fmt.Sprintf("unknown backup kind %q", kind))
}

// ReadLog returns every recorded backup event.
func (e *Engine) ReadLog() ([]backuplog.Event, error) {
	return e.store.Read()
}

// Event returns the log entry at index.
func (e *Engine) Event(index int) (backuplog.Event, error) {
	events, err := e.store.Read()
	if err != nil {
		return backuplog.Event{}, err
	}
	if index < 0 || index >= len(events) {
		return backuplog.Event{}, fmt.Errorf("%w: index %d (log has %d entries)", ErrEventNotFound, index, len(events))
	}
	return events[index], nil
}

// LastBackupTime returns when the most recent backup of any kind was taken.
func (e *Engine) LastBackupTime() (time.Time, bool, error) {
	ev, ok, err := e.store.LastOverall()
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return ev.Time(), true, nil
}

// LastFullBackupTime returns when the most recent full backup was taken.
func (e *Engine) LastFullBackupTime() (time.Time, bool, error) {
	ev, ok, err := e.store.LastOfKind(backuplog.KindFull)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return ev.Time(), true, nil
}
