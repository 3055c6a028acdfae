package backuplog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kebairia/invbackup/internal/logger"
)

// LogFilename is the default name of the log inside the backup root.
const LogFilename = "backup_log.json"

// Option customises a Store.
type Option func(*Store)

// Store persists the backup log as a single JSON array. Every query reads the
// whole file and every append rewrites it.
type Store struct {
	root    string
	logFile string
	log     logger.Logger

	mu sync.Mutex
}

// WithLogFile overrides where the log is written.
func WithLogFile(path string) Option {
	return func(s *Store) {
		if path != "" {
			s.logFile = path
		}
	}
}

// WithLogger sets the logger used to report a corrupt log.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New returns a Store whose kind directories live under root.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:    root,
		logFile: filepath.Join(root, LogFilename),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the location of the log file.
func (s *Store) Path() string { return s.logFile }

// Dir returns the directory artifacts of kind are written to.
func (s *Store) Dir(kind Kind) string { return filepath.Join(s.root, string(kind)) }

// EnsureDirs creates the directory of every backup kind.
func (s *Store) EnsureDirs() error {
	for _, k := range Kinds {
		if err := os.MkdirAll(s.Dir(k), 0o755); err != nil {
			return fmt.Errorf("create backup directory %q: %w", s.Dir(k), err)
		}
	}
	return nil
}

// Read returns every recorded event in append order. A missing or malformed
// log reads as empty. Records that cannot be decoded are returned with
// Valid() false.
func (s *Store) Read() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, _, err := s.read()
	return events, err
}

// read loads the log. corrupt is set when the file exists but is not a JSON
// array.
func (s *Store) read() (events []Event, corrupt bool, err error) {
	if err := s.EnsureDirs(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(s.logFile)
	if errors.Is(err, os.ErrNotExist) {
		return []Event{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read backup log %q: %w", s.logFile, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Event{}, false, nil
	}

	if err := json.Unmarshal(data, &events); err != nil {
		s.log.Warn("backup log unreadable, treating as empty",
			"path", s.logFile,
			"error", err.Error(),
		)
		return []Event{}, true, nil
	}
	for i, ev := range events {
		if !ev.Valid() {
			s.log.Warn("backup log entry unreadable, ignoring it", "path", s.logFile, "index", i)
		}
	}
	if events == nil {
		events = []Event{}
	}
	return events, false, nil
}

// Append adds ev to the end of the log. The read-modify-write cycle runs under
// the store mutex and an exclusive lock on "<log>.lock", so concurrent writers
// in this or another process do not lose entries.
func (s *Store) Append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.logFile), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	lock, err := lockFile(s.logFile + ".lock")
	if err != nil {
		return err
	}
	defer lock.unlock()

	events, corrupt, err := s.read()
	if err != nil {
		return err
	}
	if corrupt {
		if err := s.setAside(); err != nil {
			return err
		}
	}
	events = append(events, ev)
	return s.write(events)
}

// setAside renames an unparseable log to "<log>.corrupt_<timestamp>" so the
// rewrite that follows does not destroy it.
func (s *Store) setAside() error {
	base := s.logFile + ".corrupt_" + time.Now().Format("20060102_150405")
	target := base
	for n := 1; ; n++ {
		if _, err := os.Lstat(target); errors.Is(err, os.ErrNotExist) {
			break
		}
		target = fmt.Sprintf("%s_%d", base, n)
	}
	if err := os.Rename(s.logFile, target); err != nil {
		return fmt.Errorf("set aside corrupt backup log %q: %w", s.logFile, err)
	}
	s.log.Warn("corrupt backup log set aside", "path", s.logFile, "moved_to", target)
	return nil
}

// write replaces the log through a temp file so readers never observe a
// partially written array.
func (s *Store) write(events []Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup log: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.logFile), ".backup_log-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.logFile); err != nil {
		return fmt.Errorf("replace backup log %q: %w", s.logFile, err)
	}
	return nil
}

// LastOfKind returns the most recent event of the given kind.
func (s *Store) LastOfKind(kind Kind) (Event, bool, error) {
	events, err := s.Read()
	if err != nil {
		return Event{}, false, err
	}
	ev, ok := latest(events, func(e Event) bool { return e.Kind == kind })
	return ev, ok, nil
}

// LastOverall returns the most recent event of any kind.
func (s *Store) LastOverall() (Event, bool, error) {
	events, err := s.Read()
	if err != nil {
		return Event{}, false, err
	}
	ev, ok := latest(events, func(Event) bool { return true })
	return ev, ok, nil
}
