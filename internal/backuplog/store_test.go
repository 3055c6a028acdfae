package backuplog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_MissingLogIsEmptyAndCreatesDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backups")
	s := New(root)

	events, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, events)

	for _, k := range Kinds {
		info, err := os.Stat(s.Dir(k))
		require.NoError(t, err, "directory for %s", k)
		assert.True(t, info.IsDir())
	}
}

func TestRead_CorruptLogIsEmpty(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	events, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, events)

	// the next append starts a fresh log and keeps the old one aside
	require.NoError(t, s.Append(NewEvent(KindFull, time.Now(), "full_x.db", "/tmp/full_x.db")))
	events, err = s.Read()
	require.NoError(t, err)
	assert.Len(t, events, 1)

	aside, err := filepath.Glob(s.Path() + ".corrupt_*")
	require.NoError(t, err)
	require.Len(t, aside, 1)
	data, err := os.ReadFile(aside[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestAppend_KeepsUnreadableEntries(t *testing.T) {
	s := New(t.TempDir())
	mixed := `[
  {"kind": "full", "timestamp": "2025-01-15T09:00:00Z", "filename": "full_a.db", "path": "/b/full/full_a.db"},
  {"kind": "incremental", "timestamp": "15/01/2025 10:00", "filename": "inc_b.db", "path": "/b/incremental/inc_b.db"},
  {"kind": "full", "timestamp": "2025-01-15T11:00:00Z", "filename": "full_c.db", "path": "/b/full/full_c.db"},
  {"kind": "differential", "timestamp": null, "filename": "diff_d.db", "path": "/b/differential/diff_d.db"},
  42
]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(mixed), 0o644))

	events, err := s.Read()
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.True(t, events[0].Valid())
	assert.False(t, events[1].Valid())
	assert.Equal(t, "inc_b.db", events[1].Filename)
	assert.False(t, events[3].Valid())
	assert.False(t, events[4].Valid())

	last, ok, err := s.LastOverall()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "full_c.db", last.Filename)

	_, ok, err = s.LastOfKind(KindIncremental)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Append(NewEvent(KindFull, time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC), "new.db", "/b/full/new.db")))

	events, err = s.Read()
	require.NoError(t, err)
	require.Len(t, events, 6)
	assert.Equal(t, "new.db", events[5].Filename)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"15/01/2025 10:00"`)
	assert.Contains(t, string(data), `"timestamp": null`)
	assert.Contains(t, string(data), "42")

	aside, err := filepath.Glob(s.Path() + ".corrupt_*")
	require.NoError(t, err)
	assert.Empty(t, aside)
}

func TestAppend_PreservesOrder(t *testing.T) {
	s := New(t.TempDir())
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	kinds := []Kind{KindFull, KindIncremental, KindDifferential, KindIncremental}

	for i, k := range kinds {
		name := fmt.Sprintf("%s_%d.db", k, i)
		require.NoError(t, s.Append(NewEvent(k, base.Add(time.Duration(i)*time.Minute), name, filepath.Join(s.Dir(k), name))))
	}

	events, err := s.Read()
	require.NoError(t, err)
	require.Len(t, events, len(kinds))
	for i, k := range kinds {
		assert.Equal(t, k, events[i].Kind)
		assert.True(t, events[i].Time().Equal(base.Add(time.Duration(i)*time.Minute)))
	}
}

func TestLastLookups(t *testing.T) {
	s := New(t.TempDir())

	_, ok, err := s.LastOverall()
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	// appended out of time order: lookups must not rely on position
	require.NoError(t, s.Append(NewEvent(KindFull, base.Add(2*time.Hour), "full_b.db", "b")))
	require.NoError(t, s.Append(NewEvent(KindFull, base, "full_a.db", "a")))
	require.NoError(t, s.Append(NewEvent(KindIncremental, base.Add(3*time.Hour), "incremental_c.db", "c")))

	full, ok, err := s.LastOfKind(KindFull)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "full_b.db", full.Filename)

	last, ok, err := s.LastOverall()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "incremental_c.db", last.Filename)

	_, ok, err = s.LastOfKind(KindDifferential)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRead_LegacyLogFormat(t *testing.T) {
	s := New(t.TempDir())
	legacy := `[
  {
    "type": "full",
    "timestamp": "2025-01-15T09:30:12.345678",
    "filename": "full_20250115_093012.db",
    "path": "backups/full/full_20250115_093012.db"
  }
]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	ev, ok, err := s.LastOfKind(KindFull)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindFull, ev.Kind)
	want := time.Date(2025, 1, 15, 9, 30, 12, 345678000, time.Local)
	assert.True(t, ev.Time().Equal(want), "got %v", ev.Time())
}

func TestAppend_ConcurrentWritersKeepEveryEntry(t *testing.T) {
	root := t.TempDir()
	// two stores on the same file simulate independent callers
	a, b := New(root), New(root)
	const perStore = 15

	var wg sync.WaitGroup
	for _, s := range []*Store{a, b} {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(s *Store, i int) {
				defer wg.Done()
				name := fmt.Sprintf("full_%d.db", i)
				assert.NoError(t, s.Append(NewEvent(KindFull, time.Now(), name, name)))
			}(s, i)
		}
	}
	wg.Wait()

	events, err := a.Read()
	require.NoError(t, err)
	assert.Len(t, events, 2*perStore)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("differential")
	require.NoError(t, err)
	assert.Equal(t, KindDifferential, k)

	_, err = ParseKind("weekly")
	assert.Error(t, err)
}
