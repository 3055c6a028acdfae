package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kebairia/invbackup/internal/backuplog"
	"github.com/kebairia/invbackup/internal/config"
)

func setup(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "database.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("live"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dbPath, past, past))

	configPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  path: %s\nbackup:\n  directory: %s\n",
		dbPath, filepath.Join(dir, "backups"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg = config.Config{}
	ConfigFile, debug = "", false
	backupDBPath, backupSince = "", ""
	restoreDBPath, restoreIndex = "", -1
	logOutput = "table"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestBackupAndRestoreCommands(t *testing.T) {
	configPath, dbPath := setup(t)

	out, err := run(t, "-c", configPath, "backup", "incremental")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped:")

	out, err = run(t, "-c", configPath, "backup", "full")
	require.NoError(t, err)
	assert.Contains(t, out, "Full backup created")

	out, err = run(t, "-c", configPath, "log", "-o", "json")
	require.NoError(t, err)
	var events []backuplog.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, backuplog.KindFull, events[0].Kind)

	require.NoError(t, os.WriteFile(dbPath, []byte("changed"), 0o644))
	out, err = run(t, "-c", configPath, "restore", "--index", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Database restored from")
	assert.Contains(t, out, "Restart the inventory application")

	data, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "live", string(data))
}

func TestBackupCommand_InvalidKind(t *testing.T) {
	configPath, _ := setup(t)
	_, err := run(t, "-c", configPath, "backup", "weekly")
	assert.Error(t, err)
}

func TestBackupCommand_SourceMissing(t *testing.T) {
	configPath, _ := setup(t)
	_, err := run(t, "-c", configPath, "backup", "full", "--db", filepath.Join(t.TempDir(), "nope.db"))
	assert.Error(t, err)
}

func TestRestoreCommand_Arguments(t *testing.T) {
	configPath, _ := setup(t)

	_, err := run(t, "-c", configPath, "restore")
	assert.Error(t, err)

	_, err = run(t, "-c", configPath, "restore", "x.db", "--index", "0")
	assert.Error(t, err)

	_, err = run(t, "-c", configPath, "restore", "--index", "3")
	assert.Error(t, err)
}

func TestPrintEvents(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []backuplog.Event{
		backuplog.NewEvent(backuplog.KindFull, at, "full_20250601_120000.db", "/nonexistent/full_20250601_120000.db"),
	}

	var buf bytes.Buffer
	require.NoError(t, printEvents(&buf, events, "table"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INDEX")
	assert.Contains(t, lines[1], "full_20250601_120000.db")
	assert.Contains(t, lines[1], "missing")

	buf.Reset()
	require.NoError(t, printEvents(&buf, events, "yaml"))
	var decoded []map[string]string
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "full", decoded[0]["kind"])
	assert.Equal(t, "2025-06-01T12:00:00Z", decoded[0]["timestamp"])

	assert.Error(t, printEvents(&buf, events, "xml"))
}
