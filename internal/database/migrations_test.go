package database

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/tracelog"
)

func TestEmbeddedMigrations(t *testing.T) {
	fsys, err := migrationsFS("")
	if err != nil {
		t.Fatalf("migrationsFS: %v", err)
	}
	files, err := migrationFiles(fsys)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) == 0 || files[0] != "001_init.sql" {
		t.Fatalf("unexpected embedded migrations %v", files)
	}

	sql, err := fs.ReadFile(fsys, files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, table := range []string{"transcription_requests", "realtime_sessions"} {
		if !strings.Contains(string(sql), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("initial migration does not create %s", table)
		}
	}
}

func TestMigrationFilesOrdered(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("SELECT 1")},
		"002_second.sql": {Data: []byte("SELECT 1")},
		"001_first.sql":  {Data: []byte("SELECT 1")},
		"README.md":      {Data: []byte("notes")},
	}
	files, err := migrationFiles(fsys)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	want := []string{"001_first.sql", "002_second.sql", "010_later.sql"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", files, want)
	}
}

func TestMigrationsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_x.sql"), []byte("SELECT 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	fsys, err := migrationsFS(dir)
	if err != nil {
		t.Fatalf("migrationsFS: %v", err)
	}
	files, err := migrationFiles(fsys)
	if err != nil || len(files) != 1 || files[0] != "001_x.sql" {
		t.Errorf("got %v, %v", files, err)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[tracelog.LogLevel]slog.Level{
		tracelog.LogLevelTrace: slog.LevelDebug,
		tracelog.LogLevelDebug: slog.LevelDebug,
		tracelog.LogLevelInfo:  slog.LevelInfo,
		tracelog.LogLevelWarn:  slog.LevelWarn,
		tracelog.LogLevelError: slog.LevelError,
	}
	for in, want := range tests {
		if got := slogLevel(in); got != want {
			t.Errorf("slogLevel(%v) = %v, want %v", in, got, want)
		}
	}
}
