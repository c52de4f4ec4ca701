package db

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrateIsIdempotent(t *testing.T) {
	database := NewTestDB(t)

	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var count int
	err := database.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('session', 'items', 'settings')`,
	).Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 tables, got %d", count)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventar.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	var mode string
	if err := database.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("expected WAL journal mode, got %q", mode)
	}
}

func TestDSNAppliesPragmas(t *testing.T) {
	got := dsn("inventar.db")
	if got != "file:inventar.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)" {
		t.Errorf("unexpected dsn %q", got)
	}
	if got := dsn("file:x.db?mode=ro"); !strings.HasPrefix(got, "file:x.db?mode=ro&_pragma=") {
		t.Errorf("expected existing query to be extended, got %q", got)
	}
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()
	database.SetMaxIdleConns(0)

	for range 3 {
		var on int
		if err := database.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
			t.Fatal(err)
		}
		if on != 1 {
			t.Fatalf("expected foreign keys on, got %d", on)
		}
	}
}
