package sqlite

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", InMemory)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := applyMigrations(db); err != nil {
		t.Fatalf("first applyMigrations() error = %v", err)
	}
	if err := applyMigrations(db); err != nil {
		t.Fatalf("second applyMigrations() error = %v", err)
	}

	for _, table := range []string{"projects", "versions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestVersionsCascadeDelete(t *testing.T) {
	db := openTestDB(t)
	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}

	mustExec := func(query string, args ...any) {
		t.Helper()
		if _, err := db.Exec(query, args...); err != nil {
			t.Fatalf("exec %q: %v", query, err)
		}
	}
	mustExec("INSERT INTO projects (id, data, size, saved_at) VALUES ('p1', x'00', 1, CURRENT_TIMESTAMP)")
	mustExec("INSERT INTO versions (project_id, label, data, size, created_at) VALUES ('p1', '1', x'00', 1, CURRENT_TIMESTAMP)")
	mustExec("DELETE FROM projects WHERE id = 'p1'")

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM versions").Scan(&count); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != 0 {
		t.Errorf("versions after project delete = %d, want 0", count)
	}

	_, err := db.Exec("INSERT INTO versions (project_id, label, data, size, created_at) VALUES ('ghost', '1', x'00', 1, CURRENT_TIMESTAMP)")
	if err == nil {
		t.Error("version of unknown project should violate the foreign key")
	}
}

func TestIsMigrationApplied(t *testing.T) {
	db := openTestDB(t)
	if err := createMigrationsTable(db); err != nil {
		t.Fatalf("createMigrationsTable() error = %v", err)
	}

	applied, err := isMigrationApplied(db, 1)
	if err != nil || applied {
		t.Fatalf("isMigrationApplied() = %v, %v; want false, nil", applied, err)
	}
	if err := recordMigration(db, 1, "test"); err != nil {
		t.Fatalf("recordMigration() error = %v", err)
	}
	applied, _ = isMigrationApplied(db, 1)
	if !applied {
		t.Error("migration 1 should be applied")
	}
}
