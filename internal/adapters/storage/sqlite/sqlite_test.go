package sqlite

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNewConnection(t *testing.T) {
	t.Run("creates connection with custom path", func(t *testing.T) {
		conn, err := NewConnection("/tmp/test.db")
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}
		if conn.Path() != "/tmp/test.db" {
			t.Errorf("Path() = %q, want %q", conn.Path(), "/tmp/test.db")
		}
	})

	t.Run("creates connection with default path", func(t *testing.T) {
		conn, err := NewConnection("")
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}
		homeDir, _ := os.UserHomeDir()
		expectedPath := filepath.Join(homeDir, ".projectgate", "projectgate.db")
		if conn.Path() != expectedPath {
			t.Errorf("Path() = %q, want %q", conn.Path(), expectedPath)
		}
	})
}

func TestConnection_OpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	conn, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Open() did not create database file")
	}
	if err := conn.Open(); err == nil {
		t.Error("second Open() should fail")
	}
	if err := conn.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !conn.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if _, err := conn.DB(); err == nil {
		t.Error("DB() should fail after Close")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConnection_InMemory(t *testing.T) {
	conn, err := NewConnection(InMemory)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	db, err := conn.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("query migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("applied migrations = %d, want %d", count, len(migrations))
	}
}

func TestConnection_ConcurrentAccess(t *testing.T) {
	conn, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := conn.Ping(); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		}()
	}
	wg.Wait()
}
