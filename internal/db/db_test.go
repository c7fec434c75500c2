package db

import (
	"os"
	"path/filepath"
	"testing"
)

// openTestDB creates a temporary database closed on cleanup
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_OpenAndClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := db.Close(); err != nil {
		t.Errorf("Failed to close database: %v", err)
	}
}

func TestDB_Open_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "subdir", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database with nested path: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created in nested directory")
	}
}

func TestDB_WALMode(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected WAL journal mode, got '%v'", journalMode)
	}
}

func TestDB_SchemaCreated(t *testing.T) {
	db := openTestDB(t)

	objects := map[string][]string{
		"table": {"tunnel_events", "daemon_events", "installer_runs"},
		"index": {
			"idx_tunnel_events_timestamp",
			"idx_tunnel_events_tunnel",
			"idx_daemon_events_timestamp",
			"idx_installer_runs_timestamp",
		},
	}

	for kind, names := range objects {
		for _, name := range names {
			var count int
			err := db.conn.QueryRow(
				`SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?`,
				kind, name,
			).Scan(&count)
			if err != nil {
				t.Fatalf("Failed to check for %s '%s': %v", kind, name, err)
			}
			if count != 1 {
				t.Errorf("Expected %s '%s' to exist", kind, name)
			}
		}
	}
}

func TestDB_LogTunnelEvent(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogTunnelEvent("t1", EventEnable, "Home"); err != nil {
		t.Fatalf("Failed to log tunnel event: %v", err)
	}

	events, err := db.GetRecentTunnelEvents(10)
	if err != nil {
		t.Fatalf("GetRecentTunnelEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	e := events[0]
	if e.TunnelID != "t1" || e.EventType != EventEnable || e.Details != "Home" {
		t.Errorf("Unexpected event: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestDB_GetRecentTunnelEvents_OrderAndLimit(t *testing.T) {
	db := openTestDB(t)

	for _, ev := range []string{EventEnable, EventConnected, EventDisable, EventExit} {
		if err := db.LogTunnelEvent("t1", ev, ""); err != nil {
			t.Fatalf("Failed to log %s: %v", ev, err)
		}
	}

	events, err := db.GetRecentTunnelEvents(2)
	if err != nil {
		t.Fatalf("GetRecentTunnelEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].EventType != EventExit || events[1].EventType != EventDisable {
		t.Errorf("Expected newest first, got %s, %s", events[0].EventType, events[1].EventType)
	}
}

func TestDB_GetLastTunnelEventPerTunnel(t *testing.T) {
	db := openTestDB(t)

	db.LogTunnelEvent("t1", EventEnable, "")
	db.LogTunnelEvent("t2", EventEnable, "")
	db.LogTunnelEvent("t1", EventConnected, "")
	db.LogTunnelEvent("t2", EventEnableFailed, "not installed")

	events, err := db.GetLastTunnelEventPerTunnel()
	if err != nil {
		t.Fatalf("GetLastTunnelEventPerTunnel() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}

	last := make(map[string]string)
	for _, e := range events {
		last[e.TunnelID] = e.EventType
	}
	if last["t1"] != EventConnected {
		t.Errorf("Expected t1 last event 'connected', got '%s'", last["t1"])
	}
	if last["t2"] != EventEnableFailed {
		t.Errorf("Expected t2 last event 'enable_failed', got '%s'", last["t2"])
	}
}

func TestDB_LogDaemonEvent(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogDaemonEvent("start", "PID: 42"); err != nil {
		t.Fatalf("Failed to log daemon event: %v", err)
	}

	events, err := db.GetRecentDaemonEvents(5)
	if err != nil {
		t.Fatalf("GetRecentDaemonEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].EventType != "start" || events[0].Details != "PID: 42" {
		t.Errorf("Unexpected daemon events: %+v", events)
	}
}

func TestDB_LogInstallerRun(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogInstallerRun("wiresock.msi", "CANCELLED", 1602); err != nil {
		t.Fatalf("Failed to log installer run: %v", err)
	}

	runs, err := db.GetRecentInstallerRuns(5)
	if err != nil {
		t.Fatalf("GetRecentInstallerRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Package != "wiresock.msi" || runs[0].Result != "CANCELLED" || runs[0].ExitCode != 1602 {
		t.Errorf("Unexpected run: %+v", runs[0])
	}
}

func TestDB_Flush(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogDaemonEvent("start", ""); err != nil {
		t.Fatalf("Failed to log: %v", err)
	}
	if err := db.Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestDB_NilConn(t *testing.T) {
	db := &DB{conn: nil}

	if err := db.Flush(); err != nil {
		t.Errorf("Flush() on nil conn error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil conn error = %v", err)
	}
}
