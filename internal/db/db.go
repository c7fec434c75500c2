// Package db records tunnel, daemon and installer history in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Tunnel event types written by the supervisor.
const (
	EventEnable         = "enable"
	EventConnected      = "connected"
	EventExit           = "exit"
	EventEnableFailed   = "enable_failed"
	EventTrackingFailed = "tracking_failed"
	EventDisable        = "disable"
)

type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at path, creating parent directories.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// Flush forces a WAL checkpoint even with active readers.
func (db *DB) Flush() error {
	if db.conn == nil {
		return nil
	}
	_, err := db.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
	return err
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tunnel_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tunnel_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS daemon_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS installer_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package TEXT NOT NULL,
		result TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tunnel_events_timestamp ON tunnel_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_tunnel_events_tunnel ON tunnel_events(tunnel_id);
	CREATE INDEX IF NOT EXISTS idx_daemon_events_timestamp ON daemon_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_installer_runs_timestamp ON installer_runs(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

type TunnelEvent struct {
	ID        int64     `json:"id"`
	TunnelID  string    `json:"tunnel_id"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// LogTunnelEvent records a supervisor event. It retries briefly when the
// database is locked but never blocks for long; history is best-effort.
func (db *DB) LogTunnelEvent(tunnelID, eventType, details string) error {
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(
			`INSERT INTO tunnel_events (tunnel_id, event_type, details, timestamp)
			 VALUES (?, ?, ?, ?)`,
			tunnelID, eventType, details, time.Now(),
		)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("failed to log tunnel event after %d retries: database locked", maxRetries)
}

type DaemonEvent struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

func (db *DB) LogDaemonEvent(eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO daemon_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

type InstallerRun struct {
	ID        int64     `json:"id"`
	Package   string    `json:"package"`
	Result    string    `json:"result"`
	ExitCode  int       `json:"exit_code"`
	Timestamp time.Time `json:"timestamp"`
}

func (db *DB) LogInstallerRun(pkg, result string, exitCode int) error {
	_, err := db.conn.Exec(
		`INSERT INTO installer_runs (package, result, exit_code, timestamp)
		 VALUES (?, ?, ?, ?)`,
		pkg, result, exitCode, time.Now(),
	)
	return err
}

// GetRecentTunnelEvents returns up to limit events, newest first.
func (db *DB) GetRecentTunnelEvents(limit int) ([]TunnelEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, tunnel_id, event_type, details, timestamp
		 FROM tunnel_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanTunnelEvents(rows)
}

// GetLastTunnelEventPerTunnel returns the newest event of every tunnel.
func (db *DB) GetLastTunnelEventPerTunnel() ([]TunnelEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, tunnel_id, event_type, details, timestamp
		 FROM tunnel_events
		 WHERE id IN (
			 SELECT MAX(id)
			 FROM tunnel_events
			 GROUP BY tunnel_id
		 )
		 ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	return scanTunnelEvents(rows)
}

func (db *DB) GetRecentDaemonEvents(limit int) ([]DaemonEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM daemon_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DaemonEvent
	for rows.Next() {
		var e DaemonEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (db *DB) GetRecentInstallerRuns(limit int) ([]InstallerRun, error) {
	rows, err := db.conn.Query(
		`SELECT id, package, result, exit_code, timestamp
		 FROM installer_runs
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []InstallerRun
	for rows.Next() {
		var r InstallerRun
		if err := rows.Scan(&r.ID, &r.Package, &r.Result, &r.ExitCode, &r.Timestamp); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanTunnelEvents(rows *sql.Rows) ([]TunnelEvent, error) {
	defer rows.Close()

	var events []TunnelEvent
	for rows.Next() {
		var e TunnelEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.TunnelID, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
