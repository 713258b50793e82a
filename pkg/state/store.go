// Package state provides durable jacx state: the persisted environment
// selection and cached probe results, backed by a SQLite database in the
// jacx state directory.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SelectionKey is the stable key under which the selected environment root
// path is persisted.
const SelectionKey = "selected_env_root"

// Store manages the jacx state database
type Store struct {
	db       *sql.DB
	stateDir string
	dbPath   string
}

// NewStore opens (creating if necessary) the state database in stateDir
func NewStore(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	// Create an empty .lock file if it doesn't exist (used for file-based locking)
	lockPath := filepath.Join(stateDir, ".lock")
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		if err := os.WriteFile(lockPath, []byte{}, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}
	}

	dbPath := filepath.Join(stateDir, "state.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := initDatabase(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close database: %v\n", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Store{
		db:       db,
		stateDir: stateDir,
		dbPath:   dbPath,
	}, nil
}

// DefaultStateDir returns the per-user jacx state directory, honoring
// JACX_HOME when set.
func DefaultStateDir() string {
	if dir := os.Getenv("JACX_HOME"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "jacx")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "jacx-state")
	}
	return filepath.Join(home, ".local", "state", "jacx")
}

// Selection returns the persisted environment root path. An absent key is
// reported as ("", false), not an error.
func (s *Store) Selection() (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(
		context.Background(),
		"SELECT value FROM kv WHERE key = ?", SelectionKey,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read selection: %w", err)
	}
	return value, value != "", nil
}

// SaveSelection persists the environment root path as the current selection
func (s *Store) SaveSelection(rootPath string) error {
	if rootPath == "" {
		return fmt.Errorf("selection root path must not be empty")
	}
	_, err := s.db.ExecContext(
		context.Background(),
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		SelectionKey, rootPath,
	)
	if err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

// ClearSelection removes the persisted selection
func (s *Store) ClearSelection() error {
	_, err := s.db.ExecContext(
		context.Background(),
		"DELETE FROM kv WHERE key = ?", SelectionKey,
	)
	if err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	return nil
}

// ProbeResult is a cached outcome of a version probe, keyed by the probed
// executable path and its modification time.
type ProbeResult struct {
	Path    string
	ModTime int64
	OK      bool
	Version string
}

// CachedProbe returns the cached probe result for an executable, if the
// cached entry matches the executable's current mtime.
func (s *Store) CachedProbe(path string, modTime int64) (ProbeResult, bool) {
	var result ProbeResult
	err := s.db.QueryRowContext(
		context.Background(),
		"SELECT path, mtime, ok, version FROM probes WHERE path = ?", path,
	).Scan(&result.Path, &result.ModTime, &result.OK, &result.Version)
	if err != nil {
		return ProbeResult{}, false
	}
	if result.ModTime != modTime {
		return ProbeResult{}, false
	}
	return result, true
}

// SaveProbe stores a probe result, replacing any previous entry for the path
func (s *Store) SaveProbe(result ProbeResult) error {
	_, err := s.db.ExecContext(
		context.Background(),
		`INSERT INTO probes (path, mtime, ok, version) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, ok = excluded.ok, version = excluded.version`,
		result.Path, result.ModTime, result.OK, result.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save probe result: %w", err)
	}
	return nil
}

// ServerStatus describes the supervised server as recorded by the lsp
// command, for liveness reporting from other processes.
type ServerStatus struct {
	PID       int
	SessionID string
	State     string
	EnvRoot   string
}

// SaveServerStatus records the supervised server's current status
func (s *Store) SaveServerStatus(status ServerStatus) error {
	_, err := s.db.ExecContext(
		context.Background(),
		`INSERT INTO server (id, pid, session_id, state, env_root) VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET pid = excluded.pid, session_id = excluded.session_id,
		 state = excluded.state, env_root = excluded.env_root`,
		status.PID, status.SessionID, status.State, status.EnvRoot,
	)
	if err != nil {
		return fmt.Errorf("failed to save server status: %w", err)
	}
	return nil
}

// ServerStatusRecord returns the last recorded server status
func (s *Store) ServerStatusRecord() (ServerStatus, bool, error) {
	var status ServerStatus
	err := s.db.QueryRowContext(
		context.Background(),
		"SELECT pid, session_id, state, env_root FROM server WHERE id = 1",
	).Scan(&status.PID, &status.SessionID, &status.State, &status.EnvRoot)
	if errors.Is(err, sql.ErrNoRows) {
		return ServerStatus{}, false, nil
	}
	if err != nil {
		return ServerStatus{}, false, fmt.Errorf("failed to read server status: %w", err)
	}
	return status, true, nil
}

// StateDir returns the state directory path
func (s *Store) StateDir() string {
	return s.stateDir
}

// DBPath returns the database path
func (s *Store) DBPath() string {
	return s.dbPath
}

// Close closes the state store
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close state database: %w", err)
		}
	}
	return nil
}

// initDatabase creates the necessary tables if they don't exist
func initDatabase(db *sql.DB) error {
	createKVTable := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT NOT NULL,
		value TEXT,
		PRIMARY KEY (key)
	);`

	createProbesTable := `
	CREATE TABLE IF NOT EXISTS probes (
		path TEXT NOT NULL,
		mtime INTEGER,
		ok BOOLEAN,
		version TEXT,
		PRIMARY KEY (path)
	);`

	createServerTable := `
	CREATE TABLE IF NOT EXISTS server (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER,
		session_id TEXT,
		state TEXT,
		env_root TEXT
	);`

	for _, stmt := range []string{createKVTable, createProbesTable, createServerTable} {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("failed to create state table: %w", err)
		}
	}

	return nil
}
