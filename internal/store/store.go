package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// dsnParams are appended to every database path.
// _txlock=immediate makes BEGIN take the write lock, so a transition's
// read of the current status and its conditional update cannot interleave
// with another writer.
const dsnParams = "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"

// pragma is a connection setting applied on open. want is the value
// SQLite reports back once the setting took effect.
type pragma struct {
	name, value, want string
}

var pragmas = []pragma{
	{"journal_mode", "WAL", "wal"},
	{"synchronous", "NORMAL", "1"},
	{"busy_timeout", "5000", "5000"},
	{"foreign_keys", "ON", "1"},
}

// migrations upgrade databases created by older builds. schema.sql always
// describes the latest layout; entry i moves user_version from i to i+1.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_visibilities_puzzle ON visibilities(puzzle_id)`,
}

// schemaVersion is the user_version of a fully migrated database.
var schemaVersion = len(migrations)

// Store is the SQLite backend for hunt progress.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path, applying pragmas,
// schema and pending migrations. Opening an existing database is safe and
// keeps its data. ":memory:" gives an isolated in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; a single connection also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return s.migrate()
}

func (s *Store) migrate() error {
	version, err := s.pragma("user_version")
	if err != nil {
		return err
	}
	var from int
	if _, err := fmt.Sscan(version, &from); err != nil {
		return fmt.Errorf("parse user_version %q: %w", version, err)
	}
	for v := from; v < schemaVersion; v++ {
		if _, err := s.db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// pragma reads the current value of a pragma as text.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for administrative queries and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
