// Package sqlite implements the credential and login-history capabilities on
// a SQLite database, as an alternative to the flat-file backend.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/avolkov/chatline/internal/auth"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	name       TEXT PRIMARY KEY,
	credential TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS login_history (
	name       TEXT PRIMARY KEY,
	last_login INTEGER NOT NULL
);
`

// Store implements store.Store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database and applies the schema.
func New(dbPath string) (*Store, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup opens the database and runs an extra setup function after the
// schema is applied. Useful for tests to seed rows without a running server.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists implements store.Authorizer.
func (s *Store) Exists(name string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM users WHERE name = ?`, name).Scan(&one)
	return err == nil
}

// Match implements store.Authorizer.
func (s *Store) Match(name, password string) bool {
	var stored string
	err := s.db.QueryRow(`SELECT credential FROM users WHERE name = ?`, name).Scan(&stored)
	if err != nil {
		return false
	}
	return auth.MatchPassword(stored, password)
}

// AddUser inserts a credential row; intended for provisioning and tests.
func (s *Store) AddUser(name, credential string) error {
	if _, err := s.db.Exec(`INSERT INTO users (name, credential) VALUES (?, ?)`, name, credential); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// RecordLogin implements store.LoginHistory.
func (s *Store) RecordLogin(name string) error {
	query := `
		INSERT INTO login_history (name, last_login) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_login = excluded.last_login
	`
	if _, err := s.db.Exec(query, name, s.now().Unix()); err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// NamesLoggedInSince implements store.LoginHistory.
func (s *Store) NamesLoggedInSince(window time.Duration) ([]string, error) {
	cutoff := s.now().Add(-window).Unix()
	rows, err := s.db.Query(`SELECT name FROM login_history WHERE last_login >= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
