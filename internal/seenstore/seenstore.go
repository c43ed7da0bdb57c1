// Package seenstore persists duplicate-filter admissions in SQLite so
// the in-memory cache survives restarts.
package seenstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding admitted article URLs.
type Store struct {
	conn *sql.DB
	path string
}

// Admission is one persisted duplicate-filter entry.
type Admission struct {
	URL        string
	Title      string
	Source     string
	AdmittedAt time.Time
}

// Open creates or opens the admissions database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath}, nil
}

func migrate(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS admissions (
			url         TEXT PRIMARY KEY,
			title       TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT '',
			admitted_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_admissions_admitted_at
			ON admissions(admitted_at);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record upserts an admission. Re-admitting a URL refreshes its timestamp.
func (s *Store) Record(a Admission) error {
	_, err := s.conn.Exec(`
		INSERT INTO admissions (url, title, source, admitted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			admitted_at = excluded.admitted_at
	`, a.URL, a.Title, a.Source, a.AdmittedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording admission: %w", err)
	}
	return nil
}

// Recent returns the most recently admitted entries, newest first,
// bounded by limit. Used to warm the duplicate filter at startup.
func (s *Store) Recent(limit int) ([]Admission, error) {
	rows, err := s.conn.Query(`
		SELECT url, title, source, admitted_at
		FROM admissions
		ORDER BY admitted_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying admissions: %w", err)
	}
	defer rows.Close()

	var out []Admission
	for rows.Next() {
		var a Admission
		if err := rows.Scan(&a.URL, &a.Title, &a.Source, &a.AdmittedAt); err != nil {
			return nil, fmt.Errorf("scanning admission: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes admissions older than the cutoff, returning the count.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.conn.Exec(
		"DELETE FROM admissions WHERE admitted_at < ?", cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning admissions: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored admissions.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM admissions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting admissions: %w", err)
	}
	return n, nil
}
