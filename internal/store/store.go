// Package store persists session transcripts to SQLite. Persistence is
// optional; the client runs fully in memory when no database path is
// configured.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"CampusChat/internal/session"
)

// Store wraps the transcript database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the transcript database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}

	createSessions := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME
	);`

	createTurns := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	if _, err := db.Exec(createSessions); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	if _, err := db.Exec(createTurns); err != nil {
		return nil, fmt.Errorf("failed to create turns table: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveSession writes the session and its full transcript. Rewriting the
// same session replaces its previously stored turns.
func (s *Store) SaveSession(sess *session.Session, turns []session.Turn) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO sessions (id, start_time) VALUES (?, ?)",
		sess.ID, sess.StartTime,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM turns WHERE session_id = ?", sess.ID); err != nil {
		return fmt.Errorf("failed to clear stored turns: %w", err)
	}

	for _, turn := range turns {
		_, err = tx.Exec(
			"INSERT INTO turns (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
			sess.ID, string(turn.Role), turn.Text, turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadTurns reads a stored transcript back in insertion order.
func (s *Store) LoadTurns(sessionID string) ([]session.Turn, error) {
	rows, err := s.db.Query(
		"SELECT role, content, timestamp FROM turns WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	var turns []session.Turn
	for rows.Next() {
		var role, content string
		var ts time.Time
		if err := rows.Scan(&role, &content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, session.Turn{Role: session.Role(role), Text: content, Timestamp: ts})
	}
	return turns, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
