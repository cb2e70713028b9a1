// Package history persists REPL input in a SQLite database. Each REPL
// session gets a UUID so entries from concurrent sessions stay apart.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("oxython.history")

// Entry is one line entered at the REPL
type Entry struct {
	ID        int64
	Session   string
	Line      string
	CreatedAt time.Time
}

// Store handles SQLite storage for REPL history
type Store struct {
	db      *sql.DB
	path    string
	session string
	limit   int
	mu      sync.Mutex
}

// Open opens (creating if needed) the history database at path. limit
// caps the number of rows kept; 0 keeps everything.
func Open(path string, limit int) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection so :memory: databases are shared by every query
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		line TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	s := &Store{db: db, path: path, session: uuid.NewString(), limit: limit}
	log.Debugf("history %s opened, session %s", path, s.session)
	return s, nil
}

// Session returns the UUID of this store's REPL session
func (s *Store) Session() string {
	return s.session
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Add records a line for the current session and trims the oldest rows
// beyond the limit.
func (s *Store) Add(ctx context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO history (session, line, created_at) VALUES (?, ?, ?)",
		s.session, line, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving history: %w", err)
	}

	if s.limit > 0 {
		_, err = s.db.ExecContext(ctx,
			"DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)",
			s.limit,
		)
		if err != nil {
			return fmt.Errorf("trimming history: %w", err)
		}
	}
	return nil
}

// Recent returns up to n entries from all sessions, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	return s.query(ctx,
		"SELECT id, session, line, created_at FROM (SELECT * FROM history ORDER BY id DESC LIMIT ?) ORDER BY id",
		n,
	)
}

// SessionEntries returns this session's entries, oldest first.
func (s *Store) SessionEntries(ctx context.Context) ([]Entry, error) {
	return s.query(ctx,
		"SELECT id, session, line, created_at FROM history WHERE session = ? ORDER BY id",
		s.session,
	)
}

// Count returns the number of stored entries
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM history").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting history: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Session, &e.Line, &created); err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}
