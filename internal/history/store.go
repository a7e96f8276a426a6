// Package history persists what was dictated: a sqlite-backed list of recent
// results, the human-readable transcript log and the ideas log.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DefaultMaxItems caps the store when no limit is configured.
const DefaultMaxItems = 50

// Entry is one dictation result.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`
	Seconds   float64   `json:"seconds"`
	Raw       string    `json:"raw"`
	Final     string    `json:"final"`
	Idea      bool      `json:"idea,omitempty"`
}

// Store keeps the most recent entries, newest first.
type Store struct {
	db       *sql.DB
	maxItems int
	log      *logrus.Logger
	clock    func() time.Time
}

// Open creates or opens the history database at path.
func Open(ctx context.Context, path string, maxItems int, log *logrus.Logger) (*Store, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if log == nil {
		log = logrus.New()
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, maxItems: maxItems, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    backend TEXT,
    seconds REAL,
    raw_text TEXT,
    final_text TEXT NOT NULL,
    idea INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts e at the head. Empty results and repeats of the newest entry
// are skipped; the bool reports whether a row was written.
func (s *Store) Add(ctx context.Context, e Entry) (bool, error) {
	e.Final = strings.TrimSpace(e.Final)
	e.Raw = strings.TrimSpace(e.Raw)
	if e.Final == "" {
		return false, nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var newest string
	err = tx.QueryRowContext(ctx, `SELECT final_text FROM history ORDER BY id DESC LIMIT 1`).Scan(&newest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, err
	case newest == e.Final:
		s.log.Debugf("history: skipping repeat of newest entry")
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history(created_at, backend, seconds, raw_text, final_text, idea) VALUES(?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.Backend, e.Seconds, e.Raw, e.Final, boolInt(e.Idea)); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)`, s.maxItems); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.maxItems {
		limit = s.maxItems
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, backend, seconds, raw_text, final_text, idea
		 FROM history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
			idea    int
		)
		if err := rows.Scan(&e.ID, &created, &e.Backend, &e.Seconds, &e.Raw, &e.Final, &idea); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.Timestamp = ts
		}
		e.Idea = idea != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history`)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
