// Package store keeps a history of generated playlists in SQLite. Each row
// records one successful pipeline run: its keywords, the image description,
// the recommended song names and, when one was created, the playlist link.
// Image bytes are never stored.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/toonify-go/internal/pipeline"
)

// DefaultRecent is the number of runs returned when no limit is given.
const DefaultRecent = 20

// maxRecent caps a single Recent call.
const maxRecent = 200

// Run is one persisted pipeline run.
type Run struct {
	// ID is a random UUID assigned by Save when empty.
	ID string `json:"id"`
	// CreatedAt is set by Save when zero.
	CreatedAt time.Time `json:"created_at"`
	// ShortKeywords are the keywords the playlist was named from.
	ShortKeywords []string `json:"short_keywords"`
	// Description is the vision model's description of the image.
	Description string `json:"description"`
	// Songs lists the recommended track names in rank order.
	Songs []string `json:"songs"`
	// PlaylistURL links to the created playlist, or is empty.
	PlaylistURL string `json:"playlist_url,omitempty"`
}

// NewRun builds the history row for a pipeline result. playlistURL may be
// empty.
func NewRun(res *pipeline.Result, playlistURL string) *Run {
	run := &Run{
		ShortKeywords: res.ShortKeywords,
		Description:   res.Description,
		Songs:         make([]string, 0, len(res.Songs)),
		PlaylistURL:   playlistURL,
	}
	for _, sg := range res.Songs {
		run.Songs = append(run.Songs, sg.DisplayName())
	}
	return run
}

// History persists and lists runs. Implementations must be safe for
// concurrent use.
type History interface {
	// Save persists run, filling ID and CreatedAt when unset.
	Save(ctx context.Context, run *Run) error
	// Recent returns up to n runs, newest first.
	Recent(ctx context.Context, n int) ([]Run, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a History backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns TOONIFY_HISTORY_DB when set, otherwise
// ~/.toonify/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	if p := os.Getenv("TOONIFY_HISTORY_DB"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".toonify")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: a single writer, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT    NOT NULL UNIQUE,
    created_at     INTEGER NOT NULL, -- Unix nanoseconds
    short_keywords TEXT    NOT NULL, -- JSON array
    description    TEXT    NOT NULL,
    songs          TEXT    NOT NULL, -- JSON array
    playlist_url   TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save persists run, filling ID and CreatedAt when unset.
func (s *SQLiteStore) Save(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("store: save: nil run")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	kw, err := json.Marshal(nonNil(run.ShortKeywords))
	if err != nil {
		return fmt.Errorf("store: save: encode keywords: %w", err)
	}
	songs, err := json.Marshal(nonNil(run.Songs))
	if err != nil {
		return fmt.Errorf("store: save: encode songs: %w", err)
	}

	const q = `INSERT INTO runs (id, created_at, short_keywords, description, songs, playlist_url) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, run.ID, run.CreatedAt.UnixNano(), string(kw), run.Description, string(songs), run.PlaylistURL); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first. n <= 0 selects DefaultRecent.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		n = DefaultRecent
	}
	n = min(n, maxRecent)

	const q = `
SELECT id, created_at, short_keywords, description, songs, playlist_url
FROM   runs
ORDER  BY created_at DESC, seq DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r         Run
			ts        int64
			kw, songs string
		)
		if err := rows.Scan(&r.ID, &ts, &kw, &r.Description, &songs, &r.PlaylistURL); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		r.CreatedAt = time.Unix(0, ts).UTC()
		if err := json.Unmarshal([]byte(kw), &r.ShortKeywords); err != nil {
			return nil, fmt.Errorf("store: recent: decode keywords for %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(songs), &r.Songs); err != nil {
			return nil, fmt.Errorf("store: recent: decode songs for %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return runs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
