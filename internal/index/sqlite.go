package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteIndex is a Store backed by a local SQLite file. Queries run an exact
// cosine scan over an in-memory snapshot of the collection that is loaded on
// first use and dropped whenever the collection is written.
type SQLiteIndex struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// collection is the logical namespace queried and written.
	collection string

	// mu guards snapshot.
	mu sync.RWMutex
	// snapshot caches the decoded collection; nil until first query.
	snapshot *sqliteSnapshot
}

// sqliteSnapshot is the decoded content of one collection.
type sqliteSnapshot struct {
	dimension int
	records   []Record
}

// DefaultSQLitePath returns ~/.toonify/index.db, creating the directory if
// needed.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("index: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".toonify")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("index: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// OpenSQLite opens (or creates) the index database at path. Use ":memory:"
// in tests. Failure to open or migrate wraps ErrIndexUnavailable.
func OpenSQLite(path, collection string) (*SQLiteIndex, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIndexUnavailable, path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteIndex{db: db, collection: collection}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteIndex) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS collections (
    name        TEXT    PRIMARY KEY,
    dimension   INTEGER NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
    collection  TEXT NOT NULL REFERENCES collections (name) ON DELETE CASCADE,
    id          TEXT NOT NULL,
    document    TEXT NOT NULL,
    metadata    TEXT NOT NULL,  -- JSON object
    embedding   BLOB NOT NULL,  -- little-endian float32
    PRIMARY KEY (collection, id)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}
	return nil
}

// Name implements Store.
func (s *SQLiteIndex) Name() string { return "sqlite" }

// Ping implements Store.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// EnsureCollection implements Store.
func (s *SQLiteIndex) EnsureCollection(ctx context.Context, dimension int, recreate bool) error {
	if dimension <= 0 {
		return fmt.Errorf("index: dimension must be positive, got %d", dimension)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if recreate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, s.collection); err != nil {
			return fmt.Errorf("index: drop records: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
			return fmt.Errorf("index: drop collection: %w", err)
		}
	}

	var existing int
	err = tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		const q = `INSERT INTO collections (name, dimension, created_at) VALUES (?, ?, ?)`
		if _, err := tx.ExecContext(ctx, q, s.collection, dimension, time.Now().Unix()); err != nil {
			return fmt.Errorf("index: create collection: %w", err)
		}
	case err != nil:
		return fmt.Errorf("index: lookup collection: %w", err)
	case existing != dimension:
		return fmt.Errorf("index: collection %q has dimension %d, encoder produces %d", s.collection, existing, dimension)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	s.invalidate()
	return nil
}

// Upsert implements Store.
func (s *SQLiteIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var dimension int
	err = tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	if err != nil {
		return fmt.Errorf("index: lookup collection: %w", err)
	}

	const q = `
INSERT INTO records (collection, id, document, metadata, embedding) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET
    document = excluded.document, metadata = excluded.metadata, embedding = excluded.embedding`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("index: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if len(r.Embedding) != dimension {
			return fmt.Errorf("index: record %q has dimension %d, collection expects %d", r.ID, len(r.Embedding), dimension)
		}
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("index: marshal metadata for %q: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, r.ID, r.Document, string(md), encodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("index: upsert %q: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	s.invalidate()
	return nil
}

// Query implements Querier with an exact cosine scan.
func (s *SQLiteIndex) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if err := validateQuery(embedding, k); err != nil {
		return nil, err
	}
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(embedding) != snap.dimension {
		return nil, fmt.Errorf("index: query dimension %d does not match collection dimension %d", len(embedding), snap.dimension)
	}

	matches := make([]Match, 0, len(snap.records))
	for _, r := range snap.records {
		matches = append(matches, Match{
			ID:       r.ID,
			Distance: cosineDistance(embedding, r.Embedding),
			Document: r.Document,
			Metadata: r.Metadata,
		})
	}
	return sortMatches(matches, k), nil
}

// load returns the cached snapshot, reading the collection on first use.
func (s *SQLiteIndex) load(ctx context.Context) (*sqliteSnapshot, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		return s.snapshot, nil
	}

	var dimension int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata, embedding FROM records WHERE collection = ? ORDER BY id`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	snap = &sqliteSnapshot{dimension: dimension}
	for rows.Next() {
		var (
			r    Record
			md   string
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Document, &md, &blob); err != nil {
			return nil, fmt.Errorf("index: scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(md), &r.Metadata); err != nil {
			return nil, fmt.Errorf("index: decode metadata for %q: %w", r.ID, err)
		}
		r.Embedding = decodeVector(blob)
		snap.records = append(snap.records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: read records: %w", err)
	}

	s.snapshot = snap
	return snap, nil
}

// invalidate drops the cached snapshot after a write.
func (s *SQLiteIndex) invalidate() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

// Close releases the database connection pool.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}

// encodeVector packs v as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
