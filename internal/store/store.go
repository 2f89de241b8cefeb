// Package store provides a SQLite-backed history of generated recipes.
// Every successful generation is persisted so users can revisit past recipes
// across server restarts; retrieval provenance (which strategy grounded the
// generation) is kept alongside for debugging retrieval quality.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/mealy/mealy-go/internal/recipegen"
)

// Entry is one persisted generation.
type Entry struct {
	// ID is the auto-assigned row id.
	ID int64
	// UserID identifies who requested the generation.
	UserID string
	// Title is the generated recipe's title, denormalized for listing.
	Title string
	// Recipe is the full structured recipe.
	Recipe recipegen.Recipe
	// Strategy is the retrieval strategy that grounded the generation.
	Strategy string
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}

// HistoryStore persists and retrieves generated recipes keyed by user.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Save persists a generated recipe for the given user.
	Save(ctx context.Context, userID string, recipe *recipegen.Recipe, strategy string) error
	// Recent returns the most recent n entries for the user, newest first.
	// If fewer than n entries exist, all are returned.
	Recent(ctx context.Context, userID string, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a HistoryStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the recipe history database.
// It resolves to ~/.mealy/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".mealy")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS generated_recipes (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id      TEXT    NOT NULL,
    title        TEXT    NOT NULL,
    recipe_json  TEXT    NOT NULL,
    strategy     TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_generated_recipes_user_created
    ON generated_recipes (user_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save persists a generated recipe for the given user.
func (s *SQLiteStore) Save(ctx context.Context, userID string, recipe *recipegen.Recipe, strategy string) error {
	blob, err := json.Marshal(recipe)
	if err != nil {
		return fmt.Errorf("store: marshal recipe: %w", err)
	}

	const q = `INSERT INTO generated_recipes (user_id, title, recipe_json, strategy, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, userID, recipe.Title, string(blob), strategy, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries for the user, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, userID string, n int) ([]Entry, error) {
	const q = `
SELECT id, user_id, title, recipe_json, strategy, created_at
FROM   generated_recipes
WHERE  user_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, userID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var blob string
		var ts int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &blob, &e.Strategy, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(blob), &e.Recipe); err != nil {
			return nil, fmt.Errorf("store: recent unmarshal recipe %d: %w", e.ID, err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
