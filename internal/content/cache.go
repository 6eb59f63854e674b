package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cache keeps query results on disk keyed by query text and parameters.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the cache database at path. ":memory:" keeps
// it in process.
func OpenCache(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// one connection: an in-memory database is private to its connection
	db.SetMaxOpenConns(1)

	const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		cache_key TEXT PRIMARY KEY,
		body      BLOB NOT NULL,
		stored_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached body of key and when it was stored.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var (
		body   []byte
		stored int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT body, stored_at FROM documents WHERE cache_key = ?`, key).Scan(&body, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("reading cache: %w", err)
	}
	return body, time.Unix(0, stored), true, nil
}

func (c *Cache) Put(ctx context.Context, key string, body []byte, at time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (cache_key, body, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET body = excluded.body, stored_at = excluded.stored_at`,
		key, body, at.UnixNano())
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}
