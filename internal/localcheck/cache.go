package localcheck

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Cache stores check results keyed by kind, directory and content fingerprint.
type Cache interface {
	Get(kind, dir, fingerprint string) ([]byte, bool)
	Put(kind, dir, fingerprint string, value []byte) error
}

// Cache kinds.
const (
	KindTypeCheck = "typecheck"
	KindTests     = "tests"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteCache is a Cache backed by a SQLite database. Entries older than
// the TTL are treated as missing and pruned on Put.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	mu  sync.Mutex
}

// OpenSQLiteCache opens (or creates) a cache database at path. A path of
// ":memory:" keeps the cache in memory.
func OpenSQLiteCache(path string, ttl time.Duration) (*SQLiteCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("localcheck: create cache dir: %w", err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localcheck: open cache: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	stmts := []string{
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS check_results (
			kind        TEXT NOT NULL,
			dir         TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			value       BLOB NOT NULL,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (kind, dir, fingerprint)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("localcheck: init cache: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SQLiteCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get implements Cache.
func (c *SQLiteCache) Get(kind, dir, fingerprint string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var value []byte
	var created int64
	err := c.db.QueryRow(
		`SELECT value, created_at FROM check_results WHERE kind = ? AND dir = ? AND fingerprint = ?`,
		kind, dir, fingerprint,
	).Scan(&value, &created)
	if err != nil {
		return nil, false
	}
	if c.now().Sub(time.Unix(0, created)) > c.ttl {
		return nil, false
	}
	return value, true
}

// Put implements Cache.
func (c *SQLiteCache) Put(kind, dir, fingerprint string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, err := c.db.Exec(
		`INSERT INTO check_results (kind, dir, fingerprint, value, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (kind, dir, fingerprint) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		kind, dir, fingerprint, value, now.UnixNano(),
	); err != nil {
		return fmt.Errorf("localcheck: write cache: %w", err)
	}
	if _, err := c.db.Exec(`DELETE FROM check_results WHERE created_at < ?`, now.Add(-c.ttl).UnixNano()); err != nil {
		return fmt.Errorf("localcheck: prune cache: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func getCached[T any](cache Cache, kind, dir string, opts RunOptions) (T, bool) {
	var zero T
	if cache == nil || opts.Fingerprint == "" || opts.BypassCache {
		return zero, false
	}
	data, ok := cache.Get(kind, dir, opts.Fingerprint)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false
	}
	return v, true
}

func putCached(cache Cache, kind, dir string, opts RunOptions, v any) error {
	if cache == nil || opts.Fingerprint == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return cache.Put(kind, dir, opts.Fingerprint, data)
}
