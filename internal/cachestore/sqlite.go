package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache     TEXT    NOT NULL,
	key       TEXT    NOT NULL,
	status    INTEGER NOT NULL,
	header    TEXT    NOT NULL DEFAULT '{}',
	body      BLOB,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (cache, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_stored_at ON cache_entries (cache, stored_at DESC);
`

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the cache database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite cache store: db path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite cache store: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite cache store: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("sqlite cache store: set busy timeout: %w", err)
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("sqlite cache store: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores or replaces an entry.
func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	if e.Cache == "" || e.Key == "" {
		return fmt.Errorf("sqlite cache store: cache and key are required")
	}
	header, err := encodeHeader(e.Header)
	if err != nil {
		return err
	}
	body, err := encodeBody(e.Body)
	if err != nil {
		return err
	}
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO cache_entries (cache, key, status, header, body, stored_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (cache, key) DO UPDATE SET
	status = excluded.status,
	header = excluded.header,
	body = excluded.body,
	stored_at = excluded.stored_at`,
		e.Cache, e.Key, e.Status, header, body, storedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite cache store: put %s: %w", e.Key, err)
	}
	return nil
}

// Get returns the entry for key in cache.
func (s *SQLiteStore) Get(ctx context.Context, cache, key string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM cache_entries WHERE cache = ? AND key = ?`,
		cache, key)

	var (
		status   int
		header   string
		body     []byte
		storedAt int64
	)
	if err := row.Scan(&status, &header, &body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("sqlite cache store: get %s: %w", key, err)
	}

	h, err := decodeHeader(header)
	if err != nil {
		return Entry{}, err
	}
	b, err := decodeBody(body)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Cache:    cache,
		Key:      key,
		Status:   status,
		Header:   h,
		Body:     b,
		StoredAt: time.Unix(0, storedAt),
	}, nil
}

// Keys lists the keys in cache, newest first.
func (s *SQLiteStore) Keys(ctx context.Context, cache string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE cache = ? ORDER BY stored_at DESC, key`, cache)
	if err != nil {
		return nil, fmt.Errorf("sqlite cache store: list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite cache store: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Trim removes expired entries and enforces maxEntries.
func (s *SQLiteStore) Trim(ctx context.Context, cache string, maxEntries int, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite cache store: begin trim: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	if !cutoff.IsZero() {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE cache = ? AND stored_at < ?`, cache, cutoff.UnixNano())
		if err != nil {
			return 0, fmt.Errorf("sqlite cache store: expire entries: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if maxEntries > 0 {
		res, err := tx.ExecContext(ctx, `
DELETE FROM cache_entries
WHERE cache = ? AND key NOT IN (
	SELECT key FROM cache_entries WHERE cache = ? ORDER BY stored_at DESC, key LIMIT ?
)`, cache, cache, maxEntries)
		if err != nil {
			return 0, fmt.Errorf("sqlite cache store: trim entries: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite cache store: commit trim: %w", err)
	}
	return int(removed), nil
}

// CacheNames lists caches holding entries.
func (s *SQLiteStore) CacheNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT cache FROM cache_entries ORDER BY cache`)
	if err != nil {
		return nil, fmt.Errorf("sqlite cache store: list caches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("sqlite cache store: scan cache name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// DeleteCache removes every entry of cache.
func (s *SQLiteStore) DeleteCache(ctx context.Context, cache string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache = ?`, cache); err != nil {
		return fmt.Errorf("sqlite cache store: delete cache %s: %w", cache, err)
	}
	return nil
}
