package miner

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// FetchCache is a local TTL'd page cache backed by SQLite. It keeps the
// miner from re-downloading docs/repo pages on every run inside the cache
// window.
type FetchCache struct {
	db *sql.DB
}

// NewFetchCache opens (or creates) a cache database at the given path and
// configures WAL mode.
func NewFetchCache(dsn string) (*FetchCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS fetch_cache (
	url        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	fetched_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires_at ON fetch_cache(expires_at);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "cache: migrate")
	}

	return &FetchCache{db: db}, nil
}

// Get returns the cached body for a URL, or (nil, false) on a miss or an
// expired entry.
func (c *FetchCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT body FROM fetch_cache WHERE url = ? AND expires_at > ?`,
		url, time.Now().UTC(),
	)

	var body []byte
	err := row.Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: get")
	}
	return body, true, nil
}

// Set stores a fetched body under its URL with a TTL, replacing any previous
// entry.
func (c *FetchCache) Set(ctx context.Context, url string, body []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO fetch_cache (url, body, fetched_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET body = excluded.body,
		 	fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		url, body, now, now.Add(ttl),
	)
	return eris.Wrap(err, "cache: set")
}

// DeleteExpired removes entries past their TTL and returns the count.
func (c *FetchCache) DeleteExpired(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM fetch_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "cache: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "cache: rows affected")
}

// Close closes the underlying database.
func (c *FetchCache) Close() error {
	return c.db.Close()
}
