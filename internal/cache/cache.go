// Package cache memoizes compiled chunks keyed by canonical import path plus
// a digest of the source that produced them. A local sqlite-backed tier is
// always present; an optional remote tier, reached over line-delimited
// JSON-RPC on a subprocess's stdin/stdout (see remote.go), lets a compile
// cache be shared across machines via cmd/izb-cached.
package cache

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	_ "modernc.org/sqlite"

	"izb/internal/bytecode"
	"izb/internal/chunk"
)

// Digest returns the cache key's content half: a hex sha256 of source.
func Digest(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Local is a sqlite-backed cache of compiled chunks, keyed by
// (canonical path, digest).
type Local struct {
	db *sql.DB
}

// OpenLocal opens (creating if needed) a sqlite database at path and
// ensures the chunks table exists.
func OpenLocal(path string) (*Local, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	const schema = `
	CREATE TABLE IF NOT EXISTS chunks (
		path   TEXT NOT NULL,
		digest TEXT NOT NULL,
		data   BLOB NOT NULL,
		PRIMARY KEY (path, digest)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Local{db: db}, nil
}

func (l *Local) Close() error { return l.db.Close() }

func (l *Local) Get(path, digest string) (*chunk.Chunk, bool, error) {
	row := l.db.QueryRow(`SELECT data FROM chunks WHERE path = ? AND digest = ?`, path, digest)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	c, err := bytecode.Read(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (l *Local) Put(path, digest string, c *chunk.Chunk) error {
	var buf bytes.Buffer
	if err := bytecode.Write(&buf, c); err != nil {
		return err
	}
	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO chunks (path, digest, data) VALUES (?, ?, ?)`,
		path, digest, buf.Bytes(),
	)
	return err
}

// Cache composes a required local tier with an optional remote tier: reads
// check local first, falling back to remote and backfilling local on a
// remote hit; writes go to both.
type Cache struct {
	local  *Local
	remote *Remote
}

func New(local *Local, remote *Remote) *Cache {
	return &Cache{local: local, remote: remote}
}

func (c *Cache) Get(path string, source []byte) (*chunk.Chunk, bool, error) {
	digest := Digest(source)

	if ch, ok, err := c.local.Get(path, digest); err != nil {
		return nil, false, err
	} else if ok {
		return ch, true, nil
	}

	if c.remote == nil {
		return nil, false, nil
	}

	data, ok, err := c.remote.Get(path, digest)
	if err != nil || !ok {
		return nil, false, err
	}
	ch, err := bytecode.Read(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	if err := c.local.Put(path, digest, ch); err != nil {
		return nil, false, err
	}
	return ch, true, nil
}

func (c *Cache) Put(path string, source []byte, ch *chunk.Chunk) error {
	digest := Digest(source)

	if err := c.local.Put(path, digest, ch); err != nil {
		return err
	}
	if c.remote == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := bytecode.Write(&buf, ch); err != nil {
		return err
	}
	return c.remote.Put(path, digest, buf.Bytes())
}
