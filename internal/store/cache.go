// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists Inference outputs across pipeline runs so repeated
// extraction over an unchanged document skips redundant LLM calls.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is a SQLite-backed store of raw Inference output keyed by
// (document_id, chunk_index, pass, prompt_hash). The prompt hash is part of
// the key so a changed prompt (different task description, different
// few-shot examples, different chunk boundaries) never returns stale output.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at path, creating its parent
// directory and schema if they do not exist.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	c := &Cache{db: db}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return c, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) createSchema() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS inference_cache (
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		pass INTEGER NOT NULL,
		prompt_hash TEXT NOT NULL,
		output TEXT NOT NULL,
		PRIMARY KEY (document_id, chunk_index, pass, prompt_hash)
	)`)
	return err
}

// PromptHash returns the cache key component derived from a rendered
// prompt: the hex-encoded SHA-256 digest.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached output for (documentID, chunkIndex, pass, prompt),
// if present.
func (c *Cache) Get(ctx context.Context, documentID string, chunkIndex, pass int, prompt string) (output string, ok bool, err error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT output FROM inference_cache WHERE document_id = ? AND chunk_index = ? AND pass = ? AND prompt_hash = ?`,
		documentID, chunkIndex, pass, PromptHash(prompt),
	)

	if err := row.Scan(&output); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("querying inference cache: %w", err)
	}
	return output, true, nil
}

// Put stores output under (documentID, chunkIndex, pass, prompt), replacing
// any existing entry for the same key.
func (c *Cache) Put(ctx context.Context, documentID string, chunkIndex, pass int, prompt, output string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO inference_cache (document_id, chunk_index, pass, prompt_hash, output)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(document_id, chunk_index, pass, prompt_hash) DO UPDATE SET output = excluded.output`,
		documentID, chunkIndex, pass, PromptHash(prompt), output,
	)
	if err != nil {
		return fmt.Errorf("storing inference cache entry: %w", err)
	}
	return nil
}
