// Package store provides embedded, file-backed implementations of
// rag.VectorStore. Records live under a fixed process-relative directory
// (./vector_db by default) so an index survives restarts, and reopening an
// existing index never duplicates or rewrites its records.
//
// Two engines are available: SQLiteIndex (the default) and BadgerIndex.
// Both score with brute-force cosine similarity, which is exact and fast
// enough for a single resident video of a few hundred chunks.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/ytqa-go/internal/rag"
)

// DefaultDir is the directory that holds persistent index files.
const DefaultDir = "vector_db"

// sqliteFile is the database file name inside the index directory.
const sqliteFile = "index.db"

// deleteBatch bounds the number of placeholders per DELETE statement.
const deleteBatch = 500

// SQLiteIndex is a rag.VectorStore backed by a local SQLite database.
type SQLiteIndex struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// SQLitePath returns the database path inside dir, creating dir if needed.
// An empty dir resolves to DefaultDir.
func SQLitePath(dir string) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, sqliteFile), nil
}

// OpenSQLite opens (or creates) a SQLiteIndex at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single connection: writes never race and an in-memory
	// database is shared by every query.
	db.SetMaxOpenConns(1)

	s := &SQLiteIndex{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteIndex) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id          TEXT    PRIMARY KEY,
    content     TEXT    NOT NULL,
    metadata    TEXT    NOT NULL DEFAULT '{}',  -- JSON object of string values
    embedding   BLOB    NOT NULL,               -- little-endian float32
    created_at  INTEGER NOT NULL                -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_chunks_video
    ON chunks (json_extract(metadata, '$.video_id'));
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Upsert inserts or replaces documents and their embeddings in one transaction.
func (s *SQLiteIndex) Upsert(ctx context.Context, docs []rag.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("store: upsert: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: upsert begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO chunks (id, content, metadata, embedding, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    content   = excluded.content,
    metadata  = excluded.metadata,
    embedding = excluded.embedding`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: upsert prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		meta, err := json.Marshal(nonNilMetadata(doc.Metadata))
		if err != nil {
			return fmt.Errorf("store: upsert metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, id, doc.Content, string(meta), encodeVector(embeddings[i]), now); err != nil {
			return fmt.Errorf("store: upsert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: upsert commit: %w", err)
	}
	return nil
}

// Search scans the rows matching filter and returns the topK most similar.
func (s *SQLiteIndex) Search(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]string) ([]rag.Document, error) {
	if topK <= 0 || len(queryEmbedding) == 0 {
		return []rag.Document{}, nil
	}

	var (
		where []string
		args  []any
	)
	for k, v := range filter {
		where = append(where, "json_extract(metadata, ?) = ?")
		args = append(args, jsonPath(k), v)
	}
	q := `SELECT id, content, metadata, embedding FROM chunks`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		var (
			doc  rag.Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("store: search scan: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("store: search %s: %w", doc.ID, err)
		}
		if len(vec) != len(queryEmbedding) {
			continue
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("store: search %s metadata: %w", doc.ID, err)
		}
		doc.Score = rag.Cosine(queryEmbedding, vec)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search rows: %w", err)
	}

	return rag.TopK(docs, topK), nil
}

// ListIDs returns every resident chunk ID in insertion order.
func (s *SQLiteIndex) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: list ids scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list ids rows: %w", err)
	}
	return ids, nil
}

// Delete removes the given IDs in one transaction.
func (s *SQLiteIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(ids); start += deleteBatch {
		end := min(start+deleteBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		q := `DELETE FROM chunks WHERE id IN (?` + strings.Repeat(",?", len(batch)-1) + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store: delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete commit: %w", err)
	}
	return nil
}

// Ping verifies the database connection is usable.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// jsonPath builds a quoted JSON path so keys containing dots stay literal.
func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

// nonNilMetadata returns m, or an empty map when m is nil, so stored
// metadata always decodes to an object.
func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
