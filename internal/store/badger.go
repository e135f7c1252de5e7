package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"

	"github.com/54b3r/ytqa-go/internal/rag"
)

// badgerDir is the directory name inside the index directory.
const badgerDir = "badger"

// chunkPrefix namespaces chunk records in the keyspace.
var chunkPrefix = []byte("chunk/")

// badgerRecord is the JSON value stored for every chunk.
type badgerRecord struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Vector   []float32         `json:"vector"`
}

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// BadgerIndex is a rag.VectorStore backed by an embedded BadgerDB keyspace.
type BadgerIndex struct {
	// db is the underlying Badger database.
	db *badger.DB
}

// BadgerPath returns the Badger directory inside dir. An empty dir resolves
// to DefaultDir.
func BadgerPath(dir string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, badgerDir)
}

// OpenBadger opens (or creates) a BadgerIndex in dir. When inMemory is true
// dir is ignored and nothing touches disk.
func OpenBadger(dir string, inMemory bool, log *slog.Logger) (*BadgerIndex, error) {
	if log == nil {
		log = slog.Default()
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: could not create %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: log}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger %s: %w", dir, err)
	}
	return &BadgerIndex{db: db}, nil
}

// Upsert writes documents and their embeddings with a single write batch.
func (b *BadgerIndex) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("store: upsert: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		val, err := json.Marshal(badgerRecord{
			Content:  doc.Content,
			Metadata: nonNilMetadata(doc.Metadata),
			Vector:   embeddings[i],
		})
		if err != nil {
			return fmt.Errorf("store: upsert encode %s: %w", id, err)
		}
		if err := wb.Set(chunkKey(id), val); err != nil {
			return fmt.Errorf("store: upsert %s: %w", id, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("store: upsert flush: %w", err)
	}
	return nil
}

// Search iterates every chunk, keeps those matching filter, and returns the
// topK most similar to queryEmbedding.
func (b *BadgerIndex) Search(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]string) ([]rag.Document, error) {
	if topK <= 0 || len(queryEmbedding) == 0 {
		return []rag.Document{}, nil
	}

	var docs []rag.Document
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()

			var rec badgerRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}

			if !rag.MatchFilter(rec.Metadata, filter) || len(rec.Vector) != len(queryEmbedding) {
				continue
			}
			docs = append(docs, rag.Document{
				ID:       string(item.Key()[len(chunkPrefix):]),
				Content:  rec.Content,
				Metadata: rec.Metadata,
				Score:    rag.Cosine(queryEmbedding, rec.Vector),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}

	return rag.TopK(docs, topK), nil
}

// ListIDs returns every resident chunk ID in key order.
func (b *BadgerIndex) ListIDs(_ context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(chunkPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list ids: %w", err)
	}
	return ids, nil
}

// Delete removes the given IDs with a single write batch.
func (b *BadgerIndex) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, id := range ids {
		if err := wb.Delete(chunkKey(id)); err != nil {
			return fmt.Errorf("store: delete %s: %w", id, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("store: delete flush: %w", err)
	}
	return nil
}

// Ping reports an error once the database has been closed.
func (b *BadgerIndex) Ping(_ context.Context) error {
	if b.db.IsClosed() {
		return errors.New("store: badger database is closed")
	}
	return nil
}

// Close closes the Badger database.
func (b *BadgerIndex) Close() error {
	return b.db.Close()
}

// chunkKey builds the key for a chunk ID.
func chunkKey(id string) []byte {
	return append(append([]byte{}, chunkPrefix...), id...)
}
