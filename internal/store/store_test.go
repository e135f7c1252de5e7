package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ytqa-go/internal/rag"
)

// openTestSQLite opens an in-memory SQLiteIndex for use in tests.
func openTestSQLite(t *testing.T) rag.VectorStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// openTestBadger opens an in-memory BadgerIndex for use in tests.
func openTestBadger(t *testing.T) rag.VectorStore {
	t.Helper()
	b, err := OpenBadger("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// engines lists every embedded engine so each behaviour runs against both.
var engines = []struct {
	name string
	open func(t *testing.T) rag.VectorStore
}{
	{"sqlite", openTestSQLite},
	{"badger", openTestBadger},
}

// chunk builds a transcript document for videoID.
func chunk(videoID, content string) rag.Document {
	return rag.Document{
		Content: content,
		Metadata: map[string]string{
			rag.MetaVideoID:  videoID,
			rag.MetaLanguage: "en",
			rag.MetaSource:   "youtube",
		},
	}
}

func Test_Index_UpsertAssignsIDsAndLists(t *testing.T) {
	t.Parallel()
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			t.Parallel()
			s := e.open(t)
			ctx := context.Background()

			docs := []rag.Document{chunk("v1", "a"), chunk("v1", "b")}
			require.NoError(t, s.Upsert(ctx, docs, [][]float32{{1, 0}, {0, 1}}))

			ids, err := s.ListIDs(ctx)
			require.NoError(t, err)
			require.Len(t, ids, 2)
			for _, id := range ids {
				assert.Len(t, id, 36, "expected a UUID")
			}
		})
	}
}

func Test_Index_UpsertLengthMismatch(t *testing.T) {
	t.Parallel()
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			t.Parallel()
			s := e.open(t)
			err := s.Upsert(context.Background(), []rag.Document{chunk("v", "x")}, nil)
			assert.Error(t, err)
		})
	}
}

func Test_Index_SearchFiltersAndOrders(t *testing.T) {
	t.Parallel()
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			t.Parallel()
			s := e.open(t)
			ctx := context.Background()

			require.NoError(t, s.Upsert(ctx,
				[]rag.Document{chunk("v1", "east"), chunk("v1", "north"), chunk("v2", "exact")},
				[][]float32{{1, 0}, {0, 1}, {0.9, 0.1}},
			))

			got, err := s.Search(ctx, []float32{0.9, 0.1}, 5, map[string]string{rag.MetaVideoID: "v1"})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "east", got[0].Content)
			assert.Equal(t, "north", got[1].Content)
			assert.Greater(t, got[0].Score, got[1].Score)
			assert.Equal(t, "v1", got[0].Metadata[rag.MetaVideoID])
			assert.Equal(t, "youtube", got[0].Metadata[rag.MetaSource])

			all, err := s.Search(ctx, []float32{0.9, 0.1}, 1, nil)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "exact", all[0].Content)
		})
	}
}

func Test_Index_SearchEmptyCases(t *testing.T) {
	t.Parallel()
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			t.Parallel()
			s := e.open(t)
			ctx := context.Background()

			got, err := s.Search(ctx, []float32{1, 0}, 5, map[string]string{rag.MetaVideoID: "none"})
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = s.Search(ctx, nil, 5, nil)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func Test_Index_DeleteAllThenEmpty(t *testing.T) {
	t.Parallel()
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			t.Parallel()
			s := e.open(t)
			ctx := context.Background()

			docs := make([]rag.Document, 0, 25)
			vecs := make([][]float32, 0, 25)
			for i := range 25 {
				docs = append(docs, chunk("v1", fmt.Sprintf("chunk %d", i)))
				vecs = append(vecs, []float32{float32(i), 1})
			}
			require.NoError(t, s.Upsert(ctx, docs, vecs))

			ids, err := s.ListIDs(ctx)
			require.NoError(t, err)
			require.Len(t, ids, 25)

			require.NoError(t, s.Delete(ctx, ids))
			require.NoError(t, s.Delete(ctx, []string{"unknown"}))

			ids, err = s.ListIDs(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func Test_Index_UpsertSameIDReplaces(t *testing.T) {
	t.Parallel()
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			t.Parallel()
			s := e.open(t)
			ctx := context.Background()

			doc := chunk("v1", "old")
			doc.ID = "00000000-0000-4000-8000-000000000001"
			require.NoError(t, s.Upsert(ctx, []rag.Document{doc}, [][]float32{{1, 0}}))

			doc.Content = "new"
			require.NoError(t, s.Upsert(ctx, []rag.Document{doc}, [][]float32{{0, 1}}))

			ids, err := s.ListIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{doc.ID}, ids)

			got, err := s.Search(ctx, []float32{0, 1}, 1, nil)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "new", got[0].Content)
			assert.InDelta(t, 1.0, got[0].Score, 1e-6)
		})
	}
}

func Test_SQLite_ReopenIsIdempotent(t *testing.T) {
	t.Parallel()
	path, err := SQLitePath(filepath.Join(t.TempDir(), "vector_db"))
	require.NoError(t, err)
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, []rag.Document{chunk("v1", "kept")}, [][]float32{{1, 2, 3}}))
	require.NoError(t, s.Close())

	for range 2 {
		s, err = OpenSQLite(path)
		require.NoError(t, err)
		ids, err := s.ListIDs(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 1)
		require.NoError(t, s.Close())
	}
}

func Test_Badger_ReopenIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := BadgerPath(t.TempDir())
	ctx := context.Background()

	b, err := OpenBadger(dir, false, nil)
	require.NoError(t, err)
	require.NoError(t, b.Upsert(ctx, []rag.Document{chunk("v1", "kept")}, [][]float32{{1, 2, 3}}))
	require.NoError(t, b.Close())

	b, err = OpenBadger(dir, false, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	got, err := b.Search(ctx, []float32{1, 2, 3}, 5, map[string]string{rag.MetaVideoID: "v1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Content)
}

func Test_Index_Ping(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())

	b, err := OpenBadger("", true, nil)
	require.NoError(t, err)
	assert.NoError(t, b.Ping(context.Background()))
	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(context.Background()))
}

func TestVectorCodec(t *testing.T) {
	t.Parallel()

	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
