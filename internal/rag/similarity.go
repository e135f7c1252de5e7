package rag

import (
	"cmp"
	"math"
	"slices"
)

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with zero magnitude score 0.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// MatchFilter reports whether metadata carries every key/value in filter.
func MatchFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// TopK sorts docs by decreasing Score, breaking ties by ID so results are
// stable, and truncates to k. A non-positive k returns an empty slice.
func TopK(docs []Document, k int) []Document {
	if k <= 0 {
		return []Document{}
	}
	slices.SortStableFunc(docs, func(a, b Document) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs
}

// CopyMetadata returns a shallow copy of m so callers never share maps.
func CopyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
