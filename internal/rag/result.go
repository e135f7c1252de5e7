package rag

// EmbedStatus classifies the outcome of a multi-batch embedding call.
type EmbedStatus string

const (
	// EmbedFull means every text received a vector.
	EmbedFull EmbedStatus = "full"
	// EmbedPartial means some, but not all, texts received a vector.
	EmbedPartial EmbedStatus = "partial"
	// EmbedFailed means no text received a vector.
	EmbedFailed EmbedStatus = "failed"
)

// EmbedResult is the outcome of [BatchEmbedder.EmbedDocuments].
type EmbedResult struct {
	// Vectors is parallel to the input texts. Entries whose batch exhausted
	// its retries are nil.
	Vectors [][]float32

	// Embedded is the number of non-nil entries in Vectors.
	Embedded int

	// Err is the last provider error seen for a failed batch, if any.
	Err error
}

// Total returns the number of texts that were submitted.
func (r EmbedResult) Total() int { return len(r.Vectors) }

// Failed returns the number of texts that did not receive a vector.
func (r EmbedResult) Failed() int { return len(r.Vectors) - r.Embedded }

// Status reports whether the call embedded everything, something, or nothing.
// An empty input counts as fully embedded.
func (r EmbedResult) Status() EmbedStatus {
	switch {
	case r.Embedded == len(r.Vectors):
		return EmbedFull
	case r.Embedded == 0:
		return EmbedFailed
	default:
		return EmbedPartial
	}
}
