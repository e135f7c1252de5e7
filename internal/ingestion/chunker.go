package ingestion

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/54b3r/ytqa-go/internal/rag"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 80
)

// Chunker splits a transcript into overlapping windows. It prefers paragraph,
// then line, then word boundaries before cutting inside a word. Output is
// deterministic for a given input and configuration.
type Chunker struct {
	// splitter is the recursive character splitter doing the work.
	splitter textsplitter.RecursiveCharacter
}

// NewChunker returns a Chunker with the given window and overlap. Zero or
// negative size selects DefaultChunkSize; an overlap outside [0, size) is
// reset to a tenth of the window.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}
}

// Split chunks text and returns one document per chunk in transcript order.
// Every document gets its own copy of meta. IDs are left empty for the
// index to assign.
func (c *Chunker) Split(text string, meta map[string]string) ([]rag.Document, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("ingestion: split transcript: %w", err)
	}

	docs := make([]rag.Document, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		docs = append(docs, rag.Document{
			Content:  part,
			Metadata: rag.CopyMetadata(meta),
		})
	}
	return docs, nil
}
