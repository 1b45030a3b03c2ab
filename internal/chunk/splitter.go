// Package chunk splits extracted text into overlapping segments sized
// for embedding.
package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// ErrInvalidConfig indicates invalid splitter parameters.
var ErrInvalidConfig = errors.New("invalid splitter configuration")

// Chunk is one segment of a document, stamped with its source metadata.
type Chunk struct {
	Text     string
	Filename string

	// UploadedAt is the upload timestamp in epoch milliseconds.
	UploadedAt int64
}

// Splitter produces overlapping text segments using recursive
// character splitting: paragraph breaks first, then line breaks, then
// sentence-ish boundaries, then single characters.
type Splitter struct {
	inner textsplitter.RecursiveCharacter
}

// NewSplitter creates a Splitter with the given chunk size and overlap,
// both in characters. Overlap must be smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, overlap, size)
	}

	inner := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)
	return &Splitter{inner: inner}, nil
}

// Split returns the segments of text in document order. Blank segments
// are dropped. Splitting is deterministic: the same input always yields
// the same segments.
func (s *Splitter) Split(text string) ([]string, error) {
	parts, err := s.inner.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}

	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		segments = append(segments, p)
	}
	return segments, nil
}
