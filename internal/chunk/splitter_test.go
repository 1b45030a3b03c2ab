package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 300, 50, false},
		{"zero overlap", 300, 0, false},
		{"zero size", 0, 0, true},
		{"negative size", -1, 0, true},
		{"negative overlap", 300, -1, true},
		{"overlap equals size", 300, 300, true},
		{"overlap exceeds size", 300, 400, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s, err := NewSplitter(300, 50)
	require.NoError(t, err)

	segments, err := s.Split("A short document.")
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "A short document.", segments[0])
}

func TestSplit_LongTextRespectsSize(t *testing.T) {
	s, err := NewSplitter(100, 20)
	require.NoError(t, err)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)
	segments, err := s.Split(text)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)
	for i, seg := range segments {
		assert.LessOrEqual(t, len(seg), 100, "segment %d too long", i)
		assert.NotEmpty(t, strings.TrimSpace(seg))
	}
}

func TestSplit_ParagraphBoundaryPreferred(t *testing.T) {
	s, err := NewSplitter(60, 0)
	require.NoError(t, err)

	text := "First paragraph about apples.\n\nSecond paragraph about oranges."
	segments, err := s.Split(text)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Contains(t, segments[0], "apples")
	assert.Contains(t, segments[1], "oranges")
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := NewSplitter(80, 16)
	require.NoError(t, err)

	text := strings.Repeat("Consistent output matters for idempotent re-ingestion. ", 12)
	first, err := s.Split(text)
	require.NoError(t, err)
	second, err := s.Split(text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplit_BlankSegmentsDropped(t *testing.T) {
	s, err := NewSplitter(10, 0)
	require.NoError(t, err)

	segments, err := s.Split("word\n\n\n\n\n\nother")
	require.NoError(t, err)
	for _, seg := range segments {
		assert.NotEmpty(t, strings.TrimSpace(seg))
	}
}
