package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewRecursiveChunker()
	text := "A short paragraph that easily fits comfortably in one chunk."
	out := c.Chunk(text, Metadata{"source_file": StringScalar("doc.txt")})
	require.Len(t, out, 1)
	assert.Equal(t, text, out[0].Content)
	assert.Equal(t, "doc.txt", out[0].Metadata.SourceFile())
	idx, _ := out[0].Metadata.GetInt("chunk_index")
	assert.Zero(t, idx)
}

func TestRecursiveChunker_DropsChunksBelowMinChars(t *testing.T) {
	c := &RecursiveChunker{ChunkSize: 1000, ChunkOverlap: 0, Separators: []string{"\n\n"}}
	out := c.Chunk("ok", Metadata{})
	assert.Empty(t, out, "a chunk shorter than MinChunkChars must be dropped as noise")
}

func TestRecursiveChunker_SplitsLongTextIntoOverlappingChunks(t *testing.T) {
	c := NewRecursiveChunker()
	paragraph := strings.Repeat("word ", 50) + "\n\n"
	text := strings.Repeat(paragraph, 40)

	out := c.Chunk(text, Metadata{})
	require.Greater(t, len(out), 1)
	for i, cand := range out {
		idx, ok := cand.Metadata.GetInt("chunk_index")
		require.True(t, ok)
		assert.EqualValues(t, i, idx)
		assert.LessOrEqual(t, len(cand.Content), c.ChunkSize+c.ChunkOverlap)
	}
}

func TestChunkerForFileType_SelectsByExtension(t *testing.T) {
	assert.Equal(t, 1500, ChunkerForFileType("code").ChunkSize)
	assert.Equal(t, 1200, ChunkerForFileType("csv").ChunkSize)
	assert.Equal(t, 1200, ChunkerForFileType("xlsx").ChunkSize)
	assert.Equal(t, 1000, ChunkerForFileType("md").ChunkSize)
	assert.Equal(t, 1000, ChunkerForFileType("unknown").ChunkSize)
}

func TestAssignPDFPageNumbers_TagsNearestPrecedingMarker(t *testing.T) {
	marked := "<!-- PAGE 1 -->\nfirst page content here that is reasonably long for matching.\n" +
		"<!-- PAGE 2 -->\nsecond page content here that is also long enough to match cleanly."

	candidates := []ChunkCandidate{
		{Content: "first page content here that is reasonably long for matching.", Metadata: Metadata{}},
		{Content: "second page content here that is also long enough to match cleanly.", Metadata: Metadata{}},
	}

	out := AssignPDFPageNumbers(marked, candidates)
	require.Len(t, out, 2)

	page1, ok := out[0].Metadata.PageNumber()
	require.True(t, ok)
	assert.Equal(t, 1, page1)

	page2, ok := out[1].Metadata.PageNumber()
	require.True(t, ok)
	assert.Equal(t, 2, page2)

	assert.NotContains(t, out[0].Content, "PAGE")
}

func TestAssignPDFPageNumbers_NoMarkerLeavesPageNumberUnset(t *testing.T) {
	candidates := []ChunkCandidate{{Content: "plain text with no page markers at all", Metadata: Metadata{}}}
	out := AssignPDFPageNumbers("plain text with no page markers at all", candidates)
	require.Len(t, out, 1)
	_, ok := out[0].Metadata.PageNumber()
	assert.False(t, ok)
}
