package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_LowercasesAndSplitsOnWordBoundaries(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, tokenize("Hello, World! 42"))
}

func TestBM25Search_RanksExactTermMatchAbovePartialMatch(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", Content: "the quick brown fox jumps over the lazy dog"},
		{ID: "b", Content: "cats and dogs are common household pets"},
		{ID: "c", Content: "nothing relevant appears in this sentence at all"},
	}

	results := bm25Search("fox dog", chunks, 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].chunk.ID, "the document containing both query terms should rank first")
	for _, r := range results {
		assert.NotEqual(t, "c", r.chunk.ID, "a document with zero term overlap must be excluded")
	}
}

func TestBM25Search_RespectsMaxResults(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", Content: "alpha term appears here"},
		{ID: "b", Content: "alpha term appears here too"},
		{ID: "c", Content: "alpha term appears here as well"},
	}
	results := bm25Search("alpha term", chunks, 2)
	assert.Len(t, results, 2)
}

func TestReciprocalRankFusion_MergesAndDedupesByContentPrefix(t *testing.T) {
	type entry = struct {
		chunk Chunk
		score float64
	}
	dense := []entry{
		{chunk: Chunk{ID: "1", Content: "shared content across both lists"}, score: 0.1},
		{chunk: Chunk{ID: "2", Content: "dense-only content"}, score: 0.4},
	}
	sparse := []entry{
		{chunk: Chunk{ID: "1dup", Content: "shared content across both lists"}, score: 0.05},
		{chunk: Chunk{ID: "3", Content: "sparse-only content"}, score: 0.3},
	}

	fused := reciprocalRankFusion(dense, sparse)
	require.Len(t, fused, 3, "the shared-content entry must be deduped by its content-prefix key")

	seen := map[string]bool{}
	for _, f := range fused {
		seen[f.Content] = true
	}
	assert.True(t, seen["shared content across both lists"])
	assert.True(t, seen["dense-only content"])
	assert.True(t, seen["sparse-only content"])
}

func TestReciprocalRankFusion_EmptyInputsYieldEmptyResult(t *testing.T) {
	type entry = struct {
		chunk Chunk
		score float64
	}
	fused := reciprocalRankFusion([]entry{}, []entry{})
	assert.Empty(t, fused)
}
