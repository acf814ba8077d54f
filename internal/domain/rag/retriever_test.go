package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReranker struct {
	scores []float64
	err    error
}

func (r *fakeReranker) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.scores != nil {
		return r.scores, nil
	}
	out := make([]float64, len(passages))
	return out, nil
}

type fakeLLMRouter struct {
	generateText  string
	generateErr   error
	streamErr     error
	lastPreferred string
}

func (f *fakeLLMRouter) Generate(_ context.Context, _, _ string, _ float64, preferred string, info *ProviderInfo) (string, error) {
	// title and summary calls pass no preference; keep the last routed one
	if preferred != "" {
		f.lastPreferred = preferred
	}
	if info != nil {
		info.Name = "fake"
	}
	return f.generateText, f.generateErr
}

func (f *fakeLLMRouter) GenerateStream(_ context.Context, _, _ string, _ float64, _ string, info *ProviderInfo) (<-chan StreamToken, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if info != nil {
		info.Name = "fake"
	}
	out := make(chan StreamToken, len(f.generateText)+1)
	defer close(out)
	if f.generateErr != nil {
		out <- StreamToken{Err: f.generateErr}
		return out, nil
	}
	for _, word := range strings.Fields(f.generateText) {
		out <- StreamToken{Text: word + " "}
	}
	return out, nil
}

func (f *fakeLLMRouter) ActiveProvider() string { return "fake" }

func chunkWithDoc(id, content, docID string, idx int) Chunk {
	return Chunk{
		ID:      id,
		Content: content,
		Metadata: Metadata{
			"document_id": StringScalar(docID),
			"chunk_index": IntScalar(int64(idx)),
		},
	}
}

func TestRetrieve_NoCollectionsReturnsNil(t *testing.T) {
	store := newFakeVectorStore()
	r := NewRetriever(store, &fakeEmbedder{dim: 4}, nil, nil, nil)

	out, err := r.Retrieve(context.Background(), RetrieveOptions{Query: "hello"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRetrieve_UsesExplicitCollectionAndReturnsRankedResults(t *testing.T) {
	store := newFakeVectorStore()
	store.queryResults = map[string][]ScoredChunk{
		"docs": {
			{Chunk: chunkWithDoc("c1", "the quick brown fox", "doc1", 0), Distance: 0.1},
			{Chunk: chunkWithDoc("c2", "totally unrelated filler text", "doc2", 0), Distance: 0.9},
		},
	}
	store.chunks["docs"] = []Chunk{
		chunkWithDoc("c1", "the quick brown fox", "doc1", 0),
		chunkWithDoc("c2", "totally unrelated filler text", "doc2", 0),
	}

	r := NewRetriever(store, &fakeEmbedder{dim: 4}, nil, nil, nil)
	out, err := r.Retrieve(context.Background(), RetrieveOptions{Query: "fox", Collection: "docs", TopK: 5})

	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestRetrieve_ResolvesAllCollectionsWhenNoneSpecified(t *testing.T) {
	store := newFakeVectorStore()
	store.listedColls = []CollectionInfo{{Name: "a"}, {Name: "b"}}

	r := NewRetriever(store, &fakeEmbedder{dim: 4}, nil, nil, nil)
	out, err := r.Retrieve(context.Background(), RetrieveOptions{Query: "hello"})

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDedupeByPrefix_KeepsBestScoringDuplicate(t *testing.T) {
	hits := []denseHit{
		{chunk: Chunk{Content: "same content here"}, score: 0.5},
		{chunk: Chunk{Content: "same content here"}, score: 0.2},
	}
	out := dedupeByPrefix(hits, 200)
	require.Len(t, out, 1)
	assert.Equal(t, 0.2, out[0].score)
}

func TestThresholdFilter_DropsAboveThreshold(t *testing.T) {
	r := &Retriever{}
	fused := []RetrievedChunk{
		{Content: "a", RelevanceScore: 0.1},
		{Content: "b", RelevanceScore: 0.9},
	}
	out := r.thresholdFilter(fused, 0.5)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Content)
}

func TestThresholdFilter_FallsBackToTop3WhenAllExceedThreshold(t *testing.T) {
	r := &Retriever{}
	fused := []RetrievedChunk{
		{Content: "a", RelevanceScore: 0.9},
		{Content: "b", RelevanceScore: 0.95},
		{Content: "c", RelevanceScore: 0.99},
		{Content: "d", RelevanceScore: 0.99},
	}
	out := r.thresholdFilter(fused, 0.1)
	assert.Len(t, out, 3, "retrieval must never go empty when candidates existed")
}

func TestCrossEncoderRerank_ReordersByNormalizedScore(t *testing.T) {
	r := &Retriever{Reranker: &fakeReranker{scores: []float64{-10, 10}}}
	chunks := []RetrievedChunk{
		{Content: "low relevance"},
		{Content: "high relevance"},
	}
	out := r.crossEncoderRerank(context.Background(), "query", chunks)
	require.Len(t, out, 2)
	assert.Equal(t, "high relevance", out[0].Content, "a logit of 10 normalizes to the lowest (best) relevance score")
}

func TestCrossEncoderRerank_FallsBackOnRerankerError(t *testing.T) {
	r := &Retriever{Reranker: &fakeReranker{err: errors.New("reranker down")}}
	chunks := []RetrievedChunk{{Content: "a"}, {Content: "b"}}
	out := r.crossEncoderRerank(context.Background(), "query", chunks)
	assert.Equal(t, chunks, out)
}

func TestCrossEncoderRerank_NoopWithoutReranker(t *testing.T) {
	r := &Retriever{}
	chunks := []RetrievedChunk{{Content: "a"}}
	out := r.crossEncoderRerank(context.Background(), "query", chunks)
	assert.Equal(t, chunks, out)
}

func TestExpandNeighbors_MergesAdjacentChunksWithinWindow(t *testing.T) {
	store := newFakeVectorStore()
	store.chunks["docs"] = []Chunk{
		chunkWithDoc("c0", "chunk zero", "doc1", 0),
		chunkWithDoc("c1", "chunk one", "doc1", 1),
		chunkWithDoc("c2", "chunk two", "doc1", 2),
	}
	r := &Retriever{Store: store}

	target := chunkWithDoc("c1", "chunk one", "doc1", 1)
	hit := RetrievedChunk{Content: target.Content, Metadata: target.Metadata}

	out, err := r.expandNeighbors(context.Background(), []RetrievedChunk{hit}, []string{"docs"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Content, "chunk zero")
	assert.Contains(t, out[0].Content, "chunk one")
	assert.Contains(t, out[0].Content, "chunk two")
}

func TestExpandNeighbors_EmptyInputReturnsEmpty(t *testing.T) {
	r := &Retriever{}
	out, err := r.expandNeighbors(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExpandQuery_ReturnsNonEmptyTrimmedLines(t *testing.T) {
	r := &Retriever{LLM: &fakeLLMRouter{generateText: "first\n\nsecond  \nthird"}}
	out, err := r.expandQuery(context.Background(), "original")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, out)
}

func TestExpandQuery_PropagatesLLMError(t *testing.T) {
	r := &Retriever{LLM: &fakeLLMRouter{generateErr: errors.New("llm down")}}
	_, err := r.expandQuery(context.Background(), "original")
	assert.Error(t, err)
}
