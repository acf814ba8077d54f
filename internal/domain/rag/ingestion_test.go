package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVectorStore struct {
	collections   map[string]int
	chunks        map[string][]Chunk
	queryResults  map[string][]ScoredChunk
	listedColls   []CollectionInfo
	addErr        error
	getErr        error
	queryErr      error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{collections: map[string]int{}, chunks: map[string][]Chunk{}}
}

func (s *fakeVectorStore) GetOrCreateCollection(_ context.Context, name string, dimension int) error {
	s.collections[name] = dimension
	return nil
}

func (s *fakeVectorStore) Add(_ context.Context, collection string, chunks []Chunk) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.chunks[collection] = append(s.chunks[collection], chunks...)
	return nil
}

func (s *fakeVectorStore) Query(_ context.Context, collection string, _ []float32, n int) ([]ScoredChunk, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := s.queryResults[collection]
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *fakeVectorStore) Get(_ context.Context, collection string, where MetadataFilter, limit int) ([]Chunk, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	wantHash, wantsHash := where["content_hash"]
	var out []Chunk
	for _, c := range s.chunks[collection] {
		if wantsHash {
			if h, _ := c.Metadata.GetString("content_hash"); h != wantHash {
				continue
			}
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeVectorStore) Count(_ context.Context, collection string) (int, error) {
	return len(s.chunks[collection]), nil
}

func (s *fakeVectorStore) Delete(_ context.Context, _ string, _ []string) error { return nil }

func (s *fakeVectorStore) DeleteCollection(_ context.Context, collection string) error {
	delete(s.chunks, collection)
	delete(s.collections, collection)
	return nil
}

func (s *fakeVectorStore) ListCollections(_ context.Context) ([]CollectionInfo, error) {
	return s.listedColls, nil
}

type fakeEmbedder struct {
	dim    int
	err    error
	calls  int
	lastIn []string
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, e.dim), nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.lastIn = texts
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int { return e.dim }

type fakeExtractor struct {
	blocks []TextBlock
	err    error
}

func (e *fakeExtractor) Extract(_ context.Context, _ string, _ []byte) ([]TextBlock, error) {
	return e.blocks, e.err
}

type fakeRegistry struct {
	extractor Extractor
	fileType  string
	err       error
}

func (r *fakeRegistry) ExtractorFor(_ string) (Extractor, string, error) {
	if r.err != nil {
		return nil, "", r.err
	}
	return r.extractor, r.fileType, nil
}

func longText(n int) string {
	return strings.Repeat("word ", n)
}

func TestPipeline_IngestFile_SuccessPath(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{dim: 4}
	registry := &fakeRegistry{
		extractor: &fakeExtractor{blocks: []TextBlock{{Content: longText(300), Metadata: Metadata{}}}},
		fileType:  "txt",
	}
	p := NewPipeline(store, embedder, registry, nil)

	result := p.IngestFile(context.Background(), "notes.txt", []byte("some file content"), "default")

	require.Equal(t, JobSuccess, result.Status)
	assert.NotEmpty(t, result.DocumentID)
	assert.Greater(t, result.ChunksCreated, 0)
	assert.Equal(t, 4, store.collections["default"])
	assert.Len(t, store.chunks["default"], result.ChunksCreated)
	assert.Greater(t, embedder.calls, 0)
}

func TestPipeline_IngestFile_DuplicateContentShortCircuits(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{dim: 4}
	registry := &fakeRegistry{
		extractor: &fakeExtractor{blocks: []TextBlock{{Content: longText(300), Metadata: Metadata{}}}},
		fileType:  "txt",
	}
	p := NewPipeline(store, embedder, registry, nil)

	data := []byte("identical content")
	first := p.IngestFile(context.Background(), "a.txt", data, "default")
	require.Equal(t, JobSuccess, first.Status)

	callsBeforeSecond := embedder.calls
	second := p.IngestFile(context.Background(), "b.txt", data, "default")

	assert.Equal(t, JobDuplicate, second.Status)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, callsBeforeSecond, embedder.calls, "a duplicate must never reach the embedder")
}

func TestPipeline_IngestFile_EmptyAfterChunkingYieldsJobEmpty(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{dim: 4}
	registry := &fakeRegistry{
		extractor: &fakeExtractor{blocks: []TextBlock{{Content: "  ", Metadata: Metadata{}}}},
		fileType:  "txt",
	}
	p := NewPipeline(store, embedder, registry, nil)

	result := p.IngestFile(context.Background(), "blank.txt", []byte("x"), "default")

	assert.Equal(t, JobEmpty, result.Status)
	assert.Zero(t, embedder.calls, "nothing should be embedded when chunking produced nothing")
}

func TestPipeline_IngestFile_ExtractorErrorSurfacesAsJobError(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{dim: 4}
	registry := &fakeRegistry{err: errors.New("unsupported format")}
	p := NewPipeline(store, embedder, registry, nil)

	result := p.IngestFile(context.Background(), "weird.xyz", []byte("x"), "default")

	assert.Equal(t, JobError, result.Status)
	assert.Contains(t, result.Error, "unsupported format")
}

func TestPipeline_IngestFile_EmbedderErrorSurfacesAsJobError(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{dim: 4, err: errors.New("embedding service down")}
	registry := &fakeRegistry{
		extractor: &fakeExtractor{blocks: []TextBlock{{Content: longText(300), Metadata: Metadata{}}}},
		fileType:  "txt",
	}
	p := NewPipeline(store, embedder, registry, nil)

	result := p.IngestFile(context.Background(), "notes.txt", []byte("x"), "default")

	assert.Equal(t, JobError, result.Status)
	assert.Contains(t, result.Error, "embedding service down")
}

func TestPipeline_IngestTextBlocks_SuccessPath(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{dim: 4}
	p := NewPipeline(store, embedder, &fakeRegistry{}, nil)

	blocks := []TextBlock{{Content: longText(300), Metadata: Metadata{}}}
	result := p.IngestTextBlocks(context.Background(), blocks, "https://example.com/page", "default")

	require.Equal(t, JobSuccess, result.Status)
	assert.Equal(t, "https://example.com/page", result.Filename)
	assert.Equal(t, "url", result.FileType)
}

func TestBuildEnrichedEmbeddingText_PrependsHeaderWhenMetadataPresent(t *testing.T) {
	c := ChunkCandidate{
		Content: "the body text",
		Metadata: Metadata{
			"source_file":    StringScalar("report.pdf"),
			"section_header": StringScalar("Intro"),
			"page_number":    IntScalar(3),
		},
	}
	out := buildEnrichedEmbeddingText(c)
	assert.True(t, strings.HasPrefix(out, "report.pdf | Intro | page 3\n\n"))
	assert.True(t, strings.HasSuffix(out, "the body text"))
}

func TestBuildEnrichedEmbeddingText_ReturnsPlainContentWhenNoMetadata(t *testing.T) {
	c := ChunkCandidate{Content: "plain body", Metadata: Metadata{}}
	assert.Equal(t, "plain body", buildEnrichedEmbeddingText(c))
}

func TestFileExt_LowercasesAndStripsDot(t *testing.T) {
	assert.Equal(t, "pdf", fileExt("Report.PDF"))
	assert.Equal(t, "", fileExt("README"))
}
