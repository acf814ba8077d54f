package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const (
	defaultMaxContextChunks  = 20
	defaultSimilarityThresh  = 0.65
	defaultMaxRerankCandidates = 30
	neighborExpandCount      = 5
	defaultNeighborWindow    = 1
	maxNeighborExpand        = 5
)

// multiQueryPrompt asks the LLM for alternative phrasings of a query; on
// failure the retriever proceeds with the original query alone.
const multiQueryPrompt = `Generate 3 alternative phrasings of the following question that preserve its meaning but vary vocabulary and structure. Reply with exactly 3 lines, one phrasing per line, nothing else.

Question: %s`

// RetrieveOptions parameterizes one retrieve() call.
type RetrieveOptions struct {
	Query             string
	CollectionNames   []string // explicit set; empty + nil Collection means "all"
	Collection        string   // single-collection shortcut
	TopK              int
	UseMultiQuery     bool
	SimilarityThreshold float64
}

// Retriever composes dense vector search, BM25 sparse search, Reciprocal
// Rank Fusion, cross-encoder reranking and neighbor expansion into one
// ranked, non-empty (when any candidate exists) result list.
type Retriever struct {
	Store    VectorStore
	Embedder Embedder
	Reranker Reranker
	LLM      LLMRouter // optional, used only for multi-query expansion
	Logger   *slog.Logger

	MaxContextChunks int
}

func NewRetriever(store VectorStore, embedder Embedder, reranker Reranker, llm LLMRouter, logger *slog.Logger) *Retriever {
	return &Retriever{
		Store:            store,
		Embedder:         embedder,
		Reranker:         reranker,
		LLM:              llm,
		Logger:           logger,
		MaxContextChunks: defaultMaxContextChunks,
	}
}

// Retrieve runs the full hybrid pipeline described in §4.5.
func (r *Retriever) Retrieve(ctx context.Context, opts RetrieveOptions) ([]RetrievedChunk, error) {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	threshold := opts.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultSimilarityThresh
	}

	collections, err := r.resolveCollections(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return nil, nil
	}

	queries := []string{opts.Query}
	if opts.UseMultiQuery && r.LLM != nil {
		if alt, err := r.expandQuery(ctx, opts.Query); err == nil {
			queries = append(queries, alt...)
		} else if r.Logger != nil {
			r.Logger.Warn("multi-query expansion failed, continuing with original query", "error", err)
		}
	}

	dense, err := r.denseSearch(ctx, queries, collections)
	if err != nil {
		return nil, err
	}
	dense = dedupeByPrefix(dense, 200)
	sort.SliceStable(dense, func(i, j int) bool { return dense[i].score < dense[j].score })

	sparse := r.sparseSearch(ctx, opts.Query, collections)

	fused := reciprocalRankFusion(toFusionList(dense), toFusionListBM25(sparse))

	filtered := r.thresholdFilter(fused, threshold)

	reranked := r.crossEncoderRerank(ctx, opts.Query, filtered)

	if len(reranked) > opts.TopK {
		reranked = reranked[:opts.TopK]
	}

	return r.expandNeighbors(ctx, reranked, collections)
}

func (r *Retriever) resolveCollections(ctx context.Context, opts RetrieveOptions) ([]string, error) {
	if len(opts.CollectionNames) > 0 {
		return opts.CollectionNames, nil
	}
	if opts.Collection != "" {
		return []string{opts.Collection}, nil
	}
	infos, err := r.Store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, c := range infos {
		names[i] = c.Name
	}
	return names, nil
}

func (r *Retriever) expandQuery(ctx context.Context, query string) ([]string, error) {
	text, err := r.LLM.Generate(ctx, fmt.Sprintf(multiQueryPrompt, query), "", 0.3, "", nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

type denseHit struct {
	chunk Chunk
	score float64
}

func (r *Retriever) denseSearch(ctx context.Context, queries []string, collections []string) ([]denseHit, error) {
	embeddings, err := r.Embedder.EmbedBatch(ctx, queries)
	if err != nil {
		return nil, err
	}
	var hits []denseHit
	for _, emb := range embeddings {
		for _, coll := range collections {
			scored, err := r.Store.Query(ctx, coll, emb, r.maxContextChunks())
			if err != nil {
				if r.Logger != nil {
					r.Logger.Warn("collection query failed, skipping", "collection", coll, "error", err)
				}
				continue
			}
			for _, s := range scored {
				hits = append(hits, denseHit{chunk: s.Chunk, score: s.Distance})
			}
		}
	}
	return hits, nil
}

func (r *Retriever) maxContextChunks() int {
	if r.MaxContextChunks > 0 {
		return r.MaxContextChunks
	}
	return defaultMaxContextChunks
}

func dedupeByPrefix(hits []denseHit, prefixLen int) []denseHit {
	best := make(map[string]denseHit)
	var order []string
	for _, h := range hits {
		key := h.chunk.Content
		if len(key) > prefixLen {
			key = key[:prefixLen]
		}
		existing, ok := best[key]
		if !ok {
			best[key] = h
			order = append(order, key)
		} else if h.score < existing.score {
			best[key] = h
		}
	}
	out := make([]denseHit, len(order))
	for i, k := range order {
		out[i] = best[k]
	}
	return out
}

func (r *Retriever) sparseSearch(ctx context.Context, query string, collections []string) []bm25ScoredChunk {
	var chunks []Chunk
	for _, coll := range collections {
		got, err := r.Store.Get(ctx, coll, nil, BM25MaxDocs)
		if err != nil {
			if r.Logger != nil {
				r.Logger.Warn("collection scan failed for sparse search, skipping", "collection", coll, "error", err)
			}
			continue
		}
		chunks = append(chunks, got...)
		if len(chunks) >= BM25MaxDocs {
			break
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	return bm25Search(query, chunks, r.maxContextChunks())
}

func toFusionList(hits []denseHit) []struct {
	chunk Chunk
	score float64
} {
	out := make([]struct {
		chunk Chunk
		score float64
	}, len(hits))
	for i, h := range hits {
		out[i] = struct {
			chunk Chunk
			score float64
		}{h.chunk, h.score}
	}
	return out
}

func toFusionListBM25(hits []bm25ScoredChunk) []struct {
	chunk Chunk
	score float64
} {
	out := make([]struct {
		chunk Chunk
		score float64
	}, len(hits))
	for i, h := range hits {
		out[i] = struct {
			chunk Chunk
			score float64
		}{h.chunk, h.score}
	}
	return out
}

// thresholdFilter drops chunks whose relevance score exceeds the
// similarity threshold; if that empties the list it falls back to the top
// 3 pre-filter candidates so retrieval never returns empty when any
// candidate existed.
func (r *Retriever) thresholdFilter(fused []RetrievedChunk, threshold float64) []RetrievedChunk {
	var kept []RetrievedChunk
	for _, c := range fused {
		if c.RelevanceScore <= threshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 && len(fused) > 0 {
		n := 3
		if n > len(fused) {
			n = len(fused)
		}
		return fused[:n]
	}
	return kept
}

func (r *Retriever) crossEncoderRerank(ctx context.Context, query string, chunks []RetrievedChunk) []RetrievedChunk {
	if len(chunks) == 0 || r.Reranker == nil {
		return chunks
	}
	candidates := chunks
	if len(candidates) > defaultMaxRerankCandidates {
		candidates = candidates[:defaultMaxRerankCandidates]
	}
	rest := chunks[len(candidates):]

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		content := c.Content
		if len(content) > 512 {
			content = content[:512]
		}
		passages[i] = content
	}

	logits, err := r.Reranker.Score(ctx, query, passages)
	if err != nil || len(logits) != len(candidates) {
		if r.Logger != nil {
			r.Logger.Warn("cross-encoder rerank failed, keeping previous order", "error", err)
		}
		return chunks
	}

	reranked := make([]RetrievedChunk, len(candidates))
	for i, c := range candidates {
		score := normalizeCrossEncoderLogit(logits[i])
		c.RelevanceScore = score
		reranked[i] = c
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].RelevanceScore < reranked[j].RelevanceScore })
	return append(reranked, rest...)
}

// normalizeCrossEncoderLogit keeps the heuristic affine transform from the
// reference implementation rather than a sigmoid, per the Design Notes'
// resolution of the open question on cross-encoder normalization.
func normalizeCrossEncoderLogit(logit float64) float64 {
	v := 1 - (logit+10)/20
	if v < 0 {
		return 0
	}
	return v
}

func (r *Retriever) expandNeighbors(ctx context.Context, chunks []RetrievedChunk, collections []string) ([]RetrievedChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	n := neighborExpandCount
	if n > len(chunks) {
		n = len(chunks)
	}
	toExpand := chunks[:n]
	rest := chunks[n:]

	expanded := make([]RetrievedChunk, 0, len(toExpand))
	seenPrefixes := make(map[string]bool)

	for _, c := range toExpand {
		docID := c.Metadata.DocumentID()
		idx := c.Metadata.ChunkIndex()
		if docID == "" {
			expanded = append(expanded, c)
			continue
		}

		var neighborChunks []Chunk
		for _, coll := range collections {
			got, err := r.Store.Get(ctx, coll, MetadataFilter{"document_id": docID}, maxNeighborExpand*3+1)
			if err != nil {
				continue
			}
			neighborChunks = append(neighborChunks, got...)
			if len(neighborChunks) > 0 {
				break
			}
		}

		sort.SliceStable(neighborChunks, func(i, j int) bool {
			return neighborChunks[i].Metadata.ChunkIndex() < neighborChunks[j].Metadata.ChunkIndex()
		})

		var mergedParts []string
		for _, nc := range neighborChunks {
			ncIdx := nc.Metadata.ChunkIndex()
			if ncIdx < idx-defaultNeighborWindow || ncIdx > idx+defaultNeighborWindow {
				continue
			}
			key := nc.Content
			if len(key) > 100 {
				key = key[:100]
			}
			if seenPrefixes[key] {
				continue
			}
			seenPrefixes[key] = true
			mergedParts = append(mergedParts, nc.Content)
		}

		if len(mergedParts) == 0 {
			expanded = append(expanded, c)
			continue
		}
		merged := c
		merged.Content = strings.Join(mergedParts, "\n\n")
		expanded = append(expanded, merged)
	}

	var deduped []RetrievedChunk
	for _, c := range rest {
		key := c.Content
		if len(key) > 100 {
			key = key[:100]
		}
		if seenPrefixes[key] {
			continue
		}
		seenPrefixes[key] = true
		deduped = append(deduped, c)
	}

	return append(expanded, deduped...), nil
}
