package rag

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// BM25MaxDocs bounds how many documents one sparse search enumerates, to
// cap memory for very large collections.
const BM25MaxDocs = 10_000

var tokenRe = regexp.MustCompile(`\w+`)

// tokenize lowercases and splits on \w+, matching the Python reference's
// regex tokenization exactly.
func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// bm25Doc is one document in a freshly built BM25 index.
type bm25Doc struct {
	id     string
	tokens []string
}

// bm25Index is an Okapi BM25 index (k1=1.5, b=0.75) built fresh for a
// single query, matching rank_bm25.BM25Okapi's defaults.
type bm25Index struct {
	docs     []bm25Doc
	docFreq  map[string]int
	avgLen   float64
	n        int
	k1       float64
	b        float64
}

func newBM25Index(docs []bm25Doc) *bm25Index {
	idx := &bm25Index{
		docs:    docs,
		docFreq: make(map[string]int),
		n:       len(docs),
		k1:      1.5,
		b:       0.75,
	}
	total := 0
	for _, d := range docs {
		total += len(d.tokens)
		seen := make(map[string]bool, len(d.tokens))
		for _, t := range d.tokens {
			if !seen[t] {
				seen[t] = true
				idx.docFreq[t]++
			}
		}
	}
	if idx.n > 0 {
		idx.avgLen = float64(total) / float64(idx.n)
	}
	return idx
}

func (idx *bm25Index) idf(term string) float64 {
	df := idx.docFreq[term]
	if df == 0 {
		return 0
	}
	// Standard Okapi BM25 idf with the +1 smoothing term, floored at 0.
	v := math.Log(1 + (float64(idx.n)-float64(df)+0.5)/(float64(df)+0.5))
	if v < 0 {
		return 0
	}
	return v
}

// score returns, for every document, its BM25 score against the tokenized
// query, in index order.
func (idx *bm25Index) score(queryTokens []string) []float64 {
	scores := make([]float64, idx.n)
	for i, doc := range idx.docs {
		termFreq := make(map[string]int, len(doc.tokens))
		for _, t := range doc.tokens {
			termFreq[t]++
		}
		docLen := float64(len(doc.tokens))
		var s float64
		for _, qt := range queryTokens {
			tf := float64(termFreq[qt])
			if tf == 0 {
				continue
			}
			idf := idx.idf(qt)
			denom := tf + idx.k1*(1-idx.b+idx.b*docLen/maxFloat(idx.avgLen, 1))
			s += idf * (tf * (idx.k1 + 1)) / denom
		}
		scores[i] = s
	}
	return scores
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// bm25ScoredChunk is one sparse-search hit, normalized to the same
// lower-is-better scale dense search uses.
type bm25ScoredChunk struct {
	chunk Chunk
	score float64 // normalized, lower = better
}

// bm25Search builds a fresh BM25 index over docs (capped at BM25MaxDocs),
// scores them against the query, keeps the top maxResults with score > 0,
// and normalizes to max(0, 1 - min(score/20, 1)) so lower means better,
// matching dense cosine-distance semantics.
func bm25Search(query string, chunks []Chunk, maxResults int) []bm25ScoredChunk {
	if len(chunks) > BM25MaxDocs {
		chunks = chunks[:BM25MaxDocs]
	}
	docs := make([]bm25Doc, len(chunks))
	for i, c := range chunks {
		docs[i] = bm25Doc{id: c.ID, tokens: tokenize(c.Content)}
	}
	idx := newBM25Index(docs)
	queryTokens := tokenize(query)
	raw := idx.score(queryTokens)

	type cand struct {
		chunk Chunk
		raw   float64
	}
	var candidates []cand
	for i, s := range raw {
		if s > 0 {
			candidates = append(candidates, cand{chunk: chunks[i], raw: s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].raw > candidates[j].raw })
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	out := make([]bm25ScoredChunk, len(candidates))
	for i, cd := range candidates {
		normalized := math.Max(0, 1-math.Min(cd.raw/20, 1))
		out[i] = bm25ScoredChunk{chunk: cd.chunk, score: normalized}
	}
	return out
}

// rrfKey keys fusion by the first 200 characters of chunk content, matching
// the dedup/fusion key used throughout the retriever pipeline.
func rrfKey(content string) string {
	if len(content) > 200 {
		return content[:200]
	}
	return content
}

type rrfEntry struct {
	chunk         Chunk
	rrfScore      float64
	originalScore float64 // best (lowest) distance/normalized-score seen across inputs
}

// reciprocalRankFusion merges any number of ranked lists (each
// lower-is-better-scored) into one, then reassigns each fused chunk's
// relevance score to min(originalScore, i/max(N-1, 1)), where i is the
// chunk's 0-based fused position and N the fused list length — a deliberately
// mixed-semantics score (partly original distance, partly fused-rank
// position) that the retrieval contract requires bit-for-bit, per the
// source reference this module was ported from.
func reciprocalRankFusion(lists ...[]struct {
	chunk Chunk
	score float64
}) []RetrievedChunk {
	const k = 60.0
	entries := make(map[string]*rrfEntry)
	var order []string

	for _, list := range lists {
		for rank, item := range list {
			key := rrfKey(item.chunk.Content)
			e, ok := entries[key]
			if !ok {
				e = &rrfEntry{chunk: item.chunk, originalScore: item.score}
				entries[key] = e
				order = append(order, key)
			} else if item.score < e.originalScore {
				e.originalScore = item.score
			}
			e.rrfScore += 1.0 / (k + float64(rank) + 1)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return entries[order[i]].rrfScore > entries[order[j]].rrfScore
	})

	total := len(order)
	out := make([]RetrievedChunk, total)
	for i, key := range order {
		e := entries[key]
		positional := float64(i) / maxFloat(float64(total-1), 1)
		relevance := math.Min(e.originalScore, positional)
		out[i] = RetrievedChunk{
			Content:        e.chunk.Content,
			Metadata:       e.chunk.Metadata,
			RelevanceScore: relevance,
			SourceFile:     e.chunk.Metadata.SourceFile(),
		}
	}
	return out
}
