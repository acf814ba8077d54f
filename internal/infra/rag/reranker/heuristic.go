// Package reranker provides the cross-encoder stage's Reranker
// implementations: a remote HTTP-backed scorer and a lexical-overlap
// heuristic fallback used when no reranker endpoint is configured.
package reranker

import (
	"context"
	"strings"
)

// Heuristic scores (query, passage) pairs by token-overlap density when no
// learned cross-encoder endpoint is configured. It never fails, so it also
// serves as the degrade-to-no-rerank fallback's last resort.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

// Score returns a pseudo-logit per passage: higher means more query terms
// appear in the passage, scaled into the same rough range ([-10, 10]) a
// real cross-encoder logit would occupy so downstream normalization
// behaves sensibly.
func (h *Heuristic) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	queryTerms := uniqueLowerFields(query)
	scores := make([]float64, len(passages))
	for i, p := range passages {
		if len(queryTerms) == 0 {
			scores[i] = 0
			continue
		}
		lower := strings.ToLower(p)
		hits := 0
		for _, t := range queryTerms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		ratio := float64(hits) / float64(len(queryTerms))
		scores[i] = ratio*20 - 10
	}
	return scores, nil
}

func uniqueLowerFields(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range strings.Fields(strings.ToLower(s)) {
		if len(f) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
