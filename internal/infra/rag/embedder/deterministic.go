package embedder

import (
	"context"
	"hash/fnv"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// Deterministic avoids network calls by hashing text into a reproducible
// vector — used for memory-mode deployments and tests where no embedding
// provider is configured. Grounded on
// internal/infra/uploadask/embedder/deterministic.go, same FNV-based
// pseudo-random walk.
type Deterministic struct {
	dim int
}

func NewDeterministic(dim int) *Deterministic {
	if dim <= 0 {
		dim = 32
	}
	return &Deterministic{dim: dim}
}

func (e *Deterministic) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *Deterministic) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, e.dim)
		hash := fnv.New64a()
		_, _ = hash.Write([]byte(text))
		seed := hash.Sum64()
		for j := 0; j < e.dim; j++ {
			seed = seed*1099511628211 + 1469598103934665603
			vector[j] = float32(seed%997) / 997.0
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (e *Deterministic) Dimension() int { return e.dim }

var _ rag.Embedder = (*Deterministic)(nil)
