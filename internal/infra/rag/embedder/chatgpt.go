// Package embedder implements rag.Embedder: an OpenAI-compatible batch
// embedder with bounded retries, and a deterministic hash-based fallback
// for memory-mode deployments and tests.
package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
	"github.com/yanqian/ai-helloworld/internal/infra/llm/openaicompat"
)

const (
	maxBatchSize  = 50
	maxRetries    = 3
	retryBaseWait = 1 * time.Second
)

// ChatGPT embeds text via an OpenAI-compatible embeddings endpoint, batching
// at most maxBatchSize inputs per call and making up to maxRetries attempts
// per batch on transport failures, with exponential backoff between them
// (1s, then 2s), matching §4.2's embedding client policy.
// Grounded on internal/infra/uploadask/embedder/chatgpt.go's batching loop,
// adapted to the fixed batch-size cap the spec mandates rather than a
// token-budget cap, and to the shared openaicompat client.
type ChatGPT struct {
	client    *openaicompat.Client
	dimension int
	logger    *slog.Logger
}

func NewChatGPT(client *openaicompat.Client, dimension int, logger *slog.Logger) *ChatGPT {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatGPT{client: client, dimension: dimension, logger: logger.With("component", "rag.embedder.chatgpt")}
}

func (e *ChatGPT) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *ChatGPT) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedBatchWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *ChatGPT) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	wait := retryBaseWait
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := e.client.CreateEmbedding(ctx, openaicompat.EmbeddingRequest{Input: batch})
		if err == nil {
			if len(resp.Data) != len(batch) {
				e.logger.Warn("embedding result count mismatch", "expected", len(batch), "got", len(resp.Data))
			}
			vecs := make([][]float32, len(resp.Data))
			for _, item := range resp.Data {
				vecs[item.Index] = item.Embedding
			}
			return vecs, nil
		}
		lastErr = err
		if attempt < maxRetries {
			e.logger.Warn("embedding request failed, retrying", "attempt", attempt, "error", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			wait *= 2
		}
	}
	return nil, fmt.Errorf("embedding unavailable after %d attempts: %w", maxRetries, lastErr)
}

// Dimension returns the deployment's declared embedding dimension. The
// caller never falls back to a smaller-dimension model on failure — a
// dimension mismatch would corrupt the vector store, per §4.2.
func (e *ChatGPT) Dimension() int { return e.dimension }

var _ rag.Embedder = (*ChatGPT)(nil)
