package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// Memory is a linear-scan VectorStore, grounded on the teacher's
// MemoryChunkRepository — same mutex-guarded map-of-slices shape, same
// cosine similarity helper, generalized from one implicit collection to
// many named ones.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	createdAt time.Time
	chunks    map[string]rag.Chunk
	order     []string
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

func (m *Memory) GetOrCreateCollection(ctx context.Context, name string, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = &memoryCollection{
			dimension: dimension,
			createdAt: time.Now(),
			chunks:    make(map[string]rag.Chunk),
		}
	}
	return nil
}

func (m *Memory) Add(ctx context.Context, collection string, chunks []rag.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = &memoryCollection{createdAt: time.Now(), chunks: make(map[string]rag.Chunk)}
		m.collections[collection] = coll
	}
	for _, c := range chunks {
		if _, exists := coll.chunks[c.ID]; !exists {
			coll.order = append(coll.order, c.ID)
		}
		coll.chunks[c.ID] = c
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, collection string, embedding []float32, nResults int) ([]rag.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	out := make([]rag.ScoredChunk, 0, len(coll.chunks))
	for _, c := range coll.chunks {
		out = append(out, rag.ScoredChunk{Chunk: c, Distance: cosineDistance(embedding, c.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > nResults {
		out = out[:nResults]
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, collection string, where rag.MetadataFilter, limit int) ([]rag.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	var out []rag.Chunk
	for _, id := range coll.order {
		c, ok := coll.chunks[id]
		if !ok || !matchesFilter(c.Metadata, where) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	return len(coll.chunks), nil
}

func (m *Memory) Delete(ctx context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(coll.chunks, id)
	}
	coll.order = filterOrder(coll.order, coll.chunks)
	return nil
}

func (m *Memory) DeleteCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	return nil
}

func (m *Memory) ListCollections(ctx context.Context) ([]rag.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rag.CollectionInfo, 0, len(m.collections))
	for name, coll := range m.collections {
		docs := make(map[string]bool)
		for _, c := range coll.chunks {
			docs[c.Metadata.DocumentID()] = true
		}
		out = append(out, rag.CollectionInfo{
			Name:          name,
			DocumentCount: len(docs),
			ChunkCount:    len(coll.chunks),
			Dimension:     coll.dimension,
			CreatedAt:     coll.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func filterOrder(order []string, chunks map[string]rag.Chunk) []string {
	kept := order[:0]
	for _, id := range order {
		if _, ok := chunks[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}

func matchesFilter(meta rag.Metadata, where rag.MetadataFilter) bool {
	for k, v := range where {
		got, ok := meta.GetString(k)
		if !ok || got != v {
			return false
		}
	}
	return true
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		magA += float64(a[i] * a[i])
		magB += float64(b[i] * b[i])
	}
	den := math.Sqrt(magA) * math.Sqrt(magB)
	if den == 0 {
		return 1
	}
	return 1 - dot/den
}

var _ rag.VectorStore = (*Memory)(nil)
