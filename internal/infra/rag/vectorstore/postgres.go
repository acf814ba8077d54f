// Package vectorstore implements rag.VectorStore against Postgres+pgvector
// (the production backend, `<=>` cosine distance operator) and as an
// in-memory linear scan (tests and memory-mode deployments).
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// deleteBatchCap matches the interface contract's documented batch cap for
// bulk delete calls.
const deleteBatchCap = 500

// Postgres implements rag.VectorStore on top of a single wide table holding
// every collection, partitioned by a `collection` column — simpler than one
// physical table per collection and the approach the teacher's own
// PostgresChunkRepository takes for its single implicit collection.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) GetOrCreateCollection(ctx context.Context, name string, dimension int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rag_collections (name, dimension, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO NOTHING
	`, name, dimension)
	return err
}

func (s *Postgres) Add(ctx context.Context, collection string, chunks []rag.Chunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO rag_chunks (id, collection, content, embedding, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata
		`, c.ID, collection, c.Content, pgvector.NewVector(c.Embedding), metaJSON)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *Postgres) Query(ctx context.Context, collection string, embedding []float32, nResults int) ([]rag.ScoredChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, content, embedding, metadata, (embedding <=> $1) AS distance
		FROM rag_chunks
		WHERE collection = $2
		ORDER BY embedding <=> $1 ASC
		LIMIT $3
	`, pgvector.NewVector(embedding), collection, nResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.ScoredChunk
	for rows.Next() {
		chunk, distance, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rag.ScoredChunk{Chunk: chunk, Distance: distance})
	}
	return out, rows.Err()
}

func (s *Postgres) Get(ctx context.Context, collection string, where rag.MetadataFilter, limit int) ([]rag.Chunk, error) {
	query := `SELECT id, content, embedding, metadata, 0 FROM rag_chunks WHERE collection = $1`
	args := []any{collection}
	argPos := 2
	for k, v := range where {
		query += fmt.Sprintf(" AND metadata->>%s = $%d", quoteJSONKeyParam(k), argPos)
		args = append(args, v)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY (metadata->>'chunk_index')::int ASC NULLS LAST LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.Chunk
	for rows.Next() {
		chunk, _, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

func (s *Postgres) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rag_chunks WHERE collection = $1`, collection).Scan(&n)
	return n, err
}

func (s *Postgres) Delete(ctx context.Context, collection string, ids []string) error {
	for start := 0; start < len(ids); start += deleteBatchCap {
		end := start + deleteBatchCap
		if end > len(ids) {
			end = len(ids)
		}
		if _, err := s.pool.Exec(ctx, `
			DELETE FROM rag_chunks WHERE collection = $1 AND id = ANY($2)
		`, collection, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rag_chunks WHERE collection = $1`, collection); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM rag_collections WHERE name = $1`, collection)
	return err
}

func (s *Postgres) ListCollections(ctx context.Context) ([]rag.CollectionInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.name, c.dimension, c.created_at,
			COUNT(DISTINCT ch.metadata->>'document_id') AS doc_count,
			COUNT(ch.id) AS chunk_count
		FROM rag_collections c
		LEFT JOIN rag_chunks ch ON ch.collection = c.name
		GROUP BY c.name, c.dimension, c.created_at
		ORDER BY c.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.CollectionInfo
	for rows.Next() {
		var info rag.CollectionInfo
		var createdAt time.Time
		if err := rows.Scan(&info.Name, &info.Dimension, &createdAt, &info.DocumentCount, &info.ChunkCount); err != nil {
			return nil, err
		}
		info.CreatedAt = createdAt
		out = append(out, info)
	}
	return out, rows.Err()
}

func scanChunk(rows pgx.Rows) (rag.Chunk, float64, error) {
	var (
		c            rag.Chunk
		embeddingRaw any
		metaJSON     []byte
		distance     float64
	)
	if err := rows.Scan(&c.ID, &c.Content, &embeddingRaw, &metaJSON, &distance); err != nil {
		return rag.Chunk{}, 0, err
	}
	embedding, err := normalizeEmbedding(embeddingRaw)
	if err != nil {
		return rag.Chunk{}, 0, err
	}
	c.Embedding = embedding
	var meta rag.Metadata
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return rag.Chunk{}, 0, err
		}
	}
	c.Metadata = meta
	return c, distance, nil
}

// normalizeEmbedding accepts whatever shape pgx hands back for a vector
// column depending on driver registration, mirroring the teacher's own
// defensive embedding decoder in uploadask/repo/postgres.go.
func normalizeEmbedding(raw any) ([]float32, error) {
	switch v := raw.(type) {
	case pgvector.Vector:
		return append([]float32(nil), v.Slice()...), nil
	case []float32:
		return append([]float32(nil), v...), nil
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out, nil
	case string:
		trimmed := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(v), "["), "]")
		if trimmed == "" {
			return nil, nil
		}
		parts := strings.Split(trimmed, ",")
		out := make([]float32, 0, len(parts))
		for _, p := range parts {
			numStr := strings.TrimSpace(p)
			if numStr == "" {
				continue
			}
			f, err := strconv.ParseFloat(numStr, 32)
			if err != nil {
				return nil, err
			}
			out = append(out, float32(f))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported embedding type %T", raw)
	}
}

// quoteJSONKeyParam defends against breaking out of the ->> operator; keys
// come from internal metadata filter construction, never raw user input,
// but we still quote defensively since this builds raw SQL text.
func quoteJSONKeyParam(key string) string {
	return "'" + strings.ReplaceAll(key, "'", "''") + "'"
}

var _ rag.VectorStore = (*Postgres)(nil)
