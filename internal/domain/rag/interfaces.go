package rag

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// VectorStore is the abstract collection store consumed by ingestion and
// retrieval. Implementations: a Postgres/pgvector-backed store for
// production, an in-memory linear-scan store for tests and for deployments
// without a configured database.
type VectorStore interface {
	GetOrCreateCollection(ctx context.Context, name string, dimension int) error
	Add(ctx context.Context, collection string, chunks []Chunk) error
	Query(ctx context.Context, collection string, embedding []float32, nResults int) ([]ScoredChunk, error)
	Get(ctx context.Context, collection string, where MetadataFilter, limit int) ([]Chunk, error)
	Count(ctx context.Context, collection string) (int, error)
	Delete(ctx context.Context, collection string, ids []string) error
	DeleteCollection(ctx context.Context, collection string) error
	ListCollections(ctx context.Context) ([]CollectionInfo, error)
}

// ScoredChunk is a vector store query hit: a chunk plus its cosine distance
// (lower = more similar).
type ScoredChunk struct {
	Chunk    Chunk
	Distance float64
}

// MetadataFilter restricts a Get scan to chunks whose metadata matches every
// key/value pair exactly. An empty filter matches everything.
type MetadataFilter map[string]string

// Embedder produces fixed-dimension embeddings for text, synchronously and
// idempotently from the caller's point of view.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ProviderInfo is filled in by the LLM Router with the label of whichever
// provider actually served a request.
type ProviderInfo struct {
	Name string
}

// StreamToken is one element of a generate_stream sequence: either a text
// delta or a terminal error.
type StreamToken struct {
	Text string
	Err  error
}

// LLMRouter is the multi-provider chat completion facade with circuit
// breaker failover, shared between streaming and non-streaming callers.
// preferred, when non-empty, names the provider label a caller's session
// has designated as primary (§4.6); the router tries it first and falls
// back to its normal fixed order on failure or ineligibility. info, when
// non-nil, is filled in with the label of whichever provider actually
// served the request.
type LLMRouter interface {
	Generate(ctx context.Context, prompt, system string, temperature float64, preferred string, info *ProviderInfo) (string, error)
	GenerateStream(ctx context.Context, prompt, system string, temperature float64, preferred string, info *ProviderInfo) (<-chan StreamToken, error)
	ActiveProvider() string
}

// Reranker scores (query, passage) pairs for the cross-encoder stage. The
// heuristic and HTTP-backed implementations both satisfy this; a failure
// degrades retrieval to "keep previous order", never to a hard error.
type Reranker interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Chunker splits one extracted text block into ordered, overlapping chunks.
type Chunker interface {
	Chunk(text string, base Metadata) []ChunkCandidate
}

// ChunkCandidate is a chunk before it is embedded and persisted.
type ChunkCandidate struct {
	Content  string
	Metadata Metadata
}

// TextBlock is the output of a format extractor: one logical span of text
// plus format-specific metadata (page markers, section headers, ...).
type TextBlock struct {
	Content  string
	Metadata Metadata
}

// Extractor turns raw bytes of a known format into text blocks.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) ([]TextBlock, error)
}

// OutcomeKind is the tag of an ingestion Outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeDuplicate
	OutcomeEmpty
	OutcomeError
)

// Outcome is a tagged result shape for an ingestion run: success,
// duplicate, empty-after-chunking and error are distinct kinds. The
// pipeline's IngestFile/IngestTextBlocks do not return it: they return an
// IngestResult whose Status carries the same distinction, and they report
// every failure, infrastructure faults included, as Status JobError with a
// message rather than as a Go error.
type Outcome struct {
	Kind        OutcomeKind
	DocumentID  string
	ChunksCreated int
	ErrorMessage  string
}

// SessionRepository is the first of the relational repositories: sessions,
// messages, agents, folders, feedback and usage. One implementation is
// Postgres backed; an in-memory implementation backs tests.
type SessionRepository interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id uuid.UUID) (Session, bool, error)
	List(ctx context.Context, limit int) ([]Session, error)
	Search(ctx context.Context, q string, limit int) ([]Session, error)
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, meta SessionMetadata) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type MessageRepository interface {
	Append(ctx context.Context, m Message) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)
	RecentUserContent(ctx context.Context, sessionID uuid.UUID, maxMessages int) ([]string, error)
}

type AgentRepository interface {
	Create(ctx context.Context, a Agent) error
	Get(ctx context.Context, id uuid.UUID) (Agent, bool, error)
	List(ctx context.Context) ([]Agent, error)
	Update(ctx context.Context, a Agent) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type FolderRepository interface {
	Create(ctx context.Context, f Folder) error
	Get(ctx context.Context, id uuid.UUID) (Folder, bool, error)
	ListByCollection(ctx context.Context, collection string) ([]Folder, error)
	Move(ctx context.Context, id uuid.UUID, newParent *uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DocumentFolderRepository stores the document→folder placement as a
// nullable reference keyed by document id; it never stores the reverse
// (folder→documents) list, which is always recomputed via query.
type DocumentFolderRepository interface {
	Assign(ctx context.Context, documentID string, folderID *uuid.UUID) error
	FolderOf(ctx context.Context, documentID string) (*uuid.UUID, error)
	RevertToRoot(ctx context.Context, folderIDs []uuid.UUID) error
}

type FeedbackRepository interface {
	Upsert(ctx context.Context, f Feedback) error
}

type UsageRepository interface {
	Append(ctx context.Context, u UsageRecord) error
	Aggregate(ctx context.Context, since time.Time) ([]UsageRecord, error)
}

// JobStore is the in-memory, mutex-guarded async job tracker with lazy TTL
// expiry on lookup.
type JobStore interface {
	Create(filename, collection string) Job
	Complete(id string, result IngestResult)
	Fail(id string, err error)
	Get(id string) (Job, bool)
}

// JobQueue dispatches a background ingestion task; the in-process
// implementation runs it on a goroutine, the Valkey-backed one enqueues it
// for a worker loop.
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload any) error
}

// ObjectStorage abstracts blob storage (R2/S3-compatible or in-memory).
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) (StoredObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// StoredObject captures persisted blob metadata.
type StoredObject struct {
	Key      string
	Size     int64
	MimeType string
	ETag     string
}

// URLFetcher performs an SSRF-safe HTTP GET for URL ingestion.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}
