package rag

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScalarKind tags the concrete type held by a Scalar.
type ScalarKind int

const (
	ScalarString ScalarKind = iota
	ScalarInt
	ScalarFloat
	ScalarBool
)

// Scalar is an open, tagged metadata value. The vector store only persists
// scalars; compound values are coerced to their string form before they
// ever reach a Scalar (see SanitizeMetadata).
type Scalar struct {
	kind ScalarKind
	s    string
	i    int64
	f    float64
	b    bool
}

func StringScalar(v string) Scalar { return Scalar{kind: ScalarString, s: v} }
func IntScalar(v int64) Scalar     { return Scalar{kind: ScalarInt, i: v} }
func FloatScalar(v float64) Scalar { return Scalar{kind: ScalarFloat, f: v} }
func BoolScalar(v bool) Scalar     { return Scalar{kind: ScalarBool, b: v} }

func (s Scalar) Kind() ScalarKind { return s.kind }

// AsString renders any scalar kind as a string, the form the vector store's
// sanitizer uses for non-string values.
func (s Scalar) AsString() string {
	switch s.kind {
	case ScalarString:
		return s.s
	case ScalarInt:
		return fmt.Sprintf("%d", s.i)
	case ScalarFloat:
		return fmt.Sprintf("%g", s.f)
	case ScalarBool:
		return fmt.Sprintf("%t", s.b)
	default:
		return ""
	}
}

// AsInt returns the int64 value and whether the scalar actually holds one.
func (s Scalar) AsInt() (int64, bool) {
	if s.kind != ScalarInt {
		return 0, false
	}
	return s.i, true
}

func (s Scalar) AsFloat() (float64, bool) {
	if s.kind != ScalarFloat {
		return 0, false
	}
	return s.f, true
}

func (s Scalar) AsBool() (bool, bool) {
	if s.kind != ScalarBool {
		return false, false
	}
	return s.b, true
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case ScalarInt:
		return json.Marshal(s.i)
	case ScalarFloat:
		return json.Marshal(s.f)
	case ScalarBool:
		return json.Marshal(s.b)
	default:
		return json.Marshal(s.s)
	}
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*s = StringScalar(v)
	case bool:
		*s = BoolScalar(v)
	case float64:
		if v == float64(int64(v)) {
			*s = IntScalar(int64(v))
		} else {
			*s = FloatScalar(v)
		}
	default:
		*s = StringScalar(fmt.Sprintf("%v", v))
	}
	return nil
}

// Metadata is the open, scalar-only bag attached to a chunk or a document
// block. Known fields get typed accessors below; unrecognised keys pass
// through untouched.
type Metadata map[string]Scalar

func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.AsString(), true
}

func (m Metadata) GetInt(key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

func (m Metadata) DocumentID() string {
	v, _ := m.GetString("document_id")
	return v
}

func (m Metadata) SourceFile() string {
	v, _ := m.GetString("source_file")
	return v
}

func (m Metadata) ContentHash() string {
	v, _ := m.GetString("content_hash")
	return v
}

func (m Metadata) ChunkIndex() int {
	v, _ := m.GetInt("chunk_index")
	return int(v)
}

func (m Metadata) TotalChunks() int {
	v, _ := m.GetInt("total_chunks")
	return int(v)
}

func (m Metadata) PageNumber() (int, bool) {
	v, ok := m.GetInt("page_number")
	return int(v), ok
}

// SanitizeMetadata coerces a loosely-typed map (as produced by extractors and
// callers) into the scalar-only form the vector store persists.
func SanitizeMetadata(raw map[string]any) Metadata {
	out := make(Metadata, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = StringScalar(val)
		case bool:
			out[k] = BoolScalar(val)
		case int:
			out[k] = IntScalar(int64(val))
		case int64:
			out[k] = IntScalar(val)
		case float64:
			out[k] = FloatScalar(val)
		case float32:
			out[k] = FloatScalar(float64(val))
		case nil:
			out[k] = StringScalar("")
		default:
			out[k] = StringScalar(fmt.Sprintf("%v", val))
		}
	}
	return out
}

// Chunk is the atomic retrievable unit stored in a Collection.
type Chunk struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata `json:"metadata"`
}

// ChunkID builds the canonical "{document_id}_chunk_{chunk_index}" id.
func ChunkID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, chunkIndex)
}

// RetrievedChunk is what the Hybrid Retriever hands back: a Chunk plus a
// lower-is-better relevance score and a convenience source_file accessor.
type RetrievedChunk struct {
	Content        string
	Metadata       Metadata
	RelevanceScore float64
	SourceFile     string
}

// MessageRole distinguishes user turns from assistant turns.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChunkSourceRef is the citation payload returned alongside a chat answer.
type ChunkSourceRef struct {
	Filename       string   `json:"filename"`
	ChunkText      string   `json:"chunk_text"`
	RelevanceScore float64  `json:"relevance_score"`
	Metadata       Metadata `json:"metadata"`
}

// Session is an ordered conversation, optionally bound to a collection and
// an agent persona.
type Session struct {
	ID         uuid.UUID       `json:"id"`
	Title      string          `json:"title"`
	Collection *string         `json:"collection,omitempty"`
	AgentID    *uuid.UUID      `json:"agent_id,omitempty"`
	Metadata   SessionMetadata `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SessionMetadata is the JSON blob hung off a Session: the rolling summary
// cache and attachment bindings.
type SessionMetadata struct {
	Summary              string `json:"summary,omitempty"`
	SummaryAtCount       int    `json:"summary_at_count,omitempty"`
	AttachmentCollection string `json:"attachment_collection,omitempty"`
	LLMProvider          string `json:"llm_provider,omitempty"`
}

// Message is one turn in a Session.
type Message struct {
	ID        uuid.UUID        `json:"id"`
	SessionID uuid.UUID        `json:"session_id"`
	Role      MessageRole      `json:"role"`
	Content   string           `json:"content"`
	Sources   []ChunkSourceRef `json:"sources,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Agent is a reusable persona overriding retrieval scope and generation
// parameters for any session it is attached to.
type Agent struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	SystemPrompt  string    `json:"system_prompt"`
	Collections   []string  `json:"collections,omitempty"`
	Temperature   float64   `json:"temperature"`
	TopK          int       `json:"top_k"`
	Icon          string    `json:"icon,omitempty"`
	UseMultiQuery bool      `json:"use_multi_query"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Folder groups documents hierarchically within one collection.
type Folder struct {
	ID         uuid.UUID  `json:"id"`
	Collection string     `json:"collection"`
	Name       string     `json:"name"`
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FeedbackValue is the user's verdict on a single assistant message.
type FeedbackValue string

const (
	FeedbackPositive FeedbackValue = "positive"
	FeedbackNegative FeedbackValue = "negative"
)

// Feedback is an upsertable row keyed by message id.
type Feedback struct {
	MessageID uuid.UUID     `json:"message_id"`
	Value     FeedbackValue `json:"feedback"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CallType distinguishes chat completions from audio transcription calls in
// the usage ledger.
type CallType string

const (
	CallTypeChat    CallType = "chat"
	CallTypeWhisper CallType = "whisper"
)

// UsageRecord is one append-only row per provider call.
type UsageRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	CallType         CallType  `json:"call_type"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	AudioSeconds     float64   `json:"audio_seconds,omitempty"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
}

// JobStatus tracks an asynchronous ingestion's lifecycle.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobSuccess    JobStatus = "success"
	JobDuplicate  JobStatus = "duplicate"
	JobEmpty      JobStatus = "empty"
	JobError      JobStatus = "error"
)

// Job is the in-memory record of a background ingestion.
type Job struct {
	ID          string        `json:"job_id"`
	Status      JobStatus     `json:"status"`
	Filename    string        `json:"filename"`
	Collection  string        `json:"collection"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Result      *IngestResult `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// IngestResult mirrors the public contract of the ingestion pipeline.
type IngestResult struct {
	DocumentID    string    `json:"document_id"`
	Filename      string    `json:"filename"`
	FileType      string    `json:"file_type"`
	ChunksCreated int       `json:"chunks_created"`
	Collection    string    `json:"collection"`
	ContentHash   string    `json:"content_hash"`
	Status        JobStatus `json:"status"`
	Error         string    `json:"error,omitempty"`
}

// CollectionInfo summarizes a collection for listing endpoints.
type CollectionInfo struct {
	Name          string    `json:"name"`
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
	Dimension     int       `json:"dimension"`
	CreatedAt     time.Time `json:"created_at"`
}
