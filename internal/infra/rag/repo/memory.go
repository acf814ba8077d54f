package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// MemorySessions is a mutex-guarded map-backed SessionRepository, grounded
// on the teacher's in-memory uploadask repositories, generalized from one
// entity kind to six.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]rag.Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[uuid.UUID]rag.Session)}
}

func (r *MemorySessions) Create(ctx context.Context, s rag.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *MemorySessions) Get(ctx context.Context, id uuid.UUID) (rag.Session, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok, nil
}

func (r *MemorySessions) List(ctx context.Context, limit int) ([]rag.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rag.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemorySessions) Search(ctx context.Context, q string, limit int) ([]rag.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q = strings.ToLower(q)
	var out []rag.Session
	for _, s := range r.sessions {
		if strings.Contains(strings.ToLower(s.Title), q) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemorySessions) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	s.Title = title
	s.UpdatedAt = time.Now()
	r.sessions[id] = s
	return nil
}

func (r *MemorySessions) UpdateMetadata(ctx context.Context, id uuid.UUID, meta rag.SessionMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	s.Metadata = meta
	s.UpdatedAt = time.Now()
	r.sessions[id] = s
	return nil
}

func (r *MemorySessions) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	s.UpdatedAt = at
	r.sessions[id] = s
	return nil
}

func (r *MemorySessions) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

var _ rag.SessionRepository = (*MemorySessions)(nil)

// MemoryMessages is a mutex-guarded slice-backed MessageRepository.
type MemoryMessages struct {
	mu       sync.RWMutex
	messages map[uuid.UUID][]rag.Message
}

func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{messages: make(map[uuid.UUID][]rag.Message)}
}

func (r *MemoryMessages) Append(ctx context.Context, m rag.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.SessionID] = append(r.messages[m.SessionID], m)
	return nil
}

func (r *MemoryMessages) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]rag.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]rag.Message, len(all))
	copy(out, all)
	return out, nil
}

func (r *MemoryMessages) RecentUserContent(ctx context.Context, sessionID uuid.UUID, maxMessages int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.messages[sessionID]
	var users []string
	for _, m := range all {
		if m.Role == rag.RoleUser {
			users = append(users, m.Content)
		}
	}
	if len(users) > maxMessages {
		users = users[len(users)-maxMessages:]
	}
	return users, nil
}

var _ rag.MessageRepository = (*MemoryMessages)(nil)

// MemoryAgents is a mutex-guarded map-backed AgentRepository.
type MemoryAgents struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]rag.Agent
}

func NewMemoryAgents() *MemoryAgents {
	return &MemoryAgents{agents: make(map[uuid.UUID]rag.Agent)}
}

func (r *MemoryAgents) Create(ctx context.Context, a rag.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = a
	return nil
}

func (r *MemoryAgents) Get(ctx context.Context, id uuid.UUID) (rag.Agent, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok, nil
}

func (r *MemoryAgents) List(ctx context.Context) ([]rag.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rag.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryAgents) Update(ctx context.Context, a rag.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; !ok {
		return nil
	}
	a.UpdatedAt = time.Now()
	r.agents[a.ID] = a
	return nil
}

func (r *MemoryAgents) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
	return nil
}

var _ rag.AgentRepository = (*MemoryAgents)(nil)

// MemoryFolders is a mutex-guarded map-backed FolderRepository.
type MemoryFolders struct {
	mu      sync.RWMutex
	folders map[uuid.UUID]rag.Folder
}

func NewMemoryFolders() *MemoryFolders {
	return &MemoryFolders{folders: make(map[uuid.UUID]rag.Folder)}
}

func (r *MemoryFolders) Create(ctx context.Context, f rag.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folders[f.ID] = f
	return nil
}

func (r *MemoryFolders) Get(ctx context.Context, id uuid.UUID) (rag.Folder, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.folders[id]
	return f, ok, nil
}

func (r *MemoryFolders) ListByCollection(ctx context.Context, collection string) ([]rag.Folder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []rag.Folder
	for _, f := range r.folders {
		if f.Collection == collection {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryFolders) Move(ctx context.Context, id uuid.UUID, newParent *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok {
		return nil
	}
	f.ParentID = newParent
	r.folders[id] = f
	return nil
}

func (r *MemoryFolders) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.folders, id)
	return nil
}

var _ rag.FolderRepository = (*MemoryFolders)(nil)

// MemoryDocumentFolders is a mutex-guarded map-backed DocumentFolderRepository.
// A missing entry means the document sits at the collection root.
type MemoryDocumentFolders struct {
	mu      sync.RWMutex
	byDocID map[string]uuid.UUID
}

func NewMemoryDocumentFolders() *MemoryDocumentFolders {
	return &MemoryDocumentFolders{byDocID: make(map[string]uuid.UUID)}
}

func (r *MemoryDocumentFolders) Assign(ctx context.Context, documentID string, folderID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if folderID == nil {
		delete(r.byDocID, documentID)
		return nil
	}
	r.byDocID[documentID] = *folderID
	return nil
}

func (r *MemoryDocumentFolders) FolderOf(ctx context.Context, documentID string) (*uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byDocID[documentID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (r *MemoryDocumentFolders) RevertToRoot(ctx context.Context, folderIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := make(map[uuid.UUID]bool, len(folderIDs))
	for _, id := range folderIDs {
		deleted[id] = true
	}
	for docID, folderID := range r.byDocID {
		if deleted[folderID] {
			delete(r.byDocID, docID)
		}
	}
	return nil
}

var _ rag.DocumentFolderRepository = (*MemoryDocumentFolders)(nil)

// MemoryFeedback is a mutex-guarded map-backed FeedbackRepository.
type MemoryFeedback struct {
	mu       sync.RWMutex
	feedback map[uuid.UUID]rag.Feedback
}

func NewMemoryFeedback() *MemoryFeedback {
	return &MemoryFeedback{feedback: make(map[uuid.UUID]rag.Feedback)}
}

func (r *MemoryFeedback) Upsert(ctx context.Context, f rag.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.feedback[f.MessageID]; ok {
		f.CreatedAt = existing.CreatedAt
	}
	r.feedback[f.MessageID] = f
	return nil
}

var _ rag.FeedbackRepository = (*MemoryFeedback)(nil)

// MemoryUsage is a mutex-guarded append-only slice UsageRepository.
type MemoryUsage struct {
	mu      sync.RWMutex
	records []rag.UsageRecord
}

func NewMemoryUsage() *MemoryUsage {
	return &MemoryUsage{}
}

func (r *MemoryUsage) Append(ctx context.Context, u rag.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, u)
	return nil
}

func (r *MemoryUsage) Aggregate(ctx context.Context, since time.Time) ([]rag.UsageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []rag.UsageRecord
	for _, u := range r.records {
		if !u.Timestamp.Before(since) {
			out = append(out, u)
		}
	}
	return out, nil
}

var _ rag.UsageRepository = (*MemoryUsage)(nil)
