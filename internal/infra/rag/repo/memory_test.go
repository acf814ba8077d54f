package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

func TestMemorySessions_CreateGetRoundTrip(t *testing.T) {
	r := NewMemorySessions()
	s := rag.Session{ID: uuid.New(), Title: "hello", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, r.Create(context.Background(), s))

	got, ok, err := r.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Title)

	_, ok, err = r.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySessions_ListSortsByUpdatedAtDescending(t *testing.T) {
	r := NewMemorySessions()
	now := time.Now()
	old := rag.Session{ID: uuid.New(), Title: "old", UpdatedAt: now.Add(-time.Hour)}
	recent := rag.Session{ID: uuid.New(), Title: "recent", UpdatedAt: now}
	require.NoError(t, r.Create(context.Background(), old))
	require.NoError(t, r.Create(context.Background(), recent))

	out, err := r.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "recent", out[0].Title)
	assert.Equal(t, "old", out[1].Title)
}

func TestMemorySessions_ListRespectsLimit(t *testing.T) {
	r := NewMemorySessions()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Create(context.Background(), rag.Session{ID: uuid.New(), UpdatedAt: time.Now()}))
	}
	out, err := r.List(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMemorySessions_SearchMatchesTitleCaseInsensitive(t *testing.T) {
	r := NewMemorySessions()
	require.NoError(t, r.Create(context.Background(), rag.Session{ID: uuid.New(), Title: "Quarterly Report", UpdatedAt: time.Now()}))
	require.NoError(t, r.Create(context.Background(), rag.Session{ID: uuid.New(), Title: "Unrelated", UpdatedAt: time.Now()}))

	out, err := r.Search(context.Background(), "quarterly", 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Quarterly Report", out[0].Title)
}

func TestMemorySessions_UpdateTitleAndMetadataTouchUpdatedAt(t *testing.T) {
	r := NewMemorySessions()
	s := rag.Session{ID: uuid.New(), Title: "before", UpdatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, r.Create(context.Background(), s))

	require.NoError(t, r.UpdateTitle(context.Background(), s.ID, "after"))
	got, _, _ := r.Get(context.Background(), s.ID)
	assert.Equal(t, "after", got.Title)
	assert.True(t, got.UpdatedAt.After(s.UpdatedAt))

	require.NoError(t, r.UpdateMetadata(context.Background(), s.ID, rag.SessionMetadata{Summary: "summary"}))
	got, _, _ = r.Get(context.Background(), s.ID)
	assert.Equal(t, "summary", got.Metadata.Summary)
}

func TestMemorySessions_UpdateTitleOnUnknownIDIsNoop(t *testing.T) {
	r := NewMemorySessions()
	assert.NoError(t, r.UpdateTitle(context.Background(), uuid.New(), "x"))
}

func TestMemorySessions_DeleteRemovesSession(t *testing.T) {
	r := NewMemorySessions()
	s := rag.Session{ID: uuid.New()}
	require.NoError(t, r.Create(context.Background(), s))
	require.NoError(t, r.Delete(context.Background(), s.ID))

	_, ok, err := r.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryMessages_AppendAndListBySession(t *testing.T) {
	r := NewMemoryMessages()
	sessionID := uuid.New()
	require.NoError(t, r.Append(context.Background(), rag.Message{ID: uuid.New(), SessionID: sessionID, Role: rag.RoleUser, Content: "hi"}))
	require.NoError(t, r.Append(context.Background(), rag.Message{ID: uuid.New(), SessionID: sessionID, Role: rag.RoleAssistant, Content: "hello"}))

	out, err := r.ListBySession(context.Background(), sessionID, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "hi", out[0].Content)
}

func TestMemoryMessages_RecentUserContentFiltersRoleAndCapsCount(t *testing.T) {
	r := NewMemoryMessages()
	sessionID := uuid.New()
	for i, content := range []string{"one", "two", "three", "four"} {
		_ = i
		require.NoError(t, r.Append(context.Background(), rag.Message{ID: uuid.New(), SessionID: sessionID, Role: rag.RoleUser, Content: content}))
		require.NoError(t, r.Append(context.Background(), rag.Message{ID: uuid.New(), SessionID: sessionID, Role: rag.RoleAssistant, Content: "reply"}))
	}

	out, err := r.RecentUserContent(context.Background(), sessionID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, out)
}

func TestMemoryAgents_CreateGetListUpdateDelete(t *testing.T) {
	r := NewMemoryAgents()
	a := rag.Agent{ID: uuid.New(), Name: "Helper", CreatedAt: time.Now()}
	require.NoError(t, r.Create(context.Background(), a))

	got, ok, err := r.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Helper", got.Name)

	a.Name = "Renamed"
	require.NoError(t, r.Update(context.Background(), a))
	got, _, _ = r.Get(context.Background(), a.ID)
	assert.Equal(t, "Renamed", got.Name)

	list, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, r.Delete(context.Background(), a.ID))
	_, ok, _ = r.Get(context.Background(), a.ID)
	assert.False(t, ok)
}

func TestMemoryAgents_UpdateUnknownIDIsNoop(t *testing.T) {
	r := NewMemoryAgents()
	assert.NoError(t, r.Update(context.Background(), rag.Agent{ID: uuid.New(), Name: "ghost"}))
}

func TestMemoryFolders_CreateGetListByCollectionAndMove(t *testing.T) {
	r := NewMemoryFolders()
	root := rag.Folder{ID: uuid.New(), Collection: "docs", Name: "root", CreatedAt: time.Now()}
	child := rag.Folder{ID: uuid.New(), Collection: "docs", Name: "child", ParentID: &root.ID, CreatedAt: time.Now().Add(time.Second)}
	require.NoError(t, r.Create(context.Background(), root))
	require.NoError(t, r.Create(context.Background(), child))

	list, err := r.ListByCollection(context.Background(), "docs")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "root", list[0].Name)

	newParent := uuid.New()
	require.NoError(t, r.Move(context.Background(), child.ID, &newParent))
	got, _, _ := r.Get(context.Background(), child.ID)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, newParent, *got.ParentID)

	require.NoError(t, r.Delete(context.Background(), child.ID))
	_, ok, _ := r.Get(context.Background(), child.ID)
	assert.False(t, ok)
}

func TestMemoryFeedback_UpsertPreservesOriginalCreatedAt(t *testing.T) {
	r := NewMemoryFeedback()
	messageID := uuid.New()
	created := time.Now().Add(-time.Hour)

	require.NoError(t, r.Upsert(context.Background(), rag.Feedback{MessageID: messageID, Value: rag.FeedbackPositive, CreatedAt: created}))
	require.NoError(t, r.Upsert(context.Background(), rag.Feedback{MessageID: messageID, Value: rag.FeedbackNegative, CreatedAt: time.Now()}))

	assert.Equal(t, rag.FeedbackNegative, r.feedback[messageID].Value)
	assert.Equal(t, created, r.feedback[messageID].CreatedAt)
}

func TestMemoryUsage_AppendAndAggregateSince(t *testing.T) {
	r := NewMemoryUsage()
	now := time.Now()
	require.NoError(t, r.Append(context.Background(), rag.UsageRecord{Timestamp: now.Add(-2 * time.Hour), Provider: "old"}))
	require.NoError(t, r.Append(context.Background(), rag.UsageRecord{Timestamp: now, Provider: "recent"}))

	out, err := r.Aggregate(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "recent", out[0].Provider)
}
