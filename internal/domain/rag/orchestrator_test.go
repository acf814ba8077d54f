package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionRepo struct {
	sessions map[uuid.UUID]Session
	titles   []string
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[uuid.UUID]Session{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, s Session) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeSessionRepo) Get(_ context.Context, id uuid.UUID) (Session, bool, error) {
	s, ok := r.sessions[id]
	return s, ok, nil
}

func (r *fakeSessionRepo) List(_ context.Context, _ int) ([]Session, error) { return nil, nil }

func (r *fakeSessionRepo) Search(_ context.Context, _ string, _ int) ([]Session, error) {
	return nil, nil
}

func (r *fakeSessionRepo) UpdateTitle(_ context.Context, id uuid.UUID, title string) error {
	s := r.sessions[id]
	s.Title = title
	r.sessions[id] = s
	r.titles = append(r.titles, title)
	return nil
}

func (r *fakeSessionRepo) UpdateMetadata(_ context.Context, id uuid.UUID, meta SessionMetadata) error {
	s := r.sessions[id]
	s.Metadata = meta
	r.sessions[id] = s
	return nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, _ uuid.UUID, _ time.Time) error { return nil }

func (r *fakeSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.sessions, id)
	return nil
}

type fakeMessageRepo struct {
	messages map[uuid.UUID][]Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: map[uuid.UUID][]Message{}}
}

func (r *fakeMessageRepo) Append(_ context.Context, m Message) error {
	r.messages[m.SessionID] = append(r.messages[m.SessionID], m)
	return nil
}

func (r *fakeMessageRepo) ListBySession(_ context.Context, sessionID uuid.UUID, _ int) ([]Message, error) {
	return r.messages[sessionID], nil
}

func (r *fakeMessageRepo) RecentUserContent(_ context.Context, sessionID uuid.UUID, maxMessages int) ([]string, error) {
	var out []string
	for _, m := range r.messages[sessionID] {
		if m.Role == RoleUser {
			out = append(out, m.Content)
		}
	}
	if len(out) > maxMessages {
		out = out[len(out)-maxMessages:]
	}
	return out, nil
}

type fakeAgentRepo struct {
	agents map[uuid.UUID]Agent
}

func newFakeAgentRepo() *fakeAgentRepo { return &fakeAgentRepo{agents: map[uuid.UUID]Agent{}} }

func (r *fakeAgentRepo) Create(_ context.Context, a Agent) error {
	r.agents[a.ID] = a
	return nil
}

func (r *fakeAgentRepo) Get(_ context.Context, id uuid.UUID) (Agent, bool, error) {
	a, ok := r.agents[id]
	return a, ok, nil
}

func (r *fakeAgentRepo) List(_ context.Context) ([]Agent, error) { return nil, nil }

func (r *fakeAgentRepo) Update(_ context.Context, a Agent) error {
	r.agents[a.ID] = a
	return nil
}

func (r *fakeAgentRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.agents, id)
	return nil
}

func newTestOrchestrator() (*Orchestrator, *fakeSessionRepo, *fakeMessageRepo, *fakeLLMRouter) {
	sessions := newFakeSessionRepo()
	messages := newFakeMessageRepo()
	agents := newFakeAgentRepo()
	llm := &fakeLLMRouter{generateText: "The answer is 42.<followup>one?</followup><followup>two?</followup><followup>three?</followup>"}
	retriever := NewRetriever(newFakeVectorStore(), &fakeEmbedder{dim: 4}, nil, nil, nil)
	o := NewOrchestrator(sessions, messages, agents, retriever, llm, nil)
	return o, sessions, messages, llm
}

func TestStartSession_CreatesAndPersistsSession(t *testing.T) {
	o, sessions, _, _ := newTestOrchestrator()
	coll := "docs"
	s, err := o.StartSession(context.Background(), &coll, nil, "")

	require.NoError(t, err)
	assert.Equal(t, "New conversation", s.Title)
	assert.Equal(t, &coll, s.Collection)
	_, ok := sessions.sessions[s.ID]
	assert.True(t, ok)
}

func TestChat_HonorsSessionsPreferredProvider(t *testing.T) {
	o, _, _, llm := newTestOrchestrator()
	s, err := o.StartSession(context.Background(), nil, nil, "cerebras")
	require.NoError(t, err)

	_, err = o.Chat(context.Background(), s.ID, "what is the answer?", 5, 0.3)
	require.NoError(t, err)

	assert.Equal(t, "cerebras", llm.lastPreferred)
}

func TestChat_UnknownSessionReturnsError(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	_, err := o.Chat(context.Background(), uuid.New(), "hello", 5, 0.3)
	assert.Error(t, err)
}

func TestChat_HappyPathPersistsMessagesAndReturnsCleanAnswer(t *testing.T) {
	o, sessions, messages, llm := newTestOrchestrator()
	s, err := o.StartSession(context.Background(), nil, nil, "")
	require.NoError(t, err)

	result, err := o.Chat(context.Background(), s.ID, "what is the answer?", 5, 0.3)
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "The answer is 42.")
	assert.Contains(t, result.Answer, "<followup>one?</followup>", "followup blocks survive CleanLLMOutput verbatim")
	assert.Equal(t, s.ID, result.SessionID)
	assert.Equal(t, "fake", result.ModelUsed)

	stored := messages.messages[s.ID]
	require.Len(t, stored, 2)
	assert.Equal(t, RoleUser, stored[0].Role)
	assert.Equal(t, RoleAssistant, stored[1].Role)

	assert.Len(t, sessions.titles, 1, "the first turn in a session should trigger auto-titling")
	assert.NotNil(t, llm)
}

func TestChat_LLMErrorPropagatesWithoutPersisting(t *testing.T) {
	o, _, messages, llm := newTestOrchestrator()
	s, err := o.StartSession(context.Background(), nil, nil, "")
	require.NoError(t, err)
	llm.generateErr = errors.New("provider unavailable")

	_, err = o.Chat(context.Background(), s.ID, "hello", 5, 0.3)
	assert.Error(t, err)
	assert.Empty(t, messages.messages[s.ID])
}

func TestChatStream_EmitsStatusSourcesContentDoneInOrder(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	s, err := o.StartSession(context.Background(), nil, nil, "")
	require.NoError(t, err)

	events, err := o.ChatStream(context.Background(), s.ID, "hello", 5, 0.3)
	require.NoError(t, err)

	var seen []SSEEventName
	for ev := range events {
		seen = append(seen, ev.Event)
		if ev.Event == EventError {
			t.Fatalf("unexpected error event: %v", ev.Data)
		}
	}

	require.Contains(t, seen, EventDone)
	assert.Equal(t, EventStatus, seen[0])

	sourcesAt, contentAt := -1, -1
	for i, ev := range seen {
		if ev == EventSources && sourcesAt < 0 {
			sourcesAt = i
		}
		if ev == EventContent && contentAt < 0 {
			contentAt = i
		}
	}
	require.GreaterOrEqual(t, sourcesAt, 0)
	require.GreaterOrEqual(t, contentAt, 0)
	assert.Less(t, sourcesAt, contentAt)
	assert.Equal(t, EventDone, seen[len(seen)-1])
}

func TestChatStream_StreamErrorEmitsErrorEventAndCloses(t *testing.T) {
	o, _, _, llm := newTestOrchestrator()
	s, err := o.StartSession(context.Background(), nil, nil, "")
	require.NoError(t, err)
	llm.streamErr = errors.New("provider unreachable")

	events, err := o.ChatStream(context.Background(), s.ID, "hello", 5, 0.3)
	require.NoError(t, err)

	var last SSEEvent
	for ev := range events {
		last = ev
	}
	assert.Equal(t, EventError, last.Event)
}

func TestBuildSearchQuery_JoinsRecentUserMessagesWithinCap(t *testing.T) {
	out := buildSearchQuery("current question", []string{"one", "two", "three", "four"})
	assert.Equal(t, "two three four current question", out)
}

func TestBuildSearchQuery_NoHistoryReturnsQuestionAlone(t *testing.T) {
	assert.Equal(t, "solo question", buildSearchQuery("solo question", nil))
}

func TestBuildSources_AttachmentsFirst(t *testing.T) {
	att := []RetrievedChunk{{Content: "att", SourceFile: "a.pdf"}}
	kb := []RetrievedChunk{{Content: "kb", SourceFile: "b.pdf"}}
	out := buildSources(att, kb)
	require.Len(t, out, 2)
	assert.Equal(t, "a.pdf", out[0].Filename)
	assert.Equal(t, "b.pdf", out[1].Filename)
}

func TestStatusForChunks_NoChunksReportsGeneralKnowledge(t *testing.T) {
	assert.Contains(t, statusForChunks(nil, nil), "general knowledge")
}

func TestStatusForChunks_AttachmentsReportsSplitCounts(t *testing.T) {
	att := []RetrievedChunk{{SourceFile: "a"}}
	kb := []RetrievedChunk{{SourceFile: "b"}, {SourceFile: "c"}}
	out := statusForChunks(att, kb)
	assert.Contains(t, out, "1 passages from attachments")
	assert.Contains(t, out, "2 from knowledge base")
}

func TestBuildHistorySection_EmptyHistory(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	out := o.buildHistorySection(context.Background(), Session{}, nil)
	assert.Contains(t, out, "first question")
}

func TestBuildHistorySection_ShortHistoryIncludedVerbatim(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	msgs := []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}
	out := o.buildHistorySection(context.Background(), Session{}, msgs)
	assert.Contains(t, out, "User: hi")
	assert.Contains(t, out, "Assistant: hello")
}

func TestAutoTitle_TrimsQuotesAndPersists(t *testing.T) {
	o, sessions, _, llm := newTestOrchestrator()
	s, err := o.StartSession(context.Background(), nil, nil, "")
	require.NoError(t, err)
	llm.generateText = `"Quoted Title"`

	o.autoTitle(context.Background(), s.ID, "what's up?")

	assert.Equal(t, "Quoted Title", sessions.sessions[s.ID].Title)
}

func TestAutoTitle_LLMErrorLeavesTitleUnchanged(t *testing.T) {
	o, sessions, _, llm := newTestOrchestrator()
	s, err := o.StartSession(context.Background(), nil, nil, "")
	require.NoError(t, err)
	llm.generateErr = errors.New("down")

	o.autoTitle(context.Background(), s.ID, "question")

	assert.Equal(t, "New conversation", sessions.sessions[s.ID].Title)
}
