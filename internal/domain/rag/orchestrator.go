package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	summarizeAfterMessages = 20
	recentVerbatimMessages = 6
	historyTruncateChars   = 800
	summaryRegenThreshold  = 10
	titleMaxLen            = 60
	searchQueryRecentUsers = 3
	historyRecentContext   = 6
	lowRelevanceThreshold  = 0.4
	attachmentTopKCap      = 30
)

// defaultSystemPrompt is used whenever a session has no agent attached.
const defaultSystemPrompt = `You are a knowledgeable assistant answering questions using the supplied documents plus your own expertise.

Rules:
- Only use information found in the provided context to answer factual questions; if the context doesn't cover something, say so explicitly.
- Cite every claim drawn from the context inline with [1], [2], etc., matching the numbered context block.
- Use Markdown formatting only — no HTML.
- End your answer with exactly three follow-up questions, each in its own <followup></followup> tag.`

const chatPromptTemplate = `DOCUMENT CONTEXT:
%s

SOURCES:
%s

%s

QUESTION: %s

Answer the question. Match depth to what is asked: concise for factual questions, thorough for analysis or advice. Always support claims drawn from the document context with [1], [2] citations, including on follow-up turns. End with exactly three follow-up questions in <followup> tags.`

const chatPromptTemplateWithAttachments = `ATTACHED DOCUMENTS (uploaded by the user):
%s

KNOWLEDGE BASE CONTEXT:
%s

SOURCES:
%s

%s

QUESTION: %s

The user has attached documents. Answer primarily from these attachments, supplemented by knowledge-base context. For advisory questions (building a plan, analysis, recommendations), go deep with concrete, well-supported answers and cite every choice with [1], [2], etc. For factual questions, be direct. End with exactly three follow-up questions in <followup> tags.`

const summarizePromptTemplate = `Summarize the following conversation in no more than 500 words, focusing on the topics discussed and any conclusions reached.

%s`

const titlePromptTemplate = `Generate a concise title (6 words or fewer) for a conversation that starts with this question. Reply with only the title — no quotes, no trailing punctuation.

Question: %s`

// ChatResult is the buffered (non-streaming) turn response.
type ChatResult struct {
	Answer      string
	Sources     []ChunkSourceRef
	SessionID   uuid.UUID
	MessageID   uuid.UUID
	ModelUsed   string
}

// SSEEventName is the wire name of a chat-stream event, in emission order.
type SSEEventName string

const (
	EventStatus  SSEEventName = "status"
	EventSources SSEEventName = "sources"
	EventContent SSEEventName = "content"
	EventDone    SSEEventName = "done"
	EventError   SSEEventName = "error"
)

// SSEEvent is one server-sent event the HTTP layer writes to the client.
type SSEEvent struct {
	Event SSEEventName
	Data  any
}

// DoneData is the payload of the terminal "done" event.
type DoneData struct {
	SessionID uuid.UUID `json:"session_id"`
	MessageID uuid.UUID `json:"message_id"`
	ModelUsed string    `json:"model_used"`
	Answer    string    `json:"answer"`
}

// Orchestrator is the Chat Orchestrator (§4.7): it loads session/agent
// state, drives retrieval, assembles the grounded prompt, streams and
// cleans the model's output, and persists the turn.
type Orchestrator struct {
	Sessions  SessionRepository
	Messages  MessageRepository
	Agents    AgentRepository
	Retriever *Retriever
	LLM       LLMRouter
	Logger    *slog.Logger
}

func NewOrchestrator(sessions SessionRepository, messages MessageRepository, agents AgentRepository, retriever *Retriever, llm LLMRouter, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{Sessions: sessions, Messages: messages, Agents: agents, Retriever: retriever, LLM: llm, Logger: logger}
}

// StartSession creates a new session, optionally bound to a collection and
// an agent persona.
func (o *Orchestrator) StartSession(ctx context.Context, collection *string, agentID *uuid.UUID, llmProvider string) (Session, error) {
	now := time.Now()
	s := Session{
		ID:         uuid.New(),
		Title:      "New conversation",
		Collection: collection,
		AgentID:    agentID,
		Metadata:   SessionMetadata{LLMProvider: llmProvider},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Sessions.Create(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// turnContext is everything resolved once per turn, shared by the buffered
// and streaming variants so the two don't drift.
type turnContext struct {
	session        Session
	agent          *Agent
	topK           int
	temperature    float64
	historySection string
	attChunks      []RetrievedChunk
	kbChunks       []RetrievedChunk
	sources        []ChunkSourceRef
	systemPrompt   string
	userPrompt     string
	isFirstTurn    bool
}

func (o *Orchestrator) prepareTurn(ctx context.Context, sessionID uuid.UUID, question string, topK int, temperature float64) (*turnContext, error) {
	session, ok, err := o.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("rag: session %s not found", sessionID)
	}

	var agent *Agent
	if session.AgentID != nil {
		if a, ok, err := o.Agents.Get(ctx, *session.AgentID); err == nil && ok {
			agent = &a
			topK = a.TopK
			temperature = a.Temperature
			if o.Logger != nil {
				o.Logger.Info("using agent", "agent", a.Name, "collections", a.Collections)
			}
		}
	}
	if topK <= 0 {
		topK = 5
	}

	allMessages, err := o.Messages.ListBySession(ctx, sessionID, 200)
	if err != nil {
		return nil, err
	}
	historySection := o.buildHistorySection(ctx, session, allMessages)

	recentUsers, err := o.Messages.RecentUserContent(ctx, sessionID, historyRecentContext)
	if err != nil {
		recentUsers = nil
	}
	searchQuery := buildSearchQuery(question, recentUsers)

	var agentCollections []string
	if agent != nil {
		agentCollections = agent.Collections
	}
	attachmentCollection := session.Metadata.AttachmentCollection

	var attChunks, kbChunks []RetrievedChunk
	if attachmentCollection != "" {
		attTopK := topK * 2
		if attTopK > attachmentTopKCap {
			attTopK = attachmentTopKCap
		}
		attChunks, err = o.Retriever.Retrieve(ctx, RetrieveOptions{Query: searchQuery, Collection: attachmentCollection, TopK: attTopK})
		if err != nil {
			return nil, err
		}
		switch {
		case len(agentCollections) > 0:
			kbChunks, err = o.Retriever.Retrieve(ctx, RetrieveOptions{Query: searchQuery, CollectionNames: agentCollections, TopK: topK})
		case session.Collection != nil && *session.Collection != "":
			kbChunks, err = o.Retriever.Retrieve(ctx, RetrieveOptions{Query: searchQuery, Collection: *session.Collection, TopK: topK})
		default:
			kbChunks, err = o.Retriever.Retrieve(ctx, RetrieveOptions{Query: searchQuery, TopK: topK})
		}
		if err != nil {
			return nil, err
		}
	} else {
		opts := RetrieveOptions{Query: searchQuery, TopK: topK}
		if len(agentCollections) > 0 {
			opts.CollectionNames = agentCollections
		} else if session.Collection != nil {
			opts.Collection = *session.Collection
		}
		kbChunks, err = o.Retriever.Retrieve(ctx, opts)
		if err != nil {
			return nil, err
		}
		if len(kbChunks) == 0 && len(agentCollections) > 0 {
			kbChunks, err = o.Retriever.Retrieve(ctx, RetrieveOptions{Query: searchQuery, TopK: topK})
			if err != nil {
				return nil, err
			}
		}
	}

	sources := buildSources(attChunks, kbChunks)

	systemPrompt := defaultSystemPrompt
	if agent != nil && agent.SystemPrompt != "" {
		systemPrompt = agent.SystemPrompt
	}
	userPrompt := buildUserPrompt(attChunks, kbChunks, historySection, question)

	return &turnContext{
		session:        session,
		agent:          agent,
		topK:           topK,
		temperature:    temperature,
		historySection: historySection,
		attChunks:      attChunks,
		kbChunks:       kbChunks,
		sources:        sources,
		systemPrompt:   systemPrompt,
		userPrompt:     userPrompt,
		isFirstTurn:    len(allMessages) == 0,
	}, nil
}

// Chat runs the buffered (non-streaming) turn: the degenerate case of the
// streaming pipeline that collects the whole generation before returning.
func (o *Orchestrator) Chat(ctx context.Context, sessionID uuid.UUID, question string, topK int, temperature float64) (ChatResult, error) {
	tc, err := o.prepareTurn(ctx, sessionID, question, topK, temperature)
	if err != nil {
		return ChatResult{}, err
	}

	info := &ProviderInfo{}
	raw, err := o.LLM.Generate(ctx, tc.userPrompt, tc.systemPrompt, tc.temperature, tc.session.Metadata.LLMProvider, info)
	if err != nil {
		return ChatResult{}, err
	}
	answer := CleanLLMOutput(raw)

	userMsg := Message{ID: uuid.New(), SessionID: sessionID, Role: RoleUser, Content: question, CreatedAt: time.Now()}
	if err := o.Messages.Append(ctx, userMsg); err != nil {
		return ChatResult{}, err
	}
	assistantMsg := Message{ID: uuid.New(), SessionID: sessionID, Role: RoleAssistant, Content: answer, Sources: tc.sources, CreatedAt: time.Now()}
	if err := o.Messages.Append(ctx, assistantMsg); err != nil {
		return ChatResult{}, err
	}
	_ = o.Sessions.Touch(ctx, sessionID, time.Now())

	if tc.isFirstTurn {
		o.autoTitle(ctx, sessionID, question)
	}

	return ChatResult{
		Answer:    answer,
		Sources:   tc.sources,
		SessionID: sessionID,
		MessageID: assistantMsg.ID,
		ModelUsed: info.Name,
	}, nil
}

// ChatStream runs the streaming pipeline, emitting the SSE event sequence
// status* → sources → status → content* → done (or error). The channel is
// closed after the terminal event.
func (o *Orchestrator) ChatStream(ctx context.Context, sessionID uuid.UUID, question string, topK int, temperature float64) (<-chan SSEEvent, error) {
	out := make(chan SSEEvent, 8)

	go func() {
		defer close(out)

		emit := func(ev SSEEventName, data any) bool {
			select {
			case out <- SSEEvent{Event: ev, Data: data}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(EventStatus, "searching documents") {
			return
		}

		tc, err := o.prepareTurn(ctx, sessionID, question, topK, temperature)
		if err != nil {
			emit(EventError, err.Error())
			return
		}

		if !emit(EventStatus, statusForChunks(tc.attChunks, tc.kbChunks)) {
			return
		}
		if !emit(EventSources, tc.sources) {
			return
		}
		if !emit(EventStatus, "generating answer") {
			return
		}

		info := &ProviderInfo{}
		stream, err := o.LLM.GenerateStream(ctx, tc.userPrompt, tc.systemPrompt, tc.temperature, tc.session.Metadata.LLMProvider, info)
		if err != nil {
			emit(EventError, err.Error())
			return
		}

		var raw strings.Builder
		prevClean := ""
		tokenIndex := 0
		for tok := range stream {
			if tok.Err != nil {
				emit(EventError, tok.Err.Error())
				return
			}
			raw.WriteString(tok.Text)
			tokenIndex++
			if ShouldEmitContent(tokenIndex, tok.Text) {
				trimmed := TrimIncompleteTrailingTag(raw.String())
				clean := CleanLLMOutput(trimmed)
				if clean != prevClean {
					if !emit(EventContent, clean) {
						return
					}
					prevClean = clean
				}
			}
		}

		answer := CleanLLMOutput(raw.String())

		userMsg := Message{ID: uuid.New(), SessionID: sessionID, Role: RoleUser, Content: question, CreatedAt: time.Now()}
		if err := o.Messages.Append(ctx, userMsg); err != nil {
			emit(EventError, err.Error())
			return
		}
		assistantMsg := Message{ID: uuid.New(), SessionID: sessionID, Role: RoleAssistant, Content: answer, Sources: tc.sources, CreatedAt: time.Now()}
		if err := o.Messages.Append(ctx, assistantMsg); err != nil {
			emit(EventError, err.Error())
			return
		}
		_ = o.Sessions.Touch(ctx, sessionID, time.Now())

		if tc.isFirstTurn {
			o.autoTitle(ctx, sessionID, question)
		}

		emit(EventDone, DoneData{
			SessionID: sessionID,
			MessageID: assistantMsg.ID,
			ModelUsed: info.Name,
			Answer:    answer,
		})
	}()

	return out, nil
}

func statusForChunks(attChunks, kbChunks []RetrievedChunk) string {
	chunks := append(append([]RetrievedChunk{}, attChunks...), kbChunks...)
	if len(chunks) == 0 {
		return "no relevant documents found — answering from general knowledge"
	}
	distinct := make(map[string]bool)
	var sum float64
	for _, c := range chunks {
		distinct[c.SourceFile] = true
		sum += 1 - c.RelevanceScore
	}
	avg := sum / float64(len(chunks))
	switch {
	case len(attChunks) > 0:
		return fmt.Sprintf("%d passages from attachments + %d from knowledge base", len(attChunks), len(kbChunks))
	case avg < lowRelevanceThreshold:
		return fmt.Sprintf("%d passages found (low relevance) in %d document(s)", len(chunks), len(distinct))
	default:
		return fmt.Sprintf("%d passages found in %d document(s)", len(chunks), len(distinct))
	}
}

// buildSources converts retrieved chunks into the citation payload
// returned to the client, attachments first so they get the lower indices.
func buildSources(attChunks, kbChunks []RetrievedChunk) []ChunkSourceRef {
	all := append(append([]ChunkSourceRef{}, toSourceRefs(attChunks)...), toSourceRefs(kbChunks)...)
	return all
}

func toSourceRefs(chunks []RetrievedChunk) []ChunkSourceRef {
	out := make([]ChunkSourceRef, len(chunks))
	for i, c := range chunks {
		text := c.Content
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		out[i] = ChunkSourceRef{
			Filename:       c.SourceFile,
			ChunkText:      text,
			RelevanceScore: round4(1 - c.RelevanceScore),
			Metadata:       c.Metadata,
		}
	}
	return out
}

func round4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}

// buildUserPrompt renders the numbered context block, source list, history
// section and question into the appropriate template — attachments and
// knowledge-base passages get two separate labeled blocks when present.
func buildUserPrompt(attChunks, kbChunks []RetrievedChunk, historySection, question string) string {
	var sourceParts []string
	seen := make(map[string]bool)
	idx := 1

	buildContext := func(chunks []RetrievedChunk) string {
		var parts []string
		for _, c := range chunks {
			parts = append(parts, fmt.Sprintf("[%d] %s", idx, c.Content))
			if !seen[c.SourceFile] {
				seen[c.SourceFile] = true
				var extras []string
				if pg, ok := c.Metadata.PageNumber(); ok && pg > 0 {
					extras = append(extras, fmt.Sprintf("page %d", pg))
				}
				if sh, ok := c.Metadata.GetString("section_header"); ok && sh != "" {
					extras = append(extras, "section: "+sh)
				}
				line := fmt.Sprintf("- [%d] %s", idx, c.SourceFile)
				if len(extras) > 0 {
					line += " (" + strings.Join(extras, ", ") + ")"
				}
				sourceParts = append(sourceParts, line)
			}
			idx++
		}
		return strings.Join(parts, "\n\n")
	}

	if len(attChunks) > 0 {
		attContext := buildContext(attChunks)
		kbContext := buildContext(kbChunks)
		sourcesText := strings.Join(sourceParts, "\n")
		if sourcesText == "" {
			sourcesText = "(no sources)"
		}
		if attContext == "" {
			attContext = "(no attachment passages)"
		}
		if kbContext == "" {
			kbContext = "(no additional context)"
		}
		return fmt.Sprintf(chatPromptTemplateWithAttachments, attContext, kbContext, sourcesText, historySection, question)
	}

	context := buildContext(kbChunks)
	if context == "" {
		context = "(no documents found)"
	}
	sourcesText := strings.Join(sourceParts, "\n")
	if sourcesText == "" {
		sourcesText = "(no sources)"
	}
	return fmt.Sprintf(chatPromptTemplate, context, sourcesText, historySection, question)
}

// buildSearchQuery concatenates the current question with the last up to
// 3 user messages, for topical continuity across turns.
func buildSearchQuery(question string, recentUserMessages []string) string {
	if len(recentUserMessages) == 0 {
		return question
	}
	recent := recentUserMessages
	if len(recent) > searchQueryRecentUsers {
		recent = recent[len(recent)-searchQueryRecentUsers:]
	}
	all := append(append([]string{}, recent...), question)
	return strings.Join(all, " ")
}

// buildHistorySection implements the caching/summarization policy: short
// conversations included verbatim, long ones summarized with a cache
// invalidated only every 10 new messages.
func (o *Orchestrator) buildHistorySection(ctx context.Context, session Session, messages []Message) string {
	total := len(messages)
	if total == 0 {
		return "CONVERSATION: (first question in this conversation)"
	}
	if total <= summarizeAfterMessages {
		return "CONVERSATION HISTORY:\n" + formatMessages(messages)
	}

	splitPoint := total - recentVerbatimMessages
	older := messages[:splitPoint]
	recent := messages[splitPoint:]

	var summary string
	cached := session.Metadata.Summary
	summaryAtCount := session.Metadata.SummaryAtCount
	if cached != "" && total-summaryAtCount < summaryRegenThreshold {
		summary = cached
	} else {
		summary = o.summarizeConversation(ctx, older)
		session.Metadata.Summary = summary
		session.Metadata.SummaryAtCount = total
		if err := o.Sessions.UpdateMetadata(ctx, session.ID, session.Metadata); err != nil && o.Logger != nil {
			o.Logger.Warn("failed to cache conversation summary", "session", session.ID, "error", err)
		}
	}

	return fmt.Sprintf("CONVERSATION SUMMARY (earlier in this chat):\n%s\n\nRECENT MESSAGES:\n%s", summary, formatMessages(recent))
}

func (o *Orchestrator) summarizeConversation(ctx context.Context, messages []Message) string {
	conversation := formatMessages(messages)
	summary, err := o.LLM.Generate(ctx, fmt.Sprintf(summarizePromptTemplate, conversation), "", 0.3, "", nil)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("summarization failed, falling back to topic list", "error", err)
		}
		var userMsgs []string
		for _, m := range messages {
			if m.Role == RoleUser {
				userMsgs = append(userMsgs, m.Content)
				if len(userMsgs) == 5 {
					break
				}
			}
		}
		return "Topics discussed: " + strings.Join(userMsgs, "; ")
	}
	return strings.TrimSpace(summary)
}

func formatMessages(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		role := "User"
		content := m.Content
		if m.Role == RoleAssistant {
			role = "Assistant"
			if len(content) > historyTruncateChars {
				content = content[:historyTruncateChars] + "..."
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, content))
	}
	return strings.Join(lines, "\n")
}

func (o *Orchestrator) autoTitle(ctx context.Context, sessionID uuid.UUID, question string) {
	title, err := o.LLM.Generate(ctx, fmt.Sprintf(titlePromptTemplate, question), "", 0.3, "", nil)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("failed to auto-generate session title", "session", sessionID, "error", err)
		}
		return
	}
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if len(title) > titleMaxLen {
		title = title[:titleMaxLen]
	}
	if title == "" {
		return
	}
	if err := o.Sessions.UpdateTitle(ctx, sessionID, title); err != nil && o.Logger != nil {
		o.Logger.Warn("failed to persist auto-generated title", "session", sessionID, "error", err)
	}
}
