package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

type createSessionRequest struct {
	Collection  *string    `json:"collection"`
	AgentID     *uuid.UUID `json:"agent_id"`
	LLMProvider string     `json:"llm_provider"`
}

// CreateSession starts a new conversation, optionally scoped to a
// collection and/or bound to an agent persona.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
			return
		}
	}
	session, err := h.orchestrator.StartSession(c.Request.Context(), req.Collection, req.AgentID, req.LLMProvider)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "session_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ListSessions returns the most recently active sessions, clamped to
// [1, 500] regardless of what the caller asks for.
func (h *Handler) ListSessions(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50, 500)
	sessions, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// SearchSessions finds sessions by title or message content.
func (h *Handler) SearchSessions(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "q is required", nil))
		return
	}
	limit := parseLimit(c.Query("limit"), 20, 200)
	sessions, err := h.sessions.Search(c.Request.Context(), q, limit)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "search_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type chatRequest struct {
	Question    string  `json:"question" binding:"required"`
	TopK        int     `json:"top_k"`
	Temperature float64 `json:"temperature"`
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid session id", err))
		return uuid.UUID{}, false
	}
	return id, true
}

// PostMessage runs one buffered (non-streaming) chat turn.
func (h *Handler) PostMessage(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	result, err := h.orchestrator.Chat(c.Request.Context(), sessionID, req.Question, req.TopK, temperature)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "chat_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// StreamMessage runs one chat turn, relaying the orchestrator's SSE event
// sequence (status* → sources → status → content* → done/error) straight
// to the client as it's produced.
func (h *Handler) StreamMessage(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	events, err := h.orchestrator.ChatStream(c.Request.Context(), sessionID, req.Question, req.TopK, temperature)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "chat_failed", errMessage(err), err))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", "streaming not supported", nil))
		return
	}

	for ev := range events {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			h.logger.Error("marshal sse event failed", "event", ev.Event, "error", err)
			continue
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Event, payload)
		flusher.Flush()
	}
}

// PostAttachment ingests a file into a session-scoped collection
// (`chatfiles-{sessionID[:8]}`) and binds it to the session's metadata so
// subsequent turns retrieve from it first.
func (h *Handler) PostAttachment(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	session, found, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	if !found {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "session not found", nil))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "file is required", err))
		return
	}
	data, err := readUploadedFile(fileHeader, h.cfg.MaxFileMB)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusRequestEntityTooLarge, "file_too_large", err.Error(), err))
		return
	}

	collection := attachmentCollectionFor(sessionID)
	result := h.pipeline.IngestFile(c.Request.Context(), fileHeader.Filename, data, collection)
	if result.Status == rag.JobError {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "ingest_failed", result.Error, nil))
		return
	}

	session.Metadata.AttachmentCollection = collection
	if err := h.sessions.UpdateMetadata(c.Request.Context(), sessionID, session.Metadata); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "update_failed", errMessage(err), err))
		return
	}

	c.JSON(http.StatusOK, result)
}

func attachmentCollectionFor(sessionID uuid.UUID) string {
	s := sessionID.String()
	if len(s) > 8 {
		s = s[:8]
	}
	return "chatfiles-" + s
}

type feedbackRequest struct {
	MessageID uuid.UUID         `json:"message_id" binding:"required"`
	Feedback  rag.FeedbackValue `json:"feedback" binding:"required,oneof=positive negative"`
}

// PostFeedback records (or updates) the verdict on one assistant message.
func (h *Handler) PostFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	now := time.Now()
	f := rag.Feedback{MessageID: req.MessageID, Value: req.Feedback, CreatedAt: now, UpdatedAt: now}
	if err := h.feedback.Upsert(c.Request.Context(), f); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "feedback_failed", errMessage(err), err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Analytics is an alias over the usage ledger aggregated for the whole
// lifetime of the service — a lightweight stand-in for a proper
// analytics pipeline.
func (h *Handler) Analytics(c *gin.Context) {
	records, err := h.usage.Aggregate(c.Request.Context(), time.Time{})
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": records})
}

// Usage reports provider usage since an optional `since` timestamp
// (RFC3339); defaults to the start of the current day.
func (h *Handler) Usage(c *gin.Context) {
	since := time.Now().Truncate(24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "since must be RFC3339", err))
			return
		}
		since = parsed
	}
	records, err := h.usage.Aggregate(c.Request.Context(), since)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": records, "since": since})
}
