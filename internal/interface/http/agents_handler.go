package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

type agentRequest struct {
	Name          string   `json:"name" binding:"required"`
	SystemPrompt  string   `json:"system_prompt"`
	Collections   []string `json:"collections"`
	Temperature   float64  `json:"temperature"`
	TopK          int      `json:"top_k"`
	Icon          string   `json:"icon"`
	UseMultiQuery bool     `json:"use_multi_query"`
}

// CreateAgent defines a reusable persona.
func (h *Handler) CreateAgent(c *gin.Context) {
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	now := time.Now()
	agent := agentFromRequest(req)
	agent.ID = uuid.New()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	if agent.TopK <= 0 {
		agent.TopK = 5
	}
	if agent.Temperature == 0 {
		agent.Temperature = 0.7
	}
	if err := h.agents.Create(c.Request.Context(), agent); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "create_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusCreated, agent)
}

// ListAgents returns every defined persona.
func (h *Handler) ListAgents(c *gin.Context) {
	agents, err := h.agents.List(c.Request.Context())
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// GetAgent returns a single persona.
func (h *Handler) GetAgent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid agent id", err))
		return
	}
	agent, found, err := h.agents.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	if !found {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "agent not found", nil))
		return
	}
	c.JSON(http.StatusOK, agent)
}

// UpdateAgent replaces a persona's editable fields.
func (h *Handler) UpdateAgent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid agent id", err))
		return
	}
	existing, found, err := h.agents.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	if !found {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "agent not found", nil))
		return
	}
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	agent := agentFromRequest(req)
	agent.ID = existing.ID
	agent.CreatedAt = existing.CreatedAt
	agent.UpdatedAt = time.Now()
	if err := h.agents.Update(c.Request.Context(), agent); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "update_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, agent)
}

// DeleteAgent removes a persona.
func (h *Handler) DeleteAgent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid agent id", err))
		return
	}
	if err := h.agents.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "delete_failed", errMessage(err), err))
		return
	}
	c.Status(http.StatusNoContent)
}

func agentFromRequest(req agentRequest) rag.Agent {
	return rag.Agent{
		Name:          req.Name,
		SystemPrompt:  req.SystemPrompt,
		Collections:   req.Collections,
		Temperature:   req.Temperature,
		TopK:          req.TopK,
		Icon:          req.Icon,
		UseMultiQuery: req.UseMultiQuery,
	}
}
