package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/ai-helloworld/internal/domain/auth"
	"github.com/yanqian/ai-helloworld/internal/domain/rag"
	"github.com/yanqian/ai-helloworld/internal/infra/config"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/queue"
	apperrors "github.com/yanqian/ai-helloworld/pkg/errors"
)

// Handler wires the HTTP transport to the RAG domain and to authentication.
type Handler struct {
	orchestrator *rag.Orchestrator
	pipeline     *rag.Pipeline
	store        rag.VectorStore
	sessions     rag.SessionRepository
	messages     rag.MessageRepository
	agents       rag.AgentRepository
	folders      rag.FolderRepository
	docFolders   rag.DocumentFolderRepository
	feedback     rag.FeedbackRepository
	usage        rag.UsageRepository
	storage      rag.ObjectStorage
	jobs         rag.JobStore
	jobQueue     queue.HandlerQueue
	fetcher      rag.URLFetcher
	authSvc      auth.Service
	cfg          config.RAGConfig
	logger       *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(
	orchestrator *rag.Orchestrator,
	pipeline *rag.Pipeline,
	store rag.VectorStore,
	sessions rag.SessionRepository,
	messages rag.MessageRepository,
	agents rag.AgentRepository,
	folders rag.FolderRepository,
	docFolders rag.DocumentFolderRepository,
	feedback rag.FeedbackRepository,
	usage rag.UsageRepository,
	storage rag.ObjectStorage,
	jobs rag.JobStore,
	jobQueue queue.HandlerQueue,
	fetcher rag.URLFetcher,
	authSvc auth.Service,
	cfg config.RAGConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		pipeline:     pipeline,
		store:        store,
		sessions:     sessions,
		messages:     messages,
		agents:       agents,
		folders:      folders,
		docFolders:   docFolders,
		feedback:     feedback,
		usage:        usage,
		storage:      storage,
		jobs:         jobs,
		jobQueue:     jobQueue,
		fetcher:      fetcher,
		authSvc:      authSvc,
		cfg:          cfg,
		logger:       logger.With("component", "http.handler"),
	}
}

// Health reports liveness; it never touches the database or any provider.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Register handles account creation.
func (h *Handler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	user, err := h.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "auth_failed"
		switch {
		case apperrors.IsCode(err, "invalid_input"):
			status = http.StatusBadRequest
			code = "invalid_request"
		case apperrors.IsCode(err, "email_exists"):
			status = http.StatusConflict
			code = "email_exists"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
	})
}

// Login authenticates and issues a JWT.
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	resp, err := h.authSvc.Login(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "auth_failed"
		switch {
		case apperrors.IsCode(err, "invalid_input"):
			status = http.StatusBadRequest
			code = "invalid_request"
		case apperrors.IsCode(err, "invalid_credentials"):
			status = http.StatusUnauthorized
			code = "invalid_credentials"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new access token.
func (h *Handler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	resp, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		code := "auth_failed"
		if apperrors.IsCode(err, "invalid_token") {
			status = http.StatusUnauthorized
			code = "invalid_token"
		}
		if apperrors.IsCode(err, "user_not_found") {
			status = http.StatusNotFound
			code = "user_not_found"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Profile returns the authenticated user's info.
func (h *Handler) Profile(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing token", nil))
		return
	}
	user, err := h.authSvc.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		status := http.StatusInternalServerError
		code := "auth_failed"
		if apperrors.IsCode(err, "user_not_found") {
			status = http.StatusNotFound
			code = "user_not_found"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the private dashboard",
		"user":    user,
	})
}

// VerifyToken validates the bearer token in the Authorization header and
// echoes back the claims. It sits behind the "auth" rate-limit bucket
// rather than authMiddleware, since the whole point is to report whether
// a token is valid instead of rejecting the request outright.
func (h *Handler) VerifyToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing authorization header", nil))
		return
	}
	token := strings.TrimSpace(parts[1])
	claims, err := h.authSvc.ValidateToken(c.Request.Context(), token)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "invalid_token", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user_id": claims.UserID, "email": claims.Email})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
