package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/ai-helloworld/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		errorHandlingMiddleware(handler.logger),
		requestLogger(handler.logger),
		securityHeadersMiddleware(),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
	)

	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	{
		// The auth bucket allows 5 requests per minute per IP, whatever rate
		// the API bucket is configured with.
		authLimit := cfg.HTTP.RateLimit
		authLimit.RequestsPerMinute, authLimit.Burst = 5, 5
		authRoutes := api.Group("/auth")
		authRoutes.Use(rateLimitMiddleware(bucketAuth, authLimit, handler.logger))
		{
			authRoutes.POST("/register", handler.Register)
			authRoutes.POST("/login", handler.Login)
			authRoutes.POST("/refresh", handler.Refresh)
			authRoutes.POST("/verify", handler.VerifyToken)
		}

		protected := api.Group("/")
		protected.Use(authMiddleware(handler.authSvc), rateLimitMiddleware(bucketAPI, cfg.HTTP.RateLimit, handler.logger))
		{
			protected.GET("/auth/me", handler.Profile)

			documents := protected.Group("/documents")
			{
				documents.POST("/upload", handler.UploadDocument)
				documents.GET("/jobs/:id", handler.GetJob)
				documents.POST("/upload-batch", handler.UploadBatch)
				documents.POST("/upload-url", handler.UploadURL)
			}

			collections := protected.Group("/collections")
			{
				collections.GET("", handler.ListCollections)
				collections.POST("", handler.CreateCollection)
				collections.DELETE("/:name", handler.DeleteCollection)
				collections.GET("/:name/documents/:id/chunks", handler.GetDocumentChunks)
				collections.POST("/:name/cleanup", handler.CleanupCollection)
				collections.GET("/:name/folders", handler.ListFolders)
				collections.POST("/:name/folders", handler.CreateFolder)
			}
			protected.PATCH("/folders/:id/move", handler.MoveFolder)
			protected.DELETE("/folders/:id", handler.DeleteFolder)

			chat := protected.Group("/chat")
			{
				chat.POST("/sessions", handler.CreateSession)
				chat.GET("/sessions", handler.ListSessions)
				chat.GET("/sessions/search", handler.SearchSessions)
				chat.POST("/sessions/:id/messages", handler.PostMessage)
				chat.POST("/sessions/:id/messages/stream", handler.StreamMessage)
				chat.POST("/sessions/:id/attachments", handler.PostAttachment)
				chat.POST("/feedback", handler.PostFeedback)
				chat.GET("/analytics", handler.Analytics)
			}
			protected.GET("/usage", handler.Usage)

			agents := protected.Group("/agents")
			{
				agents.POST("", handler.CreateAgent)
				agents.GET("", handler.ListAgents)
				agents.GET("/:id", handler.GetAgent)
				agents.PATCH("/:id", handler.UpdateAgent)
				agents.DELETE("/:id", handler.DeleteAgent)
			}
		}
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, handler.logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "latency_ms", latency.Milliseconds())
	}
}
