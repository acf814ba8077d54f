package http

import "github.com/gin-gonic/gin"

// corsMiddleware enforces an explicit origin allow-list instead of the
// wildcard a public browser client would need — the RAG frontend always
// sends credentials (the bearer token), which "Access-Control-Allow-Origin:
// *" cannot be paired with per the CORS spec.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		headers := c.Writer.Header()
		if origin != "" && allowed[origin] {
			headers.Set("Access-Control-Allow-Origin", origin)
			headers.Set("Access-Control-Allow-Credentials", "true")
			headers.Set("Vary", "Origin")
		}
		headers.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
