package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	// Last-Event-ID is sent by browsers reconnecting an SSE chat stream.
	corsHeaders = "Authorization, Content-Type, X-Request-Id, Last-Event-ID"
	corsMaxAge  = "600"
)

// CORS answers cross-origin preflight for the embedded chat widget. An empty
// allowlist opens the chat surface to any origin; management calls still
// require a JWT regardless of origin.
func CORS(allowlist []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, origin := range allowlist {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}
	allowAll := len(allowed) == 0
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		header := c.Writer.Header()
		switch {
		case allowAll:
			writeCORSHeaders(header, "*")
		case origin != "":
			if _, ok := allowed[origin]; ok {
				writeCORSHeaders(header, origin)
				header.Set("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func writeCORSHeaders(header http.Header, origin string) {
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", corsMethods)
	header.Set("Access-Control-Allow-Headers", corsHeaders)
	header.Set("Access-Control-Max-Age", corsMaxAge)
}
