package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docuchat-io/docuchat/internal/pkg/errcode"
	"github.com/docuchat-io/docuchat/internal/pkg/jwt"
	"github.com/docuchat-io/docuchat/internal/pkg/response"
)

const (
	ContextUserIDKey    = "user_id"
	ContextCompanyIDKey = "company_id"
)

func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		if claims.CompanyID == "" {
			response.Error(c, errcode.ErrUnauthorized, "token has no tenant")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextCompanyIDKey, claims.CompanyID)
		if claims.Email != "" {
			c.Set("user_email", claims.Email)
		}
		c.Next()
	}
}

// CompanyID returns the authenticated tenant for the request, empty when the
// route skipped JWTAuth.
func CompanyID(c *gin.Context) string {
	if v, ok := c.Get(ContextCompanyIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
