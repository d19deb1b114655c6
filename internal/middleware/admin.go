package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AdminChecker interface {
	IsAdmin(ctx context.Context, userID uint64) (bool, error)
}

// AdminMiddleware 必须挂在 AuthMiddleware 之后
func AdminMiddleware(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := checker.IsAdmin(c.Request.Context(), UserID(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"code": "storage_unavailable", "msg": "role lookup failed", "retryable": true})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "forbidden", "msg": "admin role required"})
			return
		}
		c.Next()
	}
}
