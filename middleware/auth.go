package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fundflow/auth"
	"fundflow/pkg/logger"
)

// TokenVerifier validates a bearer token and resolves the caller.
type TokenVerifier interface {
	VerifyToken(token string) (string, auth.Role, error)
}

// Auth validates the JWT bearer token and stores the caller's id and role
// in the request context. Workflow services receive both as explicit
// parameters; nothing downstream reads ambient session state.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		userID, role, err := verifier.VerifyToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("role", string(role))

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, logger.UserIDKey, userID)
		ctx = context.WithValue(ctx, logger.RoleKey, string(role))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetUserID gets the authenticated user id from context
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		return userID.(string)
	}
	return ""
}

// GetRole gets the authenticated user role from context
func GetRole(c *gin.Context) auth.Role {
	if role, exists := c.Get("role"); exists {
		return auth.Role(role.(string))
	}
	return ""
}
