// rbac.go implements scope-based authorization middleware. The audit engine
// re-checks capabilities on every operation, so these handlers are the first
// gate, not the only one.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockaudit/stockaudit-backend/internal/auth"
)

// RequireScope checks if the authenticated user has the required scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := contextScopes(c)
		if !ok {
			return
		}

		if !auth.HasScope(userScopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyScope checks if the authenticated user has at least one of the required scopes
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := contextScopes(c)
		if !ok {
			return
		}

		if !auth.HasAnyScope(userScopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing required scope",
			})
			return
		}

		c.Next()
	}
}

// RequireAllScopes checks if the authenticated user has all of the required scopes
func RequireAllScopes(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := contextScopes(c)
		if !ok {
			return
		}

		if !auth.HasAllScopes(userScopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing one or more required scopes",
			})
			return
		}

		c.Next()
	}
}

// contextScopes reads the scope list set by AuthMiddleware, aborting with 403 when
// it is missing or malformed
func contextScopes(c *gin.Context) ([]string, bool) {
	scopesVal, exists := c.Get("scopes")
	if !exists {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
		return nil, false
	}

	userScopes, ok := scopesVal.([]string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Invalid scopes format",
		})
		return nil, false
	}

	return userScopes, true
}
