// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit event shipping.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → RBAC → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the user identity and scopes; RBAC reads from that context.
// Audit event shipping runs after RBAC so only authorized requests are recorded
// as successful actions.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stockaudit/stockaudit-backend/internal/auth"
	"github.com/stockaudit/stockaudit-backend/internal/db/repositories"
)

// AuthMiddleware validates the Bearer JWT and loads the user into the request context.
//
// Scopes are derived from the user's role at request time rather than being embedded
// in the JWT. This is deliberate: when an admin changes a user's role, the change
// takes effect on the user's next request without invalidating or reissuing their
// token. Embedding scopes in the JWT would require token rotation on every role
// change.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Account is disabled",
			})
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID.String())
		c.Set("role", string(user.Role))
		c.Set("scopes", auth.ScopesForRole(user.Role))
		c.Set("auth_method", "jwt")

		c.Next()
	}
}

// OptionalAuthMiddleware is the same as AuthMiddleware but lets unauthenticated
// requests through without user context instead of aborting
func OptionalAuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.Next()
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.Next()
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.Next()
			return
		}
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.Next()
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), userID)
		if err == nil && user != nil && user.Active {
			c.Set("user", user)
			c.Set("user_id", user.ID.String())
			c.Set("role", string(user.Role))
			c.Set("scopes", auth.ScopesForRole(user.Role))
			c.Set("auth_method", "jwt")
		}

		c.Next()
	}
}

// bearerToken extracts the Bearer token from the Authorization header, aborting the
// request with 401 when the header is missing or malformed
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Missing authorization header",
		})
		return "", false
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authorization header must start with 'Bearer '",
		})
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authorization token is empty",
		})
		return "", false
	}

	return token, true
}
