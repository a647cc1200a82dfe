// Package admin implements authentication and user administration endpoints.
// Login issues a JWT against the local user table; there is no external identity
// provider. User management is gated on the users:read and users:write scopes.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/auth"
	"github.com/stockaudit/stockaudit-backend/internal/config"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
	"github.com/stockaudit/stockaudit-backend/internal/db/repositories"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandlers handles login and current-user endpoints
type AuthHandlers struct {
	cfg   *config.Config
	users *repositories.UserRepository
}

// NewAuthHandlers creates the authentication handlers
func NewAuthHandlers(cfg *config.Config, db *sqlx.DB) *AuthHandlers {
	return &AuthHandlers{
		cfg:   cfg,
		users: repositories.NewUserRepository(db),
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Log in
// @Description  Verifies a username and password against the local user table and issues a JWT.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_at, user"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Router       /api/v1/auth/login [post]
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
			return
		}

		user, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
			return
		}

		// Unknown users, disabled users, and wrong passwords all answer the same
		// way so the endpoint does not confirm which usernames exist.
		if user == nil || !user.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		token, err := auth.GenerateJWT(user.ID.String(), user.Username, string(user.Role), h.cfg.Auth.TokenDuration)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": time.Now().Add(h.cfg.Auth.TokenDuration).UTC(),
			"user":       user,
		})
	}
}

// @Summary      Current user
// @Description  Returns the authenticated user and the scopes derived from their role.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user, scopes"
// @Failure      401  {object}  map[string]interface{}  "Not authenticated"
// @Router       /api/v1/auth/me [get]
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, ok := c.Get("user")
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		user, ok := userVal.(*models.User)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var scopes []string
		if scopesVal, ok := c.Get("scopes"); ok {
			scopes, _ = scopesVal.([]string)
		}

		c.JSON(http.StatusOK, gin.H{
			"user":   user,
			"scopes": scopes,
		})
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// @Summary      Change own password
// @Description  Verifies the current password and replaces it with a new bcrypt hash.
// @Tags         Authentication
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  changePasswordRequest  true  "Current and new password"
// @Success      204  "Password changed"
// @Failure      401  {object}  map[string]interface{}  "Wrong current password"
// @Router       /api/v1/auth/password [put]
func (h *AuthHandlers) ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, ok := c.Get("user")
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		user, ok := userVal.(*models.User)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "New password must be at least 8 characters"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), h.cfg.Auth.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		if err := h.users.UpdatePassword(c.Request.Context(), user.ID, string(hash)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
