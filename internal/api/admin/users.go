package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/config"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
	"github.com/stockaudit/stockaudit-backend/internal/db/repositories"
	"golang.org/x/crypto/bcrypt"
)

// UserHandlers handles user administration endpoints
type UserHandlers struct {
	cfg   *config.Config
	users *repositories.UserRepository
}

// NewUserHandlers creates the user administration handlers
func NewUserHandlers(cfg *config.Config, db *sqlx.DB) *UserHandlers {
	return &UserHandlers{
		cfg:   cfg,
		users: repositories.NewUserRepository(db),
	}
}

func validRole(role models.Role) bool {
	switch role {
	case models.RoleCounter, models.RoleAuditManager, models.RoleAdmin:
		return true
	}
	return false
}

// @Summary      List users
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users: []models.User, pagination: map"
// @Router       /api/v1/users [get]
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		users, total, err := h.users.ListUsers(c.Request.Context(), perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get user
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  models.User
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/users/{id} [get]
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id: must be a UUID"})
			return
		}

		user, err := h.users.GetUserByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

type createUserRequest struct {
	Username string      `json:"username" binding:"required"`
	Name     string      `json:"name" binding:"required"`
	Password string      `json:"password" binding:"required,min=8"`
	Role     models.Role `json:"role" binding:"required"`
}

// @Summary      Create user
// @Description  Creates an active user with a bcrypt-hashed password. Usernames are unique.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  createUserRequest  true  "User details"
// @Success      201  {object}  models.User
// @Failure      409  {object}  map[string]interface{}  "Username already taken"
// @Router       /api/v1/users [post]
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if !validRole(req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role: must be counter, audit_manager, or admin"})
			return
		}

		existing, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check username"})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cfg.Auth.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		user := &models.User{
			Username:     req.Username,
			Name:         req.Name,
			PasswordHash: string(hash),
			Role:         req.Role,
			Active:       true,
		}
		if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

type updateUserRequest struct {
	Name   *string      `json:"name"`
	Role   *models.Role `json:"role"`
	Active *bool        `json:"active"`
}

// @Summary      Update user
// @Description  Updates a user's name, role, or active flag. Deactivation replaces deletion so action log provenance stays resolvable.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  updateUserRequest  true  "Fields to change"
// @Success      200  {object}  models.User
// @Router       /api/v1/users/{id} [put]
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id: must be a UUID"})
			return
		}

		var req updateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if req.Role != nil && !validRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role: must be counter, audit_manager, or admin"})
			return
		}

		user, err := h.users.GetUserByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if req.Name != nil {
			user.Name = *req.Name
		}
		if req.Role != nil {
			user.Role = *req.Role
		}
		if req.Active != nil {
			user.Active = *req.Active
		}

		if err := h.users.UpdateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

// @Summary      Reset user password
// @Description  Replaces a user's password without requiring the old one. Admin operation.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                true  "User ID"
// @Param        body  body  resetPasswordRequest  true  "New password"
// @Success      204  "Password reset"
// @Router       /api/v1/users/{id}/password [put]
func (h *UserHandlers) ResetPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id: must be a UUID"})
			return
		}

		var req resetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
			return
		}

		user, err := h.users.GetUserByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cfg.Auth.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		if err := h.users.UpdatePassword(c.Request.Context(), id, string(hash)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
