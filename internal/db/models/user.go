// Package models - user.go defines the User model for audit accounts with username,
// bcrypt password hash, and role, along with the role-to-capability mapping.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role determines which audit capabilities a user holds
type Role string

const (
	RoleCounter      Role = "counter"
	RoleAuditManager Role = "audit_manager"
	RoleAdmin        Role = "admin"
)

// User represents a user in the system
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsManager returns true for roles allowed to override, lock, and finalize sessions
func (u *User) IsManager() bool {
	return u.Role == RoleAuditManager || u.Role == RoleAdmin
}
