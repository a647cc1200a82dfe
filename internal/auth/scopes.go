// Package auth - scopes.go defines permission scope constants for the audit workflow
// and provides HasScope, HasAnyScope, and HasAllScopes helper functions for scope checking.
package auth

import (
	"errors"
	"fmt"

	"github.com/stockaudit/stockaudit-backend/internal/db/models"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Audit workflow scopes
	ScopeAuditRead      Scope = "audit:read"      // View sessions, verifications, and action logs
	ScopeAuditConfirm   Scope = "audit:confirm"   // Record and confirm physical counts
	ScopeAuditOverride  Scope = "audit:override"  // Override confirmed counts, lock and unlock rows
	ScopeAuditReconcile Scope = "audit:reconcile" // Apply recon check-ins and check-outs
	ScopeAuditFinalize  Scope = "audit:finalize"  // Create, start, complete, cancel, and extend sessions

	// Ledger scopes
	ScopeLedgerRead  Scope = "ledger:read"
	ScopeLedgerWrite Scope = "ledger:write"

	// User management scopes
	ScopeUsersRead  Scope = "users:read"
	ScopeUsersWrite Scope = "users:write"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeAuditRead,
		ScopeAuditConfirm,
		ScopeAuditOverride,
		ScopeAuditReconcile,
		ScopeAuditFinalize,
		ScopeLedgerRead,
		ScopeLedgerWrite,
		ScopeUsersRead,
		ScopeUsersWrite,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// ScopesForRole maps a user role to the scopes it grants. Counters can read and
// confirm; managers additionally override, reconcile, and finalize; admins get the
// wildcard.
func ScopesForRole(role models.Role) []string {
	switch role {
	case models.RoleAdmin:
		return []string{string(ScopeAdmin)}
	case models.RoleAuditManager:
		return []string{
			string(ScopeAuditRead),
			string(ScopeAuditConfirm),
			string(ScopeAuditOverride),
			string(ScopeAuditReconcile),
			string(ScopeAuditFinalize),
			string(ScopeLedgerRead),
			string(ScopeLedgerWrite),
			string(ScopeUsersRead),
		}
	default:
		return []string{
			string(ScopeAuditRead),
			string(ScopeAuditConfirm),
			string(ScopeLedgerRead),
		}
	}
}

// HasScope checks if a user has a required scope
// Supports wildcard admin scope
func HasScope(userScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range userScopes {
		// Check for exact match
		if scope == requiredStr {
			return true
		}

		// Check for admin wildcard
		if scope == string(ScopeAdmin) {
			return true
		}

		// Write/manage permission implies the matching read permission
		if required == ScopeAuditRead &&
			(scope == string(ScopeAuditConfirm) || scope == string(ScopeAuditOverride) ||
				scope == string(ScopeAuditReconcile) || scope == string(ScopeAuditFinalize)) {
			return true
		}
		if required == ScopeLedgerRead && scope == string(ScopeLedgerWrite) {
			return true
		}
		if required == ScopeUsersRead && scope == string(ScopeUsersWrite) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a user has all of the required scopes
func HasAllScopes(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(userScopes, required) {
			return false
		}
	}
	return true
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
