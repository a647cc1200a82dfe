// Package models - audit_session.go defines the AuditSession model and its closed
// status type. A session freezes one warehouse for a physical stock count and walks
// through open → in_progress → reconciliation → completed, with cancelled reachable
// from any non-terminal state.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of an audit session
type SessionStatus string

const (
	SessionStatusOpen           SessionStatus = "open"
	SessionStatusInProgress     SessionStatus = "in_progress"
	SessionStatusReconciliation SessionStatus = "reconciliation"
	SessionStatusCompleted      SessionStatus = "completed"
	SessionStatusCancelled      SessionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// CanTransitionTo reports whether the state machine permits a transition to next.
// Cancelled is reachable from every non-terminal state; the forward path is
// strictly open → in_progress → reconciliation → completed.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case SessionStatusInProgress:
		return s == SessionStatusOpen
	case SessionStatusReconciliation:
		return s == SessionStatusInProgress
	case SessionStatusCompleted:
		return s == SessionStatusReconciliation
	case SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// AuditSession represents a time-boxed physical stock count against one warehouse.
// While the session is non-terminal the warehouse is frozen: ordinary check-in,
// check-out, and transfer transactions against it are rejected by the ledger.
type AuditSession struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	Code        string        `db:"code" json:"code"`
	WarehouseID uuid.UUID     `db:"warehouse_id" json:"warehouse_id"`
	Title       string        `db:"title" json:"title"`
	Description *string       `db:"description" json:"description,omitempty"`
	StartDate   time.Time     `db:"start_date" json:"start_date"`
	EndDate     time.Time     `db:"end_date" json:"end_date"`
	Status      SessionStatus `db:"status" json:"status"`
	CreatedBy   uuid.UUID     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`

	// Joined fields (not in DB)
	WarehouseName string `db:"-" json:"warehouse_name,omitempty"`
	CreatedByName string `db:"-" json:"created_by_name,omitempty"`
}
