// Package models - action_log.go defines the ActionLogEntry model: the append-only
// audit trail written by every state-changing operation on an audit session. Entries
// are created in the same transaction as the mutation they record and are never
// updated or deleted.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionType identifies which state-changing operation produced a log entry
type ActionType string

const (
	ActionConfirm             ActionType = "confirm"
	ActionOverride            ActionType = "override"
	ActionLock                ActionType = "lock"
	ActionUnlock              ActionType = "unlock"
	ActionReconCheckin        ActionType = "recon-checkin"
	ActionReconCheckout       ActionType = "recon-checkout"
	ActionStartReconciliation ActionType = "start-reconciliation"
	ActionComplete            ActionType = "complete"
	ActionCancel              ActionType = "cancel"
	ActionExtend              ActionType = "extend"
)

// ActionLogEntry represents one immutable audit-trail record
type ActionLogEntry struct {
	ID             uuid.UUID              `db:"id" json:"id"`
	SessionID      uuid.UUID              `db:"session_id" json:"session_id"`
	VerificationID *uuid.UUID             `db:"verification_id" json:"verification_id,omitempty"`
	PerformedBy    uuid.UUID              `db:"performed_by" json:"performed_by"`
	ActionType     ActionType             `db:"action_type" json:"action_type"`
	Notes          *string                `db:"notes" json:"notes,omitempty"`
	Metadata       map[string]interface{} `db:"-" json:"metadata,omitempty"` // JSONB: quantities, prior status, etc.
	PerformedAt    time.Time              `db:"performed_at" json:"performed_at"`

	// Joined fields (not in DB)
	PerformedByName string `db:"-" json:"performed_by_name,omitempty"`
}
