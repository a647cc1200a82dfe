// Package models - verification.go defines the Verification model: one row per
// (session, item, optional batch) comparing the system quantity snapshotted at
// count start against the physically counted quantity.
package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus represents the workflow state of a single verification row.
// Pending and confirmed apply before reconciliation; complete, short, and excess
// apply once the session enters reconciliation.
type VerificationStatus string

const (
	VerificationStatusPending   VerificationStatus = "pending"
	VerificationStatusConfirmed VerificationStatus = "confirmed"
	VerificationStatusComplete  VerificationStatus = "complete"
	VerificationStatusShort     VerificationStatus = "short"
	VerificationStatusExcess    VerificationStatus = "excess"
)

// ClassifyDiscrepancy returns the reconciliation status for a discrepancy value
// (physical minus system): zero is complete, negative is short, positive is excess.
func ClassifyDiscrepancy(discrepancy int64) VerificationStatus {
	switch {
	case discrepancy < 0:
		return VerificationStatusShort
	case discrepancy > 0:
		return VerificationStatusExcess
	default:
		return VerificationStatusComplete
	}
}

// Verification represents the per-item count record inside an audit session.
// SystemQuantity is snapshotted when the session enters in_progress and is only
// moved afterwards by recon ledger transactions; PhysicalQuantity stays nil until
// a counter confirms the row.
type Verification struct {
	ID               uuid.UUID          `db:"id" json:"id"`
	SessionID        uuid.UUID          `db:"session_id" json:"session_id"`
	SerialNumber     int                `db:"serial_number" json:"serial_number"`
	ItemID           uuid.UUID          `db:"item_id" json:"item_id"`
	BatchNumber      *string            `db:"batch_number" json:"batch_number,omitempty"`
	SystemQuantity   int64              `db:"system_quantity" json:"system_quantity"`
	PhysicalQuantity *int64             `db:"physical_quantity" json:"physical_quantity,omitempty"`
	Status           VerificationStatus `db:"status" json:"status"`
	Notes            *string            `db:"notes" json:"notes,omitempty"`

	// Confirmation provenance
	ConfirmedBy *uuid.UUID `db:"confirmed_by" json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	LockedBy    *uuid.UUID `db:"locked_by" json:"locked_by,omitempty"`

	// Override provenance, additive, never clears ConfirmedBy
	OverrideBy    *uuid.UUID `db:"override_by" json:"override_by,omitempty"`
	OverrideAt    *time.Time `db:"override_at" json:"override_at,omitempty"`
	OverrideNotes *string    `db:"override_notes" json:"override_notes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Joined fields (not in DB)
	ItemSKU  string `db:"-" json:"item_sku,omitempty"`
	ItemName string `db:"-" json:"item_name,omitempty"`
}

// Discrepancy returns physical minus system and whether a physical count exists yet.
func (v *Verification) Discrepancy() (int64, bool) {
	if v.PhysicalQuantity == nil {
		return 0, false
	}
	return *v.PhysicalQuantity - v.SystemQuantity, true
}

// IsCounted reports whether the row has a physical count recorded.
func (v *Verification) IsCounted() bool {
	return v.PhysicalQuantity != nil
}

// CanEdit reports whether actor may re-write the physical count through the plain
// confirm path: the row is still pending, or actor is the original confirmer
// editing their own entry. Everyone else needs an override.
func (v *Verification) CanEdit(actor uuid.UUID) bool {
	switch v.Status {
	case VerificationStatusPending:
		return true
	case VerificationStatusConfirmed:
		return v.ConfirmedBy != nil && *v.ConfirmedBy == actor
	default:
		return false
	}
}
