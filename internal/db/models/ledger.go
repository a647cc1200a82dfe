// Package models - ledger.go defines the LedgerTransaction model for the inventory
// transaction ledger (check-ins, check-outs, transfers). The audit core both writes
// to the ledger (recon corrective actions) and reads it (the pending-transaction
// half of the can-complete gate).
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType identifies the direction of a ledger transaction
type TransactionType string

const (
	TransactionCheckIn  TransactionType = "check_in"
	TransactionCheckOut TransactionType = "check_out"
	TransactionTransfer TransactionType = "transfer"
)

// TransactionStatus represents the settlement state of a ledger transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// LedgerTransaction represents one inventory movement. Recon actions create rows
// with status completed and a reference back to the owning audit session code so
// freeze-breaking writes stay traceable.
type LedgerTransaction struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	Type            TransactionType   `db:"type" json:"type"`
	Status          TransactionStatus `db:"status" json:"status"`
	ItemID          uuid.UUID         `db:"item_id" json:"item_id"`
	WarehouseID     uuid.UUID         `db:"warehouse_id" json:"warehouse_id"`
	DestWarehouseID *uuid.UUID        `db:"dest_warehouse_id" json:"dest_warehouse_id,omitempty"` // transfers only
	Quantity        int64             `db:"quantity" json:"quantity"`
	Rate            decimal.Decimal   `db:"rate" json:"rate"`
	Reason          *string           `db:"reason" json:"reason,omitempty"`
	Reference       *string           `db:"reference" json:"reference,omitempty"` // e.g. audit session code
	CreatedBy       uuid.UUID         `db:"created_by" json:"created_by"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// PendingTransactions groups unsettled ledger rows touching a frozen warehouse,
// split by type so callers can explain exactly what blocks session completion.
type PendingTransactions struct {
	CheckIns  []*LedgerTransaction `json:"checkins"`
	CheckOuts []*LedgerTransaction `json:"checkouts"`
	Transfers []*LedgerTransaction `json:"transfers"`
}

// Count returns the total number of pending transactions across all types.
func (p *PendingTransactions) Count() int {
	return len(p.CheckIns) + len(p.CheckOuts) + len(p.Transfers)
}
