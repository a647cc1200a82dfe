// Package models - warehouse_freeze.go defines the WarehouseFreeze row: an explicit
// exclusive lock keyed by warehouse, owned by exactly one non-terminal audit session.
// The ledger consults this table before accepting ordinary inventory transactions.
package models

import (
	"time"

	"github.com/google/uuid"
)

// WarehouseFreeze represents the warehouse-wide block on inventory-mutating
// transactions held for the duration of a non-terminal audit session. At most one
// row may exist per warehouse (warehouse_id is the primary key), so acquisition is
// a single conditional insert rather than a scan over session statuses.
type WarehouseFreeze struct {
	WarehouseID uuid.UUID `db:"warehouse_id" json:"warehouse_id"`
	SessionID   uuid.UUID `db:"session_id" json:"session_id"`
	FrozenAt    time.Time `db:"frozen_at" json:"frozen_at"`
}
