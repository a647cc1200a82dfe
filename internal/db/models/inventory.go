// Package models - inventory.go defines the warehouse, item, and on-hand inventory
// master data consumed by the audit core. The audit engine treats these as read-only
// except for the on-hand adjustments applied by recon ledger transactions.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Warehouse represents a physical storage location that can be frozen for audit
type Warehouse struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Location  *string   `db:"location" json:"location,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Item represents an inventory SKU. The default rates are the fallback when no
// completed ledger transaction exists yet for an item/warehouse pair.
type Item struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	SKU             string          `db:"sku" json:"sku"`
	Name            string          `db:"name" json:"name"`
	Unit            string          `db:"unit" json:"unit"`
	CheckInRate     decimal.Decimal `db:"check_in_rate" json:"check_in_rate"`
	CheckOutRate    decimal.Decimal `db:"check_out_rate" json:"check_out_rate"`
	TrackingBatches bool            `db:"tracking_batches" json:"tracking_batches"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// InventoryLevel represents the current on-hand quantity of one item in one
// warehouse. Audit sessions snapshot these rows into verifications when counting
// begins.
type InventoryLevel struct {
	WarehouseID uuid.UUID `db:"warehouse_id" json:"warehouse_id"`
	ItemID      uuid.UUID `db:"item_id" json:"item_id"`
	OnHand      int64     `db:"on_hand" json:"on_hand"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
