// inventory_repository.go implements InventoryRepository, providing database queries
// for warehouses, items, and on-hand inventory levels.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
)

// InventoryRepository handles warehouse, item, and inventory level database operations
type InventoryRepository struct {
	db sqlx.ExtContext
}

// NewInventoryRepository creates a new InventoryRepository
func NewInventoryRepository(db *sqlx.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *InventoryRepository) WithTx(tx *sqlx.Tx) *InventoryRepository {
	return &InventoryRepository{db: tx}
}

// GetWarehouse retrieves a warehouse by ID
func (r *InventoryRepository) GetWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	query := `SELECT id, code, name, location, created_at FROM warehouses WHERE id = $1`

	var w models.Warehouse
	err := r.db.QueryRowxContext(ctx, query, id).Scan(&w.ID, &w.Code, &w.Name, &w.Location, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWarehouses returns all warehouses ordered by code
func (r *InventoryRepository) ListWarehouses(ctx context.Context) ([]*models.Warehouse, error) {
	query := `SELECT id, code, name, location, created_at FROM warehouses ORDER BY code`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	warehouses := make([]*models.Warehouse, 0)
	for rows.Next() {
		var w models.Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Location, &w.CreatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, &w)
	}

	return warehouses, rows.Err()
}

// GetItem retrieves an item by ID
func (r *InventoryRepository) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	query := `SELECT id, sku, name, unit, check_in_rate, check_out_rate, tracking_batches, created_at
			  FROM items WHERE id = $1`

	var i models.Item
	err := r.db.QueryRowxContext(ctx, query, id).Scan(&i.ID, &i.SKU, &i.Name, &i.Unit,
		&i.CheckInRate, &i.CheckOutRate, &i.TrackingBatches, &i.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// ListItems returns all items ordered by SKU
func (r *InventoryRepository) ListItems(ctx context.Context) ([]*models.Item, error) {
	query := `SELECT id, sku, name, unit, check_in_rate, check_out_rate, tracking_batches, created_at
			  FROM items ORDER BY sku`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*models.Item, 0)
	for rows.Next() {
		var i models.Item
		if err := rows.Scan(&i.ID, &i.SKU, &i.Name, &i.Unit,
			&i.CheckInRate, &i.CheckOutRate, &i.TrackingBatches, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}

	return items, rows.Err()
}

// ListLevels returns the on-hand inventory of a warehouse
func (r *InventoryRepository) ListLevels(ctx context.Context, warehouseID uuid.UUID) ([]*models.InventoryLevel, error) {
	query := `SELECT l.warehouse_id, l.item_id, l.on_hand, l.updated_at
			  FROM inventory_levels l
			  JOIN items i ON i.id = l.item_id
			  WHERE l.warehouse_id = $1
			  ORDER BY i.sku`

	rows, err := r.db.QueryxContext(ctx, query, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]*models.InventoryLevel, 0)
	for rows.Next() {
		var l models.InventoryLevel
		if err := rows.Scan(&l.WarehouseID, &l.ItemID, &l.OnHand, &l.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, &l)
	}

	return levels, rows.Err()
}

// AdjustOnHand moves the on-hand quantity of an item by delta, creating the level
// row when it does not exist yet
func (r *InventoryRepository) AdjustOnHand(ctx context.Context, warehouseID, itemID uuid.UUID, delta int64) error {
	query := `INSERT INTO inventory_levels (warehouse_id, item_id, on_hand, updated_at)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (warehouse_id, item_id)
			  DO UPDATE SET on_hand = inventory_levels.on_hand + $3, updated_at = $4`

	_, err := r.db.ExecContext(ctx, query, warehouseID, itemID, delta, time.Now())
	return err
}
