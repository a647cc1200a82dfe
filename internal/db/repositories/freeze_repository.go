// freeze_repository.go implements FreezeRepository, providing acquisition and release
// of the per-warehouse exclusive freeze held by an active audit session.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
)

// FreezeRepository handles warehouse freeze database operations
type FreezeRepository struct {
	db sqlx.ExtContext
}

// NewFreezeRepository creates a new FreezeRepository
func NewFreezeRepository(db *sqlx.DB) *FreezeRepository {
	return &FreezeRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *FreezeRepository) WithTx(tx *sqlx.Tx) *FreezeRepository {
	return &FreezeRepository{db: tx}
}

// Acquire attempts to freeze a warehouse for a session. The warehouse_id primary key
// makes this race-free: the insert simply does nothing when another session already
// holds the freeze, and Acquire returns false.
func (r *FreezeRepository) Acquire(ctx context.Context, warehouseID, sessionID uuid.UUID) (bool, error) {
	query := `INSERT INTO warehouse_freezes (warehouse_id, session_id, frozen_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (warehouse_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, warehouseID, sessionID, time.Now())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Release removes the freeze held by a session
func (r *FreezeRepository) Release(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM warehouse_freezes WHERE session_id = $1`, sessionID)
	return err
}

// GetByWarehouse returns the freeze on a warehouse, or nil when it is not frozen
func (r *FreezeRepository) GetByWarehouse(ctx context.Context, warehouseID uuid.UUID) (*models.WarehouseFreeze, error) {
	query := `SELECT warehouse_id, session_id, frozen_at FROM warehouse_freezes WHERE warehouse_id = $1`

	var f models.WarehouseFreeze
	err := r.db.QueryRowxContext(ctx, query, warehouseID).Scan(&f.WarehouseID, &f.SessionID, &f.FrozenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
