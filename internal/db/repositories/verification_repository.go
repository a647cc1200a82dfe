// verification_repository.go implements VerificationRepository, providing database
// queries for snapshotting inventory into verification rows, the confirm/override/lock
// updates, and the aggregate counts behind the can-complete gate.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
)

// VerificationRepository handles verification database operations
type VerificationRepository struct {
	db sqlx.ExtContext
}

// NewVerificationRepository creates a new VerificationRepository
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *VerificationRepository) WithTx(tx *sqlx.Tx) *VerificationRepository {
	return &VerificationRepository{db: tx}
}

// VerificationFilters contains filters for listing verifications
type VerificationFilters struct {
	Status  *models.VerificationStatus
	ItemID  *uuid.UUID
	Counted *bool
}

const verificationColumns = `v.id, v.session_id, v.serial_number, v.item_id, v.batch_number,
		v.system_quantity, v.physical_quantity, v.status, v.notes,
		v.confirmed_by, v.confirmed_at, v.locked_by,
		v.override_by, v.override_at, v.override_notes,
		v.created_at, v.updated_at`

func scanVerification(row sqlx.ColScanner) (*models.Verification, error) {
	var v models.Verification
	err := row.Scan(&v.ID, &v.SessionID, &v.SerialNumber, &v.ItemID, &v.BatchNumber,
		&v.SystemQuantity, &v.PhysicalQuantity, &v.Status, &v.Notes,
		&v.ConfirmedBy, &v.ConfirmedAt, &v.LockedBy,
		&v.OverrideBy, &v.OverrideAt, &v.OverrideNotes,
		&v.CreatedAt, &v.UpdatedAt, &v.ItemSKU, &v.ItemName)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SnapshotInventory creates one pending verification per item with stock in the
// warehouse, numbering rows by SKU order. Returns the number of rows created.
func (r *VerificationRepository) SnapshotInventory(ctx context.Context, sessionID, warehouseID uuid.UUID) (int, error) {
	query := `INSERT INTO verifications (id, session_id, serial_number, item_id, system_quantity, status, created_at, updated_at)
			  SELECT gen_random_uuid(), $1,
					 ROW_NUMBER() OVER (ORDER BY i.sku),
					 l.item_id, l.on_hand, 'pending', NOW(), NOW()
			  FROM inventory_levels l
			  JOIN items i ON i.id = l.item_id
			  WHERE l.warehouse_id = $2`

	result, err := r.db.ExecContext(ctx, query, sessionID, warehouseID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// GetByID retrieves a verification by ID with item details joined
func (r *VerificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + `, i.sku, i.name
			  FROM verifications v
			  JOIN items i ON i.id = v.item_id
			  WHERE v.id = $1`

	v, err := scanVerification(r.db.QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// ListBySession retrieves the verifications of a session with optional filters and pagination
func (r *VerificationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, filters VerificationFilters, limit, offset int) ([]*models.Verification, int, error) {
	countQuery := `SELECT COUNT(*) FROM verifications v WHERE v.session_id = $1`
	query := `SELECT ` + verificationColumns + `, i.sku, i.name
			  FROM verifications v
			  JOIN items i ON i.id = v.item_id
			  WHERE v.session_id = $1`

	args := []interface{}{sessionID}
	paramIndex := 2

	if filters.Status != nil {
		countQuery += fmt.Sprintf(` AND v.status = $%d`, paramIndex)
		query += fmt.Sprintf(` AND v.status = $%d`, paramIndex)
		args = append(args, *filters.Status)
		paramIndex++
	}

	if filters.ItemID != nil {
		countQuery += fmt.Sprintf(` AND v.item_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND v.item_id = $%d`, paramIndex)
		args = append(args, *filters.ItemID)
		paramIndex++
	}

	if filters.Counted != nil {
		clause := ` AND v.physical_quantity IS NOT NULL`
		if !*filters.Counted {
			clause = ` AND v.physical_quantity IS NULL`
		}
		countQuery += clause
		query += clause
	}

	var total int
	if err := r.db.QueryRowxContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY v.serial_number LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	verifications := make([]*models.Verification, 0)
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, 0, err
		}
		verifications = append(verifications, v)
	}

	return verifications, total, rows.Err()
}

// ConfirmIf records a physical count and moves the row to confirmed, but only while
// it is still in the expected status and confirmed by the expected user (nil matches
// a pending row with no confirmer). Returns false when a concurrent writer got there
// first.
func (r *VerificationRepository) ConfirmIf(ctx context.Context, id uuid.UUID, expectStatus models.VerificationStatus, expectConfirmedBy *uuid.UUID, physicalQuantity int64, batchNumber, notes *string, confirmedBy uuid.UUID) (bool, error) {
	query := `UPDATE verifications
			  SET physical_quantity = $4, notes = COALESCE($5, notes), status = $6,
				  confirmed_by = $7, confirmed_at = $8, updated_at = $8,
				  batch_number = COALESCE($9, batch_number)
			  WHERE id = $1 AND status = $2 AND confirmed_by IS NOT DISTINCT FROM $3 AND locked_by IS NULL`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, id, expectStatus, expectConfirmedBy,
		physicalQuantity, notes, models.VerificationStatusConfirmed, confirmedBy, now, batchNumber)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// OverrideIf replaces the physical count of a confirmed row, recording override
// provenance without clearing the original confirmation. Returns false when the row
// left the confirmed status under a concurrent writer.
func (r *VerificationRepository) OverrideIf(ctx context.Context, id uuid.UUID, physicalQuantity int64, batchNumber *string, overrideNotes string, overrideBy uuid.UUID) (bool, error) {
	query := `UPDATE verifications
			  SET physical_quantity = $2, override_by = $3, override_at = $4, override_notes = $5, updated_at = $4,
				  batch_number = COALESCE($7, batch_number)
			  WHERE id = $1 AND status = $6`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, id, physicalQuantity, overrideBy, now, overrideNotes,
		models.VerificationStatusConfirmed, batchNumber)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// SetLock sets or clears the lock holder on a verification
func (r *VerificationRepository) SetLock(ctx context.Context, id uuid.UUID, lockedBy *uuid.UUID) error {
	query := `UPDATE verifications SET locked_by = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, lockedBy, time.Now())
	return err
}

// ReclassifyAll moves every counted row of a session from confirmed to its
// reconciliation status based on the sign of the discrepancy. Returns the number of
// rows reclassified.
func (r *VerificationRepository) ReclassifyAll(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `UPDATE verifications
			  SET status = CASE
					WHEN physical_quantity < system_quantity THEN 'short'
					WHEN physical_quantity > system_quantity THEN 'excess'
					ELSE 'complete'
				  END,
				  updated_at = NOW()
			  WHERE session_id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, sessionID, models.VerificationStatusConfirmed)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// Reclassify recomputes one row's reconciliation status after a recon action moved
// its system quantity.
func (r *VerificationRepository) Reclassify(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE verifications
			  SET status = CASE
					WHEN physical_quantity < system_quantity THEN 'short'
					WHEN physical_quantity > system_quantity THEN 'excess'
					ELSE 'complete'
				  END,
				  updated_at = NOW()
			  WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// AdjustSystemQuantity moves a row's system quantity by delta (positive for recon
// check-ins, negative for check-outs)
func (r *VerificationRepository) AdjustSystemQuantity(ctx context.Context, id uuid.UUID, delta int64) error {
	query := `UPDATE verifications SET system_quantity = system_quantity + $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, delta)
	return err
}

// CountBySession returns the total, uncounted, and unresolved-discrepancy row counts
// for a session
func (r *VerificationRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (total, pending, discrepancies int, err error) {
	query := `SELECT COUNT(*),
					 COUNT(*) FILTER (WHERE physical_quantity IS NULL),
					 COUNT(*) FILTER (WHERE status IN ('short', 'excess'))
			  FROM verifications WHERE session_id = $1`

	err = r.db.QueryRowxContext(ctx, query, sessionID).Scan(&total, &pending, &discrepancies)
	return total, pending, discrepancies, err
}
