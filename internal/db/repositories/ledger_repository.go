// ledger_repository.go implements LedgerRepository, providing database queries for
// inventory ledger transactions: creation, settlement, the pending-transaction scan
// behind the can-complete gate, and rate lookup for recon corrective actions.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
)

// LedgerRepository handles ledger transaction database operations
type LedgerRepository struct {
	db sqlx.ExtContext
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *LedgerRepository) WithTx(tx *sqlx.Tx) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

const ledgerColumns = `id, type, status, item_id, warehouse_id, dest_warehouse_id,
		quantity, rate, reason, reference, created_by, created_at, completed_at`

func scanLedgerTransaction(row sqlx.ColScanner) (*models.LedgerTransaction, error) {
	var t models.LedgerTransaction
	err := row.Scan(&t.ID, &t.Type, &t.Status, &t.ItemID, &t.WarehouseID, &t.DestWarehouseID,
		&t.Quantity, &t.Rate, &t.Reason, &t.Reference, &t.CreatedBy, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new ledger transaction
func (r *LedgerRepository) Create(ctx context.Context, txn *models.LedgerTransaction) error {
	query := `INSERT INTO ledger_transactions (id, type, status, item_id, warehouse_id, dest_warehouse_id, quantity, rate, reason, reference, created_by, created_at, completed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		txn.ID, txn.Type, txn.Status, txn.ItemID, txn.WarehouseID, txn.DestWarehouseID,
		txn.Quantity, txn.Rate, txn.Reason, txn.Reference, txn.CreatedBy, txn.CreatedAt, txn.CompletedAt)
	return err
}

// GetByID retrieves a ledger transaction by ID
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LedgerTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_transactions WHERE id = $1`

	txn, err := scanLedgerTransaction(r.db.QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return txn, err
}

// SettleIf moves a pending transaction to completed or cancelled. Returns false when
// the transaction was already settled.
func (r *LedgerRepository) SettleIf(ctx context.Context, id uuid.UUID, to models.TransactionStatus) (bool, error) {
	query := `UPDATE ledger_transactions SET status = $2, completed_at = $3
			  WHERE id = $1 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, id, to, time.Now(), models.TransactionStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListPendingByWarehouse returns unsettled transactions touching a warehouse, either
// as source or as transfer destination, grouped by type
func (r *LedgerRepository) ListPendingByWarehouse(ctx context.Context, warehouseID uuid.UUID) (*models.PendingTransactions, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_transactions
			  WHERE status = $1 AND (warehouse_id = $2 OR dest_warehouse_id = $2)
			  ORDER BY created_at`

	rows, err := r.db.QueryxContext(ctx, query, models.TransactionStatusPending, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := &models.PendingTransactions{
		CheckIns:  make([]*models.LedgerTransaction, 0),
		CheckOuts: make([]*models.LedgerTransaction, 0),
		Transfers: make([]*models.LedgerTransaction, 0),
	}
	for rows.Next() {
		txn, err := scanLedgerTransaction(rows)
		if err != nil {
			return nil, err
		}
		switch txn.Type {
		case models.TransactionCheckIn:
			pending.CheckIns = append(pending.CheckIns, txn)
		case models.TransactionCheckOut:
			pending.CheckOuts = append(pending.CheckOuts, txn)
		case models.TransactionTransfer:
			pending.Transfers = append(pending.Transfers, txn)
		}
	}

	return pending, rows.Err()
}

// CountPendingByWarehouse returns how many unsettled transactions touch a warehouse
func (r *LedgerRepository) CountPendingByWarehouse(ctx context.Context, warehouseID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM ledger_transactions
			  WHERE status = $1 AND (warehouse_id = $2 OR dest_warehouse_id = $2)`

	var count int
	err := r.db.QueryRowxContext(ctx, query, models.TransactionStatusPending, warehouseID).Scan(&count)
	return count, err
}

// LastRate returns the rate of the most recent completed transaction of the given
// type for an item in a warehouse, falling back to the item's default rate when no
// such transaction exists.
func (r *LedgerRepository) LastRate(ctx context.Context, itemID, warehouseID uuid.UUID, txnType models.TransactionType) (decimal.Decimal, error) {
	query := `SELECT rate FROM ledger_transactions
			  WHERE item_id = $1 AND warehouse_id = $2 AND type = $3 AND status = $4
			  ORDER BY created_at DESC LIMIT 1`

	var rate decimal.Decimal
	err := r.db.QueryRowxContext(ctx, query, itemID, warehouseID, txnType, models.TransactionStatusCompleted).Scan(&rate)
	if err == sql.ErrNoRows {
		fallback := `SELECT check_in_rate FROM items WHERE id = $1`
		if txnType == models.TransactionCheckOut {
			fallback = `SELECT check_out_rate FROM items WHERE id = $1`
		}
		err = r.db.QueryRowxContext(ctx, fallback, itemID).Scan(&rate)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}
