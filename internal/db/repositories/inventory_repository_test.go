package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var warehouseCols = []string{"id", "code", "name", "location", "created_at"}

var itemCols = []string{
	"id", "sku", "name", "unit", "check_in_rate", "check_out_rate", "tracking_batches", "created_at",
}

var levelCols = []string{"warehouse_id", "item_id", "on_hand", "updated_at"}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newInventoryRepo(t *testing.T) (*InventoryRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewInventoryRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// GetWarehouse / ListWarehouses
// ---------------------------------------------------------------------------

func TestGetWarehouse_Found(t *testing.T) {
	repo, mock := newInventoryRepo(t)
	id := uuid.MustParse("33333333-3333-3333-3333-333333333333")
	mock.ExpectQuery("SELECT id.*FROM warehouses WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(warehouseCols).
			AddRow(id.String(), "WH-01", "Main warehouse", nil, time.Now()))

	w, err := repo.GetWarehouse(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil || w.Code != "WH-01" {
		t.Error("expected warehouse WH-01")
	}
}

func TestGetWarehouse_NotFound(t *testing.T) {
	repo, mock := newInventoryRepo(t)
	mock.ExpectQuery("SELECT id.*FROM warehouses WHERE id").
		WillReturnRows(sqlmock.NewRows(warehouseCols))

	w, err := repo.GetWarehouse(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Error("expected nil for missing warehouse")
	}
}

func TestListWarehouses_Success(t *testing.T) {
	repo, mock := newInventoryRepo(t)
	mock.ExpectQuery("SELECT id.*FROM warehouses ORDER BY code").
		WillReturnRows(sqlmock.NewRows(warehouseCols).
			AddRow(uuid.New().String(), "WH-01", "Main", nil, time.Now()).
			AddRow(uuid.New().String(), "WH-02", "Overflow", nil, time.Now()))

	warehouses, err := repo.ListWarehouses(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warehouses) != 2 {
		t.Errorf("len = %d, want 2", len(warehouses))
	}
}

// ---------------------------------------------------------------------------
// GetItem / ListItems
// ---------------------------------------------------------------------------

func TestGetItem_Found(t *testing.T) {
	repo, mock := newInventoryRepo(t)
	id := uuid.MustParse("55555555-5555-5555-5555-555555555555")
	mock.ExpectQuery("SELECT id.*FROM items WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(id.String(), "SKU-001", "Widget", "pcs", "12.5000", "15.0000", false, time.Now()))

	item, err := repo.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item == nil || item.SKU != "SKU-001" {
		t.Error("expected item SKU-001")
	}
}

func TestGetItem_Error(t *testing.T) {
	repo, mock := newInventoryRepo(t)
	mock.ExpectQuery("SELECT id.*FROM items WHERE id").
		WillReturnError(errDB)

	_, err := repo.GetItem(context.Background(), uuid.New())
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListLevels / AdjustOnHand
// ---------------------------------------------------------------------------

func TestListLevels_Success(t *testing.T) {
	repo, mock := newInventoryRepo(t)
	whID := uuid.New()
	mock.ExpectQuery("SELECT l.warehouse_id.*FROM inventory_levels l").
		WithArgs(whID).
		WillReturnRows(sqlmock.NewRows(levelCols).
			AddRow(whID.String(), uuid.New().String(), int64(100), time.Now()))

	levels, err := repo.ListLevels(context.Background(), whID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 1 || levels[0].OnHand != 100 {
		t.Error("expected one level with on_hand 100")
	}
}

func TestAdjustOnHand_Success(t *testing.T) {
	repo, mock := newInventoryRepo(t)
	mock.ExpectExec("INSERT INTO inventory_levels.*ON CONFLICT").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AdjustOnHand(context.Background(), uuid.New(), uuid.New(), -3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
