// session_repository.go implements SessionRepository, providing database queries for
// audit session CRUD, filtered listing, and the conditional status transitions the
// engine relies on for optimistic concurrency.
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

// SessionRepository handles audit session database operations
type SessionRepository struct {
	db sqlx.ExtContext
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *SessionRepository) WithTx(tx *sqlx.Tx) *SessionRepository {
	return &SessionRepository{db: tx}
}

// SessionFilters contains filters for listing audit sessions
type SessionFilters struct {
	WarehouseID *uuid.UUID
	Status      *models.SessionStatus
	CreatedBy   *uuid.UUID
}

const sessionColumns = `s.id, s.code, s.warehouse_id, s.title, s.description, s.start_date, s.end_date,
		s.status, s.created_by, s.created_at, s.updated_at`

func scanSession(row sqlx.ColScanner) (*models.AuditSession, error) {
	var s models.AuditSession
	err := row.Scan(&s.ID, &s.Code, &s.WarehouseID, &s.Title, &s.Description, &s.StartDate, &s.EndDate,
		&s.Status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.WarehouseName, &s.CreatedByName)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new audit session
func (r *SessionRepository) Create(ctx context.Context, session *models.AuditSession) error {
	query := `INSERT INTO audit_sessions (id, code, warehouse_id, title, description, start_date, end_date, status, created_by, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.Code, session.WarehouseID, session.Title, session.Description,
		session.StartDate, session.EndDate, session.Status, session.CreatedBy,
		session.CreatedAt, session.UpdatedAt)
	return err
}

// GetByID retrieves an audit session by ID, with warehouse and creator names joined
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditSession, error) {
	query := `SELECT ` + sessionColumns + `, w.name, u.name
			  FROM audit_sessions s
			  JOIN warehouses w ON w.id = s.warehouse_id
			  JOIN users u ON u.id = s.created_by
			  WHERE s.id = $1`

	session, err := scanSession(r.db.QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return session, err
}

// GetByCode retrieves an audit session by its human-readable code
func (r *SessionRepository) GetByCode(ctx context.Context, code string) (*models.AuditSession, error) {
	query := `SELECT ` + sessionColumns + `, w.name, u.name
			  FROM audit_sessions s
			  JOIN warehouses w ON w.id = s.warehouse_id
			  JOIN users u ON u.id = s.created_by
			  WHERE s.code = $1`

	session, err := scanSession(r.db.QueryRowxContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return session, err
}

// List retrieves audit sessions with optional filters and pagination
func (r *SessionRepository) List(ctx context.Context, filters SessionFilters, limit, offset int) ([]*models.AuditSession, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_sessions s WHERE 1=1`
	query := `SELECT ` + sessionColumns + `, w.name, u.name
			  FROM audit_sessions s
			  JOIN warehouses w ON w.id = s.warehouse_id
			  JOIN users u ON u.id = s.created_by
			  WHERE 1=1`

	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.WarehouseID != nil {
		countQuery += fmt.Sprintf(` AND s.warehouse_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND s.warehouse_id = $%d`, paramIndex)
		args = append(args, *filters.WarehouseID)
		paramIndex++
	}

	if filters.Status != nil {
		countQuery += fmt.Sprintf(` AND s.status = $%d`, paramIndex)
		query += fmt.Sprintf(` AND s.status = $%d`, paramIndex)
		args = append(args, *filters.Status)
		paramIndex++
	}

	if filters.CreatedBy != nil {
		countQuery += fmt.Sprintf(` AND s.created_by = $%d`, paramIndex)
		query += fmt.Sprintf(` AND s.created_by = $%d`, paramIndex)
		args = append(args, *filters.CreatedBy)
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowxContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY s.created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := make([]*models.AuditSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, session)
	}

	return sessions, total, rows.Err()
}

// UpdateStatusIf transitions a session from one status to another. It returns false
// without error when the session is no longer in the expected status, which is how
// concurrent transitions lose the race.
func (r *SessionRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to models.SessionStatus) (bool, error) {
	query := `UPDATE audit_sessions SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdateEndDate moves the session end date forward
func (r *SessionRepository) UpdateEndDate(ctx context.Context, id uuid.UUID, endDate time.Time) error {
	query := `UPDATE audit_sessions SET end_date = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, endDate, time.Now())
	return err
}

// CodeExists reports whether a session code is already taken
func (r *SessionRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowxContext(ctx, `SELECT EXISTS(SELECT 1 FROM audit_sessions WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}
