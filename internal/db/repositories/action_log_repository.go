// action_log_repository.go implements ActionLogRepository, providing append and
// filtered retrieval for the immutable per-session action log. There are no update
// or delete operations on purpose.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
)

// ActionLogRepository handles action log database operations
type ActionLogRepository struct {
	db sqlx.ExtContext
}

// NewActionLogRepository creates a new ActionLogRepository
func NewActionLogRepository(db *sqlx.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *ActionLogRepository) WithTx(tx *sqlx.Tx) *ActionLogRepository {
	return &ActionLogRepository{db: tx}
}

// ActionLogFilters contains filters for querying the action log
type ActionLogFilters struct {
	VerificationID *uuid.UUID
	ActionType     *models.ActionType
	PerformedBy    *uuid.UUID
	Since          *time.Time
	Until          *time.Time
}

// Append inserts a new action log entry
func (r *ActionLogRepository) Append(ctx context.Context, entry *models.ActionLogEntry) error {
	entry.ID = uuid.New()
	entry.PerformedAt = time.Now()

	metadataJSON := []byte(`{}`)
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
	}

	query := `INSERT INTO action_log_entries (id, session_id, verification_id, performed_by, action_type, notes, metadata, performed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SessionID, entry.VerificationID, entry.PerformedBy,
		entry.ActionType, entry.Notes, metadataJSON, entry.PerformedAt)
	return err
}

// ListBySession retrieves a session's action log with optional filters and
// pagination, oldest first
func (r *ActionLogRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, filters ActionLogFilters, limit, offset int) ([]*models.ActionLogEntry, int, error) {
	countQuery := `SELECT COUNT(*) FROM action_log_entries e WHERE e.session_id = $1`
	query := `SELECT e.id, e.session_id, e.verification_id, e.performed_by, e.action_type, e.notes, e.metadata, e.performed_at, u.name
			  FROM action_log_entries e
			  JOIN users u ON u.id = e.performed_by
			  WHERE e.session_id = $1`

	args := []interface{}{sessionID}
	paramIndex := 2

	if filters.VerificationID != nil {
		countQuery += fmt.Sprintf(` AND e.verification_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND e.verification_id = $%d`, paramIndex)
		args = append(args, *filters.VerificationID)
		paramIndex++
	}

	if filters.ActionType != nil {
		countQuery += fmt.Sprintf(` AND e.action_type = $%d`, paramIndex)
		query += fmt.Sprintf(` AND e.action_type = $%d`, paramIndex)
		args = append(args, *filters.ActionType)
		paramIndex++
	}

	if filters.PerformedBy != nil {
		countQuery += fmt.Sprintf(` AND e.performed_by = $%d`, paramIndex)
		query += fmt.Sprintf(` AND e.performed_by = $%d`, paramIndex)
		args = append(args, *filters.PerformedBy)
		paramIndex++
	}

	if filters.Since != nil {
		countQuery += fmt.Sprintf(` AND e.performed_at >= $%d`, paramIndex)
		query += fmt.Sprintf(` AND e.performed_at >= $%d`, paramIndex)
		args = append(args, *filters.Since)
		paramIndex++
	}

	if filters.Until != nil {
		countQuery += fmt.Sprintf(` AND e.performed_at <= $%d`, paramIndex)
		query += fmt.Sprintf(` AND e.performed_at <= $%d`, paramIndex)
		args = append(args, *filters.Until)
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowxContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY e.performed_at, e.id LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]*models.ActionLogEntry, 0)
	for rows.Next() {
		entry := &models.ActionLogEntry{}
		var metadataJSON []byte

		err := rows.Scan(&entry.ID, &entry.SessionID, &entry.VerificationID, &entry.PerformedBy,
			&entry.ActionType, &entry.Notes, &metadataJSON, &entry.PerformedAt, &entry.PerformedByName)
		if err != nil {
			return nil, 0, err
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, 0, err
			}
		}

		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}
