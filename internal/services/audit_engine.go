// Package services implements higher-level business logic that coordinates across multiple repositories.
// The audit engine, for example, orchestrates an audit session from warehouse freeze through counting,
// reconciliation, and completion. Every state-changing operation runs in a single database transaction
// together with its action log entry, so the log never disagrees with the data it describes.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/auth"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
	"github.com/stockaudit/stockaudit-backend/internal/db/repositories"
	"github.com/stockaudit/stockaudit-backend/internal/telemetry"
)

// Actor identifies the authenticated user performing an engine operation
type Actor struct {
	UserID uuid.UUID
	Scopes []string
}

// Can reports whether the actor holds a scope. The engine re-checks capabilities even
// though the HTTP layer already gates them, so a misrouted handler cannot skip RBAC.
func (a Actor) Can(scope auth.Scope) bool {
	return auth.HasScope(a.Scopes, scope)
}

// Engine coordinates the audit session workflow across repositories
type Engine struct {
	db            *sqlx.DB
	sessions      *repositories.SessionRepository
	verifications *repositories.VerificationRepository
	actionLog     *repositories.ActionLogRepository
	freezes       *repositories.FreezeRepository
	ledger        *repositories.LedgerRepository
	inventory     *repositories.InventoryRepository
	logger        *slog.Logger
}

// NewEngine creates a new audit engine
func NewEngine(db *sqlx.DB, logger *slog.Logger) *Engine {
	return &Engine{
		db:            db,
		sessions:      repositories.NewSessionRepository(db),
		verifications: repositories.NewVerificationRepository(db),
		actionLog:     repositories.NewActionLogRepository(db),
		freezes:       repositories.NewFreezeRepository(db),
		ledger:        repositories.NewLedgerRepository(db),
		inventory:     repositories.NewInventoryRepository(db),
		logger:        logger,
	}
}

// withTx runs fn inside a transaction, rolling back on error
func (e *Engine) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// generateSessionCode builds a session code like AUD-20260824-1a2b
func generateSessionCode(now time.Time) string {
	suffix := make([]byte, 2)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("AUD-%s-%s", now.Format("20060102"), hex.EncodeToString(suffix))
}

// CreateSessionInput carries the fields needed to open a new audit session
type CreateSessionInput struct {
	WarehouseID     uuid.UUID
	Title           string
	Description     *string
	StartDate       time.Time
	EndDate         time.Time
	FreezeConfirmed bool
}

// CreateSession opens a new audit session and freezes its warehouse. The freeze and
// the session insert share a transaction: a warehouse already frozen by another
// session makes the whole operation fail with a conflict.
func (e *Engine) CreateSession(ctx context.Context, actor Actor, input CreateSessionInput) (*models.AuditSession, error) {
	if !actor.Can(auth.ScopeAuditFinalize) {
		return nil, &AuthorizationError{Message: "audit:finalize scope required to create sessions"}
	}
	if input.Title == "" {
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if !input.FreezeConfirmed {
		return nil, &ValidationError{Field: "freeze_confirmed", Message: "creating a session freezes the warehouse; the caller must acknowledge it"}
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, &ValidationError{Field: "end_date", Message: "must not be before start_date"}
	}

	warehouse, err := e.inventory.GetWarehouse(ctx, input.WarehouseID)
	if err != nil {
		return nil, err
	}
	if warehouse == nil {
		return nil, &NotFoundError{Resource: "warehouse", ID: input.WarehouseID.String()}
	}

	now := time.Now()
	session := &models.AuditSession{
		ID:          uuid.New(),
		Code:        generateSessionCode(now),
		WarehouseID: input.WarehouseID,
		Title:       input.Title,
		Description: input.Description,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Status:      models.SessionStatusOpen,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Regenerate on the rare code collision
	for i := 0; i < 3; i++ {
		exists, err := e.sessions.CodeExists(ctx, session.Code)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		session.Code = generateSessionCode(now)
	}

	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		acquired, err := e.freezes.WithTx(tx).Acquire(ctx, input.WarehouseID, session.ID)
		if err != nil {
			return err
		}
		if !acquired {
			return &ConflictError{Message: fmt.Sprintf("warehouse %s is already frozen by another audit session", warehouse.Code)}
		}
		// The collision check above runs outside this transaction, so a racing
		// creation can still slip the same code in. Surface it as a conflict the
		// caller can retry rather than a raw driver error.
		if err := e.sessions.WithTx(tx).Create(ctx, session); err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("session code %s was claimed concurrently, retry the request", session.Code)}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.AuditSessionsTotal.WithLabelValues("created").Inc()
	e.logger.Info("audit session created",
		"session_id", session.ID, "code", session.Code, "warehouse_id", input.WarehouseID)
	session.WarehouseName = warehouse.Name
	return session, nil
}

// BeginCounting moves a session from open to in_progress and snapshots the
// warehouse's current inventory into pending verification rows
func (e *Engine) BeginCounting(ctx context.Context, actor Actor, sessionID uuid.UUID) (*models.AuditSession, error) {
	if !actor.Can(auth.ScopeAuditFinalize) {
		return nil, &AuthorizationError{Message: "audit:finalize scope required to start counting"}
	}

	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
	}
	if !session.Status.CanTransitionTo(models.SessionStatusInProgress) {
		return nil, &PreconditionError{Message: fmt.Sprintf("session is %s, counting can only start from open", session.Status)}
	}

	var snapshotted int
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		moved, err := e.sessions.WithTx(tx).UpdateStatusIf(ctx, sessionID, models.SessionStatusOpen, models.SessionStatusInProgress)
		if err != nil {
			return err
		}
		if !moved {
			return &ConflictError{Message: "session status changed concurrently"}
		}
		snapshotted, err = e.verifications.WithTx(tx).SnapshotInventory(ctx, sessionID, session.WarehouseID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("counting started", "session_id", sessionID, "verifications", snapshotted)
	session.Status = models.SessionStatusInProgress
	return session, nil
}

// Confirm records a physical count on a verification row and marks it confirmed.
// A pending row accepts any counter; a confirmed row accepts only its original
// confirmer correcting their own count. Anyone else must go through Override.
// An optional batch number is recorded on the row when the item tracks batches.
func (e *Engine) Confirm(ctx context.Context, actor Actor, verificationID uuid.UUID, physicalQuantity int64, batchNumber, notes *string) (*models.Verification, error) {
	if !actor.Can(auth.ScopeAuditConfirm) {
		return nil, &AuthorizationError{Message: "audit:confirm scope required"}
	}
	if physicalQuantity < 0 {
		return nil, &ValidationError{Field: "physical_quantity", Message: "must not be negative"}
	}
	if batchNumber != nil && *batchNumber == "" {
		return nil, &ValidationError{Field: "batch_number", Message: "must not be empty when provided"}
	}

	verification, session, err := e.loadVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusInProgress {
		return nil, &PreconditionError{Message: fmt.Sprintf("session is %s, counts can only be recorded while in_progress", session.Status)}
	}
	if verification.LockedBy != nil {
		if *verification.LockedBy != actor.UserID {
			return nil, &AuthorizationError{Message: "verification is locked by another user"}
		}
		return nil, &ConflictError{Message: "verification is locked; unlock it before editing"}
	}
	if !verification.CanEdit(actor.UserID) {
		return nil, &AuthorizationError{Message: "only the original confirmer may edit a confirmed count; use an override"}
	}
	if err := e.checkBatchTracked(ctx, verification.ItemID, batchNumber); err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{
		"physical_quantity": physicalQuantity,
		"system_quantity":   verification.SystemQuantity,
	}
	if batchNumber != nil {
		metadata["batch_number"] = *batchNumber
	}

	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := e.verifications.WithTx(tx).ConfirmIf(ctx, verificationID,
			verification.Status, verification.ConfirmedBy, physicalQuantity, batchNumber, notes, actor.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return &ConflictError{Message: "verification changed concurrently, reload and retry"}
		}
		return e.appendLog(ctx, tx, &models.ActionLogEntry{
			SessionID:      session.ID,
			VerificationID: &verificationID,
			PerformedBy:    actor.UserID,
			ActionType:     models.ActionConfirm,
			Notes:          notes,
			Metadata:       metadata,
		})
	})
	if err != nil {
		return nil, err
	}

	return e.verifications.GetByID(ctx, verificationID)
}

// checkBatchTracked rejects a batch number on items that do not track batches.
// No-op when no batch number was supplied.
func (e *Engine) checkBatchTracked(ctx context.Context, itemID uuid.UUID, batchNumber *string) error {
	if batchNumber == nil {
		return nil
	}
	item, err := e.inventory.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return &NotFoundError{Resource: "item", ID: itemID.String()}
	}
	if !item.TrackingBatches {
		return &ValidationError{Field: "batch_number", Message: fmt.Sprintf("item %s does not track batches", item.SKU)}
	}
	return nil
}

// Override replaces the physical count on a confirmed row. Requires the override
// capability and a note explaining the correction; the original confirmation stays
// on the row.
func (e *Engine) Override(ctx context.Context, actor Actor, verificationID uuid.UUID, physicalQuantity int64, batchNumber *string, overrideNotes string) (*models.Verification, error) {
	if !actor.Can(auth.ScopeAuditOverride) {
		return nil, &AuthorizationError{Message: "audit:override scope required"}
	}
	if physicalQuantity < 0 {
		return nil, &ValidationError{Field: "physical_quantity", Message: "must not be negative"}
	}
	if batchNumber != nil && *batchNumber == "" {
		return nil, &ValidationError{Field: "batch_number", Message: "must not be empty when provided"}
	}
	if overrideNotes == "" {
		return nil, &ValidationError{Field: "override_notes", Message: "an override must explain itself"}
	}

	verification, session, err := e.loadVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusInProgress {
		return nil, &PreconditionError{Message: fmt.Sprintf("session is %s, overrides only apply while in_progress", session.Status)}
	}
	if verification.Status != models.VerificationStatusConfirmed {
		return nil, &PreconditionError{Message: "only confirmed verifications can be overridden"}
	}
	if err := e.checkBatchTracked(ctx, verification.ItemID, batchNumber); err != nil {
		return nil, err
	}

	var previous *int64
	if verification.PhysicalQuantity != nil {
		prev := *verification.PhysicalQuantity
		previous = &prev
	}

	metadata := map[string]interface{}{
		"physical_quantity": physicalQuantity,
		"previous_quantity": previous,
	}
	if batchNumber != nil {
		metadata["batch_number"] = *batchNumber
	}

	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := e.verifications.WithTx(tx).OverrideIf(ctx, verificationID, physicalQuantity, batchNumber, overrideNotes, actor.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return &ConflictError{Message: "verification changed concurrently, reload and retry"}
		}
		return e.appendLog(ctx, tx, &models.ActionLogEntry{
			SessionID:      session.ID,
			VerificationID: &verificationID,
			PerformedBy:    actor.UserID,
			ActionType:     models.ActionOverride,
			Notes:          &overrideNotes,
			Metadata:       metadata,
		})
	})
	if err != nil {
		return nil, err
	}

	return e.verifications.GetByID(ctx, verificationID)
}

// Lock pins a verification so counters cannot edit it until a manager unlocks it
func (e *Engine) Lock(ctx context.Context, actor Actor, verificationID uuid.UUID) error {
	return e.setLock(ctx, actor, verificationID, true)
}

// Unlock releases a locked verification
func (e *Engine) Unlock(ctx context.Context, actor Actor, verificationID uuid.UUID) error {
	return e.setLock(ctx, actor, verificationID, false)
}

func (e *Engine) setLock(ctx context.Context, actor Actor, verificationID uuid.UUID, lock bool) error {
	if !actor.Can(auth.ScopeAuditOverride) {
		return &AuthorizationError{Message: "audit:override scope required to lock or unlock"}
	}

	verification, session, err := e.loadVerification(ctx, verificationID)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return &PreconditionError{Message: fmt.Sprintf("session is %s", session.Status)}
	}

	actionType := models.ActionLock
	var holder *uuid.UUID
	if lock {
		if verification.LockedBy != nil {
			return &ConflictError{Message: "verification is already locked"}
		}
		holder = &actor.UserID
	} else {
		if verification.LockedBy == nil {
			return &ConflictError{Message: "verification is not locked"}
		}
		actionType = models.ActionUnlock
	}

	return e.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := e.verifications.WithTx(tx).SetLock(ctx, verificationID, holder); err != nil {
			return err
		}
		return e.appendLog(ctx, tx, &models.ActionLogEntry{
			SessionID:      session.ID,
			VerificationID: &verificationID,
			PerformedBy:    actor.UserID,
			ActionType:     actionType,
		})
	})
}

// StartReconciliation moves a fully-counted session from in_progress to
// reconciliation, classifying every row as complete, short, or excess
func (e *Engine) StartReconciliation(ctx context.Context, actor Actor, sessionID uuid.UUID) (*models.AuditSession, error) {
	if !actor.Can(auth.ScopeAuditFinalize) {
		return nil, &AuthorizationError{Message: "audit:finalize scope required to start reconciliation"}
	}

	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
	}
	if !session.Status.CanTransitionTo(models.SessionStatusReconciliation) {
		return nil, &PreconditionError{Message: fmt.Sprintf("session is %s, reconciliation can only start from in_progress", session.Status)}
	}

	_, pending, _, err := e.verifications.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, &PreconditionError{
			Message:      fmt.Sprintf("%d verifications still have no physical count", pending),
			PendingCount: pending,
		}
	}

	var reclassified int
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		moved, err := e.sessions.WithTx(tx).UpdateStatusIf(ctx, sessionID, models.SessionStatusInProgress, models.SessionStatusReconciliation)
		if err != nil {
			return err
		}
		if !moved {
			return &ConflictError{Message: "session status changed concurrently"}
		}
		reclassified, err = e.verifications.WithTx(tx).ReclassifyAll(ctx, sessionID)
		if err != nil {
			return err
		}
		return e.appendLog(ctx, tx, &models.ActionLogEntry{
			SessionID:   sessionID,
			PerformedBy: actor.UserID,
			ActionType:  models.ActionStartReconciliation,
			Metadata:    map[string]interface{}{"reclassified": reclassified},
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("reconciliation started", "session_id", sessionID, "reclassified", reclassified)
	session.Status = models.SessionStatusReconciliation
	return session, nil
}

// ReconCheckIn books found stock in against an excess verification, raising the
// system quantity toward the physical count. The corrective ledger transaction, the
// on-hand adjustment, the system quantity move, the reclassification, and the log
// entry commit together.
func (e *Engine) ReconCheckIn(ctx context.Context, actor Actor, verificationID uuid.UUID, quantity int64, reason string) (*models.Verification, error) {
	return e.reconcile(ctx, actor, verificationID, quantity, reason, models.TransactionCheckIn)
}

// ReconCheckOut books lost stock out against a short verification, lowering the
// system quantity toward the physical count
func (e *Engine) ReconCheckOut(ctx context.Context, actor Actor, verificationID uuid.UUID, quantity int64, reason string) (*models.Verification, error) {
	return e.reconcile(ctx, actor, verificationID, quantity, reason, models.TransactionCheckOut)
}

func (e *Engine) reconcile(ctx context.Context, actor Actor, verificationID uuid.UUID, quantity int64, reason string, txnType models.TransactionType) (*models.Verification, error) {
	if !actor.Can(auth.ScopeAuditReconcile) {
		return nil, &AuthorizationError{Message: "audit:reconcile scope required"}
	}
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "a recon action must explain itself"}
	}

	verification, session, err := e.loadVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusReconciliation {
		return nil, &PreconditionError{Message: fmt.Sprintf("session is %s, recon actions only apply during reconciliation", session.Status)}
	}

	discrepancy, counted := verification.Discrepancy()
	if !counted {
		return nil, &PreconditionError{Message: "verification has no physical count"}
	}

	// A check-in raises the system quantity toward an excess count, a check-out
	// lowers it toward a short one. The quantity may close the gap partially but
	// never overshoot. Direction is derived from the current discrepancy, which
	// ledger writes keep moving, not from the status column.
	var delta int64
	switch txnType {
	case models.TransactionCheckIn:
		if models.ClassifyDiscrepancy(discrepancy) != models.VerificationStatusExcess {
			return nil, &PreconditionError{Message: "recon check-in only applies to excess verifications"}
		}
		if quantity > discrepancy {
			return nil, &ValidationError{Field: "quantity", Message: fmt.Sprintf("exceeds remaining discrepancy of %d", discrepancy)}
		}
		delta = quantity
	case models.TransactionCheckOut:
		if models.ClassifyDiscrepancy(discrepancy) != models.VerificationStatusShort {
			return nil, &PreconditionError{Message: "recon check-out only applies to short verifications"}
		}
		if quantity > -discrepancy {
			return nil, &ValidationError{Field: "quantity", Message: fmt.Sprintf("exceeds remaining discrepancy of %d", -discrepancy)}
		}
		delta = -quantity
	}

	rate, err := e.ledger.LastRate(ctx, verification.ItemID, session.WarehouseID, txnType)
	if err != nil {
		return nil, err
	}

	actionType := models.ActionReconCheckin
	if txnType == models.TransactionCheckOut {
		actionType = models.ActionReconCheckout
	}

	now := time.Now()
	txn := &models.LedgerTransaction{
		ID:          uuid.New(),
		Type:        txnType,
		Status:      models.TransactionStatusCompleted,
		ItemID:      verification.ItemID,
		WarehouseID: session.WarehouseID,
		Quantity:    quantity,
		Rate:        rate,
		Reason:      &reason,
		Reference:   &session.Code,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := e.ledger.WithTx(tx).Create(ctx, txn); err != nil {
			return err
		}
		if err := e.inventory.WithTx(tx).AdjustOnHand(ctx, session.WarehouseID, verification.ItemID, delta); err != nil {
			return err
		}
		if err := e.verifications.WithTx(tx).AdjustSystemQuantity(ctx, verificationID, delta); err != nil {
			return err
		}
		if err := e.verifications.WithTx(tx).Reclassify(ctx, verificationID); err != nil {
			return err
		}
		return e.appendLog(ctx, tx, &models.ActionLogEntry{
			SessionID:      session.ID,
			VerificationID: &verificationID,
			PerformedBy:    actor.UserID,
			ActionType:     actionType,
			Notes:          &reason,
			Metadata: map[string]interface{}{
				"quantity":       quantity,
				"rate":           rate.String(),
				"transaction_id": txn.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return e.verifications.GetByID(ctx, verificationID)
}

// SettleTransaction resolves a pending ledger transaction to completed or
// cancelled. Completion applies the stock movement to the warehouse's on-hand
// level; cancellation leaves inventory untouched. Either way the transaction
// stops blocking completion of the session holding the warehouse frozen.
func (e *Engine) SettleTransaction(ctx context.Context, actor Actor, transactionID uuid.UUID, outcome models.TransactionStatus) (*models.LedgerTransaction, error) {
	if !actor.Can(auth.ScopeLedgerWrite) {
		return nil, &AuthorizationError{Message: "ledger:write scope required to settle transactions"}
	}
	if outcome != models.TransactionStatusCompleted && outcome != models.TransactionStatusCancelled {
		return nil, &ValidationError{Field: "outcome", Message: "must be completed or cancelled"}
	}

	txn, err := e.ledger.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, &NotFoundError{Resource: "transaction", ID: transactionID.String()}
	}
	if txn.Status != models.TransactionStatusPending {
		return nil, &ConflictError{Message: fmt.Sprintf("transaction is already %s", txn.Status)}
	}

	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := e.ledger.WithTx(tx).SettleIf(ctx, transactionID, outcome)
		if err != nil {
			return err
		}
		if !ok {
			return &ConflictError{Message: "transaction was settled concurrently"}
		}
		if outcome != models.TransactionStatusCompleted {
			return nil
		}
		switch txn.Type {
		case models.TransactionCheckIn:
			return e.inventory.WithTx(tx).AdjustOnHand(ctx, txn.WarehouseID, txn.ItemID, txn.Quantity)
		case models.TransactionCheckOut:
			return e.inventory.WithTx(tx).AdjustOnHand(ctx, txn.WarehouseID, txn.ItemID, -txn.Quantity)
		case models.TransactionTransfer:
			if err := e.inventory.WithTx(tx).AdjustOnHand(ctx, txn.WarehouseID, txn.ItemID, -txn.Quantity); err != nil {
				return err
			}
			if txn.DestWarehouseID != nil {
				return e.inventory.WithTx(tx).AdjustOnHand(ctx, *txn.DestWarehouseID, txn.ItemID, txn.Quantity)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("ledger transaction settled",
		"transaction_id", transactionID, "outcome", outcome, "type", txn.Type)
	return e.ledger.GetByID(ctx, transactionID)
}

// CompletionStatus reports whether a session can complete and what blocks it
type CompletionStatus struct {
	CanComplete      bool `json:"can_complete"`
	PendingCount     int  `json:"pending_count"`
	DiscrepancyCount int  `json:"discrepancy_count"`
	PendingLedger    int  `json:"pending_ledger"`
}

// CanComplete evaluates the completion gate without mutating anything: every row
// counted, every discrepancy resolved, no unsettled ledger transactions touching the
// warehouse.
func (e *Engine) CanComplete(ctx context.Context, sessionID uuid.UUID) (*CompletionStatus, error) {
	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
	}

	_, pending, discrepancies, err := e.verifications.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	pendingLedger, err := e.ledger.CountPendingByWarehouse(ctx, session.WarehouseID)
	if err != nil {
		return nil, err
	}

	return &CompletionStatus{
		CanComplete:      session.Status == models.SessionStatusReconciliation && pending == 0 && discrepancies == 0 && pendingLedger == 0,
		PendingCount:     pending,
		DiscrepancyCount: discrepancies,
		PendingLedger:    pendingLedger,
	}, nil
}

// Complete closes a reconciled session and releases the warehouse freeze. Fails with
// the blocking counts when the completion gate is not satisfied.
func (e *Engine) Complete(ctx context.Context, actor Actor, sessionID uuid.UUID) (*models.AuditSession, error) {
	if !actor.Can(auth.ScopeAuditFinalize) {
		return nil, &AuthorizationError{Message: "audit:finalize scope required to complete sessions"}
	}

	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
	}
	if !session.Status.CanTransitionTo(models.SessionStatusCompleted) {
		return nil, &PreconditionError{Message: fmt.Sprintf("session is %s, completion requires reconciliation", session.Status)}
	}

	status, err := e.CanComplete(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !status.CanComplete {
		return nil, &PreconditionError{
			Message:          "session cannot complete with unresolved work",
			PendingCount:     status.PendingCount,
			DiscrepancyCount: status.DiscrepancyCount,
			PendingLedger:    status.PendingLedger,
		}
	}

	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		moved, err := e.sessions.WithTx(tx).UpdateStatusIf(ctx, sessionID, models.SessionStatusReconciliation, models.SessionStatusCompleted)
		if err != nil {
			return err
		}
		if !moved {
			return &ConflictError{Message: "session status changed concurrently"}
		}
		if err := e.freezes.WithTx(tx).Release(ctx, sessionID); err != nil {
			return err
		}
		return e.appendLog(ctx, tx, &models.ActionLogEntry{
			SessionID:   sessionID,
			PerformedBy: actor.UserID,
			ActionType:  models.ActionComplete,
		})
	})
	if err != nil {
		return nil, err
	}

	telemetry.AuditSessionsTotal.WithLabelValues("completed").Inc()
	e.logger.Info("audit session completed", "session_id", sessionID, "code", session.Code)
	session.Status = models.SessionStatusCompleted
	return session, nil
}

// Cancel aborts a non-terminal session and releases the warehouse freeze. Counts and
// log entries stay in place for later review; no inventory is changed.
func (e *Engine) Cancel(ctx context.Context, actor Actor, sessionID uuid.UUID, reason string) (*models.AuditSession, error) {
	if !actor.Can(auth.ScopeAuditFinalize) {
		return nil, &AuthorizationError{Message: "audit:finalize scope required to cancel sessions"}
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "a cancellation must explain itself"}
	}

	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
	}
	if !session.Status.CanTransitionTo(models.SessionStatusCancelled) {
		return nil, &PreconditionError{Message: fmt.Sprintf("session is already %s", session.Status)}
	}

	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		moved, err := e.sessions.WithTx(tx).UpdateStatusIf(ctx, sessionID, session.Status, models.SessionStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			return &ConflictError{Message: "session status changed concurrently"}
		}
		if err := e.freezes.WithTx(tx).Release(ctx, sessionID); err != nil {
			return err
		}
		return e.appendLog(ctx, tx, &models.ActionLogEntry{
			SessionID:   sessionID,
			PerformedBy: actor.UserID,
			ActionType:  models.ActionCancel,
			Notes:       &reason,
		})
	})
	if err != nil {
		return nil, err
	}

	telemetry.AuditSessionsTotal.WithLabelValues("cancelled").Inc()
	e.logger.Info("audit session cancelled", "session_id", sessionID, "code", session.Code, "reason", reason)
	session.Status = models.SessionStatusCancelled
	return session, nil
}

// ExtendEndDate pushes a running session's end date further out
func (e *Engine) ExtendEndDate(ctx context.Context, actor Actor, sessionID uuid.UUID, newEndDate time.Time) (*models.AuditSession, error) {
	if !actor.Can(auth.ScopeAuditFinalize) {
		return nil, &AuthorizationError{Message: "audit:finalize scope required to extend sessions"}
	}

	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
	}
	if session.Status.IsTerminal() {
		return nil, &PreconditionError{Message: fmt.Sprintf("session is %s", session.Status)}
	}
	if !newEndDate.After(session.EndDate) {
		return nil, &ValidationError{Field: "end_date", Message: "must be after the current end date"}
	}

	previousEnd := session.EndDate
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := e.sessions.WithTx(tx).UpdateEndDate(ctx, sessionID, newEndDate); err != nil {
			return err
		}
		return e.appendLog(ctx, tx, &models.ActionLogEntry{
			SessionID:   sessionID,
			PerformedBy: actor.UserID,
			ActionType:  models.ActionExtend,
			Metadata: map[string]interface{}{
				"previous_end_date": previousEnd.Format(time.RFC3339),
				"new_end_date":      newEndDate.Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	session.EndDate = newEndDate
	return session, nil
}

// loadVerification fetches a verification together with its owning session
func (e *Engine) loadVerification(ctx context.Context, verificationID uuid.UUID) (*models.Verification, *models.AuditSession, error) {
	verification, err := e.verifications.GetByID(ctx, verificationID)
	if err != nil {
		return nil, nil, err
	}
	if verification == nil {
		return nil, nil, &NotFoundError{Resource: "verification", ID: verificationID.String()}
	}
	session, err := e.sessions.GetByID(ctx, verification.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, &NotFoundError{Resource: "session", ID: verification.SessionID.String()}
	}
	return verification, session, nil
}

// appendLog writes an action log entry inside the caller's transaction and bumps the
// per-action counter
func (e *Engine) appendLog(ctx context.Context, tx *sqlx.Tx, entry *models.ActionLogEntry) error {
	if err := e.actionLog.WithTx(tx).Append(ctx, entry); err != nil {
		return err
	}
	telemetry.AuditActionsTotal.WithLabelValues(string(entry.ActionType)).Inc()
	return nil
}
