// Package audits implements the HTTP handlers for the audit session workflow:
// session lifecycle, verification counting, recon corrective actions, the
// can-complete gate, and the action log.
package audits

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
	"github.com/stockaudit/stockaudit-backend/internal/db/repositories"
	"github.com/stockaudit/stockaudit-backend/internal/services"
)

// Handlers holds the audit engine and the read-side repositories for listing
// endpoints. Writes go through the engine only; handlers never mutate directly.
type Handlers struct {
	engine        *services.Engine
	sessions      *repositories.SessionRepository
	verifications *repositories.VerificationRepository
	actionLog     *repositories.ActionLogRepository
	ledger        *repositories.LedgerRepository
}

// NewHandlers creates the audit workflow handlers
func NewHandlers(engine *services.Engine, db *sqlx.DB) *Handlers {
	return &Handlers{
		engine:        engine,
		sessions:      repositories.NewSessionRepository(db),
		verifications: repositories.NewVerificationRepository(db),
		actionLog:     repositories.NewActionLogRepository(db),
		ledger:        repositories.NewLedgerRepository(db),
	}
}

// actor builds the engine actor from the identity placed in the context by the
// auth middleware
func actor(c *gin.Context) (services.Actor, bool) {
	userVal, ok := c.Get("user")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return services.Actor{}, false
	}
	user, ok := userVal.(*models.User)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return services.Actor{}, false
	}

	var scopes []string
	if scopesVal, ok := c.Get("scopes"); ok {
		scopes, _ = scopesVal.([]string)
	}
	return services.Actor{UserID: user.ID, Scopes: scopes}, true
}

// pathUUID parses a UUID path parameter, answering 400 on garbage
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + ": must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// pagination parses page/per_page query params with the usual clamping
func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	return page, perPage, (page - 1) * perPage
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

// createSessionRequest is the JSON body for POST /audit/sessions
type createSessionRequest struct {
	WarehouseID     uuid.UUID `json:"warehouse_id" binding:"required"`
	Title           string    `json:"title" binding:"required"`
	Description     *string   `json:"description"`
	StartDate       time.Time `json:"start_date" binding:"required"`
	EndDate         time.Time `json:"end_date" binding:"required"`
	FreezeConfirmed bool      `json:"freeze_confirmed"`
}

// @Summary      Create audit session
// @Description  Opens a new audit session and freezes its warehouse. The caller must acknowledge the freeze via freeze_confirmed. Requires audit:finalize scope.
// @Tags         Audit Sessions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  createSessionRequest  true  "Session details"
// @Success      201  {object}  models.AuditSession
// @Failure      400  {object}  map[string]interface{}  "Validation failure"
// @Failure      409  {object}  map[string]interface{}  "Warehouse already frozen"
// @Router       /api/v1/audit/sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	session, err := h.engine.CreateSession(c.Request.Context(), act, services.CreateSessionInput{
		WarehouseID:     req.WarehouseID,
		Title:           req.Title,
		Description:     req.Description,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		FreezeConfirmed: req.FreezeConfirmed,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// @Summary      List audit sessions
// @Description  Lists audit sessions, filterable by warehouse and status. Requires audit:read scope.
// @Tags         Audit Sessions
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  query  string  false  "Filter by warehouse UUID"
// @Param        status        query  string  false  "Filter by status (open, in_progress, reconciliation, completed, cancelled)"
// @Param        page          query  int     false  "Page number (default 1)"
// @Param        per_page      query  int     false  "Items per page, max 200 (default 50)"
// @Success      200  {object}  map[string]interface{}  "sessions: []models.AuditSession, pagination: map"
// @Router       /api/v1/audit/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	var filters repositories.SessionFilters
	if raw := c.Query("warehouse_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid warehouse_id: must be a UUID"})
			return
		}
		filters.WarehouseID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status := models.SessionStatus(raw)
		filters.Status = &status
	}

	page, perPage, offset := pagination(c)
	sessions, total, err := h.sessions.List(c.Request.Context(), filters, perPage, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// @Summary      Get audit session
// @Tags         Audit Sessions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  models.AuditSession
// @Failure      404  {object}  map[string]interface{}  "Session not found"
// @Router       /api/v1/audit/sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := h.sessions.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve session"})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, session)
}

// @Summary      Begin counting
// @Description  Moves a session from open to in_progress and snapshots the warehouse inventory into pending verification rows. Requires audit:finalize scope.
// @Tags         Audit Sessions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  models.AuditSession
// @Failure      422  {object}  map[string]interface{}  "Session not open"
// @Router       /api/v1/audit/sessions/{id}/begin [post]
func (h *Handlers) BeginCounting(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := h.engine.BeginCounting(c.Request.Context(), act, id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type extendRequest struct {
	EndDate time.Time `json:"end_date" binding:"required"`
}

// @Summary      Extend session end date
// @Description  Pushes a running session's end date further out. Requires audit:finalize scope.
// @Tags         Audit Sessions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "Session ID"
// @Param        body  body  extendRequest  true  "New end date"
// @Success      200  {object}  models.AuditSession
// @Router       /api/v1/audit/sessions/{id}/extend [post]
func (h *Handlers) ExtendEndDate(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	session, err := h.engine.ExtendEndDate(c.Request.Context(), act, id, req.EndDate)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// @Summary      Cancel audit session
// @Description  Aborts a non-terminal session and releases the warehouse freeze. Counts and log entries are kept for review. Requires audit:finalize scope.
// @Tags         Audit Sessions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "Session ID"
// @Param        body  body  cancelRequest  true  "Cancellation reason"
// @Success      200  {object}  models.AuditSession
// @Router       /api/v1/audit/sessions/{id}/cancel [post]
func (h *Handlers) Cancel(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	session, err := h.engine.Cancel(c.Request.Context(), act, id, req.Reason)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// @Summary      Start reconciliation
// @Description  Moves a fully-counted session from in_progress to reconciliation, classifying every verification as complete, short, or excess. Requires audit:finalize scope.
// @Tags         Audit Sessions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  models.AuditSession
// @Failure      422  {object}  map[string]interface{}  "Uncounted verifications remain"
// @Router       /api/v1/audit/sessions/{id}/start-reconciliation [post]
func (h *Handlers) StartReconciliation(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := h.engine.StartReconciliation(c.Request.Context(), act, id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// @Summary      Complete audit session
// @Description  Closes a reconciled session and releases the warehouse freeze. Fails with the blocking counts when uncounted rows, unresolved discrepancies, or pending ledger transactions remain. Requires audit:finalize scope.
// @Tags         Audit Sessions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  models.AuditSession
// @Failure      422  {object}  map[string]interface{}  "Completion gate not satisfied; includes pending_count, discrepancy_count, pending_ledger"
// @Router       /api/v1/audit/sessions/{id}/complete [post]
func (h *Handlers) Complete(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := h.engine.Complete(c.Request.Context(), act, id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// @Summary      Completion gate status
// @Description  Reports whether the session can complete and what blocks it, without changing anything.
// @Tags         Audit Sessions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  services.CompletionStatus
// @Router       /api/v1/audit/sessions/{id}/can-complete [get]
func (h *Handlers) CanComplete(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	status, err := h.engine.CanComplete(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// @Summary      Pending ledger transactions
// @Description  Lists the unsettled ledger transactions touching the session's frozen warehouse, grouped by type. These block completion until settled or cancelled.
// @Tags         Audit Sessions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  models.PendingTransactions
// @Router       /api/v1/audit/sessions/{id}/pending-transactions [get]
func (h *Handlers) PendingTransactions(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := h.sessions.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve session"})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	pending, err := h.ledger.ListPendingByWarehouse(c.Request.Context(), session.WarehouseID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pending transactions"})
		return
	}
	c.JSON(http.StatusOK, pending)
}

type settleRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

// @Summary      Settle ledger transaction
// @Description  Resolves a pending ledger transaction to completed or cancelled. Completion applies the stock movement; either outcome stops the transaction from blocking session completion. Requires ledger:write scope.
// @Tags         Ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "Transaction ID"
// @Param        body  body  settleRequest  true  "Settlement outcome (completed or cancelled)"
// @Success      200  {object}  models.LedgerTransaction
// @Failure      409  {object}  map[string]interface{}  "Transaction already settled"
// @Router       /api/v1/audit/transactions/{id}/settle [post]
func (h *Handlers) SettleTransaction(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	txn, err := h.engine.SettleTransaction(c.Request.Context(), act, id, models.TransactionStatus(req.Outcome))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// ---------------------------------------------------------------------------
// Verifications
// ---------------------------------------------------------------------------

// @Summary      List verifications
// @Description  Lists the verification rows of a session, filterable by status, item, and whether a physical count exists.
// @Tags         Verifications
// @Security     Bearer
// @Produce      json
// @Param        id        path   string  true   "Session ID"
// @Param        status    query  string  false  "Filter by status (pending, confirmed, complete, short, excess)"
// @Param        item_id   query  string  false  "Filter by item UUID"
// @Param        counted   query  bool    false  "Filter by presence of a physical count"
// @Param        page      query  int     false  "Page number"
// @Param        per_page  query  int     false  "Items per page"
// @Success      200  {object}  map[string]interface{}  "verifications: []models.Verification, pagination: map"
// @Router       /api/v1/audit/sessions/{id}/verifications [get]
func (h *Handlers) ListVerifications(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var filters repositories.VerificationFilters
	if raw := c.Query("status"); raw != "" {
		status := models.VerificationStatus(raw)
		filters.Status = &status
	}
	if raw := c.Query("item_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item_id: must be a UUID"})
			return
		}
		filters.ItemID = &id
	}
	if raw := c.Query("counted"); raw != "" {
		counted, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid counted: must be a boolean"})
			return
		}
		filters.Counted = &counted
	}

	page, perPage, offset := pagination(c)
	verifications, total, err := h.verifications.ListBySession(c.Request.Context(), sessionID, filters, perPage, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list verifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verifications": verifications,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

type confirmRequest struct {
	PhysicalQuantity *int64  `json:"physical_quantity" binding:"required"`
	BatchNumber      *string `json:"batch_number"`
	Notes            *string `json:"notes"`
}

// @Summary      Confirm physical count
// @Description  Records the physically counted quantity on a verification row. A pending row accepts any counter; a confirmed row accepts only its original confirmer. Requires audit:confirm scope.
// @Tags         Verifications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string          true  "Verification ID"
// @Param        body  body  confirmRequest  true  "Physical quantity and optional notes"
// @Success      200  {object}  models.Verification
// @Failure      403  {object}  map[string]interface{}  "Another user's confirmed count; use an override"
// @Failure      409  {object}  map[string]interface{}  "Row locked or changed concurrently"
// @Router       /api/v1/audit/verifications/{id}/confirm [post]
func (h *Handlers) Confirm(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	verification, err := h.engine.Confirm(c.Request.Context(), act, id, *req.PhysicalQuantity, req.BatchNumber, req.Notes)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

type overrideRequest struct {
	PhysicalQuantity *int64  `json:"physical_quantity" binding:"required"`
	BatchNumber      *string `json:"batch_number"`
	OverrideNotes    string  `json:"override_notes" binding:"required"`
}

// @Summary      Override confirmed count
// @Description  Replaces the physical count on a confirmed verification. The original confirmation provenance stays on the row. Requires audit:override scope and an explanatory note.
// @Tags         Verifications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string           true  "Verification ID"
// @Param        body  body  overrideRequest  true  "Physical quantity and mandatory note"
// @Success      200  {object}  models.Verification
// @Router       /api/v1/audit/verifications/{id}/override [post]
func (h *Handlers) Override(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	verification, err := h.engine.Override(c.Request.Context(), act, id, *req.PhysicalQuantity, req.BatchNumber, req.OverrideNotes)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

// @Summary      Lock verification
// @Description  Pins a verification so counters cannot edit it until a manager unlocks it. Requires audit:override scope.
// @Tags         Verifications
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Verification ID"
// @Success      204  "Locked"
// @Failure      409  {object}  map[string]interface{}  "Already locked"
// @Router       /api/v1/audit/verifications/{id}/lock [post]
func (h *Handlers) Lock(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.Lock(c.Request.Context(), act, id); err != nil {
		writeEngineError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Unlock verification
// @Description  Releases a locked verification. Requires audit:override scope.
// @Tags         Verifications
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Verification ID"
// @Success      204  "Unlocked"
// @Failure      409  {object}  map[string]interface{}  "Not locked"
// @Router       /api/v1/audit/verifications/{id}/unlock [post]
func (h *Handlers) Unlock(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.Unlock(c.Request.Context(), act, id); err != nil {
		writeEngineError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Recon corrective actions
// ---------------------------------------------------------------------------

type reconRequest struct {
	VerificationID uuid.UUID `json:"verification_id" binding:"required"`
	Quantity       int64     `json:"quantity" binding:"required"`
	Reason         string    `json:"reason" binding:"required"`
}

// @Summary      Recon check-in
// @Description  Books found stock in against an excess verification, raising the system quantity toward the physical count. Creates a completed ledger transaction referencing the session code. Requires audit:reconcile scope.
// @Tags         Reconciliation
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string        true  "Session ID"
// @Param        body  body  reconRequest  true  "Verification, quantity, and reason"
// @Success      200  {object}  models.Verification
// @Failure      422  {object}  map[string]interface{}  "Wrong direction or session not in reconciliation"
// @Router       /api/v1/audit/sessions/{id}/recon-checkin [post]
func (h *Handlers) ReconCheckIn(c *gin.Context) {
	h.recon(c, h.engine.ReconCheckIn)
}

// @Summary      Recon check-out
// @Description  Books lost stock out against a short verification, lowering the system quantity toward the physical count. Requires audit:reconcile scope.
// @Tags         Reconciliation
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string        true  "Session ID"
// @Param        body  body  reconRequest  true  "Verification, quantity, and reason"
// @Success      200  {object}  models.Verification
// @Router       /api/v1/audit/sessions/{id}/recon-checkout [post]
func (h *Handlers) ReconCheckOut(c *gin.Context) {
	h.recon(c, h.engine.ReconCheckOut)
}

func (h *Handlers) recon(c *gin.Context, apply func(ctx context.Context, act services.Actor, verificationID uuid.UUID, quantity int64, reason string) (*models.Verification, error)) {
	act, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req reconRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	// The verification must belong to the session named in the path; a mismatch is
	// a client error, not a lookup miss.
	verification, err := h.verifications.GetByID(c.Request.Context(), req.VerificationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve verification"})
		return
	}
	if verification == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Verification not found"})
		return
	}
	if verification.SessionID != sessionID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification does not belong to this session"})
		return
	}

	updated, err := apply(c.Request.Context(), act, req.VerificationID, req.Quantity, req.Reason)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ---------------------------------------------------------------------------
// Action log
// ---------------------------------------------------------------------------

// @Summary      Session action log
// @Description  Lists the append-only action log of a session, filterable by actor and action type.
// @Tags         Audit Sessions
// @Security     Bearer
// @Produce      json
// @Param        id            path   string  true   "Session ID"
// @Param        performed_by  query  string  false  "Filter by actor UUID"
// @Param        action        query  string  false  "Filter by action type"
// @Param        page          query  int     false  "Page number"
// @Param        per_page      query  int     false  "Items per page"
// @Success      200  {object}  map[string]interface{}  "logs: []models.ActionLogEntry, pagination: map"
// @Router       /api/v1/audit/sessions/{id}/logs [get]
func (h *Handlers) ListLogs(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var filters repositories.ActionLogFilters
	if raw := c.Query("performed_by"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid performed_by: must be a UUID"})
			return
		}
		filters.PerformedBy = &id
	}
	if raw := c.Query("action"); raw != "" {
		action := models.ActionType(raw)
		filters.ActionType = &action
	}

	page, perPage, offset := pagination(c)
	logs, total, err := h.actionLog.ListBySession(c.Request.Context(), sessionID, filters, perPage, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list action log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs": logs,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}
