package audits

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockaudit/stockaudit-backend/internal/services"
)

// writeEngineError maps the engine's typed error taxonomy onto HTTP responses.
// Anything outside the taxonomy is an internal error and gets logged server-side
// without leaking detail to the client.
func writeEngineError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var notFoundErr *services.NotFoundError
	var authzErr *services.AuthorizationError
	var conflictErr *services.ConflictError
	var preconditionErr *services.PreconditionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &authzErr):
		c.JSON(http.StatusForbidden, gin.H{"error": authzErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": conflictErr.Error()})
	case errors.As(err, &preconditionErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":             preconditionErr.Error(),
			"pending_count":     preconditionErr.PendingCount,
			"discrepancy_count": preconditionErr.DiscrepancyCount,
			"pending_ledger":    preconditionErr.PendingLedger,
		})
	default:
		slog.Error("audit operation failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
