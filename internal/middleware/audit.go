// audit.go provides Gin middleware that ships authenticated write operations to the
// configured external audit destinations. The database action log written by the
// audit engine remains the system of record; this middleware feeds the out-of-band
// copy consumed by a SIEM or log aggregator.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockaudit/stockaudit-backend/internal/audit"
	"github.com/stockaudit/stockaudit-backend/internal/config"
	"github.com/stockaudit/stockaudit-backend/internal/safego"
)

// AuditEventMiddleware ships request-level audit events to external destinations.
// By default only successful write operations are shipped; reads and failures are
// opt-in via config.
func AuditEventMiddleware(shipper audit.Shipper, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if shipper == nil || c.Request.Method == "OPTIONS" {
			return
		}

		logReadOps := auditCfg != nil && auditCfg.LogReadOperations
		logFailedReqs := auditCfg != nil && auditCfg.LogFailedRequests

		isReadOp := c.Request.Method == "GET"
		isFailed := c.Writer.Status() >= 400

		if isReadOp && !logReadOps {
			return
		}
		if isFailed && !logFailedReqs {
			return
		}

		event := &audit.Event{
			Timestamp:  time.Now(),
			Action:     eventAction(c),
			IPAddress:  c.ClientIP(),
			StatusCode: c.Writer.Status(),
		}

		if userID, ok := c.Get("user_id"); ok {
			if id, ok := userID.(string); ok {
				event.UserID = id
			}
		}
		if id := c.Param("id"); id != "" {
			switch {
			case strings.Contains(c.FullPath(), "/audit/sessions/"):
				event.SessionID = id
			case strings.Contains(c.FullPath(), "/audit/verifications/"):
				event.VerificationID = id
			}
		}

		metadata := make(map[string]interface{})
		if authMethod, ok := c.Get("auth_method"); ok {
			metadata["auth_method"] = authMethod
		}
		if requestID, ok := c.Get(RequestIDKey); ok {
			metadata["request_id"] = requestID
		}
		event.Metadata = metadata

		// Fire-and-forget: shipping must never add latency to the request path.
		// The 5-second timeout prevents leaked goroutines when a webhook
		// destination is unreachable.
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shipper.Ship(ctx, event); err != nil {
				slog.Warn("failed to ship audit event", "action", event.Action, "error", err)
			}
		})
	}
}

// eventAction names the event from the matched route, falling back to
// "METHOD /path" for routes without a workflow-specific name
func eventAction(c *gin.Context) string {
	path := c.FullPath()
	method := c.Request.Method

	switch {
	case strings.HasSuffix(path, "/login"):
		return "auth.login"
	case strings.HasSuffix(path, "/confirm"):
		return "verification.confirm"
	case strings.HasSuffix(path, "/override"):
		return "verification.override"
	case strings.HasSuffix(path, "/lock"):
		return "verification.lock"
	case strings.HasSuffix(path, "/unlock"):
		return "verification.unlock"
	case strings.HasSuffix(path, "/recon-checkin"):
		return "session.recon_checkin"
	case strings.HasSuffix(path, "/recon-checkout"):
		return "session.recon_checkout"
	case strings.HasSuffix(path, "/settle"):
		return "ledger.settle"
	case strings.HasSuffix(path, "/start-reconciliation"):
		return "session.start_reconciliation"
	case strings.HasSuffix(path, "/complete"):
		return "session.complete"
	case strings.HasSuffix(path, "/cancel"):
		return "session.cancel"
	case strings.HasSuffix(path, "/audit/sessions") && method == "POST":
		return "session.create"
	}

	if path == "" {
		path = c.Request.URL.Path
	}
	return fmt.Sprintf("%s %s", method, path)
}
