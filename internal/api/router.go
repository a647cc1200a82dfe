// Package api wires the HTTP surface: middleware chain, route registration, and
// the health/readiness/version endpoints.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/api/admin"
	"github.com/stockaudit/stockaudit-backend/internal/api/audits"
	"github.com/stockaudit/stockaudit-backend/internal/audit"
	"github.com/stockaudit/stockaudit-backend/internal/auth"
	"github.com/stockaudit/stockaudit-backend/internal/config"
	"github.com/stockaudit/stockaudit-backend/internal/db/repositories"
	"github.com/stockaudit/stockaudit-backend/internal/middleware"
	"github.com/stockaudit/stockaudit-backend/internal/services"
)

// BackgroundServices holds references to background goroutines and resources that
// must outlive request handling. The caller owns graceful shutdown, calling
// Shutdown() after the HTTP server has stopped accepting connections.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	auditShipper audit.Shipper
}

// Shutdown stops the rate limiter cleanup goroutines and flushes the audit shipper
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
}

// buildAuditShipper converts the audit section of the config into a MultiShipper.
// Returns nil when audit shipping is disabled or no destination is configured.
func buildAuditShipper(cfg *config.Config) (audit.Shipper, error) {
	if !cfg.Audit.Enabled || len(cfg.Audit.Shippers) == 0 {
		return nil, nil
	}

	shipperConfigs := make([]audit.ShipperConfig, 0, len(cfg.Audit.Shippers))
	for _, sc := range cfg.Audit.Shippers {
		converted := audit.ShipperConfig{
			Enabled: sc.Enabled,
			Type:    sc.Type,
		}
		if sc.Webhook != nil {
			converted.Webhook = &audit.WebhookConfig{
				URL:           sc.Webhook.URL,
				Headers:       sc.Webhook.Headers,
				Timeout:       time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     sc.Webhook.BatchSize,
				FlushInterval: time.Duration(sc.Webhook.FlushInterval) * time.Second,
			}
		}
		if sc.File != nil {
			converted.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		shipperConfigs = append(shipperConfigs, converted)
	}

	return audit.NewMultiShipper(shipperConfigs)
}

// NewRouter creates the gin engine with all routes and middleware configured
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	// The repositories and the engine speak sqlx; cmd/server owns the raw *sql.DB
	// for migrations and pooling.
	sqlxDB := sqlx.NewDb(db, "postgres")

	userRepo := repositories.NewUserRepository(sqlxDB)
	engine := services.NewEngine(sqlxDB, slog.Default())

	auditHandlers := audits.NewHandlers(engine, sqlxDB)
	authHandlers := admin.NewAuthHandlers(cfg, sqlxDB)
	userHandlers := admin.NewUserHandlers(cfg, sqlxDB)

	shipper, err := buildAuditShipper(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build audit shipper: %w", err)
	}

	// Separate limiters per traffic class. Login gets the tightest budget since
	// it is the brute-force target.
	defaultLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	authLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	writeLimiter := middleware.NewRateLimiter(middleware.WriteRateLimitConfig())

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db))
	router.GET("/version", versionHandler())

	api := router.Group("/api/v1")

	// Authentication endpoints. Login is public; everything else resolves the
	// user from the bearer token on each request.
	authGroup := api.Group("/auth")
	authGroup.POST("/login", middleware.RateLimitMiddleware(authLimiter), authHandlers.LoginHandler())
	authGroup.GET("/me", middleware.AuthMiddleware(userRepo), authHandlers.MeHandler())
	authGroup.PUT("/password", middleware.AuthMiddleware(userRepo), authHandlers.ChangePasswordHandler())

	// Audit workflow endpoints. The middleware order is rate limit, then auth,
	// then per-route scope checks, then audit event shipping.
	auditGroup := api.Group("/audit",
		middleware.RateLimitMiddleware(defaultLimiter),
		middleware.AuthMiddleware(userRepo),
		middleware.AuditEventMiddleware(shipper, &cfg.Audit),
	)

	sessions := auditGroup.Group("/sessions")
	sessions.POST("", middleware.RateLimitMiddleware(writeLimiter), middleware.RequireScope(auth.ScopeAuditFinalize), auditHandlers.CreateSession)
	sessions.GET("", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.ListSessions)
	sessions.GET("/:id", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.GetSession)
	sessions.POST("/:id/begin", middleware.RequireScope(auth.ScopeAuditFinalize), auditHandlers.BeginCounting)
	sessions.POST("/:id/extend", middleware.RequireScope(auth.ScopeAuditFinalize), auditHandlers.ExtendEndDate)
	sessions.POST("/:id/cancel", middleware.RequireScope(auth.ScopeAuditFinalize), auditHandlers.Cancel)
	sessions.POST("/:id/start-reconciliation", middleware.RequireScope(auth.ScopeAuditFinalize), auditHandlers.StartReconciliation)
	sessions.POST("/:id/complete", middleware.RequireScope(auth.ScopeAuditFinalize), auditHandlers.Complete)
	sessions.GET("/:id/verifications", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.ListVerifications)
	sessions.GET("/:id/can-complete", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.CanComplete)
	sessions.GET("/:id/pending-transactions", middleware.RequireScope(auth.ScopeLedgerRead), auditHandlers.PendingTransactions)
	sessions.GET("/:id/logs", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.ListLogs)
	sessions.POST("/:id/recon-checkin", middleware.RequireScope(auth.ScopeAuditReconcile), auditHandlers.ReconCheckIn)
	sessions.POST("/:id/recon-checkout", middleware.RequireScope(auth.ScopeAuditReconcile), auditHandlers.ReconCheckOut)

	verifications := auditGroup.Group("/verifications")
	verifications.POST("/:id/confirm", middleware.RequireScope(auth.ScopeAuditConfirm), auditHandlers.Confirm)
	verifications.POST("/:id/override", middleware.RequireScope(auth.ScopeAuditOverride), auditHandlers.Override)
	verifications.POST("/:id/lock", middleware.RequireScope(auth.ScopeAuditOverride), auditHandlers.Lock)
	verifications.POST("/:id/unlock", middleware.RequireScope(auth.ScopeAuditOverride), auditHandlers.Unlock)

	transactions := auditGroup.Group("/transactions")
	transactions.POST("/:id/settle", middleware.RequireScope(auth.ScopeLedgerWrite), auditHandlers.SettleTransaction)

	// User administration
	users := api.Group("/users",
		middleware.RateLimitMiddleware(defaultLimiter),
		middleware.AuthMiddleware(userRepo),
	)
	users.GET("", middleware.RequireScope(auth.ScopeUsersRead), userHandlers.ListUsersHandler())
	users.GET("/:id", middleware.RequireScope(auth.ScopeUsersRead), userHandlers.GetUserHandler())
	users.POST("", middleware.RequireScope(auth.ScopeUsersWrite), userHandlers.CreateUserHandler())
	users.PUT("/:id", middleware.RequireScope(auth.ScopeUsersWrite), userHandlers.UpdateUserHandler())
	users.PUT("/:id/password", middleware.RequireScope(auth.ScopeUsersWrite), userHandlers.ResetPasswordHandler())

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{defaultLimiter, authLimiter, writeLimiter},
		auditShipper: shipper,
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Liveness probe. Verifies the process is up and the database answers a ping.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy"
// @Router       /health [get]
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
