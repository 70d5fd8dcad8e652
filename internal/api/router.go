// Package api wires together all HTTP routes for the CredVault backend.
//
// Route grouping philosophy:
//   - /health, /ready, and /version are unauthenticated so orchestration
//     probes and deploy tooling never need credentials.
//   - /api/auth login endpoints are public but sit behind a strict rate
//     limiter to slow brute-force attempts.
//   - Every other /api route requires a bearer token; the audit log is
//     additionally gated to administrators.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/api/auditlog"
	"github.com/credvault/credvault/internal/api/authapi"
	"github.com/credvault/credvault/internal/api/credentials"
	"github.com/credvault/credvault/internal/api/dashboard"
	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/internal/db/repositories"
	"github.com/credvault/credvault/internal/middleware"
)

// Version is the reported service version, overridable at build time via
// -ldflags "-X github.com/credvault/credvault/internal/api.Version=...".
var Version = "0.1.0"

// BackgroundServices holds resources the router starts that must be stopped
// during graceful shutdown. The caller (cmd/server) invokes Shutdown after
// the HTTP server has drained.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops the rate limiter cleanup goroutines
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("background services stopped")
}

// NewRouter creates and configures the Gin router. The credential manager is
// injected because its provisioner and event bus are wired by the caller;
// read-side repositories are constructed here.
func NewRouter(cfg *config.Config, db *sqlx.DB, manager credentials.Manager) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	memberRepo := repositories.NewMemberRepository(db)
	grantRepo := repositories.NewGrantRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	teamRepo := repositories.NewTeamRepository(db)
	databaseRepo := repositories.NewDatabaseRepository(db)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, cfg))
	router.GET("/version", versionHandler())

	loginHandlers := authapi.NewHandlers(cfg, memberRepo, grantRepo)
	credHandlers := credentials.NewHandlers(manager)
	auditHandlers := auditlog.NewHandlers(auditRepo)
	dashboardHandlers := dashboard.NewHandlers(teamRepo, databaseRepo, memberRepo)

	loginRateLimiter := middleware.NewRateLimiter(loginRateLimitConfig(cfg))
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())

	apiGroup := router.Group("/api")
	{
		// Public login endpoints, strictly rate limited
		authGroup := apiGroup.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(loginRateLimiter))
		{
			authGroup.POST("/login", loginHandlers.LoginHandler())
			authGroup.POST("/login-google", loginHandlers.GoogleLoginHandler())
		}

		// Bearer-gated endpoints
		authed := apiGroup.Group("")
		authed.Use(middleware.AuthMiddleware())
		authed.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		{
			authed.GET("/db-credential", credHandlers.ListHandler())
			authed.POST("/db-credential", credHandlers.CreateHandler())
			authed.DELETE("/db-credential/:id", credHandlers.DeleteHandler())
			authed.POST("/db-credential/recreate/:id", credHandlers.RecreateHandler())

			authed.GET("/dashboard-stats", dashboardHandlers.StatsHandler())

			authed.GET("/audit-log",
				middleware.RequireRole(auth.RoleAdmin),
				auditHandlers.ListHandler())
		}
	}

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{loginRateLimiter, generalRateLimiter},
	}

	return router, bg
}

// loginRateLimitConfig derives the login limiter from config, falling back
// to the built-in strict limits when rate limiting is not configured.
func loginRateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled || rl.RequestsPerMinute <= 0 {
		return middleware.LoginRateLimitConfig()
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = rl.RequestsPerMinute
	}
	return middleware.RateLimitConfig{
		RequestsPerMinute: rl.RequestsPerMinute,
		BurstSize:         burst,
		CleanupInterval:   5 * time.Minute,
	}
}

// healthCheckHandler reports liveness: the process is up and the metadata
// database answers a ping.
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
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

// readinessHandler reports readiness for traffic. Provisioning mode is
// reported but never fails the probe: without a master key the service
// still serves reads and records pending credentials.
func readinessHandler(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if cfg.Provisioner.ProvisioningEnabled() {
			checks["provisioner"] = "enabled"
		} else {
			checks["provisioner"] = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the service version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured request log line per request. Output
// format (JSON or text) follows the global slog handler configured by
// telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

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
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS for the configured origins
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

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
