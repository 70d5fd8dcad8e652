// Package main is the entry point for the CredVault server binary. It
// dispatches three subcommands, serve, migrate, and version, via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command runs auto-migration
// on startup so freshly deployed containers never need a separate migration
// step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/credvault/credvault/internal/api"
	"github.com/credvault/credvault/internal/audit"
	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/internal/credential"
	"github.com/credvault/credvault/internal/db"
	"github.com/credvault/credvault/internal/db/repositories"
	"github.com/credvault/credvault/internal/events"
	"github.com/credvault/credvault/internal/policy"
	"github.com/credvault/credvault/internal/provisioner"
	"github.com/credvault/credvault/internal/safego"
	"github.com/credvault/credvault/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("CredVault v%s\n", api.Version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logging first so all subsequent output uses the
	// configured format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fails in production if CV_JWT_SECRET is not set
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("connected to metadata database",
		"host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(database)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, verr := db.GetMigrationVersion(database); verr == nil {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	sqlxDB := sqlx.NewDb(database, "postgres")
	credentialRepo := repositories.NewCredentialRepository(sqlxDB)
	grantRepo := repositories.NewGrantRepository(sqlxDB)
	memberRepo := repositories.NewMemberRepository(sqlxDB)
	databaseRepo := repositories.NewDatabaseRepository(sqlxDB)
	auditRepo := repositories.NewAuditRepository(sqlxDB)

	// External provisioner. Without MASTER_KEY the service still serves
	// reads and records pending credentials.
	var store *provisioner.MasterStore
	if cfg.Provisioner.ProvisioningEnabled() {
		store, err = provisioner.LoadMasterStore(cfg.Provisioner.CredentialsFile, cfg.Provisioner.MasterKey)
		if err != nil {
			return fmt.Errorf("failed to load provisioner credentials: %w", err)
		}
		slog.Info("external provisioning enabled")
	} else {
		// nil store keeps the provisioner in degraded mode
		slog.Warn("MASTER_KEY not set, external provisioning disabled; new credentials will stay pending")
	}
	prov := provisioner.NewPostgres(store,
		provisioner.WithStatementTimeout(cfg.Provisioner.StatementTimeout),
		provisioner.WithGroups(cfg.Provisioner.ReadWriteGroup, cfg.Provisioner.ReadOnlyGroup),
	)

	// Event bus and audit pipeline
	bus := events.NewBus()
	shipper, err := audit.NewMultiShipper(shipperConfigs(cfg.Audit.Shippers))
	if err != nil {
		return fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	recorder := audit.NewRecorder(grantRepo, auditRepo, shipper)
	recorder.SubscribeAll(bus)

	engine := policy.NewEngine(credentialRepo)
	manager := credential.NewManager(credentialRepo, grantRepo, memberRepo, databaseRepo, engine, prov, bus)

	// Prometheus metrics on a dedicated port, off the public ingress path
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		safego.Go(func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	router, bgServices := api.NewRouter(cfg, sqlxDB, manager)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	safego.Go(func() {
		slog.Info("starting server", "addr", cfg.Server.GetAddress())

		var err error
		if cfg.Security.TLS.Enabled {
			slog.Info("TLS enabled", "cert", cfg.Security.TLS.CertFile)
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Drain in dependency order: stop accepting requests, then let in-flight
	// events reach the audit trail, then stop everything else.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := bus.Shutdown(ctx); err != nil {
		slog.Warn("event bus drain incomplete", "error", err)
	}
	bgServices.Shutdown()
	if err := shipper.Close(); err != nil {
		slog.Warn("audit shipper close failed", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// shipperConfigs converts the viper-mapped audit section into shipper config
func shipperConfigs(shippers []config.AuditShipperConfig) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(shippers))
	for _, sc := range shippers {
		converted := audit.ShipperConfig{
			Enabled: sc.Enabled,
			Type:    sc.Type,
		}
		if sc.Webhook != nil {
			converted.Webhook = &audit.WebhookConfig{
				URL:     sc.Webhook.URL,
				Headers: sc.Webhook.Headers,
				Timeout: time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
			}
		}
		if sc.File != nil {
			converted.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		out = append(out, converted)
	}
	return out
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}
