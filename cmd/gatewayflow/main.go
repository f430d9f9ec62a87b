// =============================================================================
// Gatewayflow main entry point
// =============================================================================
// Usage:
//
//	gatewayflow serve                       # start the gateway
//	gatewayflow serve --config config.yaml  # with a specific config file
//	gatewayflow version                     # print build metadata
//	gatewayflow health                      # liveness probe
//	gatewayflow migrate up                  # apply pending migrations
//	gatewayflow migrate down                # roll back the last migration
//	gatewayflow migrate status              # show migration status
// =============================================================================

// @title Gatewayflow API
// @version 1.0.0
// @description Gatewayflow is an LLM API gateway providing BYOK credential
// @description resolution, request coalescing, semantic caching, multi-provider
// @description routing, and agent-run ingestion for anomaly detection and cost
// @description attribution.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Project API key, presented as "Bearer <key>"

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gatewayflow/gatewayflow/config"
	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/ingest"
	"github.com/gatewayflow/gatewayflow/internal/database"
	"github.com/gatewayflow/gatewayflow/internal/telemetry"
	"github.com/gatewayflow/gatewayflow/vectorstore"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// serve
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting gatewayflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	dbPool, err := openDatabase(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := autoMigrateSchema(dbPool.DB(), cfg, logger); err != nil {
		logger.Fatal("failed to auto-migrate schema", zap.Error(err))
	}

	srv := NewServer(cfg, *configPath, logger, otelProviders, dbPool)

	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()

	logger.Info("gatewayflow stopped")
}

// autoMigrateSchema keeps the relational store's tables current across
// every domain package with its own GORM models, rather than requiring
// a pre-applied migration before first boot in development. Production
// deployments still run "gatewayflow migrate up" against the versioned
// migration files (migrate.go) ahead of a rollout; AutoMigrate only adds
// columns/tables, it never destroys data.
func autoMigrateSchema(db *gorm.DB, cfg *config.Config, logger *zap.Logger) error {
	if err := credential.AutoMigrate(db); err != nil {
		return fmt.Errorf("credential schema: %w", err)
	}
	if err := ingest.AutoMigrate(db); err != nil {
		return fmt.Errorf("ingest schema: %w", err)
	}
	if cfg.VectorDB.Enabled {
		if err := vectorstore.NewPgVectorStore(db).Migrate(context.Background()); err != nil {
			return fmt.Errorf("vector store schema: %w", err)
		}
	}
	logger.Info("schema auto-migration complete")
	return nil
}

// =============================================================================
// health
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// version and usage
// =============================================================================

func printVersion() {
	fmt.Printf("gatewayflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`gatewayflow - LLM API gateway

Usage:
  gatewayflow <command> [options]

Commands:
  serve     Start the gateway server
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status
  migrate version   Show current migration version
  migrate goto <v>  Migrate to a specific version
  migrate force <v> Force set migration version
  migrate reset     Rollback all migrations

Examples:
  gatewayflow serve
  gatewayflow serve --config /etc/gatewayflow/config.yaml
  gatewayflow migrate up
  gatewayflow migrate status
  gatewayflow health --addr http://localhost:8080
  gatewayflow version`)
}

// =============================================================================
// logging and database setup
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}

// openDatabase opens the Postgres connection backing the relational
// store (projects, provider_keys, api_keys, agent_debug_*) and wraps it
// in a PoolManager so connection limits, idle health-checking, and
// transaction retry are all handled the same way as the teacher's other
// connected stores. Gatewayflow targets Postgres only (spec §6), unlike
// the teacher's multi-driver dispatch.
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*database.PoolManager, error) {
	db, err := gorm.Open(postgres.Open(dbCfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	if dbCfg.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
	}
	if dbCfg.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = dbCfg.MaxIdleConns
	}
	if dbCfg.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}

	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init database pool: %w", err)
	}

	logger.Info("database connected", zap.String("host", dbCfg.Host), zap.String("name", dbCfg.Name))
	return pool, nil
}
