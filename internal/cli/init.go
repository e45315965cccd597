// Package cli provides common initialization shared by the cashflow command
// and the materialize worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cashflow/internal/amqp"
	"cashflow/internal/cache"
	"cashflow/internal/config"
	"cashflow/internal/log"
	"cashflow/internal/projection"
	"cashflow/internal/services"
	"cashflow/internal/sheets"
	"cashflow/internal/sheets/google"
	"cashflow/internal/sheets/memory"
	"cashflow/internal/storage"
)

// SetupLogger builds the application logger from LOG_LEVEL/LOG_FORMAT values
// and sets it as the slog default.
func SetupLogger(level, format string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Format = format
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads and validates configuration from the environment.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// NewExporter returns the projection writer selected by EXPORT_BACKEND, or
// nil when export is disabled.
func NewExporter(ctx context.Context, cfg *config.Config) (sheets.ProjectionWriter, error) {
	switch cfg.ExportBackend {
	case config.ExportMemory:
		return memory.New(), nil
	case config.ExportSheets:
		client, err := google.New(ctx, google.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("init google sheets exporter: %w", err)
		}
		return client, nil
	default:
		return nil, nil
	}
}

// InitAMQP connects to the broker when AMQP_URL is set. A failed connection
// is logged and yields nil so callers can continue without messaging.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	amqpLogger := logger.WithComponent(log.ComponentAMQP)
	if cfg.AMQPURL == "" {
		amqpLogger.Info("AMQP disabled")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		amqpLogger.Warn("Failed to initialize AMQP client, continuing without messaging", log.FieldError, err)
		return nil
	}
	amqpLogger.Info("AMQP client initialized",
		"exchange", cfg.AMQPExchange,
		log.FieldQueue, cfg.AMQPQueue)
	return client
}

// Services bundles the projection stack built on one repository.
type Services struct {
	Projections *services.ProjectionService
	Schedules   *services.ScheduleService
	Cache       *cache.LRUCache[*projection.Result]
}

// NewServices wires the engine, result cache and optional exporter onto repo.
func NewServices(logger *log.Logger, cfg *config.Config, repo *storage.SQLiteRepository, exporter sheets.ProjectionWriter) *Services {
	results := cache.NewLRUCache[*projection.Result](cfg.CacheSize, cfg.CacheTTL)
	opts := []services.ProjectionOption{
		services.WithResultCache(results),
		services.WithLogger(logger),
		services.WithAccountConcurrency(cfg.WorkerConcurrency),
	}
	if exporter != nil {
		opts = append(opts, services.WithExporter(exporter))
	}
	return &Services{
		Projections: services.NewProjectionService(repo, repo, projection.NewEngine(cfg.WorkerConcurrency), opts...),
		Schedules:   services.NewScheduleService(repo, logger),
		Cache:       results,
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
