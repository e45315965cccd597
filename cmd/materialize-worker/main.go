package main

import (
	"context"
	"time"

	"cashflow/internal/cache"
	"cashflow/internal/cli"
	"cashflow/internal/config"
	"cashflow/internal/log"
	"cashflow/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	bootstrap := config.Load()
	logger := cli.SetupLogger(bootstrap.LogLevel, bootstrap.LogFormat)
	logger.Info("Starting materialize-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	exporter, err := cli.NewExporter(context.Background(), cfg)
	if err != nil {
		logger.Warn("Export disabled", log.FieldError, err, "backend", cfg.ExportBackend)
		exporter = nil
	}

	svc := cli.NewServices(logger, cfg, repo, exporter)

	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	cacheManager.Register(svc.Cache)
	cacheManager.StartCleanup(cfg.CacheTTL)

	w := worker.NewMaterializeWorker(svc.Projections, svc.Schedules, cfg.ProjectionHorizon, cfg.ProjectionResolution, logger)

	amqpClient := cli.InitAMQP(logger, cfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		cacheManager.Stop()
		if amqpClient != nil {
			amqpClient.Close()
		}
	})

	logger.Info("Materialize worker configured",
		"interval", cfg.WorkerInterval,
		"horizon", cfg.ProjectionHorizon,
		"resolution", cfg.ProjectionResolution,
		log.FieldConcurrency, cfg.WorkerConcurrency,
		"export", cfg.ExportBackend,
		"sqlite_db", cfg.SQLiteDBPath)

	go w.RunPeriodic(ctx, cfg.WorkerInterval)

	if amqpClient != nil {
		go func() {
			if err := amqpClient.ConsumeMaterialize(ctx, w.HandleMessage); err != nil && ctx.Err() == nil {
				logger.Error("AMQP consumer stopped", log.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
}
