package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"masraf/internal/amqp"
	"masraf/internal/cli"
	"masraf/internal/export/sheets"
	"masraf/internal/log"
	"masraf/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	logger.Info("Starting masraf-worker")

	result := cli.OpenBackend(cfg, logger)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	var appender sheets.AuditAppender
	if cfg.GoogleSpreadsheetID != "" {
		client, err := sheets.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets audit export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		appender = sheets.LogAppender{}
		logger.Info("Google Sheets disabled - audit events go to the log only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	eventWorker := worker.NewEventWorker(result.Store, appender)

	// One-shot catch-up for records written while the worker was down.
	if owner := os.Getenv("AUDIT_BACKFILL_OWNER"); owner != "" {
		n, err := eventWorker.Backfill(context.Background(), owner)
		if err != nil {
			logger.Error("Audit backfill failed", "error", err, "owner", owner)
			os.Exit(1)
		}
		logger.Info("Audit backfill complete", "owner", owner, "rows", n)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := amqpClient.ConsumeRecordEvents(ctx, func(event *amqp.RecordEvent) error {
			return eventWorker.HandleEvent(ctx, event)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := group.Wait(); err != nil {
		logger.Error("Event consumption failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
