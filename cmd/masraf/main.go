package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"masraf/internal/amqp"
	"masraf/internal/cli"
	apphttp "masraf/internal/http"
	"masraf/internal/live"
	"masraf/internal/log"
	"masraf/internal/services"
	"masraf/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.OpenBackend(cfg, logger)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	// AMQP is optional: without a broker every mutation is still served,
	// only the audit trail stays empty.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event trail", "error", err)
		} else {
			publisher = client
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	sessions := session.NewManager(result.Store, result.Store, result.Store, cfg.SessionTTL, cfg.DurableTTL)
	hub := live.NewHub(result.Store)
	records := services.NewRecordService(result.Store, hub, publisher)
	defer func() {
		if err := records.Close(); err != nil {
			logger.Error("Record service close failed", "error", err)
		}
	}()

	secureCookie := os.Getenv("SECURE_COOKIES") != "false"
	srv := apphttp.NewServer(":"+cfg.Port, sessions, records, result.Store, hub, secureCookie)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 0 // the event stream holds its response open
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop := cli.SignalContext()
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("Starting masraf server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
