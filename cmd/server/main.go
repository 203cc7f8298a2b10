// @title materialflow API
// @version 1.0
// @description Material product extraction from supplier PDFs.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"materialflow/internal/bootstrap"
	"materialflow/internal/config"
	"materialflow/internal/handler"
	"materialflow/internal/logging"
	"materialflow/internal/router"
	"materialflow/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	// Initialize handlers
	documentH := handler.NewDocumentHandler(app.Pipeline, app.Results, app.Lifecycle, cfg.Server.MaxUploadMB)
	exportH := handler.NewExportHandler(app.Results)
	feedbackH := handler.NewFeedbackHandler(app.Feedback)
	checks := []handler.HealthCheck{{Name: "database", Ping: app.DB.PingContext}}
	if app.S3 != nil {
		checks = append(checks, handler.HealthCheck{Name: "s3", Ping: app.S3.Ping})
	}
	if app.GCS != nil {
		checks = append(checks, handler.HealthCheck{Name: "gcs", Ping: app.GCS.Ping})
	}
	healthH := handler.NewHealthHandler(checks...)

	r := router.Setup(
		router.Options{AllowedOrigins: cfg.CORS.AllowedOrigins, RequireAuth: cfg.Server.RequireAPIAuth},
		app.Tokens, documentH, exportH, feedbackH, healthH, logger,
	)

	var wg sync.WaitGroup
	if cfg.Intake.Enabled {
		source := app.Inbox()
		if source == nil {
			return errors.New("intake.enabled requires s3.bucket")
		}
		worker := service.NewIntakeWorker(source, app.Pipeline, app.IntakeConfig(), logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Start(ctx)
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: shutdown failed", zap.Error(err))
	}
	if err := documentH.Wait(shutdownCtx); err != nil {
		logger.Warn("server: background submissions still running", zap.Error(err))
	}
	wg.Wait()
	return nil
}
