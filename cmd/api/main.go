package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pocketledger/internal/config"
	"pocketledger/internal/database"
	"pocketledger/internal/events"
	"pocketledger/internal/logger"
	"pocketledger/internal/server"
	"pocketledger/internal/validator"
)

// @title           PocketLedger API
// @version         1.0
// @description     PocketLedger tracks personal expenses, budgets and recurring expenses that materialize into dated entries.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.PipelineAPIKey == "" {
		log.Warn("PIPELINE_API_KEY is not set, pipeline routes will answer 503")
	}

	dbConfig, err := database.NewConfig(appConfig)
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	publisher, err := events.NewPublisher(appConfig.AMQPURL, appConfig.AMQPExchange, appConfig.AMQPQueue)
	if err != nil {
		return fmt.Errorf("failed to connect event publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warnf("event publisher close error: %v", err)
		}
	}()

	validator.Register()

	stop := make(chan struct{})
	defer close(stop)

	svc := server.NewServices(dbManager.DB(), publisher, appConfig)
	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           server.NewRouter(appConfig, svc, stop),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting PocketLedger API on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
