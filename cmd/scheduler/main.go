package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pocketledger/internal/logger"
	"pocketledger/internal/scheduler"
)

func main() {
	cfg, err := scheduler.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("ENV"))
	logger.SetLevel(cfg.LogLevel)
	log := logger.Named("scheduler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	runner := scheduler.NewRunner(scheduler.NewClient(cfg.APIURL, cfg.PipelineAPIKey, httpClient), cfg.Concurrency, log)

	var runErr error
	failed := false
	report := func(result *scheduler.RunResult, err error) {
		runErr = err
		if err != nil {
			log.Errorw("recurring run failed", "error", err)
			return
		}
		log.Infow("recurring run completed",
			"reference_date", result.Reference,
			"users", result.Users,
			"created", result.Created,
			"failures", len(result.Failures),
			"duration", result.Duration.String(),
		)
		for _, f := range result.Failures {
			log.Warnw("user run failed",
				"user_id", f.UserID,
				"created", f.Created,
				"partial", scheduler.IsPartialFailure(f.Err),
				"error", f.Err.Error(),
			)
		}
		failed = failed || len(result.Failures) > 0
	}

	if cfg.Interval > 0 {
		log.Infof("running every %s", cfg.Interval)
		runner.Loop(ctx, cfg.Interval, report)
		log.Info("scheduler stopped")
	} else {
		report(runner.Run(ctx))
	}

	cancel()
	logger.Sync()
	switch {
	case runErr != nil && cfg.Interval == 0:
		os.Exit(1)
	case failed:
		os.Exit(2)
	}
}
