package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PipelineClient defines the API operations needed by the runner.
type PipelineClient interface {
	ListUsers(ctx context.Context) ([]string, error)
	Process(ctx context.Context, userID string, ref time.Time) (*ProcessResult, error)
}

// UserFailure records a user whose run did not complete cleanly.
type UserFailure struct {
	UserID string
	// Created is non-zero when the run failed only partially.
	Created int
	Err     error
}

// RunResult contains the outcome of one cycle.
type RunResult struct {
	Reference time.Time
	Users     int
	Created   int
	Failures  []UserFailure
	Duration  time.Duration
}

// Runner processes every user with templates, one call per user per cycle,
// with at most concurrency users in flight.
type Runner struct {
	client      PipelineClient
	concurrency int
	log         *zap.SugaredLogger
	now         func() time.Time
}

// NewRunner creates a new Runner.
func NewRunner(client PipelineClient, concurrency int, log *zap.SugaredLogger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{client: client, concurrency: concurrency, log: log, now: time.Now}
}

// Run executes a single cycle. All users share one reference date, the UTC
// calendar day the cycle starts on. It fails only when the user list cannot be
// fetched; per-user errors land in Failures.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := r.now()
	result := &RunResult{Reference: referenceDay(start)}

	users, err := r.client.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	result.Users = len(users)

	if len(users) == 0 {
		r.log.Info("no users with recurring templates, nothing to do")
		result.Duration = r.now().Sub(start)
		return result, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, userID := range users {
		g.Go(func() error {
			res, err := r.client.Process(ctx, userID, result.Reference)

			created := 0
			if res != nil {
				created = res.CreatedCount
			}

			mu.Lock()
			defer mu.Unlock()
			result.Created += created
			if err != nil {
				result.Failures = append(result.Failures, UserFailure{UserID: userID, Created: created, Err: err})
				r.log.Warnw("recurring run failed for user", "user_id", userID, "created", created, "error", err)
				return nil
			}
			if created > 0 {
				r.log.Debugw("recurring expenses materialized", "user_id", userID, "created", created)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = r.now().Sub(start)
	return result, nil
}

// referenceDay truncates t to midnight UTC. Instances carry this date and anchor
// the next run, so cycles that start slightly early on the following day still
// see a whole elapsed day.
func referenceDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Loop runs a cycle immediately and then every interval until ctx is done.
// report is called after each cycle.
func (r *Runner) Loop(ctx context.Context, interval time.Duration, report func(*RunResult, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report(r.Run(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
	}
}
