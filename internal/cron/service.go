package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.MaintenanceMetrics
	Interval time.Duration
}

// Service runs the registered maintenance jobs on a fixed cadence. A cycle
// runs only on the replica that wins the lock; the next cycle is scheduled
// one interval after the previous one finished, so cycles never overlap.
type Service struct {
	logg     *logger.Logger
	jobs     *Registry
	lock     Lock
	metrics  *metrics.MaintenanceMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger is required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock is required")
	}
	jobs := params.Registry
	if jobs == nil {
		jobs = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		jobs:     jobs,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle straight away and then once per interval until ctx
// is cancelled. Cycle errors are logged, never fatal.
func (s *Service) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "maintenance service stopping")
			return ctx.Err()
		case <-timer.C:
		}
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "maintenance cycle failed", err)
		}
		timer.Reset(s.interval)
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	won, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire maintenance lock: %w", err)
	}
	if !won {
		s.logg.Info(ctx, "maintenance lock held by another replica, skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "failed to release maintenance lock", err)
		}
	}()

	failed := 0
	for _, job := range s.jobs.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.runJob(ctx, job) {
			failed++
		}
	}
	if failed > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "failed_jobs", failed), "maintenance cycle finished with failures")
	}
	return nil
}

// runJob reports success. A failing job is logged and counted; the cycle
// moves on to the next one.
func (s *Service) runJob(ctx context.Context, job Job) bool {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(started)
	s.metrics.ObserveJob(job.Name(), elapsed, err == nil)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "maintenance job failed", err)
		return false
	}
	s.logg.Info(ctx, "maintenance job completed")
	return true
}
