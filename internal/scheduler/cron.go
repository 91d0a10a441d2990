package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/services"
	"github.com/rscoe-coding-club/codigo-registration-backend/pkg/metrics"
)

const orphanSweepJob = "orphan_sweep"

// Sweeper removes stored proofs that no registration references
type Sweeper interface {
	Sweep(ctx context.Context) (*services.SweepStats, error)
}

type CronScheduler struct {
	cron           *cron.Cron
	sweeper        Sweeper
	schedule       string
	logger         *logrus.Logger
	metrics        *metrics.Metrics
	jobTimeout     time.Duration
	activeJobs     sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

func NewCronScheduler(sweeper Sweeper, schedule string, jobTimeout time.Duration, logger *logrus.Logger) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}

	return &CronScheduler{
		cron:           cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		sweeper:        sweeper,
		schedule:       schedule,
		logger:         logger,
		metrics:        metrics.NewMetrics(),
		jobTimeout:     jobTimeout,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Start registers the orphan sweep and starts the cron loop
func (s *CronScheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.createJobWrapper(orphanSweepJob, s.runSweep))
	if err != nil {
		return fmt.Errorf("schedule orphan sweep %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Cron scheduler started successfully")
	return nil
}

func (s *CronScheduler) runSweep(ctx context.Context) error {
	stats, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if stats.Errors > 0 {
		return fmt.Errorf("%d orphaned screenshots could not be deleted", stats.Errors)
	}
	return nil
}

// createJobWrapper wraps a job with context, timeout, logging, and panic recovery
func (s *CronScheduler) createJobWrapper(jobName string, jobFunc func(context.Context) error) func() {
	return func() {
		s.activeJobs.Add(1)
		defer s.activeJobs.Done()

		ctx, cancel := context.WithTimeout(s.shutdownCtx, s.jobTimeout)
		defer cancel()

		startTime := time.Now()

		s.logger.WithFields(logrus.Fields{
			"job":       jobName,
			"timestamp": startTime.UTC(),
		}).Info("Starting scheduled job")

		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.logger.WithFields(logrus.Fields{
					"job":   jobName,
					"panic": r,
				}).Error("Job panicked")
			}
			s.metrics.RecordSchedulerJob(jobName, err == nil, time.Since(startTime))
		}()

		err = jobFunc(ctx)

		duration := time.Since(startTime)

		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"job":      jobName,
				"duration": duration.String(),
				"error":    err.Error(),
			}).Error("Job failed")
		} else {
			s.logger.WithFields(logrus.Fields{
				"job":      jobName,
				"duration": duration.String(),
			}).Info("Job completed successfully")
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.WithFields(logrus.Fields{
				"job":     jobName,
				"timeout": s.jobTimeout.String(),
			}).Warn("Job timed out")
		}
	}
}

func (s *CronScheduler) Stop() {
	s.logger.Info("Stopping cron scheduler...")

	// Stop accepting new jobs
	ctx := s.cron.Stop()

	// Cancel all running jobs
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.activeJobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All jobs completed, cron scheduler stopped")
	case <-ctx.Done():
		s.logger.Info("Cron scheduler stopped")
	case <-time.After(1 * time.Minute):
		s.logger.Warn("Timeout waiting for jobs to complete, forcing shutdown")
	}
}

// GetSchedulerStatus returns the current status of the scheduler
func (s *CronScheduler) GetSchedulerStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
