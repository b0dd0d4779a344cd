// Package scheduler runs periodic jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a scheduled unit of work. It receives a context cancelled on Stop.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// New creates a stopped scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Add registers job under name. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Job) error {
	if spec == "" {
		s.logger.Info("Scheduled job disabled", zap.String("job", name))
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx := s.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("Scheduled job failed",
				zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
			return
		}
		s.logger.Info("Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("Scheduled job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
	}
}
