package sweepers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/openarchive/retention-service/internal/taskqueue"
)

var queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "taskqueue_tasks",
	Help: "Tasks currently in the queue by status",
}, []string{"status"})

// Maintainer is the part of the task queue the sweeper drives
type Maintainer interface {
	RecoverStuck(ctx context.Context, olderThan time.Duration) (taskqueue.RecoverResult, error)
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
	Statistics(ctx context.Context) (*taskqueue.Stats, error)
}

type Config struct {
	Interval         time.Duration
	StuckAfter       time.Duration
	CleanupAfterDays int
}

// TaskQueueSweeper periodically recovers orphaned tasks, deletes old
// terminal tasks and refreshes the queue depth gauge.
type TaskQueueSweeper struct {
	queue    Maintainer
	cfg      Config
	logger   *zerolog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTaskQueueSweeper creates a new sweeper for task queue maintenance
func NewTaskQueueSweeper(queue Maintainer, cfg Config, logger *zerolog.Logger) *TaskQueueSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 30 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TaskQueueSweeper{
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then every Interval. It blocks until
// ctx is cancelled or Stop is called.
func (s *TaskQueueSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Str("component", "sweeper").
		Dur("interval", s.cfg.Interval).
		Dur("stuck_after", s.cfg.StuckAfter).
		Int("cleanup_after_days", s.cfg.CleanupAfterDays).
		Msg("Starting task queue sweeper")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Str("component", "sweeper").Msg("Task queue sweep failed")
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Str("component", "sweeper").Msg("Task queue sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Str("component", "sweeper").Msg("Task queue sweeper stopping (stop signal)")
			return
		case <-ticker.C:
		}
	}
}

// Stop signals the sweeper to stop
func (s *TaskQueueSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Sweep performs one maintenance pass. Every step runs even if an earlier
// one fails; the first error is returned.
func (s *TaskQueueSweeper) Sweep(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := s.RecoverOrphanedTasks(ctx); err != nil {
		keep(err)
	}

	if s.cfg.CleanupAfterDays > 0 {
		deleted, err := s.queue.Cleanup(ctx, s.cfg.CleanupAfterDays)
		if err != nil {
			keep(fmt.Errorf("cleanup: %w", err))
		} else if deleted > 0 {
			s.logger.Info().
				Str("component", "sweeper").
				Int64("deleted", deleted).
				Msg("Deleted old terminal tasks")
		}
	}

	if err := s.RefreshGauges(ctx); err != nil {
		keep(err)
	}
	return firstErr
}

// RecoverOrphanedTasks reconciles tasks stuck in processing
func (s *TaskQueueSweeper) RecoverOrphanedTasks(ctx context.Context) error {
	s.logger.Debug().Str("component", "sweeper").Msg("Running orphaned task recovery")

	res, err := s.queue.RecoverStuck(ctx, s.cfg.StuckAfter)
	if err != nil {
		return fmt.Errorf("recover orphaned tasks: %w", err)
	}

	if res.Requeued > 0 || res.Failed > 0 {
		s.logger.Info().
			Str("component", "sweeper").
			Int("recovered", res.Requeued).
			Int("failed", res.Failed).
			Msg("Recovered orphaned tasks")
	}
	return nil
}

// RefreshGauges publishes current queue counts
func (s *TaskQueueSweeper) RefreshGauges(ctx context.Context) error {
	stats, err := s.queue.Statistics(ctx)
	if err != nil {
		return fmt.Errorf("queue statistics: %w", err)
	}
	queueDepth.WithLabelValues(string(taskqueue.StatusPending)).Set(float64(stats.Pending))
	queueDepth.WithLabelValues(string(taskqueue.StatusProcessing)).Set(float64(stats.Processing))
	queueDepth.WithLabelValues(string(taskqueue.StatusCompleted)).Set(float64(stats.Completed))
	queueDepth.WithLabelValues(string(taskqueue.StatusFailed)).Set(float64(stats.Failed))
	return nil
}
