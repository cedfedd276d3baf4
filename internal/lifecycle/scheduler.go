package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrLockHeld is returned when another instance holds the lifecycle lock
var ErrLockHeld = errors.New("lifecycle lock held by another instance")

// Runner performs one lifecycle pass
type Runner interface {
	Run(ctx context.Context) (*RunSummary, error)
	RecordFailure(ctx context.Context, err error)
}

// Locker provides cross-process mutual exclusion for runs
type Locker interface {
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

type SchedulerConfig struct {
	Interval time.Duration
	// Schedule is an optional cron expression that replaces Interval.
	Schedule string
}

// Scheduler runs the lifecycle immediately on Start and then on every
// tick. A failed run is logged and audited and the timer keeps going.
type Scheduler struct {
	runner   Runner
	locker   Locker
	logger   *zerolog.Logger
	interval time.Duration
	schedule cron.Schedule

	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
	lastRun  atomic.Pointer[RunSummary]
}

func NewScheduler(runner Runner, locker Locker, cfg SchedulerConfig, logger *zerolog.Logger) (*Scheduler, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Scheduler{
		runner:   runner,
		locker:   locker,
		logger:   logger,
		interval: cfg.Interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		schedule, err := parser.Parse(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("parse lifecycle schedule %q: %w", cfg.Schedule, err)
		}
		s.schedule = schedule
	} else if cfg.Interval <= 0 {
		return nil, fmt.Errorf("lifecycle interval must be positive, got %s", cfg.Interval)
	}
	return s, nil
}

// Start blocks until ctx is cancelled or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.done)

	s.logger.Info().
		Str("component", "lifecycle_scheduler").
		Dur("interval", s.interval).
		Bool("cron", s.schedule != nil).
		Msg("Starting lifecycle scheduler")

	select {
	case <-s.stopChan:
		return
	default:
	}
	s.tick(ctx)

	for {
		timer := time.NewTimer(s.nextDelay(time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Str("component", "lifecycle_scheduler").Msg("Lifecycle scheduler stopping (context cancelled)")
			return
		case <-s.stopChan:
			timer.Stop()
			s.logger.Info().Str("component", "lifecycle_scheduler").Msg("Lifecycle scheduler stopping (stop signal)")
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

// Stop prevents further runs and waits for an in-flight run. Safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.started.Load() {
		<-s.done
	}
}

// LastRun returns the summary of the most recent successful run, if any
func (s *Scheduler) LastRun() *RunSummary {
	return s.lastRun.Load()
}

// RunOnce performs a single guarded run. Periodic and manual runs never
// overlap within a process; the Locker extends that across processes.
func (s *Scheduler) RunOnce(ctx context.Context) (summary *RunSummary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		release, acquired, lockErr := s.locker.TryLock(ctx)
		if lockErr != nil {
			return nil, fmt.Errorf("acquire lifecycle lock: %w", lockErr)
		}
		if !acquired {
			runsTotal.WithLabelValues("skipped").Inc()
			return nil, ErrLockHeld
		}
		defer release()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("component", "lifecycle_scheduler").
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Lifecycle run panicked")
			summary = nil
			err = fmt.Errorf("lifecycle run panicked: %v", r)
		}
	}()

	summary, err = s.runner.Run(ctx)
	if err == nil && summary != nil {
		s.lastRun.Store(summary)
	}
	return summary, err
}

func (s *Scheduler) tick(ctx context.Context) {
	// A run that has started finishes even if shutdown cancels ctx.
	runCtx := context.WithoutCancel(ctx)

	summary, err := s.RunOnce(runCtx)
	switch {
	case errors.Is(err, ErrLockHeld):
		s.logger.Info().Str("component", "lifecycle_scheduler").Msg("Skipping lifecycle run, lock held elsewhere")
	case err != nil:
		s.logger.Error().Err(err).Str("component", "lifecycle_scheduler").Msg("Lifecycle run failed")
		s.runner.RecordFailure(runCtx, err)
	default:
		s.logger.Info().
			Str("component", "lifecycle_scheduler").
			Int("checked", summary.Checked).
			Int("failures", summary.Failures).
			Int64("duration_ms", summary.DurationMs).
			Msg("Lifecycle run completed")
	}
}

func (s *Scheduler) nextDelay(now time.Time) time.Duration {
	if s.schedule != nil {
		if d := s.schedule.Next(now).Sub(now); d > 0 {
			return d
		}
		return time.Second
	}
	return s.interval
}
