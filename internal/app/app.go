// Package app assembles the retention service components from configuration.
// The HTTP server and the CLI share it so both run the same wiring.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/openarchive/retention-service/config"
	"github.com/openarchive/retention-service/internal/audit"
	"github.com/openarchive/retention-service/internal/database"
	"github.com/openarchive/retention-service/internal/lifecycle"
	"github.com/openarchive/retention-service/internal/notify"
	"github.com/openarchive/retention-service/internal/processing"
	"github.com/openarchive/retention-service/internal/retention"
	"github.com/openarchive/retention-service/internal/storage"
	"github.com/openarchive/retention-service/internal/sweepers"
	"github.com/openarchive/retention-service/internal/taskqueue"
	"github.com/openarchive/retention-service/internal/transfer"
	"github.com/openarchive/retention-service/internal/workers"
)

// App holds the long-lived components built from one configuration
type App struct {
	Config    *config.Config
	Logger    *zerolog.Logger
	Pool      *pgxpool.Pool
	Audit     audit.Sink
	Queue     *taskqueue.TaskQueue
	Documents *database.DocumentStore
	Lifecycle *lifecycle.Service
	Scheduler *lifecycle.Scheduler
	Storage   storage.Storage
	Packager  *transfer.Packager

	closers []func()
}

// New connects to the database, optionally migrates it and builds every
// component. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, err := database.Connect(ctx, database.Options{
		URL:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	sinks := audit.Multi{audit.NewLogSink(logger), database.NewAuditStore(pool)}
	if cfg.NATS.URL != "" {
		nc, err := audit.ConnectNATS(cfg.NATS.URL, "retention-service")
		if err != nil {
			// Broker outages must not stop the archive; the other sinks remain.
			logger.Warn().Err(err).Str("component", "audit").Msg("NATS unavailable, audit events not published")
		} else {
			sinks = append(sinks, audit.NewNATSSink(nc, cfg.NATS.SubjectPrefix))
			a.closers = append(a.closers, nc.Close)
		}
	}
	a.Audit = sinks

	a.Queue = taskqueue.New(database.NewTaskStore(pool),
		taskqueue.WithAudit(a.Audit),
		taskqueue.WithLogger(logger),
		taskqueue.WithDefaultMaxAttempts(cfg.Queue.MaxAttempts),
	)

	a.Documents = database.NewDocumentStore(pool)
	a.Lifecycle = lifecycle.NewService(a.Documents, a.Queue, LifecycleConfig(cfg.Lifecycle),
		lifecycle.WithAudit(a.Audit),
		lifecycle.WithLogger(logger),
	)

	a.Scheduler, err = lifecycle.NewScheduler(a.Lifecycle,
		database.NewAdvisoryLocker(pool, cfg.Lifecycle.AdvisoryLockKey),
		lifecycle.SchedulerConfig{
			Interval: cfg.Lifecycle.CheckInterval,
			Schedule: cfg.Lifecycle.Schedule,
		}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	local, err := storage.NewLocalStorage(cfg.Storage.BasePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Storage = local
	a.Packager = transfer.NewPackager(local, transfer.Config{
		SourceOrganization: cfg.Transfer.SourceOrganization,
		SourcePrefix:       cfg.Transfer.SourcePrefix,
		OutputPrefix:       cfg.Transfer.OutputPrefix,
	}, logger)

	return a, nil
}

// LifecycleConfig maps configuration onto the lifecycle service settings
func LifecycleConfig(c config.LifecycleConfig) lifecycle.Config {
	return lifecycle.Config{
		Retention: retention.Config{
			ReviewWindow:                c.ReviewWindow(),
			PermanentTransferAfterYears: c.PermanentTransferAfterYears,
		},
		EnableAutoTransfer:    c.EnableAutoTransfer,
		EnableAutoDestruction: c.EnableAutoDestruction,
		EnableAutoReview:      c.EnableAutoReview,
		TransferPriority:      c.TransferPriority,
	}
}

// NewWorker builds a dispatcher with a handler for every configured
// collaborator. wake may be nil.
func (a *App) NewWorker(wake <-chan struct{}) *workers.Worker {
	q := a.Config.Queue
	opts := []workers.Option{workers.WithAudit(a.Audit), workers.WithLogger(a.Logger)}
	if wake != nil {
		opts = append(opts, workers.WithWake(wake))
	}

	w := workers.New(a.Queue, workers.WorkerConfig{
		WorkerID:     WorkerID(q.WorkerID),
		BatchSize:    q.BatchSize,
		Concurrency:  q.Concurrency,
		PollInterval: q.PollInterval,
	}, opts...)

	p := a.Config.Processing
	client := processing.NewClient(processing.ClientConfig{
		Timeout:           p.Timeout,
		RequestsPerSecond: p.RequestsPerSecond,
		Burst:             p.Burst,
	})
	w.Register(workers.Handlers{
		Processors: processing.Build(processing.Endpoints{
			Enrichment: p.EnrichmentURL,
			OCR:        p.OCRURL,
			Redaction:  p.RedactionURL,
		}, client),
		Packager:  a.Packager,
		Documents: a.Documents,
		Lifecycle: a.Scheduler,
	})

	handled := w.Handled()
	types := make([]string, len(handled))
	for i, t := range handled {
		types[i] = string(t)
	}
	a.Logger.Info().Str("component", "worker").Strs("task_types", types).Msg("Registered task handlers")
	return w
}

// NewSweeper builds the queue maintenance loop
func (a *App) NewSweeper() *sweepers.TaskQueueSweeper {
	q := a.Config.Queue
	return sweepers.NewTaskQueueSweeper(a.Queue, sweepers.Config{
		Interval:         q.SweepInterval,
		StuckAfter:       q.StuckAfter,
		CleanupAfterDays: q.CleanupAfterDays,
	}, a.Logger)
}

// Listen opens the LISTEN connection that wakes workers on new tasks
func (a *App) Listen() (*notify.Listener, error) {
	return notify.Listen(a.Config.Database.URL, a.Config.Queue.NotifyChannel, a.Logger)
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// WorkerID returns id, or hostname-pid when id is empty
func WorkerID(id string) string {
	if id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// NewLogger builds the process logger from configuration
func NewLogger(cfg config.LoggingConfig, service string, out io.Writer) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if out == nil {
		out = os.Stdout
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("service", service).Logger()
	return &logger
}
