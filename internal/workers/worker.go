package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openarchive/retention-service/internal/audit"
	"github.com/openarchive/retention-service/internal/taskqueue"
)

var tracer = otel.Tracer("github.com/openarchive/retention-service/internal/workers")

// ErrNoHandler fails tasks whose type has no registered handler
var ErrNoHandler = errors.New("no handler registered")

// HandlerFunc processes one claimed task. The returned value is stored as
// the task result. Wrap an error with taskqueue.Permanent to skip retries.
type HandlerFunc func(ctx context.Context, task taskqueue.Task) (any, error)

// Queue is the part of the task queue the worker drives
type Queue interface {
	ClaimNext(ctx context.Context, input taskqueue.ClaimInput) ([]taskqueue.Task, error)
	Complete(ctx context.Context, id string, outcome taskqueue.Outcome) error
	Retry(ctx context.Context, id string, input taskqueue.RetryInput) error
}

type WorkerConfig struct {
	WorkerID     string
	TaskTypes    []taskqueue.TaskType
	BatchSize    int
	Concurrency  int
	PollInterval time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		WorkerID:     "worker",
		BatchSize:    5,
		Concurrency:  1,
		PollInterval: 5 * time.Second,
	}
}

// Worker polls the queue, dispatches claimed tasks to handlers by type and
// reports the outcome back to the queue.
type Worker struct {
	queue    Queue
	config   WorkerConfig
	handlers map[taskqueue.TaskType]HandlerFunc
	wake     <-chan struct{}
	audit    audit.Sink
	logger   *zerolog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Worker)

// WithWake makes the worker poll early whenever wake fires
func WithWake(wake <-chan struct{}) Option {
	return func(w *Worker) { w.wake = wake }
}

func WithAudit(sink audit.Sink) Option {
	return func(w *Worker) { w.audit = sink }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func New(queue Queue, config WorkerConfig, opts ...Option) *Worker {
	def := DefaultWorkerConfig()
	if config.WorkerID == "" {
		config.WorkerID = def.WorkerID
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}

	nop := zerolog.Nop()
	w := &Worker{
		queue:    queue,
		config:   config,
		handlers: make(map[taskqueue.TaskType]HandlerFunc),
		logger:   &nop,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RegisterHandler must be called before Start
func (w *Worker) RegisterHandler(taskType taskqueue.TaskType, handler HandlerFunc) {
	w.handlers[taskType] = handler
}

// Handled returns the task types that have a handler
func (w *Worker) Handled() []taskqueue.TaskType {
	out := make([]taskqueue.TaskType, 0, len(w.handlers))
	for _, t := range taskqueue.AllTaskTypes() {
		if _, ok := w.handlers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Start launches Concurrency poll loops and returns immediately
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Int("concurrency", w.config.Concurrency).
		Int("batch_size", w.config.BatchSize).
		Dur("poll_interval", w.config.PollInterval).
		Msg("Starting worker")

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// Stop ends polling and waits for in-flight batches. Safe to call twice.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.logger.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopping, waiting for in-flight tasks")
	w.wg.Wait()
	w.logger.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerID := w.config.WorkerID
	if w.config.Concurrency > 1 {
		workerID = fmt.Sprintf("%s-%d", w.config.WorkerID, workerNum)
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		default:
		}

		// A full batch suggests more work is due; poll again at once.
		if w.ProcessBatch(ctx, workerID) == w.config.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// ProcessBatch claims and sequentially processes one batch. It returns the
// number of tasks claimed.
func (w *Worker) ProcessBatch(ctx context.Context, workerID string) int {
	tasks, err := w.queue.ClaimNext(ctx, taskqueue.ClaimInput{
		WorkerID:  workerID,
		TaskTypes: w.config.TaskTypes,
		Limit:     w.config.BatchSize,
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		w.logger.Error().Err(err).Str("component", "worker").Str("worker_id", workerID).Msg("Failed to claim tasks")
		audit.Safe(context.WithoutCancel(ctx), w.audit, w.logger, audit.Entry{
			Action:     audit.ActionQueueWorkerError,
			EntityType: audit.EntityTask,
			Details:    map[string]any{"worker_id": workerID, "error": err.Error()},
		})
		return 0
	}
	if len(tasks) == 0 {
		return 0
	}

	w.logger.Debug().
		Str("component", "worker").
		Str("worker_id", workerID).
		Int("task_count", len(tasks)).
		Msg("Worker claimed tasks")

	// Claimed tasks are finished even when shutdown cancels ctx.
	taskCtx := context.WithoutCancel(ctx)
	for _, task := range tasks {
		tasksClaimed.WithLabelValues(string(task.TaskType)).Inc()
		w.processTask(taskCtx, workerID, task)
	}
	return len(tasks)
}

func (w *Worker) processTask(ctx context.Context, workerID string, task taskqueue.Task) {
	ctx, span := tracer.Start(ctx, "task.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", string(task.TaskType)),
		attribute.Int("task.attempts", task.Attempts),
		attribute.String("worker.id", workerID),
	)

	start := time.Now()
	result, err := w.invoke(ctx, task)
	taskDuration.WithLabelValues(string(task.TaskType)).Observe(time.Since(start).Seconds())

	logger := w.logger.With().
		Str("component", "worker").
		Str("worker_id", workerID).
		Str("task_id", task.ID).
		Str("task_type", string(task.TaskType)).
		Int("attempts", task.Attempts).
		Logger()

	var raw json.RawMessage
	if err == nil && result != nil {
		raw, err = json.Marshal(result)
		if err != nil {
			err = taskqueue.Permanent(fmt.Errorf("encode result: %w", err))
		}
	}

	if err == nil {
		if cerr := w.queue.Complete(ctx, task.ID, taskqueue.Outcome{Success: true, Result: raw, WorkerID: workerID}); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to mark task as completed")
			return
		}
		tasksCompleted.WithLabelValues(string(task.TaskType), "success").Inc()
		logger.Info().Msg("Task completed")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "task failed")

	if !taskqueue.IsPermanent(err) && task.AttemptsRemaining() {
		delay := taskqueue.BackoffFor(err, task.Attempts)
		if rerr := w.queue.Retry(ctx, task.ID, taskqueue.RetryInput{WorkerID: workerID, Delay: delay, Error: err.Error()}); rerr != nil {
			logger.Error().Err(rerr).Msg("Failed to schedule retry")
			return
		}
		tasksRetried.WithLabelValues(string(task.TaskType)).Inc()
		logger.Warn().Err(err).Dur("retry_in", delay).Msg("Task failed, retry scheduled")
		return
	}

	if cerr := w.queue.Complete(ctx, task.ID, taskqueue.Outcome{Success: false, Error: err.Error(), WorkerID: workerID}); cerr != nil {
		logger.Error().Err(cerr).Msg("Failed to mark task as failed")
		return
	}
	outcome := "exhausted"
	if taskqueue.IsPermanent(err) {
		outcome = "permanent"
	}
	tasksCompleted.WithLabelValues(string(task.TaskType), outcome).Inc()
	logger.Error().Err(err).Str("outcome", outcome).Msg("Task failed")
}

// invoke runs the handler, converting a panic into an error
func (w *Worker) invoke(ctx context.Context, task taskqueue.Task) (result any, err error) {
	handler, ok := w.handlers[task.TaskType]
	if !ok {
		return nil, taskqueue.Permanent(fmt.Errorf("%w for task type %s", ErrNoHandler, task.TaskType))
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("component", "worker").
				Str("task_id", task.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Task handler panicked")
			result = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, task)
}
