package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openarchive/retention-service/internal/audit"
)

// TaskQueue is the producer/consumer API over a Store. Every state change
// is written to the audit sink after it is persisted.
type TaskQueue struct {
	store       Store
	audit       audit.Sink
	logger      *zerolog.Logger
	now         func() time.Time
	maxAttempts int
}

type Option func(*TaskQueue)

// WithClock overrides the time source used for scheduling decisions
func WithClock(now func() time.Time) Option {
	return func(q *TaskQueue) { q.now = now }
}

func WithAudit(sink audit.Sink) Option {
	return func(q *TaskQueue) { q.audit = sink }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(q *TaskQueue) { q.logger = logger }
}

// WithDefaultMaxAttempts sets max_attempts for tasks enqueued without one
func WithDefaultMaxAttempts(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func New(store Store, opts ...Option) *TaskQueue {
	nop := zerolog.Nop()
	q := &TaskQueue{
		store:       store,
		logger:      &nop,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Now returns the queue clock's current time
func (q *TaskQueue) Now() time.Time {
	return q.now()
}

type EnqueueInput struct {
	TaskType     TaskType
	Payload      any
	Priority     int
	ScheduledFor *time.Time
	MaxAttempts  int
}

// Enqueue persists a new pending task and returns its id
func (q *TaskQueue) Enqueue(ctx context.Context, input EnqueueInput) (string, error) {
	if !input.TaskType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskType, input.TaskType)
	}
	if input.MaxAttempts < 0 {
		return "", fmt.Errorf("max attempts must not be negative, got %d", input.MaxAttempts)
	}

	payload, err := encodePayload(input.Payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	now := q.now()
	scheduled := now
	if input.ScheduledFor != nil {
		scheduled = input.ScheduledFor.UTC()
	}
	maxAttempts := q.maxAttempts
	if input.MaxAttempts > 0 {
		maxAttempts = input.MaxAttempts
	}

	task := &Task{
		ID:           uuid.NewString(),
		TaskType:     input.TaskType,
		Payload:      payload,
		Priority:     input.Priority,
		Status:       StatusPending,
		ScheduledFor: scheduled,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := q.store.Insert(ctx, task); err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}

	q.logger.Debug().
		Str("component", "taskqueue").
		Str("task_id", task.ID).
		Str("task_type", string(task.TaskType)).
		Int("priority", task.Priority).
		Time("scheduled_for", scheduled).
		Msg("Task enqueued")

	q.record(ctx, audit.ActionTaskEnqueued, task.ID, map[string]any{
		"task_type":     string(task.TaskType),
		"priority":      task.Priority,
		"scheduled_for": scheduled,
		"max_attempts":  maxAttempts,
	})
	return task.ID, nil
}

type ClaimInput struct {
	WorkerID  string
	TaskTypes []TaskType
	Limit     int
}

// ClaimNext atomically claims up to Limit due tasks for WorkerID
func (q *TaskQueue) ClaimNext(ctx context.Context, input ClaimInput) ([]Task, error) {
	if input.Limit <= 0 {
		return nil, nil
	}

	tasks, err := q.store.Claim(ctx, input.WorkerID, input.TaskTypes, input.Limit, q.now())
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}

	for _, t := range tasks {
		q.record(ctx, audit.ActionTaskClaimed, t.ID, map[string]any{
			"task_type": string(t.TaskType),
			"worker_id": input.WorkerID,
			"attempts":  t.Attempts,
		})
	}
	return tasks, nil
}

// Complete records the final outcome of a processing task. Completing a
// task that is already completed or failed is a no-op.
func (q *TaskQueue) Complete(ctx context.Context, id string, outcome Outcome) error {
	status := StatusCompleted
	if !outcome.Success {
		status = StatusFailed
	}

	applied, err := q.store.Complete(ctx, id, status, outcome, q.now())
	if err != nil {
		return fmt.Errorf("complete task %s: %w", id, err)
	}
	if !applied {
		q.logger.Debug().Str("component", "taskqueue").Str("task_id", id).Msg("Task already terminal, complete ignored")
		return nil
	}

	details := map[string]any{"success": outcome.Success, "status": string(status)}
	if outcome.Error != "" {
		details["error"] = outcome.Error
	}
	if outcome.WorkerID != "" {
		details["worker_id"] = outcome.WorkerID
	}
	q.record(ctx, audit.ActionTaskCompleted, id, details)
	return nil
}

// Retry returns a processing task to pending, due after in.Delay. The
// handler error stays on the task as last_error and goes into the audit
// entry.
func (q *TaskQueue) Retry(ctx context.Context, id string, in RetryInput) error {
	delay := max(in.Delay, 0)
	now := q.now()
	task, err := q.store.Retry(ctx, id, in.WorkerID, now.Add(delay), in.Error, now)
	if err != nil {
		return fmt.Errorf("retry task %s: %w", id, err)
	}

	details := map[string]any{
		"delay_seconds": int(delay.Seconds()),
		"attempts":      task.Attempts,
		"scheduled_for": task.ScheduledFor,
	}
	if in.Error != "" {
		details["error"] = in.Error
	}
	if in.WorkerID != "" {
		details["worker_id"] = in.WorkerID
	}
	q.record(ctx, audit.ActionTaskRetried, id, details)
	return nil
}

// Requeue gives a failed task a fresh attempt budget. Operator use only.
func (q *TaskQueue) Requeue(ctx context.Context, id string) error {
	if _, err := q.store.Requeue(ctx, id, q.now()); err != nil {
		return fmt.Errorf("requeue task %s: %w", id, err)
	}
	q.record(ctx, audit.ActionTaskRequeued, id, nil)
	return nil
}

// Cleanup deletes completed and failed tasks not updated within olderThanDays
func (q *TaskQueue) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("older than days must not be negative, got %d", olderThanDays)
	}

	cutoff := q.now().AddDate(0, 0, -olderThanDays)
	deleted, err := q.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup tasks: %w", err)
	}

	q.logger.Info().
		Str("component", "taskqueue").
		Time("cutoff", cutoff).
		Int64("deleted", deleted).
		Msg("Cleaned up old tasks")

	q.record(ctx, audit.ActionQueueCleanup, "", map[string]any{
		"older_than_days": olderThanDays,
		"cutoff":          cutoff,
		"deleted_count":   deleted,
	})
	return deleted, nil
}

// Statistics returns counts by status and, for pending and processing, by type
func (q *TaskQueue) Statistics(ctx context.Context) (*Stats, error) {
	counts, err := q.store.CountByStatusAndType(ctx)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	stats := &Stats{
		PendingByType:    make(map[TaskType]int64),
		ProcessingByType: make(map[TaskType]int64),
	}
	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case StatusPending:
			stats.Pending += c.Count
			stats.PendingByType[c.TaskType] += c.Count
		case StatusProcessing:
			stats.Processing += c.Count
			stats.ProcessingByType[c.TaskType] += c.Count
		case StatusCompleted:
			stats.Completed += c.Count
		case StatusFailed:
			stats.Failed += c.Count
		}
	}
	return stats, nil
}

func (q *TaskQueue) Get(ctx context.Context, id string) (*Task, error) {
	return q.store.Get(ctx, id)
}

func (q *TaskQueue) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return q.store.List(ctx, filter)
}

// RecoverStuck reconciles tasks left in processing longer than olderThan
func (q *TaskQueue) RecoverStuck(ctx context.Context, olderThan time.Duration) (RecoverResult, error) {
	now := q.now()
	res, err := q.store.RecoverStuck(ctx, now.Add(-olderThan), now)
	if err != nil {
		return RecoverResult{}, fmt.Errorf("recover stuck tasks: %w", err)
	}
	if res.Requeued > 0 || res.Failed > 0 {
		q.record(ctx, audit.ActionTaskRecovered, "", map[string]any{
			"requeued":           res.Requeued,
			"failed":             res.Failed,
			"older_than_seconds": int(olderThan.Seconds()),
		})
	}
	return res, nil
}

func (q *TaskQueue) record(ctx context.Context, action, taskID string, details map[string]any) {
	audit.Safe(ctx, q.audit, q.logger, audit.Entry{
		Action:     action,
		EntityType: audit.EntityTask,
		EntityID:   taskID,
		Details:    details,
		At:         q.now(),
	})
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}

// DecodeDocumentPayload parses a task payload as a DocumentPayload. A
// malformed payload can never succeed, so the error is permanent.
func DecodeDocumentPayload(task Task) (DocumentPayload, error) {
	var p DocumentPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return p, Permanent(fmt.Errorf("decode payload for task %s: %w", task.ID, err))
	}
	if p.DocumentID == "" {
		return p, Permanent(fmt.Errorf("payload for task %s has no document_id", task.ID))
	}
	return p, nil
}
