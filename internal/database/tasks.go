package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openarchive/retention-service/internal/taskqueue"
)

const taskColumns = `id, task_type, payload, priority, status, scheduled_for, attempts, max_attempts,
	last_error, result, worker_id, started_at, completed_at, created_at, updated_at`

// TaskStore is the PostgreSQL taskqueue.Store. Claims go through the
// claim_tasks function, which uses FOR UPDATE SKIP LOCKED so concurrent
// workers never receive the same row.
type TaskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

var _ taskqueue.Store = (*TaskStore)(nil)

func (s *TaskStore) Insert(ctx context.Context, t *taskqueue.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_queue (id, task_type, payload, priority, status, scheduled_for, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, string(t.TaskType), []byte(t.Payload), t.Priority, string(t.Status), t.ScheduledFor,
		t.Attempts, t.MaxAttempts, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return MapError(err)
	}
	return nil
}

func (s *TaskStore) Claim(ctx context.Context, workerID string, types []taskqueue.TaskType, limit int, now time.Time) ([]taskqueue.Task, error) {
	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM claim_tasks($1, $2, $3, $4)`,
		workerID, typeNames, limit, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].ScheduledFor.Before(tasks[j].ScheduledFor)
	})
	return tasks, nil
}

func (s *TaskStore) Complete(ctx context.Context, id string, status taskqueue.TaskStatus, outcome taskqueue.Outcome, now time.Time) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			current string
			owner   *string
		)
		err := tx.QueryRow(ctx, `SELECT status, worker_id FROM task_queue WHERE id = $1 FOR UPDATE`, id).Scan(&current, &owner)
		if errors.Is(err, pgx.ErrNoRows) {
			return taskqueue.ErrNotFound
		}
		if err != nil {
			return err
		}

		cur := taskqueue.TaskStatus(current)
		if cur.Terminal() {
			return nil
		}
		if cur != taskqueue.StatusProcessing {
			return fmt.Errorf("%w: complete from %s", taskqueue.ErrInvalidTransition, cur)
		}
		if !claimedBy(owner, outcome.WorkerID) {
			return fmt.Errorf("complete: %w", taskqueue.ErrNotOwner)
		}

		var lastError *string
		if outcome.Error != "" {
			lastError = &outcome.Error
		}
		var result []byte
		if len(outcome.Result) > 0 {
			result = outcome.Result
		}

		if _, err := tx.Exec(ctx, `
			UPDATE task_queue
			SET status = $2, result = $3, last_error = $4, completed_at = $5, updated_at = $5
			WHERE id = $1
		`, id, string(status), result, lastError, now); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO task_outcomes (task_id, success, error, result, attempts, recorded_at)
			SELECT id, $2, $3, $4, attempts, $5 FROM task_queue WHERE id = $1
		`, id, outcome.Success, lastError, result, now); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *TaskStore) Retry(ctx context.Context, id, workerID string, scheduledFor time.Time, lastError string, now time.Time) (*taskqueue.Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE task_queue
		SET status = 'pending', scheduled_for = $2, last_error = $3, worker_id = NULL, updated_at = $4
		WHERE id = $1 AND status = 'processing' AND ($5::text = '' OR worker_id = $5::text)
		RETURNING `+taskColumns, id, scheduledFor, nullableString(lastError), now, workerID)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionError(ctx, id, workerID, "retry")
	}
	return task, err
}

func (s *TaskStore) Requeue(ctx context.Context, id string, now time.Time) (*taskqueue.Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE task_queue
		SET status = 'pending', attempts = 0, scheduled_for = $2, completed_at = NULL,
		    worker_id = NULL, updated_at = $2
		WHERE id = $1 AND status = 'failed'
		RETURNING `+taskColumns, id, now)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionError(ctx, id, "", "requeue")
	}
	return task, err
}

// transitionError explains why a guarded UPDATE matched no row
func (s *TaskStore) transitionError(ctx context.Context, id, workerID, op string) error {
	var (
		status string
		owner  *string
	)
	err := s.pool.QueryRow(ctx, `SELECT status, worker_id FROM task_queue WHERE id = $1`, id).Scan(&status, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return taskqueue.ErrNotFound
	}
	if err != nil {
		return err
	}
	if taskqueue.TaskStatus(status) == taskqueue.StatusProcessing && !claimedBy(owner, workerID) {
		return fmt.Errorf("%s: %w", op, taskqueue.ErrNotOwner)
	}
	return fmt.Errorf("%w: %s from %s", taskqueue.ErrInvalidTransition, op, status)
}

// claimedBy reports whether workerID holds the claim recorded as owner.
// An empty workerID is an operator acting without a claim.
func claimedBy(owner *string, workerID string) bool {
	return workerID == "" || (owner != nil && *owner == workerID)
}

func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM task_queue
		WHERE status IN ('completed', 'failed') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	return result.RowsAffected(), nil
}

func (s *TaskStore) CountByStatusAndType(ctx context.Context) ([]taskqueue.StatusTypeCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, task_type, COUNT(*)
		FROM task_queue
		GROUP BY status, task_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	var out []taskqueue.StatusTypeCount
	for rows.Next() {
		var status, taskType string
		var n int64
		if err := rows.Scan(&status, &taskType, &n); err != nil {
			return nil, err
		}
		out = append(out, taskqueue.StatusTypeCount{
			Status:   taskqueue.TaskStatus(status),
			TaskType: taskqueue.TaskType(taskType),
			Count:    n,
		})
	}
	return out, rows.Err()
}

func (s *TaskStore) Get(ctx context.Context, id string) (*taskqueue.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM task_queue WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, taskqueue.ErrNotFound
	}
	return task, err
}

func (s *TaskStore) List(ctx context.Context, filter taskqueue.ListFilter) ([]taskqueue.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TaskType != "" {
		args = append(args, string(filter.TaskType))
		where = append(where, fmt.Sprintf("task_type = $%d", len(args)))
	}

	query := `SELECT ` + taskColumns + ` FROM task_queue`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *TaskStore) RecoverStuck(ctx context.Context, cutoff, now time.Time) (taskqueue.RecoverResult, error) {
	var requeued, failed int32
	err := s.pool.QueryRow(ctx, `SELECT * FROM recover_stuck_tasks($1, $2)`, cutoff, now).Scan(&requeued, &failed)
	if err != nil {
		return taskqueue.RecoverResult{}, fmt.Errorf("failed to execute recover_stuck_tasks: %w", err)
	}
	return taskqueue.RecoverResult{Requeued: int(requeued), Failed: int(failed)}, nil
}

func scanTask(row pgx.Row) (*taskqueue.Task, error) {
	var (
		t                taskqueue.Task
		taskType, status string
		payload, result  []byte
	)
	err := row.Scan(
		&t.ID, &taskType, &payload, &t.Priority, &status, &t.ScheduledFor, &t.Attempts, &t.MaxAttempts,
		&t.LastError, &result, &t.WorkerID, &t.StartedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TaskType = taskqueue.TaskType(taskType)
	t.Status = taskqueue.TaskStatus(status)
	t.Payload = payload
	if result != nil {
		t.Result = result
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]taskqueue.Task, error) {
	defer rows.Close()

	tasks := []taskqueue.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
