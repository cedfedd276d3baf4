package taskqueue

import (
	"context"
	"time"
)

// Store persists tasks. Implementations must make Claim atomic: a task
// returned to one caller is never returned to another until it goes back
// to pending.
type Store interface {
	Insert(ctx context.Context, task *Task) error

	// Claim moves up to limit due pending tasks to processing, ordered by
	// priority DESC then scheduled_for ASC, incrementing attempts.
	Claim(ctx context.Context, workerID string, types []TaskType, limit int, now time.Time) ([]Task, error)

	// Complete applies processing -> completed|failed. It returns false
	// without error when the task is already terminal, and ErrNotOwner when
	// outcome.WorkerID is set and another worker holds the claim.
	Complete(ctx context.Context, id string, status TaskStatus, outcome Outcome, now time.Time) (bool, error)

	// Retry applies processing -> pending with a new scheduled_for and
	// records lastError. Attempts are kept. A non-empty workerID must match
	// the claimer, otherwise ErrNotOwner.
	Retry(ctx context.Context, id, workerID string, scheduledFor time.Time, lastError string, now time.Time) (*Task, error)

	// Requeue applies failed -> pending and resets attempts.
	Requeue(ctx context.Context, id string, now time.Time) (*Task, error)

	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatusAndType(ctx context.Context) ([]StatusTypeCount, error)
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]Task, error)

	// RecoverStuck returns processing tasks last touched before cutoff to
	// pending, or fails them when no attempts remain.
	RecoverStuck(ctx context.Context, cutoff, now time.Time) (RecoverResult, error)
}
