package taskqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store held in process memory. A single mutex makes
// every operation, including Claim, atomic.
type MemoryStore struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	seq      map[string]uint64
	next     uint64
	outcomes map[string][]Outcome
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]*Task),
		seq:      make(map[string]uint64),
		outcomes: make(map[string][]Outcome),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Insert(_ context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	cp := cloneTask(task)
	s.tasks[task.ID] = cp
	s.next++
	s.seq[task.ID] = s.next
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, workerID string, types []TaskType, limit int, now time.Time) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	allowed := make(map[TaskType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}

	var due []*Task
	for _, t := range s.tasks {
		if t.Status != StatusPending || t.ScheduledFor.After(now) {
			continue
		}
		if len(allowed) > 0 && !allowed[t.TaskType] {
			continue
		}
		due = append(due, t)
	}

	sort.Slice(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.ScheduledFor.Equal(b.ScheduledFor) {
			return a.ScheduledFor.Before(b.ScheduledFor)
		}
		return s.seq[a.ID] < s.seq[b.ID]
	})

	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]Task, 0, len(due))
	for _, t := range due {
		started := now
		worker := workerID
		t.Status = StatusProcessing
		t.Attempts++
		t.StartedAt = &started
		t.WorkerID = &worker
		t.UpdatedAt = now
		claimed = append(claimed, *cloneTask(t))
	}
	return claimed, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, status TaskStatus, outcome Outcome, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status.Terminal() {
		return false, nil
	}
	if t.Status != StatusProcessing {
		return false, fmt.Errorf("%w: complete from %s", ErrInvalidTransition, t.Status)
	}
	if !claimedBy(t, outcome.WorkerID) {
		return false, fmt.Errorf("complete: %w", ErrNotOwner)
	}

	completed := now
	t.Status = status
	t.CompletedAt = &completed
	t.UpdatedAt = now
	t.Result = outcome.Result
	if outcome.Error != "" {
		msg := outcome.Error
		t.LastError = &msg
	} else {
		t.LastError = nil
	}
	s.outcomes[id] = append(s.outcomes[id], outcome)
	return true, nil
}

func (s *MemoryStore) Retry(_ context.Context, id, workerID string, scheduledFor time.Time, lastError string, now time.Time) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: retry from %s", ErrInvalidTransition, t.Status)
	}
	if !claimedBy(t, workerID) {
		return nil, fmt.Errorf("retry: %w", ErrNotOwner)
	}

	t.Status = StatusPending
	t.ScheduledFor = scheduledFor
	t.LastError = nil
	if lastError != "" {
		t.LastError = &lastError
	}
	t.WorkerID = nil
	t.UpdatedAt = now
	return cloneTask(t), nil
}

func (s *MemoryStore) Requeue(_ context.Context, id string, now time.Time) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != StatusFailed {
		return nil, fmt.Errorf("%w: requeue from %s", ErrInvalidTransition, t.Status)
	}

	t.Status = StatusPending
	t.Attempts = 0
	t.ScheduledFor = now
	t.CompletedAt = nil
	t.WorkerID = nil
	t.UpdatedAt = now
	return cloneTask(t), nil
}

func (s *MemoryStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			delete(s.seq, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) CountByStatusAndType(_ context.Context) ([]StatusTypeCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		status TaskStatus
		typ    TaskType
	}
	counts := make(map[key]int64)
	for _, t := range s.tasks {
		counts[key{t.Status, t.TaskType}]++
	}

	out := make([]StatusTypeCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, StatusTypeCount{Status: k.status, TaskType: k.typ, Count: n})
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.TaskType != "" && t.TaskType != filter.TaskType {
			continue
		}
		out = append(out, *cloneTask(t))
	}

	// Newest first, matching the postgres store.
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Task{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) RecoverStuck(_ context.Context, cutoff, now time.Time) (RecoverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res RecoverResult
	for id, t := range s.tasks {
		if t.Status != StatusProcessing || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		msg := "task recovered after stalling in processing"
		if t.AttemptsRemaining() {
			t.Status = StatusPending
			t.ScheduledFor = now
			t.WorkerID = nil
			t.LastError = &msg
			res.Requeued++
		} else {
			completed := now
			t.Status = StatusFailed
			t.CompletedAt = &completed
			t.LastError = &msg
			s.outcomes[id] = append(s.outcomes[id], Outcome{Success: false, Error: msg})
			res.Failed++
		}
		t.UpdatedAt = now
	}
	return res, nil
}

// Outcomes returns the outcomes recorded for a task, oldest first
func (s *MemoryStore) Outcomes(id string) []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outcome, len(s.outcomes[id]))
	copy(out, s.outcomes[id])
	return out
}

// SetUpdatedAt rewrites a task's updated_at, for exercising age-based sweeps
func (s *MemoryStore) SetUpdatedAt(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.UpdatedAt = at
	}
}

// claimedBy reports whether workerID holds t's claim. An empty workerID is
// an operator acting without a claim.
func claimedBy(t *Task, workerID string) bool {
	return workerID == "" || (t.WorkerID != nil && *t.WorkerID == workerID)
}

func cloneTask(t *Task) *Task {
	cp := *t
	if t.Payload != nil {
		cp.Payload = append([]byte(nil), t.Payload...)
	}
	if t.Result != nil {
		cp.Result = append([]byte(nil), t.Result...)
	}
	if t.LastError != nil {
		v := *t.LastError
		cp.LastError = &v
	}
	if t.WorkerID != nil {
		v := *t.WorkerID
		cp.WorkerID = &v
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		cp.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	return &cp
}
