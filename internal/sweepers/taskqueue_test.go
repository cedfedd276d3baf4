package sweepers

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarchive/retention-service/internal/taskqueue"
)

var sweepNow = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

func gaugeValue(t *testing.T, status taskqueue.TaskStatus) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, queueDepth.WithLabelValues(string(status)).Write(&m))
	return m.GetGauge().GetValue()
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	store := taskqueue.NewMemoryStore()
	q := taskqueue.New(store, taskqueue.WithClock(func() time.Time { return sweepNow }))

	enqueue := func(maxAttempts int) string {
		id, err := q.Enqueue(ctx, taskqueue.EnqueueInput{
			TaskType:    taskqueue.TaskTypeOCRProcessing,
			Payload:     taskqueue.DocumentPayload{DocumentID: "doc"},
			MaxAttempts: maxAttempts,
		})
		require.NoError(t, err)
		return id
	}

	stuckRetry := enqueue(3)
	stuckLast := enqueue(1)
	old := enqueue(3)
	fresh := enqueue(3)

	claimed, err := q.ClaimNext(ctx, taskqueue.ClaimInput{WorkerID: "w", Limit: 4})
	require.NoError(t, err)
	require.Len(t, claimed, 4)

	require.NoError(t, q.Complete(ctx, old, taskqueue.Outcome{Success: true}))
	store.SetUpdatedAt(old, sweepNow.AddDate(0, 0, -40))
	store.SetUpdatedAt(stuckRetry, sweepNow.Add(-2*time.Hour))
	store.SetUpdatedAt(stuckLast, sweepNow.Add(-2*time.Hour))

	s := NewTaskQueueSweeper(q, Config{StuckAfter: time.Hour, CleanupAfterDays: 30}, nil)
	require.NoError(t, s.Sweep(ctx))

	task, err := q.Get(ctx, stuckRetry)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusPending, task.Status)

	task, err = q.Get(ctx, stuckLast)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusFailed, task.Status)

	task, err = q.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusProcessing, task.Status)

	_, err = q.Get(ctx, old)
	assert.ErrorIs(t, err, taskqueue.ErrNotFound)

	assert.Equal(t, 1.0, gaugeValue(t, taskqueue.StatusPending))
	assert.Equal(t, 1.0, gaugeValue(t, taskqueue.StatusProcessing))
	assert.Equal(t, 1.0, gaugeValue(t, taskqueue.StatusFailed))
	assert.Equal(t, 0.0, gaugeValue(t, taskqueue.StatusCompleted))
}

type brokenQueue struct {
	cleanups int
	stats    int
}

func (b *brokenQueue) RecoverStuck(context.Context, time.Duration) (taskqueue.RecoverResult, error) {
	return taskqueue.RecoverResult{}, errors.New("db down")
}

func (b *brokenQueue) Cleanup(context.Context, int) (int64, error) {
	b.cleanups++
	return 0, nil
}

func (b *brokenQueue) Statistics(context.Context) (*taskqueue.Stats, error) {
	b.stats++
	return &taskqueue.Stats{}, nil
}

func TestSweep_ContinuesAfterFailure(t *testing.T) {
	q := &brokenQueue{}
	s := NewTaskQueueSweeper(q, Config{CleanupAfterDays: 7}, nil)

	err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, 1, q.cleanups)
	assert.Equal(t, 1, q.stats)
}

func TestSweep_CleanupDisabled(t *testing.T) {
	q := &brokenQueue{}
	s := NewTaskQueueSweeper(q, Config{}, nil)
	_ = s.Sweep(context.Background())
	assert.Equal(t, 0, q.cleanups)
}

func TestStartStop(t *testing.T) {
	q := &brokenQueue{}
	s := NewTaskQueueSweeper(q, Config{Interval: time.Hour}, nil)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	s.Stop()
	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.Equal(t, 1, q.stats, "one sweep runs on start")
}
