package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarchive/retention-service/internal/audit"
	"github.com/openarchive/retention-service/internal/lifecycle"
	"github.com/openarchive/retention-service/internal/processing"
	"github.com/openarchive/retention-service/internal/retention"
	"github.com/openarchive/retention-service/internal/storage"
	"github.com/openarchive/retention-service/internal/taskqueue"
	"github.com/openarchive/retention-service/internal/transfer"
)

var testNow = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

type fixture struct {
	queue *taskqueue.TaskQueue
	store *taskqueue.MemoryStore
	audit *audit.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := taskqueue.NewMemoryStore()
	rec := &audit.Recorder{}
	q := taskqueue.New(store,
		taskqueue.WithClock(func() time.Time { return testNow }),
		taskqueue.WithAudit(rec))
	return &fixture{queue: q, store: store, audit: rec}
}

func (f *fixture) enqueue(t *testing.T, taskType taskqueue.TaskType, docID string, maxAttempts int) string {
	t.Helper()
	id, err := f.queue.Enqueue(context.Background(), taskqueue.EnqueueInput{
		TaskType:    taskType,
		Payload:     taskqueue.DocumentPayload{DocumentID: docID},
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) get(t *testing.T, id string) *taskqueue.Task {
	t.Helper()
	task, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	return task
}

func TestProcessBatch_Success(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 3)

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
		return map[string]int{"pages": 2}, nil
	})

	n := w.ProcessBatch(context.Background(), "w1")
	assert.Equal(t, 1, n)

	task := f.get(t, id)
	assert.Equal(t, taskqueue.StatusCompleted, task.Status)
	assert.JSONEq(t, `{"pages":2}`, string(task.Result))
}

func TestProcessBatch_TransientErrorRetries(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 3)

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
		return nil, errors.New("ocr backend unavailable")
	})

	w.ProcessBatch(context.Background(), "w1")

	task := f.get(t, id)
	assert.Equal(t, taskqueue.StatusPending, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, testNow.Add(taskqueue.RetryDelay(1)), task.ScheduledFor)
	require.NotNil(t, task.LastError)
	assert.Equal(t, "ocr backend unavailable", *task.LastError)

	retried := f.audit.Actions(audit.ActionTaskRetried)
	require.Len(t, retried, 1)
	assert.Equal(t, "ocr backend unavailable", retried[0].Details["error"])
	assert.Equal(t, "w1", retried[0].Details["worker_id"])
}

func TestProcessBatch_HonorsRetryAfter(t *testing.T) {
	for name, tc := range map[string]struct {
		retryAfter time.Duration
		want       time.Duration
	}{
		"longer than backoff":  {10 * time.Minute, 10 * time.Minute},
		"shorter than backoff": {5 * time.Second, taskqueue.RetryDelay(1)},
		"capped at one hour":   {48 * time.Hour, time.Hour},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			id := f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 3)

			w := New(f.queue, WorkerConfig{WorkerID: "w1"})
			w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
				return nil, fmt.Errorf("ocr: %w", &processing.StatusError{
					URL: "http://ocr/process", StatusCode: 429, RetryAfter: tc.retryAfter,
				})
			})
			w.ProcessBatch(context.Background(), "w1")

			task := f.get(t, id)
			assert.Equal(t, taskqueue.StatusPending, task.Status)
			assert.Equal(t, testNow.Add(tc.want), task.ScheduledFor)
		})
	}
}

func TestProcessBatch_RecoveredTaskIsNotFinalizedByStaleWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 3)

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
		// w1 is still working when the sweeper decides the task stalled.
		f.store.SetUpdatedAt(task.ID, testNow.Add(-31*time.Minute))
		res, err := f.queue.RecoverStuck(ctx, 30*time.Minute)
		require.NoError(t, err)
		require.Equal(t, 1, res.Requeued)
		claimed, err := f.queue.ClaimNext(ctx, taskqueue.ClaimInput{WorkerID: "w2", Limit: 1})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		return map[string]string{"from": "w1"}, nil
	})

	w.ProcessBatch(ctx, "w1")

	task := f.get(t, id)
	assert.Equal(t, taskqueue.StatusProcessing, task.Status)
	require.NotNil(t, task.WorkerID)
	assert.Equal(t, "w2", *task.WorkerID)
	assert.Empty(t, task.Result)
	assert.Empty(t, f.audit.Actions(audit.ActionTaskCompleted))
}

func TestProcessBatch_ExhaustedAttemptsFail(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 1)

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
		return nil, errors.New("still broken")
	})

	w.ProcessBatch(context.Background(), "w1")

	task := f.get(t, id)
	assert.Equal(t, taskqueue.StatusFailed, task.Status)
	require.NotNil(t, task.LastError)
	assert.Equal(t, "still broken", *task.LastError)
}

func TestProcessBatch_PermanentErrorSkipsRetry(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 5)

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
		return nil, taskqueue.Permanent(errors.New("unsupported format"))
	})

	w.ProcessBatch(context.Background(), "w1")

	task := f.get(t, id)
	assert.Equal(t, taskqueue.StatusFailed, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Empty(t, f.audit.Actions(audit.ActionTaskRetried))
}

func TestProcessBatch_NoHandlerFailsPermanently(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, taskqueue.TaskTypeRedaction, "doc-1", 3)

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.ProcessBatch(context.Background(), "w1")

	task := f.get(t, id)
	assert.Equal(t, taskqueue.StatusFailed, task.Status)
	require.NotNil(t, task.LastError)
	assert.Contains(t, *task.LastError, "no handler registered for task type REDACTION")
}

func TestProcessBatch_PanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 3)

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
		panic("nil map write")
	})

	require.NotPanics(t, func() { w.ProcessBatch(context.Background(), "w1") })

	task := f.get(t, id)
	assert.Equal(t, taskqueue.StatusPending, task.Status, "a panic is a retryable error")
}

func TestProcessBatch_RespectsBatchSizeAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, prio := range []int{1, 9, 5} {
		_, err := f.queue.Enqueue(ctx, taskqueue.EnqueueInput{
			TaskType: taskqueue.TaskTypeDocumentEnrichment,
			Payload:  taskqueue.DocumentPayload{DocumentID: string(rune('a' + i))},
			Priority: prio,
		})
		require.NoError(t, err)
	}

	var order []int
	w := New(f.queue, WorkerConfig{WorkerID: "w1", BatchSize: 2})
	w.RegisterHandler(taskqueue.TaskTypeDocumentEnrichment, func(ctx context.Context, task taskqueue.Task) (any, error) {
		order = append(order, task.Priority)
		return nil, nil
	})

	assert.Equal(t, 2, w.ProcessBatch(ctx, "w1"))
	assert.Equal(t, []int{9, 5}, order)
	assert.Equal(t, 1, w.ProcessBatch(ctx, "w1"))
	assert.Equal(t, 0, w.ProcessBatch(ctx, "w1"))
}

type failingQueue struct{}

func (failingQueue) ClaimNext(context.Context, taskqueue.ClaimInput) ([]taskqueue.Task, error) {
	return nil, errors.New("connection refused")
}
func (failingQueue) Complete(context.Context, string, taskqueue.Outcome) error { return nil }
func (failingQueue) Retry(context.Context, string, taskqueue.RetryInput) error { return nil }

func TestProcessBatch_ClaimErrorIsAudited(t *testing.T) {
	rec := &audit.Recorder{}
	w := New(failingQueue{}, WorkerConfig{WorkerID: "w1"}, WithAudit(rec))

	assert.Equal(t, 0, w.ProcessBatch(context.Background(), "w1"))
	entries := rec.Actions(audit.ActionQueueWorkerError)
	require.Len(t, entries, 1)
	assert.Equal(t, "connection refused", entries[0].Details["error"])
}

func TestStartStop_WakeTriggersPoll(t *testing.T) {
	f := newFixture(t)
	wake := make(chan struct{}, 1)

	var handled atomic.Int32
	done := make(chan struct{})
	var once sync.Once
	w := New(f.queue, WorkerConfig{WorkerID: "w1", PollInterval: time.Hour}, WithWake(wake))
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
		handled.Add(1)
		once.Do(func() { close(done) })
		return nil, nil
	})

	w.Start(context.Background())
	// The first poll runs immediately on an empty queue.
	time.Sleep(20 * time.Millisecond)

	f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 3)
	wake <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wake signal did not trigger a poll")
	}

	w.Stop()
	w.Stop()
	assert.Equal(t, int32(1), handled.Load())
}

func TestStop_WaitsForInFlightTask(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, taskqueue.TaskTypeOCRProcessing, "doc-1", 3)

	started := make(chan struct{})
	release := make(chan struct{})
	w := New(f.queue, WorkerConfig{WorkerID: "w1", PollInterval: time.Hour})
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, func(ctx context.Context, task taskqueue.Task) (any, error) {
		close(started)
		<-release
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	<-started

	stopped := make(chan struct{})
	go func() {
		cancel()
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight task finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped

	// Handler context is detached from shutdown, so the task completes.
	assert.Equal(t, taskqueue.StatusCompleted, f.get(t, id).Status)
}

func TestHandlers_ProcessorAndRedaction(t *testing.T) {
	f := newFixture(t)

	var gotParams map[string]any
	proc := processing.ProcessorFunc(func(ctx context.Context, docID string, params map[string]any) (*processing.Result, error) {
		gotParams = params
		return &processing.Result{DocumentID: docID, Status: "processed"}, nil
	})

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.Register(Handlers{Processors: map[taskqueue.TaskType]processing.Processor{
		taskqueue.TaskTypeRedaction: proc,
	}})
	assert.Equal(t, []taskqueue.TaskType{taskqueue.TaskTypeRedaction}, w.Handled())

	id := f.enqueue(t, taskqueue.TaskTypeRedaction, "doc-7", 3)
	w.ProcessBatch(context.Background(), "w1")

	assert.Equal(t, taskqueue.StatusCompleted, f.get(t, id).Status)
	assert.Equal(t, DefaultPIITypes, gotParams["pii_types"])
}

func TestHandlers_MalformedPayloadIsPermanent(t *testing.T) {
	f := newFixture(t)
	id, err := f.queue.Enqueue(context.Background(), taskqueue.EnqueueInput{
		TaskType:    taskqueue.TaskTypeOCRProcessing,
		Payload:     map[string]string{"unexpected": "shape"},
		MaxAttempts: 5,
	})
	require.NoError(t, err)

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.RegisterHandler(taskqueue.TaskTypeOCRProcessing, ProcessorHandler(processing.ProcessorFunc(
		func(ctx context.Context, docID string, params map[string]any) (*processing.Result, error) {
			t.Fatal("processor must not be called")
			return nil, nil
		})))
	w.ProcessBatch(context.Background(), "w1")

	assert.Equal(t, taskqueue.StatusFailed, f.get(t, id).Status)
}

func TestHandlers_Transfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "documents/doc-1/deed.pdf", []byte("%PDF deed"), nil))

	creation := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := lifecycle.NewMemoryStore(retention.Document{
		ID: "doc-1", Title: "Land deed", Status: retention.StatusAwaitingTransfer,
		RetentionCategory: retention.CategoryPermanent, CreationDate: &creation,
	})

	w := New(f.queue, WorkerConfig{WorkerID: "w1"})
	w.Register(Handlers{Packager: transfer.NewPackager(store, transfer.DefaultConfig(), nil), Documents: docs})

	id := f.enqueue(t, taskqueue.TaskTypeTransferPrep, "doc-1", 3)
	missing := f.enqueue(t, taskqueue.TaskTypeTransferPrep, "doc-404", 3)
	w.ProcessBatch(ctx, "w1")

	done := f.get(t, id)
	assert.Equal(t, taskqueue.StatusCompleted, done.Status)
	assert.Contains(t, string(done.Result), `"key":"transfers/doc-1.zip"`)

	ok, err := store.Exists(ctx, "transfers/doc-1.zip")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, taskqueue.StatusFailed, f.get(t, missing).Status, "unknown document fails without retry")
}

type stubRunner struct {
	summary *lifecycle.RunSummary
	err     error
}

func (s stubRunner) RunOnce(context.Context) (*lifecycle.RunSummary, error) {
	return s.summary, s.err
}

func TestHandlers_LifecycleCheck(t *testing.T) {
	t.Run("runs and stores the summary", func(t *testing.T) {
		f := newFixture(t)
		w := New(f.queue, WorkerConfig{WorkerID: "w1"})
		w.Register(Handlers{Lifecycle: stubRunner{summary: &lifecycle.RunSummary{Checked: 12}}})

		id := f.enqueue(t, taskqueue.TaskTypeLifecycleCheck, "system", 3)
		w.ProcessBatch(context.Background(), "w1")

		task := f.get(t, id)
		assert.Equal(t, taskqueue.StatusCompleted, task.Status)
		assert.Contains(t, string(task.Result), `"checked":12`)
	})

	t.Run("lock held elsewhere is a no-op success", func(t *testing.T) {
		f := newFixture(t)
		w := New(f.queue, WorkerConfig{WorkerID: "w1"})
		w.Register(Handlers{Lifecycle: stubRunner{err: lifecycle.ErrLockHeld}})

		id := f.enqueue(t, taskqueue.TaskTypeLifecycleCheck, "system", 3)
		w.ProcessBatch(context.Background(), "w1")

		task := f.get(t, id)
		assert.Equal(t, taskqueue.StatusCompleted, task.Status)
		assert.Contains(t, string(task.Result), `"skipped":true`)
	})
}
