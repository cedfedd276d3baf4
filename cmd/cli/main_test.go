package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarchive/retention-service/internal/lifecycle"
	"github.com/openarchive/retention-service/internal/retention"
	"github.com/openarchive/retention-service/internal/taskqueue"
)

var testNow = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func newQueue() *taskqueue.TaskQueue {
	return taskqueue.New(taskqueue.NewMemoryStore(), taskqueue.WithClock(clock))
}

func newLifecycle(q *taskqueue.TaskQueue) *lifecycle.Service {
	created := testNow.AddDate(-4, 0, 0)
	fresh := testNow.AddDate(-1, 0, 0)
	docs := lifecycle.NewMemoryStore(
		retention.Document{ID: "exp-1", Title: "Expired", Status: retention.StatusActiveStorage, RetentionCategory: retention.Category3Y, CreationDate: &created},
		retention.Document{ID: "fresh", Title: "Fresh", Status: retention.StatusActiveStorage, RetentionCategory: retention.Category30Y, CreationDate: &fresh},
	)
	return lifecycle.NewService(docs, q, lifecycle.DefaultConfig(), lifecycle.WithClock(clock))
}

func TestCommandTree(t *testing.T) {
	want := [][]string{
		{"migrate", "up"},
		{"migrate", "status"},
		{"enqueue"},
		{"queue", "stats"},
		{"queue", "list"},
		{"queue", "show"},
		{"queue", "retry"},
		{"queue", "cleanup"},
		{"queue", "recover"},
		{"lifecycle", "check"},
		{"lifecycle", "run"},
		{"lifecycle", "report"},
		{"lifecycle", "review"},
		{"lifecycle", "approvals"},
		{"lifecycle", "approve"},
		{"lifecycle", "reject"},
		{"worker"},
	}
	for _, path := range want {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestBuildEnqueueInput(t *testing.T) {
	t.Run("document task", func(t *testing.T) {
		in, err := buildEnqueueInput("OCR_PROCESSING", enqueueOptions{DocumentID: "doc-1", Priority: 3}, testNow)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.TaskTypeOCRProcessing, in.TaskType)
		assert.Equal(t, 3, in.Priority)
		assert.Nil(t, in.ScheduledFor)
		assert.Equal(t, taskqueue.DocumentPayload{DocumentID: "doc-1"}, in.Payload)
	})

	t.Run("delay schedules in the future", func(t *testing.T) {
		in, err := buildEnqueueInput("LIFECYCLE_CHECK", enqueueOptions{Delay: time.Hour}, testNow)
		require.NoError(t, err)
		require.NotNil(t, in.ScheduledFor)
		assert.Equal(t, testNow.Add(time.Hour), *in.ScheduledFor)
		assert.Nil(t, in.Payload)
	})

	t.Run("raw payload", func(t *testing.T) {
		in, err := buildEnqueueInput("REDACTION", enqueueOptions{Payload: `{"document_id":"d","params":{"pii_types":["EMAIL"]}}`, DocumentID: "ignored"}, testNow)
		require.NoError(t, err)
		assert.JSONEq(t, `{"document_id":"d","params":{"pii_types":["EMAIL"]}}`, string(in.Payload.(json.RawMessage)))
	})

	for name, tc := range map[string]struct {
		taskType string
		opts     enqueueOptions
		errPart  string
	}{
		"unknown type":     {"PRINTING", enqueueOptions{}, "Valid task types"},
		"missing document": {"TRANSFER_PREP", enqueueOptions{}, "requires --document-id"},
		"invalid payload":  {"REDACTION", enqueueOptions{Payload: "{nope"}, "not valid JSON"},
		"negative delay":   {"LIFECYCLE_CHECK", enqueueOptions{Delay: -time.Second}, "negative"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := buildEnqueueInput(tc.taskType, tc.opts, testNow)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errPart)
		})
	}
}

func TestBuildListFilter(t *testing.T) {
	f, err := buildListFilter("failed", "REDACTION", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.ListFilter{Status: taskqueue.StatusFailed, TaskType: taskqueue.TaskTypeRedaction, Limit: 10, Offset: 5}, f)

	_, err = buildListFilter("stuck", "", 10, 0)
	assert.Error(t, err)
	_, err = buildListFilter("", "PRINTING", 10, 0)
	assert.Error(t, err)
}

func TestQueueCommands(t *testing.T) {
	ctx := context.Background()
	q := newQueue()

	var out bytes.Buffer
	require.NoError(t, runEnqueue(ctx, q, taskqueue.EnqueueInput{
		TaskType: taskqueue.TaskTypeOCRProcessing,
		Payload:  taskqueue.DocumentPayload{DocumentID: "doc-1"},
	}, &out))
	id := strings.TrimSpace(out.String())
	require.NotEmpty(t, id)

	out.Reset()
	require.NoError(t, runQueueStats(ctx, q, &out))
	assert.Contains(t, out.String(), "pending")
	assert.Contains(t, out.String(), "OCR_PROCESSING")

	out.Reset()
	require.NoError(t, runQueueList(ctx, q, taskqueue.ListFilter{Limit: 10}, &out))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "0/3")

	out.Reset()
	require.NoError(t, runQueueShow(ctx, q, id, &out))
	var task taskqueue.Task
	require.NoError(t, json.Unmarshal(out.Bytes(), &task))
	assert.Equal(t, id, task.ID)

	out.Reset()
	err := runQueueRetry(ctx, q, []string{id, "missing"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2")
	assert.Contains(t, out.String(), id+"\tFAILED")

	out.Reset()
	require.NoError(t, runQueueCleanup(ctx, q, 30, &out))
	assert.Equal(t, "Deleted 0 tasks older than 30 days\n", out.String())

	out.Reset()
	require.NoError(t, runQueueRecover(ctx, q, time.Hour, &out))
	assert.Equal(t, "Requeued 0, failed 0 stuck tasks\n", out.String())
}

func TestQueueRetryRequeuesFailedTask(t *testing.T) {
	ctx := context.Background()
	q := newQueue()
	id, err := q.Enqueue(ctx, taskqueue.EnqueueInput{TaskType: taskqueue.TaskTypeLifecycleCheck, MaxAttempts: 1})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, taskqueue.ClaimInput{WorkerID: "w", Limit: 1})
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, id, taskqueue.Outcome{Success: false, Error: "boom"}))

	var out bytes.Buffer
	require.NoError(t, runQueueRetry(ctx, q, []string{id}, &out))
	assert.Equal(t, id+"\tREQUEUED\n", out.String())

	task, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusPending, task.Status)
	assert.Zero(t, task.Attempts)
}

type stubRunner struct {
	summary *lifecycle.RunSummary
	err     error
}

func (s stubRunner) RunOnce(context.Context) (*lifecycle.RunSummary, error) { return s.summary, s.err }

func TestLifecycleCommands(t *testing.T) {
	ctx := context.Background()
	svc := newLifecycle(newQueue())

	t.Run("check", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runLifecycleCheck(ctx, svc, &out))
		assert.Contains(t, out.String(), "Checked 2 documents")
		assert.Contains(t, out.String(), "exp-1")
		assert.NotContains(t, out.String(), "fresh")
	})

	t.Run("run", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runLifecycleRun(ctx, stubRunner{summary: &lifecycle.RunSummary{Checked: 4, ScheduledDestroy: 1}}, &out))
		assert.Contains(t, out.String(), "scheduled for destruction")

		out.Reset()
		require.NoError(t, runLifecycleRun(ctx, stubRunner{err: lifecycle.ErrLockHeld}, &out))
		assert.Contains(t, out.String(), "Another instance")

		err := runLifecycleRun(ctx, stubRunner{summary: &lifecycle.RunSummary{Failures: 2, Errors: []string{"x"}}}, &out)
		assert.ErrorContains(t, err, "2 failures")

		err = runLifecycleRun(ctx, stubRunner{err: errors.New("db down")}, &out)
		assert.ErrorContains(t, err, "db down")
	})

	t.Run("report to stdout", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runLifecycleReport(ctx, svc, 90, "", &out))
		var report lifecycle.Report
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
		assert.Equal(t, 90, report.DaysAhead)
		assert.Equal(t, 1, report.Summary.ToDestroy)
	})

	t.Run("report to xlsx", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.xlsx")
		var out bytes.Buffer
		require.NoError(t, runLifecycleReport(ctx, svc, 90, path, &out))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("PK")))
		assert.Contains(t, out.String(), path)
	})

	t.Run("approvals", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runListApprovals(ctx, svc, lifecycle.ApprovalPending, &out))
		assert.Contains(t, out.String(), "DOCUMENT")

		err := runResolve(ctx, svc.ApproveDestruction, "missing", "alex", &out)
		assert.True(t, lifecycle.IsNotFound(err))
	})
}

func TestParseApprovalStatus(t *testing.T) {
	s, err := parseApprovalStatus("all")
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = parseApprovalStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ApprovalApproved, s)

	_, err = parseApprovalStatus("maybe")
	assert.Error(t, err)
}

func TestJoinIDs(t *testing.T) {
	assert.Equal(t, "-", joinIDs(nil))
	assert.Equal(t, "a, b", joinIDs([]string{"a", "b"}))
	assert.Equal(t, "1, 2, 3, 4, 5 (+2 more)", joinIDs([]string{"1", "2", "3", "4", "5", "6", "7"}))
}
