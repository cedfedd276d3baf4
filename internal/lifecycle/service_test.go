package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarchive/retention-service/internal/audit"
	"github.com/openarchive/retention-service/internal/retention"
	"github.com/openarchive/retention-service/internal/taskqueue"
)

var now = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func document(id string, cat retention.Category, created time.Time, status retention.DocumentStatus) retention.Document {
	return retention.Document{ID: id, Title: "Doc " + id, Status: status, RetentionCategory: cat, CreationDate: &created}
}

// fixture: one permanent doc due for transfer, two expired, one in review
// window, one untouched.
func fixtureDocs() []retention.Document {
	return []retention.Document{
		document("perm-old", retention.CategoryPermanent, now.AddDate(-40, 0, 0), retention.StatusActiveStorage),
		document("exp-1", retention.Category3Y, now.AddDate(-4, 0, 0), retention.StatusActiveStorage),
		document("exp-2", retention.Category5Y, now.AddDate(-6, 0, 0), retention.StatusReview),
		document("soon", retention.Category10Y, now.AddDate(-10, 0, 30), retention.StatusActiveStorage),
		document("fresh", retention.Category30Y, now.AddDate(-1, 0, 0), retention.StatusActiveStorage),
		document("gone", retention.Category3Y, now.AddDate(-9, 0, 0), retention.StatusTransferred),
	}
}

type failingEnqueuer struct {
	inner  Enqueuer
	failOn string
}

func (f *failingEnqueuer) Enqueue(ctx context.Context, in taskqueue.EnqueueInput) (string, error) {
	if p, ok := in.Payload.(taskqueue.DocumentPayload); ok && p.DocumentID == f.failOn {
		return "", errors.New("queue unavailable")
	}
	return f.inner.Enqueue(ctx, in)
}

type fixture struct {
	svc   *Service
	store *MemoryStore
	queue *taskqueue.TaskQueue
	rec   *audit.Recorder
}

func newFixture(t *testing.T, cfg Config, docs ...retention.Document) *fixture {
	t.Helper()
	store := NewMemoryStore(docs...)
	rec := &audit.Recorder{}
	q := taskqueue.New(taskqueue.NewMemoryStore(), taskqueue.WithClock(clock))
	svc := NewService(store, q, cfg, WithClock(clock), WithAudit(rec))
	return &fixture{svc: svc, store: store, queue: q, rec: rec}
}

func statusOf(t *testing.T, s *MemoryStore, id string) retention.DocumentStatus {
	t.Helper()
	d, err := s.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return d.Status
}

func TestRun_DefaultFlags(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fixtureDocs()...)
	ctx := context.Background()

	summary, err := f.svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Checked)
	assert.Equal(t, 1, summary.ToTransfer)
	assert.Equal(t, 2, summary.ToDestroy)
	assert.Equal(t, 1, summary.PendingReview)
	assert.Equal(t, 1, summary.QueuedForTransfer)
	assert.Equal(t, 0, summary.ScheduledDestroy)
	assert.Equal(t, 2, summary.ApprovalsRequested)
	assert.Equal(t, 1, summary.MarkedForReview)
	assert.Zero(t, summary.Failures)

	// Transfer queued at priority 3 with the document payload.
	tasks, err := f.queue.List(ctx, taskqueue.ListFilter{TaskType: taskqueue.TaskTypeTransferPrep})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 3, tasks[0].Priority)
	var payload taskqueue.DocumentPayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &payload))
	assert.Equal(t, "perm-old", payload.DocumentID)

	assert.Equal(t, retention.StatusAwaitingTransfer, statusOf(t, f.store, "perm-old"))
	// Destruction is off by default: expired docs keep their status.
	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, f.store, "exp-1"))
	assert.Equal(t, retention.StatusReview, statusOf(t, f.store, "exp-2"))
	assert.Equal(t, retention.StatusReview, statusOf(t, f.store, "soon"))
	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, f.store, "fresh"))

	approvals, err := f.svc.ListApprovals(ctx, ApprovalPending)
	require.NoError(t, err)
	assert.Len(t, approvals, 2)

	assert.Len(t, f.rec.Actions(audit.ActionQueuedForTransfer), 1)
	assert.Len(t, f.rec.Actions(audit.ActionApprovalRequired), 2)
	assert.Len(t, f.rec.Actions(audit.ActionMarkedForReview), 1, "review marking is one batch")
	assert.Len(t, f.rec.Actions(audit.ActionLifecycleComplete), 1)
	assert.Empty(t, f.rec.Actions(audit.ActionScheduledDestroy))
}

func TestRun_SecondRunDoesNotDuplicate(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fixtureDocs()...)
	ctx := context.Background()

	_, err := f.svc.Run(ctx)
	require.NoError(t, err)
	summary, err := f.svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ToTransfer, "document left the candidate set")
	assert.Equal(t, 0, summary.ApprovalsRequested, "pending approvals are not duplicated")
	assert.Equal(t, 0, summary.PendingReview, "documents in review are not re-marked")

	stats, err := f.queue.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingByType[taskqueue.TaskTypeTransferPrep])
}

func TestRun_AutoDestruction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAutoDestruction = true
	f := newFixture(t, cfg, fixtureDocs()...)

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ScheduledDestroy)
	assert.Equal(t, 0, summary.ApprovalsRequested)
	assert.Equal(t, retention.StatusDestroy, statusOf(t, f.store, "exp-1"))
	assert.Equal(t, retention.StatusDestroy, statusOf(t, f.store, "exp-2"))
	assert.Len(t, f.rec.Actions(audit.ActionScheduledDestroy), 2)
}

func TestRun_AllActionsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAutoTransfer = false
	cfg.EnableAutoReview = false
	f := newFixture(t, cfg, fixtureDocs()...)
	ctx := context.Background()

	summary, err := f.svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ToTransfer, "still flagged in the summary")
	assert.Equal(t, 0, summary.QueuedForTransfer)
	assert.Equal(t, 0, summary.MarkedForReview)
	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, f.store, "perm-old"))
	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, f.store, "soon"))

	stats, err := f.queue.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestRun_IsolatesPerDocumentFailures(t *testing.T) {
	docs := append(fixtureDocs(),
		document("perm-old-2", retention.CategoryPermanent, now.AddDate(-35, 0, 0), retention.StatusActiveStorage),
	)
	store := NewMemoryStore(docs...)
	store.FailUpdateFor["exp-1"] = true
	rec := &audit.Recorder{}
	q := taskqueue.New(taskqueue.NewMemoryStore(), taskqueue.WithClock(clock))
	cfg := DefaultConfig()
	cfg.EnableAutoDestruction = true
	svc := NewService(store, &failingEnqueuer{inner: q, failOn: "perm-old"}, cfg, WithClock(clock), WithAudit(rec))

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Failures)
	assert.Len(t, summary.Errors, 2)
	assert.Equal(t, 1, summary.QueuedForTransfer)
	assert.Equal(t, 1, summary.ScheduledDestroy)
	assert.Equal(t, 1, summary.MarkedForReview)

	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, store, "perm-old"))
	assert.Equal(t, retention.StatusAwaitingTransfer, statusOf(t, store, "perm-old-2"))
	assert.Equal(t, retention.StatusDestroy, statusOf(t, store, "exp-2"))
	assert.Len(t, rec.Actions(audit.ActionLifecycleComplete), 1)
}

func TestCheck_DoesNotAct(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fixtureDocs()...)

	res, err := f.svc.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"perm-old"}, res.ToTransfer)
	assert.ElementsMatch(t, []string{"exp-1", "exp-2"}, res.ToDestroy)
	assert.Equal(t, []string{"soon"}, res.PendingReview)
	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, f.store, "perm-old"))
	assert.Empty(t, f.rec.Entries())
}

func TestScheduleDestruction_RefusesPermanent(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fixtureDocs()...)
	d, err := f.store.GetDocument(context.Background(), "perm-old")
	require.NoError(t, err)

	err = f.svc.ScheduleDestruction(context.Background(), *d, "operator")
	require.Error(t, err)
	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, f.store, "perm-old"))
}

func TestApproveAndRejectDestruction(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fixtureDocs()...)
	ctx := context.Background()

	_, err := f.svc.Run(ctx)
	require.NoError(t, err)
	approvals, err := f.svc.ListApprovals(ctx, ApprovalPending)
	require.NoError(t, err)
	require.Len(t, approvals, 2)

	byDoc := map[string]Approval{}
	for _, a := range approvals {
		byDoc[a.DocumentID] = a
	}

	approved, err := f.svc.ApproveDestruction(ctx, byDoc["exp-1"].ID, "archivist@example.org")
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, approved.Status)
	assert.Equal(t, retention.StatusDestroy, statusOf(t, f.store, "exp-1"))

	rejected, err := f.svc.RejectDestruction(ctx, byDoc["exp-2"].ID, "archivist@example.org")
	require.NoError(t, err)
	assert.Equal(t, ApprovalRejected, rejected.Status)
	assert.Equal(t, retention.StatusReview, statusOf(t, f.store, "exp-2"))

	_, err = f.svc.ApproveDestruction(ctx, byDoc["exp-2"].ID, "someone")
	assert.ErrorIs(t, err, ErrApprovalResolved)
	_, err = f.svc.RejectDestruction(ctx, "nope", "someone")
	assert.True(t, IsNotFound(err))

	assert.Len(t, f.rec.Actions(audit.ActionApprovalResolved), 2)
}

func TestMarkForReview_Empty(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	n, err := f.svc.MarkForReview(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.rec.Entries())
}

func TestCheck_DestroysOnEndDate(t *testing.T) {
	f := newFixture(t, DefaultConfig(),
		document("edge", retention.Category3Y, now.AddDate(-3, 0, 0), retention.StatusActiveStorage),
		document("edge-review", retention.Category5Y, now.AddDate(-5, 0, 0), retention.StatusReview),
	)

	res, err := f.svc.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"edge", "edge-review"}, res.ToDestroy)
	assert.Empty(t, res.PendingReview)
}

func TestApproveDestruction_FailureKeepsApprovalPending(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fixtureDocs()...)
	ctx := context.Background()

	_, err := f.svc.Run(ctx)
	require.NoError(t, err)
	approvals, err := f.svc.ListApprovals(ctx, ApprovalPending)
	require.NoError(t, err)
	var id string
	for _, a := range approvals {
		if a.DocumentID == "exp-1" {
			id = a.ID
		}
	}
	require.NotEmpty(t, id)

	f.store.FailUpdateFor["exp-1"] = true
	_, err = f.svc.ApproveDestruction(ctx, id, "archivist@example.org")
	require.Error(t, err)

	pending, err := f.svc.ListApprovals(ctx, ApprovalPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "failed approval stays pending")
	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, f.store, "exp-1"))
	assert.Empty(t, f.rec.Actions(audit.ActionApprovalResolved))

	delete(f.store.FailUpdateFor, "exp-1")
	approved, err := f.svc.ApproveDestruction(ctx, id, "archivist@example.org")
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, approved.Status)
	assert.Equal(t, retention.StatusDestroy, statusOf(t, f.store, "exp-1"))
	assert.Len(t, f.rec.Actions(audit.ActionApprovalResolved), 1)
	assert.Len(t, f.rec.Actions(audit.ActionScheduledDestroy), 1)
}

func TestApproveDestruction_DocumentLeftCandidates(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fixtureDocs()...)
	ctx := context.Background()

	approval := &Approval{DocumentID: "gone", Status: ApprovalPending, RequestedAt: now}
	_, err := f.store.CreateApproval(ctx, approval)
	require.NoError(t, err)

	_, err = f.svc.ApproveDestruction(ctx, approval.ID, "someone")
	assert.ErrorIs(t, err, ErrDocumentState)
	assert.Equal(t, retention.StatusTransferred, statusOf(t, f.store, "gone"))

	pending, err := f.svc.ListApprovals(ctx, ApprovalPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMarkForReview_OnlyActiveStorage(t *testing.T) {
	f := newFixture(t, DefaultConfig(),
		document("d", retention.Category3Y, now.AddDate(-5, 0, 0), retention.StatusDestroy),
		document("t", retention.CategoryPermanent, now.AddDate(-40, 0, 0), retention.StatusTransferred),
		document("w", retention.CategoryPermanent, now.AddDate(-40, 0, 0), retention.StatusAwaitingTransfer),
		document("a", retention.Category10Y, now.AddDate(-9, 0, 0), retention.StatusActiveStorage),
	)
	ctx := context.Background()

	n, err := f.svc.MarkForReview(ctx, []string{"d", "t", "w"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, retention.StatusDestroy, statusOf(t, f.store, "d"))
	assert.Equal(t, retention.StatusTransferred, statusOf(t, f.store, "t"))
	assert.Equal(t, retention.StatusAwaitingTransfer, statusOf(t, f.store, "w"))
	assert.Empty(t, f.rec.Actions(audit.ActionMarkedForReview))

	n, err = f.svc.MarkForReview(ctx, []string{"d", "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, retention.StatusReview, statusOf(t, f.store, "a"))
	assert.Equal(t, retention.StatusDestroy, statusOf(t, f.store, "d"))
}

func TestQueueForTransfer_StatusFailureEnqueuesNothing(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fixtureDocs()...)
	ctx := context.Background()
	f.store.FailUpdateFor["perm-old"] = true

	d, err := f.store.GetDocument(ctx, "perm-old")
	require.NoError(t, err)
	_, err = f.svc.QueueForTransfer(ctx, *d, "retention ended")
	require.Error(t, err)

	stats, err := f.queue.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total, "no task without the status change")

	delete(f.store.FailUpdateFor, "perm-old")
	summary, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.QueuedForTransfer)

	stats, err = f.queue.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingByType[taskqueue.TaskTypeTransferPrep])
}

func TestQueueForTransfer_EnqueueFailureRestoresStatus(t *testing.T) {
	store := NewMemoryStore(fixtureDocs()...)
	q := taskqueue.New(taskqueue.NewMemoryStore(), taskqueue.WithClock(clock))
	svc := NewService(store, &failingEnqueuer{inner: q, failOn: "perm-old"}, DefaultConfig(), WithClock(clock))
	ctx := context.Background()

	d, err := store.GetDocument(ctx, "perm-old")
	require.NoError(t, err)
	_, err = svc.QueueForTransfer(ctx, *d, "retention ended")
	require.ErrorContains(t, err, "queue unavailable")
	assert.Equal(t, retention.StatusActiveStorage, statusOf(t, store, "perm-old"))

	_, err = svc.QueueForTransfer(ctx, retention.Document{ID: "gone"}, "retention ended")
	assert.ErrorIs(t, err, ErrDocumentState)
}
