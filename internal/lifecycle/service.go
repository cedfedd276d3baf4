// Package lifecycle applies retention decisions to archived documents.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openarchive/retention-service/internal/audit"
	"github.com/openarchive/retention-service/internal/retention"
	"github.com/openarchive/retention-service/internal/taskqueue"
)

var tracer = otel.Tracer("github.com/openarchive/retention-service/internal/lifecycle")

// Enqueuer is the part of the task queue the lifecycle needs
type Enqueuer interface {
	Enqueue(ctx context.Context, input taskqueue.EnqueueInput) (string, error)
}

type Config struct {
	Retention             retention.Config
	EnableAutoTransfer    bool
	EnableAutoDestruction bool
	EnableAutoReview      bool
	TransferPriority      int
}

func DefaultConfig() Config {
	return Config{
		Retention:          retention.DefaultConfig(),
		EnableAutoTransfer: true,
		EnableAutoReview:   true,
		TransferPriority:   3,
	}
}

// RunSummary reports what a lifecycle run found and did
type RunSummary struct {
	StartedAt          time.Time `json:"started_at"`
	DurationMs         int64     `json:"duration_ms"`
	Checked            int       `json:"checked"`
	Skipped            int       `json:"skipped"`
	ToTransfer         int       `json:"to_transfer"`
	ToDestroy          int       `json:"to_destroy"`
	PendingReview      int       `json:"pending_review"`
	QueuedForTransfer  int       `json:"queued_for_transfer"`
	ScheduledDestroy   int       `json:"scheduled_for_destruction"`
	ApprovalsRequested int       `json:"approvals_requested"`
	MarkedForReview    int       `json:"marked_for_review"`
	Failures           int       `json:"failures"`
	Errors             []string  `json:"errors,omitempty"`
}

func (s *RunSummary) fail(err error) {
	s.Failures++
	s.Errors = append(s.Errors, err.Error())
}

// CheckResult is a dry-run classification
type CheckResult struct {
	CheckedAt     time.Time `json:"checked_at"`
	Checked       int       `json:"checked"`
	Skipped       int       `json:"skipped"`
	ToTransfer    []string  `json:"to_transfer"`
	ToDestroy     []string  `json:"to_destroy"`
	PendingReview []string  `json:"pending_review"`
}

type Service struct {
	store     Store
	queue     Enqueuer
	evaluator *retention.Evaluator
	cfg       Config
	audit     audit.Sink
	logger    *zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithAudit(sink audit.Sink) Option {
	return func(s *Service) { s.audit = sink }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, queue Enqueuer, cfg Config, opts ...Option) *Service {
	nop := zerolog.Nop()
	s := &Service{
		store:  store,
		queue:  queue,
		cfg:    cfg,
		logger: &nop,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.evaluator = retention.NewEvaluator(cfg.Retention, s.logger)
	return s
}

func (s *Service) Config() Config {
	return s.cfg
}

// Check classifies the candidate population without acting on it
func (s *Service) Check(ctx context.Context) (*CheckResult, error) {
	now := s.now()
	docs, err := s.store.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle candidates: %w", err)
	}

	res := s.evaluator.Evaluate(docs, now)
	return &CheckResult{
		CheckedAt:     now,
		Checked:       len(docs),
		Skipped:       res.Skipped,
		ToTransfer:    retention.IDs(res.ToTransfer),
		ToDestroy:     retention.IDs(res.ToDestroy),
		PendingReview: retention.IDs(res.PendingReview),
	}, nil
}

// Run evaluates every candidate and applies the enabled actions. A failure
// on one document is counted and does not stop the others. Only a failure
// to load candidates is returned as an error.
func (s *Service) Run(ctx context.Context) (*RunSummary, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.run")
	defer span.End()

	start := s.now()
	summary := &RunSummary{StartedAt: start}

	docs, err := s.store.ListCandidates(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list candidates")
		runsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list lifecycle candidates: %w", err)
	}

	res := s.evaluator.Evaluate(docs, start)
	summary.Checked = len(docs)
	summary.Skipped = res.Skipped
	summary.ToTransfer = len(res.ToTransfer)
	summary.ToDestroy = len(res.ToDestroy)
	summary.PendingReview = len(res.PendingReview)

	classifiedDocuments.WithLabelValues("transfer").Set(float64(summary.ToTransfer))
	classifiedDocuments.WithLabelValues("destroy").Set(float64(summary.ToDestroy))
	classifiedDocuments.WithLabelValues("review").Set(float64(summary.PendingReview))

	s.logger.Info().
		Str("component", "lifecycle").
		Int("checked", summary.Checked).
		Int("to_transfer", summary.ToTransfer).
		Int("to_destroy", summary.ToDestroy).
		Int("pending_review", summary.PendingReview).
		Msg("Lifecycle evaluation complete")

	for _, doc := range res.ToTransfer {
		if !s.cfg.EnableAutoTransfer {
			continue
		}
		if _, err := s.QueueForTransfer(ctx, doc, "Retention period ended for permanent document"); err != nil {
			s.logger.Error().Err(err).Str("component", "lifecycle").Str("document_id", doc.ID).Msg("Failed to queue document for transfer")
			summary.fail(err)
			continue
		}
		summary.QueuedForTransfer++
	}

	for _, doc := range res.ToDestroy {
		if s.cfg.EnableAutoDestruction {
			if err := s.ScheduleDestruction(ctx, doc, "Retention period expired"); err != nil {
				s.logger.Error().Err(err).Str("component", "lifecycle").Str("document_id", doc.ID).Msg("Failed to schedule destruction")
				summary.fail(err)
				continue
			}
			summary.ScheduledDestroy++
			continue
		}

		created, err := s.RequireDestructionApproval(ctx, doc)
		if err != nil {
			s.logger.Error().Err(err).Str("component", "lifecycle").Str("document_id", doc.ID).Msg("Failed to create destruction approval")
			summary.fail(err)
			continue
		}
		if created {
			summary.ApprovalsRequested++
		}
	}

	if s.cfg.EnableAutoReview && len(res.PendingReview) > 0 {
		n, err := s.MarkForReview(ctx, retention.IDs(res.PendingReview))
		if err != nil {
			s.logger.Error().Err(err).Str("component", "lifecycle").Int("documents", len(res.PendingReview)).Msg("Failed to mark documents for review")
			summary.fail(err)
		} else {
			summary.MarkedForReview = int(n)
		}
	}

	summary.DurationMs = s.now().Sub(start).Milliseconds()
	runDuration.Observe(float64(summary.DurationMs) / 1000)
	runsTotal.WithLabelValues("success").Inc()

	span.SetAttributes(
		attribute.Int("lifecycle.checked", summary.Checked),
		attribute.Int("lifecycle.failures", summary.Failures),
	)

	s.record(ctx, audit.ActionLifecycleComplete, audit.EntityLifecycle, "", map[string]any{
		"checked":                  summary.Checked,
		"transfer_count":           summary.ToTransfer,
		"destroy_count":            summary.ToDestroy,
		"review_count":             summary.PendingReview,
		"queued_for_transfer":      summary.QueuedForTransfer,
		"scheduled_destruction":    summary.ScheduledDestroy,
		"approvals_requested":      summary.ApprovalsRequested,
		"marked_for_review":        summary.MarkedForReview,
		"failures":                 summary.Failures,
		"auto_transfer_enabled":    s.cfg.EnableAutoTransfer,
		"auto_destruction_enabled": s.cfg.EnableAutoDestruction,
		"auto_review_enabled":      s.cfg.EnableAutoReview,
	})

	return summary, nil
}

// QueueForTransfer marks doc AWAITING_TRANSFER, which removes it from later
// candidate sets, and then enqueues TRANSFER_PREP. A failed enqueue puts
// the previous status back.
func (s *Service) QueueForTransfer(ctx context.Context, doc retention.Document, reason string) (string, error) {
	n, err := s.store.TransitionStatus(ctx, []string{doc.ID}, retention.CandidateStatuses(), retention.StatusAwaitingTransfer, s.now())
	if err == nil && n == 0 {
		err = fmt.Errorf("document %s is no longer a lifecycle candidate: %w", doc.ID, ErrDocumentState)
	}
	if err != nil {
		recordAction("transfer", err)
		return "", fmt.Errorf("mark %s awaiting transfer: %w", doc.ID, err)
	}

	taskID, err := s.queue.Enqueue(ctx, taskqueue.EnqueueInput{
		TaskType: taskqueue.TaskTypeTransferPrep,
		Payload:  taskqueue.DocumentPayload{DocumentID: doc.ID, Reason: reason},
		Priority: s.cfg.TransferPriority,
	})
	recordAction("transfer", err)
	if err != nil {
		s.restoreStatus(ctx, doc, retention.StatusAwaitingTransfer)
		return "", fmt.Errorf("enqueue transfer for %s: %w", doc.ID, err)
	}

	s.record(ctx, audit.ActionQueuedForTransfer, audit.EntityDocument, doc.ID, map[string]any{
		"reason":  reason,
		"task_id": taskID,
	})
	return taskID, nil
}

func (s *Service) restoreStatus(ctx context.Context, doc retention.Document, from retention.DocumentStatus) {
	prev := doc.Status
	if prev == "" {
		prev = retention.StatusActiveStorage
	}
	if _, err := s.store.TransitionStatus(ctx, []string{doc.ID}, []retention.DocumentStatus{from}, prev, s.now()); err != nil {
		s.logger.Error().
			Err(err).
			Str("component", "lifecycle").
			Str("document_id", doc.ID).
			Str("status", string(from)).
			Msg("Failed to restore document status")
	}
}

// ScheduleDestruction marks doc DESTROY for the document store's purge
func (s *Service) ScheduleDestruction(ctx context.Context, doc retention.Document, reason string) error {
	if cat, _ := retention.Normalize(doc.RetentionCategory); cat.Permanent() {
		return fmt.Errorf("document %s has permanent retention and cannot be destroyed: %w", doc.ID, ErrDocumentState)
	}

	n, err := s.store.TransitionStatus(ctx, []string{doc.ID}, retention.CandidateStatuses(), retention.StatusDestroy, s.now())
	if err == nil && n == 0 {
		err = fmt.Errorf("document %s is no longer a lifecycle candidate: %w", doc.ID, ErrDocumentState)
	}
	recordAction("destroy", err)
	if err != nil {
		return fmt.Errorf("mark %s for destruction: %w", doc.ID, err)
	}

	s.record(ctx, audit.ActionScheduledDestroy, audit.EntityDocument, doc.ID, map[string]any{
		"reason":             reason,
		"retention_category": string(doc.RetentionCategory),
	})
	return nil
}

// RequireDestructionApproval records that doc awaits an operator decision.
// A document gets at most one pending approval.
func (s *Service) RequireDestructionApproval(ctx context.Context, doc retention.Document) (bool, error) {
	approval := &Approval{
		DocumentID:        doc.ID,
		DocumentTitle:     doc.Title,
		RetentionCategory: doc.RetentionCategory,
		CreationDate:      doc.CreationDate,
		Reason:            "Retention period expired - manual approval required",
		Status:            ApprovalPending,
		RequestedAt:       s.now(),
	}
	if end, ok := doc.EndDate(); ok {
		approval.RetentionEndDate = &end
	}

	created, err := s.store.CreateApproval(ctx, approval)
	recordAction("approval", err)
	if err != nil {
		return false, fmt.Errorf("create approval for %s: %w", doc.ID, err)
	}
	if !created {
		return false, nil
	}

	details := map[string]any{
		"approval_id":        approval.ID,
		"document_title":     doc.Title,
		"retention_category": string(doc.RetentionCategory),
		"reason":             approval.Reason,
	}
	if doc.CreationDate != nil {
		details["creation_date"] = doc.CreationDate.Format("2006-01-02")
	}
	s.record(ctx, audit.ActionApprovalRequired, audit.EntityDocument, doc.ID, details)
	return true, nil
}

// MarkForReview moves the listed documents to REVIEW in one batch. Only
// documents in ACTIVE_STORAGE change; the count says how many did.
func (s *Service) MarkForReview(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := s.store.TransitionStatus(ctx, ids,
		[]retention.DocumentStatus{retention.StatusActiveStorage}, retention.StatusReview, s.now())
	recordAction("review", err)
	if err != nil {
		return 0, fmt.Errorf("mark %d documents for review: %w", len(ids), err)
	}
	if n == 0 {
		return 0, nil
	}

	s.record(ctx, audit.ActionMarkedForReview, audit.EntityDocument, "", map[string]any{
		"document_count": n,
		"document_ids":   ids,
	})
	return n, nil
}

// ApproveDestruction resolves an approval and marks its document DESTROY
// in one store operation, so a failure leaves the approval pending.
func (s *Service) ApproveDestruction(ctx context.Context, approvalID, actor string) (*Approval, error) {
	approval, err := s.store.ApproveAndDestroy(ctx, approvalID, actor, s.now())
	if err != nil {
		if !errors.Is(err, ErrApprovalNotFound) && !errors.Is(err, ErrApprovalResolved) {
			recordAction("destroy", err)
		}
		return nil, err
	}
	recordAction("destroy", nil)

	s.record(ctx, audit.ActionScheduledDestroy, audit.EntityDocument, approval.DocumentID, map[string]any{
		"reason":             fmt.Sprintf("Destruction approved by %s", actor),
		"retention_category": string(approval.RetentionCategory),
		"approval_id":        approval.ID,
	})
	s.record(ctx, audit.ActionApprovalResolved, audit.EntityApproval, approval.ID, map[string]any{
		"document_id": approval.DocumentID,
		"decision":    string(ApprovalApproved),
		"actor":       actor,
	})
	return approval, nil
}

// RejectDestruction resolves an approval without touching the document
func (s *Service) RejectDestruction(ctx context.Context, approvalID, actor string) (*Approval, error) {
	approval, err := s.store.ResolveApproval(ctx, approvalID, ApprovalRejected, actor, s.now())
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.ActionApprovalResolved, audit.EntityApproval, approval.ID, map[string]any{
		"document_id": approval.DocumentID,
		"decision":    string(ApprovalRejected),
		"actor":       actor,
	})
	return approval, nil
}

func (s *Service) ListApprovals(ctx context.Context, status ApprovalStatus) ([]Approval, error) {
	return s.store.ListApprovals(ctx, status)
}

// RecordFailure writes a lifecycle worker error to the audit trail
func (s *Service) RecordFailure(ctx context.Context, err error) {
	s.record(ctx, audit.ActionLifecycleError, audit.EntityLifecycle, "", map[string]any{
		"error": err.Error(),
	})
}

func (s *Service) record(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	audit.Safe(ctx, s.audit, s.logger, audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		At:         s.now(),
	})
}

// IsNotFound reports whether err means an unknown document or approval
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound) || errors.Is(err, ErrApprovalNotFound)
}
