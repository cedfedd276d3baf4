// Package audit records who-did-what entries for queue and lifecycle actions.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Action names written to the audit trail
const (
	ActionTaskEnqueued      = "TASK_ENQUEUED"
	ActionTaskClaimed       = "TASK_CLAIMED"
	ActionTaskCompleted     = "TASK_COMPLETED"
	ActionTaskRetried       = "TASK_RETRIED"
	ActionTaskRequeued      = "TASK_REQUEUED"
	ActionTaskRecovered     = "TASK_RECOVERED"
	ActionQueueCleanup      = "QUEUE_CLEANUP"
	ActionQueueWorkerError  = "QUEUE_WORKER_ERROR"
	ActionQueuedForTransfer = "DOCUMENT_QUEUED_FOR_TRANSFER"
	ActionScheduledDestroy  = "DOCUMENT_SCHEDULED_FOR_DESTRUCTION"
	ActionMarkedForReview   = "DOCUMENTS_MARKED_FOR_REVIEW"
	ActionApprovalRequired  = "DESTRUCTION_APPROVAL_REQUIRED"
	ActionApprovalResolved  = "DESTRUCTION_APPROVAL_RESOLVED"
	ActionLifecycleComplete = "LIFECYCLE_CHECK_COMPLETED"
	ActionLifecycleError    = "LIFECYCLE_WORKER_ERROR"
)

// Entity types
const (
	EntityTask      = "processing_queue"
	EntityDocument  = "document"
	EntityLifecycle = "lifecycle"
	EntityApproval  = "destruction_approval"
)

// Entry is a single audit record. EntityID is empty for system-wide entries.
type Entry struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	At         time.Time      `json:"at"`
}

// Sink persists or forwards audit entries
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// Multi fans an entry out to every sink and joins their errors
type Multi []Sink

func (m Multi) Record(ctx context.Context, entry Entry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes entries to a zerolog logger
type LogSink struct {
	logger *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, entry Entry) error {
	s.logger.Info().
		Str("component", "audit").
		Str("action", entry.Action).
		Str("entity_type", entry.EntityType).
		Str("entity_id", entry.EntityID).
		Fields(entry.Details).
		Msg("audit")
	return nil
}

// Recorder keeps entries in memory
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Record(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Actions returns the recorded entries filtered by action
func (r *Recorder) Actions(action string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Safe records an entry and logs, rather than returns, a sink failure.
// Audit problems never fail the operation being audited.
func Safe(ctx context.Context, sink Sink, logger *zerolog.Logger, entry Entry) {
	if sink == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if err := sink.Record(ctx, entry); err != nil && logger != nil {
		logger.Warn().
			Err(err).
			Str("component", "audit").
			Str("action", entry.Action).
			Str("entity_id", entry.EntityID).
			Msg("Failed to record audit entry")
	}
}
