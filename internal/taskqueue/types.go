package taskqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions are expected
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type TaskType string

const (
	TaskTypeDocumentEnrichment TaskType = "DOCUMENT_ENRICHMENT"
	TaskTypeOCRProcessing      TaskType = "OCR_PROCESSING"
	TaskTypeLifecycleCheck     TaskType = "LIFECYCLE_CHECK"
	TaskTypeRedaction          TaskType = "REDACTION"
	TaskTypeTransferPrep       TaskType = "TRANSFER_PREP"
)

// AllTaskTypes lists the closed set of task types in a stable order
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeDocumentEnrichment,
		TaskTypeOCRProcessing,
		TaskTypeLifecycleCheck,
		TaskTypeRedaction,
		TaskTypeTransferPrep,
	}
}

func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTaskType validates s against the closed set of task types
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskType, s)
	}
	return t, nil
}

const (
	DefaultMaxAttempts = 3
	DefaultPriority    = 0
)

type Task struct {
	ID           string          `json:"id" db:"id"`
	TaskType     TaskType        `json:"task_type" db:"task_type"`
	Payload      json.RawMessage `json:"payload" db:"payload" swaggertype:"object"`
	Priority     int             `json:"priority" db:"priority"`
	Status       TaskStatus      `json:"status" db:"status"`
	ScheduledFor time.Time       `json:"scheduled_for" db:"scheduled_for"`
	Attempts     int             `json:"attempts" db:"attempts"`
	MaxAttempts  int             `json:"max_attempts" db:"max_attempts"`
	LastError    *string         `json:"last_error,omitempty" db:"last_error"`
	Result       json.RawMessage `json:"result,omitempty" db:"result" swaggertype:"object"`
	WorkerID     *string         `json:"worker_id,omitempty" db:"worker_id"`
	StartedAt    *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// AttemptsRemaining reports whether another claim is allowed after a failure
func (t Task) AttemptsRemaining() bool {
	return t.Attempts < t.MaxAttempts
}

// Outcome is the result reported by a handler for a processing task.
// A non-empty WorkerID must match the worker holding the claim.
type Outcome struct {
	Success  bool            `json:"success"`
	Result   json.RawMessage `json:"result,omitempty" swaggertype:"object"`
	Error    string          `json:"error,omitempty"`
	WorkerID string          `json:"worker_id,omitempty"`
}

// RetryInput describes a failed attempt that goes back to pending
type RetryInput struct {
	// WorkerID, when set, must match the worker holding the claim.
	WorkerID string
	Delay    time.Duration
	// Error is the handler error, kept as last_error until the next attempt.
	Error string
}

// DocumentPayload is the payload shape shared by every document task type
type DocumentPayload struct {
	DocumentID string         `json:"document_id" jsonschema:"required,description=Target document identifier"`
	Reason     string         `json:"reason,omitempty" jsonschema:"description=Why the task was queued"`
	Params     map[string]any `json:"params,omitempty" jsonschema:"description=Processor specific parameters"`
}

// Stats summarises queue contents
type Stats struct {
	Pending          int64              `json:"pending"`
	Processing       int64              `json:"processing"`
	Completed        int64              `json:"completed"`
	Failed           int64              `json:"failed"`
	Total            int64              `json:"total"`
	PendingByType    map[TaskType]int64 `json:"pending_by_type"`
	ProcessingByType map[TaskType]int64 `json:"processing_by_type"`
}

// StatusTypeCount is one (status, type) bucket as returned by a Store
type StatusTypeCount struct {
	Status   TaskStatus
	TaskType TaskType
	Count    int64
}

// ListFilter narrows List results. Zero values mean no constraint.
type ListFilter struct {
	Status   TaskStatus
	TaskType TaskType
	Limit    int
	Offset   int
}

// RecoverResult reports what a stuck-task sweep changed
type RecoverResult struct {
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}
