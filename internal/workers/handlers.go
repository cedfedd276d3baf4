package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/openarchive/retention-service/internal/lifecycle"
	"github.com/openarchive/retention-service/internal/processing"
	"github.com/openarchive/retention-service/internal/retention"
	"github.com/openarchive/retention-service/internal/taskqueue"
	"github.com/openarchive/retention-service/internal/transfer"
)

// DefaultPIITypes are redacted when a REDACTION payload names none
var DefaultPIITypes = []string{"PERSONAL_ID", "FINANCIAL"}

// ProcessorHandler forwards a document task to an external processor
func ProcessorHandler(p processing.Processor) HandlerFunc {
	return func(ctx context.Context, task taskqueue.Task) (any, error) {
		payload, err := taskqueue.DecodeDocumentPayload(task)
		if err != nil {
			return nil, err
		}
		return p.Process(ctx, payload.DocumentID, payload.Params)
	}
}

// RedactionHandler is ProcessorHandler with the PII categories filled in
func RedactionHandler(p processing.Processor) HandlerFunc {
	return func(ctx context.Context, task taskqueue.Task) (any, error) {
		payload, err := taskqueue.DecodeDocumentPayload(task)
		if err != nil {
			return nil, err
		}

		params := make(map[string]any, len(payload.Params)+1)
		for k, v := range payload.Params {
			params[k] = v
		}
		if _, ok := params["pii_types"]; !ok {
			params["pii_types"] = DefaultPIITypes
		}
		return p.Process(ctx, payload.DocumentID, params)
	}
}

// DocumentGetter looks up a document for packaging
type DocumentGetter interface {
	GetDocument(ctx context.Context, id string) (*retention.Document, error)
}

// TransferHandler builds the BagIt package for a document awaiting transfer
func TransferHandler(packager *transfer.Packager, docs DocumentGetter) HandlerFunc {
	return func(ctx context.Context, task taskqueue.Task) (any, error) {
		payload, err := taskqueue.DecodeDocumentPayload(task)
		if err != nil {
			return nil, err
		}

		req := transfer.Request{DocumentID: payload.DocumentID}
		if docs != nil {
			doc, err := docs.GetDocument(ctx, payload.DocumentID)
			if errors.Is(err, lifecycle.ErrDocumentNotFound) {
				return nil, taskqueue.Permanent(err)
			}
			if err != nil {
				return nil, fmt.Errorf("load document %s: %w", payload.DocumentID, err)
			}
			req.Title = doc.Title
		}
		return packager.Package(ctx, req)
	}
}

// LifecycleRunner runs one guarded lifecycle pass
type LifecycleRunner interface {
	RunOnce(ctx context.Context) (*lifecycle.RunSummary, error)
}

type lifecycleSkipped struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
}

// LifecycleCheckHandler re-runs the lifecycle. A run already in progress
// elsewhere makes the task a successful no-op.
func LifecycleCheckHandler(runner LifecycleRunner) HandlerFunc {
	return func(ctx context.Context, task taskqueue.Task) (any, error) {
		summary, err := runner.RunOnce(ctx)
		if errors.Is(err, lifecycle.ErrLockHeld) {
			return lifecycleSkipped{Skipped: true, Reason: err.Error()}, nil
		}
		if err != nil {
			return nil, err
		}
		return summary, nil
	}
}

// Handlers groups the collaborators behind each task type. Nil members
// leave their task types unregistered.
type Handlers struct {
	Processors map[taskqueue.TaskType]processing.Processor
	Packager   *transfer.Packager
	Documents  DocumentGetter
	Lifecycle  LifecycleRunner
}

// Register installs a handler for every configured collaborator
func (w *Worker) Register(h Handlers) {
	for taskType, p := range h.Processors {
		if taskType == taskqueue.TaskTypeRedaction {
			w.RegisterHandler(taskType, RedactionHandler(p))
			continue
		}
		w.RegisterHandler(taskType, ProcessorHandler(p))
	}
	if h.Packager != nil {
		w.RegisterHandler(taskqueue.TaskTypeTransferPrep, TransferHandler(h.Packager, h.Documents))
	}
	if h.Lifecycle != nil {
		w.RegisterHandler(taskqueue.TaskTypeLifecycleCheck, LifecycleCheckHandler(h.Lifecycle))
	}
}
