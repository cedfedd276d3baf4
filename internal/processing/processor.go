// Package processing calls the external collaborators (enrichment, OCR,
// redaction) that do the actual document work for queued tasks.
package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openarchive/retention-service/internal/taskqueue"
)

// Result is what a collaborator reports back. Data is stored verbatim as the
// task result.
type Result struct {
	DocumentID string          `json:"document_id"`
	Status     string          `json:"status,omitempty"`
	Data       json.RawMessage `json:"data,omitempty" swaggertype:"object"`
}

// Processor performs one kind of document processing
type Processor interface {
	Process(ctx context.Context, documentID string, params map[string]any) (*Result, error)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, documentID string, params map[string]any) (*Result, error)

func (f ProcessorFunc) Process(ctx context.Context, documentID string, params map[string]any) (*Result, error) {
	return f(ctx, documentID, params)
}

type request struct {
	DocumentID string         `json:"document_id"`
	Params     map[string]any `json:"params,omitempty"`
}

// HTTPProcessor posts {document_id, params} to a collaborator endpoint
type HTTPProcessor struct {
	name   string
	url    string
	client *Client
}

func NewHTTPProcessor(name, url string, client *Client) *HTTPProcessor {
	return &HTTPProcessor{name: name, url: url, client: client}
}

func (p *HTTPProcessor) Name() string { return p.name }

func (p *HTTPProcessor) Process(ctx context.Context, documentID string, params map[string]any) (*Result, error) {
	var data json.RawMessage
	err := p.client.PostJSON(ctx, p.url, request{DocumentID: documentID, Params: params}, &data)
	if err != nil {
		var serr *StatusError
		if errors.As(err, &serr) && !serr.Retryable() {
			return nil, taskqueue.Permanent(fmt.Errorf("%s: %w", p.name, err))
		}
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	res := &Result{DocumentID: documentID, Status: "processed"}
	if len(data) > 0 && string(data) != "null" {
		res.Data = data
	}
	return res, nil
}

// Endpoints names the collaborator URLs. Empty URLs are not registered.
type Endpoints struct {
	Enrichment string
	OCR        string
	Redaction  string
}

// Build returns an HTTPProcessor per configured endpoint, keyed by the task
// type it serves.
func Build(endpoints Endpoints, client *Client) map[taskqueue.TaskType]Processor {
	out := make(map[taskqueue.TaskType]Processor)
	if endpoints.Enrichment != "" {
		out[taskqueue.TaskTypeDocumentEnrichment] = NewHTTPProcessor("enrichment", endpoints.Enrichment, client)
	}
	if endpoints.OCR != "" {
		out[taskqueue.TaskTypeOCRProcessing] = NewHTTPProcessor("ocr", endpoints.OCR, client)
	}
	if endpoints.Redaction != "" {
		out[taskqueue.TaskTypeRedaction] = NewHTTPProcessor("redaction", endpoints.Redaction, client)
	}
	return out
}
