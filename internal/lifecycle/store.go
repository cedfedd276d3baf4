package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openarchive/retention-service/internal/retention"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrApprovalNotFound = errors.New("destruction approval not found")
	ErrApprovalResolved = errors.New("destruction approval already resolved")
	ErrDocumentState    = errors.New("document status does not allow this change")
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is a request for an operator to confirm destruction of a
// document whose retention period has ended.
type Approval struct {
	ID                string             `json:"id"`
	DocumentID        string             `json:"document_id"`
	DocumentTitle     string             `json:"document_title"`
	RetentionCategory retention.Category `json:"retention_category"`
	CreationDate      *time.Time         `json:"creation_date,omitempty"`
	RetentionEndDate  *time.Time         `json:"retention_end_date,omitempty"`
	Reason            string             `json:"reason"`
	Status            ApprovalStatus     `json:"status"`
	RequestedAt       time.Time          `json:"requested_at"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy        *string            `json:"resolved_by,omitempty"`
}

// Store is the document-side persistence used by the lifecycle
type Store interface {
	// ListCandidates returns documents in ACTIVE_STORAGE or REVIEW.
	ListCandidates(ctx context.Context) ([]retention.Document, error)
	GetDocument(ctx context.Context, id string) (*retention.Document, error)
	// TransitionStatus moves the listed documents whose current status is in
	// from to status, in one statement. Other documents are left alone and
	// not counted.
	TransitionStatus(ctx context.Context, ids []string, from []retention.DocumentStatus, status retention.DocumentStatus, now time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[retention.DocumentStatus]int64, error)

	// CreateApproval inserts a pending approval unless the document already
	// has one. It reports whether a row was created.
	CreateApproval(ctx context.Context, approval *Approval) (bool, error)
	ListApprovals(ctx context.Context, status ApprovalStatus) ([]Approval, error)
	ResolveApproval(ctx context.Context, id string, status ApprovalStatus, by string, now time.Time) (*Approval, error)
	// ApproveAndDestroy approves a pending approval and marks its document
	// DESTROY atomically. On error neither changes.
	ApproveAndDestroy(ctx context.Context, id string, by string, now time.Time) (*Approval, error)
}

// CheckDestroyable rejects permanent documents and documents that have
// left the candidate set.
func CheckDestroyable(doc retention.Document) error {
	if cat, _ := retention.Normalize(doc.RetentionCategory); cat.Permanent() {
		return fmt.Errorf("document %s has permanent retention and cannot be destroyed: %w", doc.ID, ErrDocumentState)
	}
	if !isCandidate(doc.Status) {
		return fmt.Errorf("document %s is %s: %w", doc.ID, doc.Status, ErrDocumentState)
	}
	return nil
}

func isCandidate(status retention.DocumentStatus) bool {
	for _, st := range retention.CandidateStatuses() {
		if st == status {
			return true
		}
	}
	return false
}
