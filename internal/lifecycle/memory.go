package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openarchive/retention-service/internal/retention"
)

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu        sync.Mutex
	docs      map[string]retention.Document
	approvals map[string]*Approval

	// FailUpdateFor makes status changes fail when any listed id is present.
	FailUpdateFor map[string]bool
}

func NewMemoryStore(docs ...retention.Document) *MemoryStore {
	s := &MemoryStore{
		docs:          make(map[string]retention.Document),
		approvals:     make(map[string]*Approval),
		FailUpdateFor: make(map[string]bool),
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Put(doc retention.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

func (s *MemoryStore) ListCandidates(_ context.Context) ([]retention.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []retention.Document
	for _, d := range s.docs {
		if d.Status == retention.StatusActiveStorage || d.Status == retention.StatusReview {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*retention.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return &d, nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, ids []string, from []retention.DocumentStatus, status retention.DocumentStatus, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if s.FailUpdateFor[id] {
			return 0, fmt.Errorf("update document %s: simulated failure", id)
		}
	}

	var n int64
	for _, id := range ids {
		d, ok := s.docs[id]
		if !ok || !slices.Contains(from, d.Status) {
			continue
		}
		d.Status = status
		s.docs[id] = d
		n++
	}
	return n, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context) (map[retention.DocumentStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[retention.DocumentStatus]int64)
	for _, d := range s.docs {
		out[d.Status]++
	}
	return out, nil
}

func (s *MemoryStore) CreateApproval(_ context.Context, approval *Approval) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.approvals {
		if a.DocumentID == approval.DocumentID && a.Status == ApprovalPending {
			return false, nil
		}
	}
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	cp := *approval
	s.approvals[cp.ID] = &cp
	return true, nil
}

func (s *MemoryStore) ListApprovals(_ context.Context, status ApprovalStatus) ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Approval
	for _, a := range s.approvals {
		if status == "" || a.Status == status {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *MemoryStore) ResolveApproval(_ context.Context, id string, status ApprovalStatus, by string, now time.Time) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	if a.Status != ApprovalPending {
		return nil, ErrApprovalResolved
	}
	resolved := now
	a.Status = status
	a.ResolvedAt = &resolved
	a.ResolvedBy = &by
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ApproveAndDestroy(_ context.Context, id, by string, now time.Time) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	if a.Status != ApprovalPending {
		return nil, ErrApprovalResolved
	}
	d, ok := s.docs[a.DocumentID]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	if err := CheckDestroyable(d); err != nil {
		return nil, err
	}
	if s.FailUpdateFor[d.ID] {
		return nil, fmt.Errorf("update document %s: simulated failure", d.ID)
	}

	d.Status = retention.StatusDestroy
	s.docs[d.ID] = d

	resolved := now
	a.Status = ApprovalApproved
	a.ResolvedAt = &resolved
	a.ResolvedBy = &by
	cp := *a
	return &cp, nil
}
